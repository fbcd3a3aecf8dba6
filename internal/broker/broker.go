// Package broker serves the cloud-query tools of one ResourceClient over
// the line protocol. It holds no lifecycle state of its own: it serves
// until its input ends.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/bnema/cloudwhisper/internal/ports"
	"github.com/bnema/cloudwhisper/internal/protocol"
	"github.com/rs/zerolog"
)

const ServerName = "CloudWhisper Tool Broker"

type Broker struct {
	// mu guards client. The line discipline already serializes switches,
	// but the lock keeps a multi-connection server correct too.
	mu     sync.Mutex
	client ports.ResourceClient

	tools   map[string]tool
	catalog []protocol.Tool
	version string
	logger  zerolog.Logger
}

func New(client ports.ResourceClient, version string, logger zerolog.Logger) *Broker {
	b := &Broker{
		client:  client,
		tools:   make(map[string]tool),
		version: version,
		logger:  logger.With().Str("component", "broker").Logger(),
	}
	for _, t := range defaultTools() {
		b.tools[t.spec.Name] = t
		b.catalog = append(b.catalog, t.spec)
	}

	return b
}

// Catalog returns the advertised tools in declaration order.
func (b *Broker) Catalog() []protocol.Tool {
	catalog := make([]protocol.Tool, len(b.catalog))
	copy(catalog, b.catalog)
	return catalog
}

// Serve answers one request line at a time until r reaches end of stream
// or ctx is done. Every line gets exactly one response, blank ones
// included; a broken line never stops the loop.
func (b *Broker) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	reader := protocol.NewLineReader(r)
	writer := protocol.NewLineWriter(w)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, err := reader.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				b.logger.Debug().Msg("input closed, stopping")
				return nil
			}
			return fmt.Errorf("read request: %w", err)
		}

		resp := b.Handle(ctx, line)
		if err := writer.WriteJSON(resp); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
}

// Handle turns one request line into exactly one response.
func (b *Broker) Handle(ctx context.Context, line []byte) (resp protocol.Response) {
	req, err := protocol.ParseRequest(line)
	if err != nil {
		b.logger.Warn().Err(err).Int("id", req.ID).Msg("malformed request")
		return protocol.NewErrorResponse(req.ID, asProtocolError(err))
	}

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().Interface("panic", r).Str("method", req.Method).Msg("request panicked")
			resp = protocol.NewErrorResponse(req.ID, protocol.Errorf(protocol.CodeInternalError, "Internal error: %v", r))
		}
	}()

	result, err := b.dispatch(ctx, req)
	if err != nil {
		return protocol.NewErrorResponse(req.ID, asProtocolError(err))
	}

	resp, err = protocol.NewResponse(req.ID, result)
	if err != nil {
		return protocol.NewErrorResponse(req.ID, asProtocolError(err))
	}

	return resp
}

func (b *Broker) dispatch(ctx context.Context, req protocol.Request) (any, error) {
	switch req.Method {
	case protocol.MethodInitialize:
		return protocol.InitializeResult{
			ProtocolVersion: protocol.ProtocolVersion,
			Capabilities:    map[string]any{"tools": map[string]any{}},
			ServerInfo:      protocol.ServerInfo{Name: ServerName, Version: b.version},
		}, nil
	case protocol.MethodToolsList:
		return protocol.ToolsListResult{Tools: b.Catalog()}, nil
	case protocol.MethodToolsCall:
		return b.callTool(ctx, req.Params)
	default:
		return nil, protocol.Errorf(protocol.CodeMethodNotFound, "Method not found: %s", req.Method)
	}
}

func (b *Broker) callTool(ctx context.Context, rawParams json.RawMessage) (any, error) {
	var params protocol.CallParams
	if len(rawParams) > 0 {
		if err := json.Unmarshal(rawParams, &params); err != nil {
			return nil, protocol.Errorf(protocol.CodeInvalidParams, "Invalid params: %v", err)
		}
	}

	t, ok := b.tools[params.Name]
	if !ok {
		return nil, protocol.Errorf(protocol.CodeMethodNotFound, "Tool not found: %s", params.Name)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	logger := b.logger.With().Str("tool", params.Name).Logger()
	payload, err := t.run(ctx, b.client, params)
	if err != nil {
		var protoErr *protocol.Error
		if errors.As(err, &protoErr) {
			return nil, protoErr
		}
		logger.Warn().Err(err).Msg("tool failed")
		payload = failure(err)
	}

	return protocol.TextResult(payload)
}

func asProtocolError(err error) *protocol.Error {
	var protoErr *protocol.Error
	if errors.As(err, &protoErr) {
		return protoErr
	}

	return protocol.Errorf(protocol.CodeInternalError, "Internal error: %v", err)
}
