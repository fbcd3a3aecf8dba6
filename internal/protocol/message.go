// Package protocol implements the line-delimited JSON-RPC dialect spoken
// between the orchestrator and the broker worker.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	Version         = "2.0"
	ProtocolVersion = "2024-11-05"

	MethodInitialize = "initialize"
	MethodToolsList  = "tools/list"
	MethodToolsCall  = "tools/call"

	// DefaultID is echoed when a request line is too broken to carry an id.
	// Clients number their requests from 1.
	DefaultID = 0
)

const (
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("protocol error %d: %s", e.Code, e.Message)
}

func Errorf(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// IsNotFound reports whether err is a method or tool not-found fault.
func IsNotFound(err error) bool {
	var protoErr *Error
	return errors.As(err, &protoErr) && protoErr.Code == CodeMethodNotFound
}

type CallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// StringArg returns the named argument when it is a string.
func (p CallParams) StringArg(name string) (string, bool) {
	raw, ok := p.Arguments[name]
	if !ok {
		return "", false
	}
	value, ok := raw.(string)
	return value, ok
}

type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type CallResult struct {
	Content []Content `json:"content"`
}

// TextResult wraps v, JSON-encoded, as the single text block of a result.
func TextResult(v any) (CallResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return CallResult{}, fmt.Errorf("encode tool result: %w", err)
	}

	return CallResult{Content: []Content{{Type: "text", Text: string(data)}}}, nil
}

// Text joins every text block of the result.
func (r CallResult) Text() string {
	var buf bytes.Buffer
	for _, c := range r.Content {
		if c.Type == "text" {
			buf.WriteString(c.Text)
		}
	}

	return buf.String()
}

type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      ServerInfo     `json:"serverInfo"`
}

type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"inputSchema"`
}

type ToolsListResult struct {
	Tools []Tool `json:"tools"`
}

func NewResponse(id int, result any) (Response, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return Response{}, fmt.Errorf("encode result: %w", err)
	}

	return Response{JSONRPC: Version, ID: id, Result: data}, nil
}

func NewErrorResponse(id int, err *Error) Response {
	return Response{JSONRPC: Version, ID: id, Error: err}
}

// ParseRequest decodes one request line. On failure it still returns the
// best-effort id so the caller can echo it in the error response.
func ParseRequest(line []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return Request{ID: salvageID(line)}, Errorf(CodeInternalError, "Internal error: %v", err)
	}

	return req, nil
}

func salvageID(line []byte) int {
	var probe struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(line, &probe); err != nil || len(probe.ID) == 0 {
		return DefaultID
	}

	var id int
	if err := json.Unmarshal(probe.ID, &id); err != nil {
		return DefaultID
	}

	return id
}

// DecodeResult extracts the call result of resp, or its error.
func DecodeResult(resp Response) (CallResult, error) {
	if resp.Error != nil {
		return CallResult{}, resp.Error
	}

	var result CallResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return CallResult{}, fmt.Errorf("decode result: %w", err)
	}

	return result, nil
}
