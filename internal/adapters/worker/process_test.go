package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"testing"
	"time"

	"github.com/bnema/cloudwhisper/internal/domain"
	"github.com/bnema/cloudwhisper/internal/protocol"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helperEnv = "CW_WORKER_HELPER_MODE"

// TestHelperProcess is not a real test: it is the child process started by
// the tests below. Its behavior is selected by helperEnv.
func TestHelperProcess(t *testing.T) {
	mode := os.Getenv(helperEnv)
	if mode == "" {
		return
	}
	defer os.Exit(0)

	account := "default"
	for i, arg := range os.Args {
		if arg == "--account" && i+1 < len(os.Args) {
			account = os.Args[i+1]
		}
	}

	switch mode {
	case "silent":
		time.Sleep(time.Minute)
		return
	case "exit":
		os.Exit(3)
	case "stubborn":
		signal.Ignore(syscall.SIGTERM)
	}

	reader := protocol.NewLineReader(os.Stdin)
	writer := protocol.NewLineWriter(os.Stdout)
	calls := 0
	for {
		line, err := reader.ReadLine()
		if err != nil {
			if mode == "stubborn" {
				time.Sleep(time.Minute)
			}
			return
		}
		req, perr := protocol.ParseRequest(line)
		if perr != nil {
			_ = writer.WriteJSON(protocol.NewErrorResponse(req.ID, &protocol.Error{Code: protocol.CodeInternalError, Message: perr.Error()}))
			continue
		}

		switch req.Method {
		case protocol.MethodInitialize:
			resp, _ := protocol.NewResponse(req.ID, protocol.InitializeResult{ProtocolVersion: protocol.ProtocolVersion})
			_ = writer.WriteJSON(resp)
		case protocol.MethodToolsCall:
			calls++
			if mode == "crash-on-call" {
				os.Exit(2)
			}
			if mode == "hang-on-call" {
				time.Sleep(time.Minute)
			}
			if mode == "garbage" {
				fmt.Fprintln(os.Stdout, "{garbage")
				continue
			}
			var params protocol.CallParams
			_ = json.Unmarshal(req.Params, &params)
			if params.Name == "does_not_exist" {
				_ = writer.WriteJSON(protocol.NewErrorResponse(req.ID, protocol.Errorf(protocol.CodeMethodNotFound, "Tool not found: %s", params.Name)))
				continue
			}
			result, _ := protocol.TextResult(map[string]any{"tool": params.Name, "account": account, "calls": calls})
			resp, _ := protocol.NewResponse(req.ID, result)
			_ = writer.WriteJSON(resp)
		default:
			_ = writer.WriteJSON(protocol.NewErrorResponse(req.ID, protocol.Errorf(protocol.CodeMethodNotFound, "Method not found: %s", req.Method)))
		}
	}
}

func helperLauncher(t *testing.T, mode string, tune func(*Config)) *Launcher {
	t.Helper()

	cfg := Config{
		Path:         os.Args[0],
		Args:         []string{"-test.run=^TestHelperProcess$", "--"},
		Env:          []string{helperEnv + "=" + mode},
		StartTimeout: 5 * time.Second,
		CallTimeout:  5 * time.Second,
		StopGrace:    2 * time.Second,
		Logger:       zerolog.Nop(),
	}
	if tune != nil {
		tune(&cfg)
	}

	return NewLauncher(cfg)
}

func launch(t *testing.T, launcher *Launcher, account domain.AccountID) *Conn {
	t.Helper()

	conn, err := launcher.Launch(context.Background(), account)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(context.Background()) })

	return conn.(*Conn)
}

func toolText(t *testing.T, raw json.RawMessage) map[string]any {
	t.Helper()

	var result protocol.CallResult
	require.NoError(t, json.Unmarshal(raw, &result))
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(result.Text()), &payload))

	return payload
}

func TestLaunchAndCall(t *testing.T) {
	conn := launch(t, helperLauncher(t, "serve", nil), "prod")

	raw, err := conn.Call(context.Background(), protocol.MethodToolsCall, protocol.CallParams{Name: "list_instances"})
	require.NoError(t, err)

	payload := toolText(t, raw)
	assert.Equal(t, "list_instances", payload["tool"])
	assert.Equal(t, "prod", payload["account"])
}

func TestCallReturnsProtocolErrors(t *testing.T) {
	conn := launch(t, helperLauncher(t, "serve", nil), "default")

	_, err := conn.Call(context.Background(), protocol.MethodToolsCall, protocol.CallParams{Name: "does_not_exist"})
	require.Error(t, err)
	assert.True(t, protocol.IsNotFound(err))
	assert.False(t, errors.Is(err, domain.ErrWorkerUnavailable))

	_, err = conn.Call(context.Background(), protocol.MethodToolsCall, protocol.CallParams{Name: "list_instances"})
	require.NoError(t, err, "protocol faults do not poison the connection")
}

func TestLaunchFailsWhenWorkerNeverAnswers(t *testing.T) {
	launcher := helperLauncher(t, "silent", func(cfg *Config) {
		cfg.StartTimeout = 300 * time.Millisecond
		cfg.StopGrace = 200 * time.Millisecond
	})

	_, err := launcher.Launch(context.Background(), "default")
	require.ErrorIs(t, err, domain.ErrWorkerUnavailable)
}

func TestLaunchFailsWhenWorkerExits(t *testing.T) {
	_, err := helperLauncher(t, "exit", nil).Launch(context.Background(), "default")
	require.ErrorIs(t, err, domain.ErrWorkerUnavailable)
}

func TestLaunchFailsForMissingExecutable(t *testing.T) {
	launcher := NewLauncher(Config{Path: "/nonexistent/cw-broker", Logger: zerolog.Nop()})

	_, err := launcher.Launch(context.Background(), "default")
	require.ErrorIs(t, err, domain.ErrWorkerUnavailable)
}

func TestCallAfterCrashIsUnavailable(t *testing.T) {
	conn := launch(t, helperLauncher(t, "crash-on-call", nil), "default")

	_, err := conn.Call(context.Background(), protocol.MethodToolsCall, protocol.CallParams{Name: "list_instances"})
	require.ErrorIs(t, err, domain.ErrWorkerUnavailable)

	select {
	case <-conn.Exited():
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not report exit")
	}

	_, err = conn.Call(context.Background(), protocol.MethodToolsCall, protocol.CallParams{Name: "list_instances"})
	require.ErrorIs(t, err, domain.ErrWorkerUnavailable)
}

func TestCallTimeoutIsUnavailable(t *testing.T) {
	conn := launch(t, helperLauncher(t, "hang-on-call", func(cfg *Config) {
		cfg.CallTimeout = 200 * time.Millisecond
		cfg.StopGrace = 200 * time.Millisecond
	}), "default")

	_, err := conn.Call(context.Background(), protocol.MethodToolsCall, protocol.CallParams{Name: "list_instances"})
	require.ErrorIs(t, err, domain.ErrWorkerUnavailable)
}

func TestMalformedResponseIsUnavailable(t *testing.T) {
	conn := launch(t, helperLauncher(t, "garbage", nil), "default")

	_, err := conn.Call(context.Background(), protocol.MethodToolsCall, protocol.CallParams{Name: "list_instances"})
	require.ErrorIs(t, err, domain.ErrWorkerUnavailable)
}

func TestCloseStopsWorkerOnStdinClose(t *testing.T) {
	conn := launch(t, helperLauncher(t, "serve", nil), "default")

	require.NoError(t, conn.Close(context.Background()))

	select {
	case <-conn.Exited():
	default:
		t.Fatal("worker still running after Close")
	}
	_, err := conn.Call(context.Background(), protocol.MethodToolsCall, protocol.CallParams{Name: "list_instances"})
	require.ErrorIs(t, err, domain.ErrWorkerUnavailable)
}

func TestCloseKillsStubbornWorker(t *testing.T) {
	conn := launch(t, helperLauncher(t, "stubborn", func(cfg *Config) {
		cfg.StopGrace = 200 * time.Millisecond
	}), "default")

	started := time.Now()
	require.NoError(t, conn.Close(context.Background()))

	assert.Less(t, time.Since(started), 5*time.Second)
	select {
	case <-conn.Exited():
	default:
		t.Fatal("worker still running after Close")
	}
}
