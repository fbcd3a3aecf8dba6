// Package worker runs the broker as a child process and speaks the line
// protocol over its stdin and stdout.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/bnema/cloudwhisper/internal/domain"
	"github.com/bnema/cloudwhisper/internal/ports"
	"github.com/bnema/cloudwhisper/internal/protocol"
	"github.com/rs/zerolog"
)

const (
	DefaultStartTimeout = 2 * time.Second
	DefaultCallTimeout  = 60 * time.Second
	DefaultStopGrace    = 5 * time.Second
)

type Config struct {
	// Path is the executable to run; Args are passed before the account flag.
	Path string
	Args []string
	// Env is appended to the parent environment.
	Env          []string
	StartTimeout time.Duration
	CallTimeout  time.Duration
	StopGrace    time.Duration
	// Stderr receives the child's diagnostics.
	Stderr io.Writer
	Logger zerolog.Logger
}

type Launcher struct {
	cfg Config
}

var _ ports.WorkerLauncher = (*Launcher)(nil)

func NewLauncher(cfg Config) *Launcher {
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = DefaultStartTimeout
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = DefaultStopGrace
	}
	if cfg.Stderr == nil {
		cfg.Stderr = io.Discard
	}

	return &Launcher{cfg: cfg}
}

// Launch starts a broker bound to account and waits for it to answer
// initialize within the start timeout.
func (l *Launcher) Launch(ctx context.Context, account domain.AccountID) (ports.WorkerConn, error) {
	args := append([]string{}, l.cfg.Args...)
	if account != "" {
		args = append(args, "--account", string(account))
	}

	cmd := exec.Command(l.cfg.Path, args...)
	cmd.Env = append(os.Environ(), l.cfg.Env...)
	cmd.Stderr = l.cfg.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: open stdin: %v", domain.ErrWorkerUnavailable, err)
	}
	// A plain pipe rather than StdoutPipe: Wait must not close the read end
	// while a response is still being read.
	stdout, childStdout, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("%w: open stdout: %v", domain.ErrWorkerUnavailable, err)
	}
	cmd.Stdout = childStdout
	if err := cmd.Start(); err != nil {
		_ = stdout.Close()
		_ = childStdout.Close()
		return nil, fmt.Errorf("%w: start: %v", domain.ErrWorkerUnavailable, err)
	}
	_ = childStdout.Close()

	conn := newConn(cmd, stdin, stdout, l.cfg)
	conn.logger.Debug().Int("pid", cmd.Process.Pid).Msg("worker started")

	initCtx, cancel := context.WithTimeout(ctx, l.cfg.StartTimeout)
	defer cancel()
	if _, err := conn.Call(initCtx, protocol.MethodInitialize, nil); err != nil {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), l.cfg.StopGrace+time.Second)
		defer closeCancel()
		_ = conn.Close(closeCtx)
		return nil, fmt.Errorf("liveness check: %w", asUnavailable(err))
	}

	return conn, nil
}

type frame struct {
	line []byte
	err  error
}

type Conn struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	writer *protocol.LineWriter
	frames chan frame
	exited chan struct{}
	done   chan struct{}
	cfg    Config
	logger zerolog.Logger

	mu     sync.Mutex
	nextID int
	broken error

	closeOnce sync.Once
	closeErr  error
}

var _ ports.WorkerConn = (*Conn)(nil)

func newConn(cmd *exec.Cmd, stdin io.WriteCloser, stdout io.ReadCloser, cfg Config) *Conn {
	c := &Conn{
		cmd:    cmd,
		stdin:  stdin,
		writer: protocol.NewLineWriter(stdin),
		frames: make(chan frame),
		exited: make(chan struct{}),
		done:   make(chan struct{}),
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "worker").Int("pid", cmd.Process.Pid).Logger(),
	}

	go c.readFrames(stdout)
	go func() {
		err := cmd.Wait()
		c.logger.Debug().Err(err).Msg("worker exited")
		close(c.exited)
	}()

	return c
}

func (c *Conn) readFrames(stdout io.ReadCloser) {
	defer stdout.Close()

	reader := protocol.NewLineReader(stdout)
	for {
		line, err := reader.ReadLine()
		select {
		case c.frames <- frame{line: line, err: err}:
		case <-c.done:
			return
		}
		if err != nil {
			return
		}
	}
}

func (c *Conn) Exited() <-chan struct{} {
	return c.exited
}

// Call writes one request and blocks until the matching response, the
// call timeout, ctx cancellation, or worker exit. Any transport fault
// poisons the connection.
func (c *Conn) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken != nil {
		return nil, c.broken
	}
	select {
	case <-c.exited:
		return nil, c.fail(errors.New("process exited"))
	default:
	}

	c.nextID++
	req := protocol.Request{JSONRPC: protocol.Version, ID: c.nextID, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encode params: %w", err)
		}
		req.Params = raw
	}

	if err := c.writer.WriteJSON(req); err != nil {
		return nil, c.fail(err)
	}

	timer := time.NewTimer(c.cfg.CallTimeout)
	defer timer.Stop()

	for {
		select {
		case f := <-c.frames:
			if f.err != nil {
				return nil, c.fail(fmt.Errorf("read response: %w", f.err))
			}
			var resp protocol.Response
			if err := json.Unmarshal(f.line, &resp); err != nil {
				return nil, c.fail(fmt.Errorf("malformed response: %w", err))
			}
			if resp.ID != req.ID {
				c.logger.Warn().Int("want", req.ID).Int("got", resp.ID).Msg("discarding unmatched response")
				continue
			}
			if resp.Error != nil {
				return nil, resp.Error
			}
			return resp.Result, nil
		case <-c.exited:
			return nil, c.fail(errors.New("process exited"))
		case <-timer.C:
			return nil, c.fail(fmt.Errorf("no response to %s within %s", method, c.cfg.CallTimeout))
		case <-ctx.Done():
			return nil, c.fail(ctx.Err())
		}
	}
}

func (c *Conn) fail(cause error) error {
	c.broken = fmt.Errorf("%w: %v", domain.ErrWorkerUnavailable, cause)
	return c.broken
}

// Close closes stdin, asks the process to terminate, and kills it if it is
// still running after the stop grace period or when ctx ends.
func (c *Conn) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		defer close(c.done)

		_ = c.stdin.Close()
		select {
		case <-c.exited:
			return
		default:
		}

		if err := c.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
			c.logger.Debug().Err(err).Msg("terminate signal failed")
		}

		grace := time.NewTimer(c.cfg.StopGrace)
		defer grace.Stop()
		select {
		case <-c.exited:
			return
		case <-grace.C:
		case <-ctx.Done():
		}

		c.logger.Warn().Msg("worker did not stop in time, killing")
		if err := c.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			c.closeErr = fmt.Errorf("kill worker: %w", err)
			return
		}
		<-c.exited
	})

	return c.closeErr
}

func asUnavailable(err error) error {
	if errors.Is(err, domain.ErrWorkerUnavailable) {
		return err
	}

	return fmt.Errorf("%w: %v", domain.ErrWorkerUnavailable, err)
}
