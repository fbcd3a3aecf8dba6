package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// logSink is where a command's logs go. Raw receives JSON lines forwarded
// from the broker process.
type logSink struct {
	Logger zerolog.Logger
	Raw    io.Writer
	close  func() error
}

func (s logSink) Close() error {
	if s.close == nil {
		return nil
	}

	return s.close()
}

// newInteractiveLogger writes to log.file when set, otherwise to stderr at
// warn level unless verbose.
func newInteractiveLogger(v *viper.Viper, stderr io.Writer, verbose bool) (logSink, error) {
	level, err := parseLevel(v.GetString(keyLogLevel))
	if err != nil {
		return logSink{}, err
	}
	if verbose {
		level = zerolog.DebugLevel
	}

	if path := strings.TrimSpace(v.GetString(keyLogFile)); path != "" {
		path = expandHome(path)
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return logSink{}, fmt.Errorf("create log directory: %w", err)
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return logSink{}, fmt.Errorf("open log file: %w", err)
		}

		logger := zerolog.New(file).Level(level).With().Timestamp().Logger()
		return logSink{
			Logger: logger,
			Raw:    &forwardWriter{events: file, plain: file, min: level},
			close:  file.Close,
		}, nil
	}

	if !verbose && level < zerolog.WarnLevel {
		level = zerolog.WarnLevel
	}
	console := zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.Kitchen}
	logger := zerolog.New(console).Level(level).With().Timestamp().Logger()

	return logSink{
		Logger: logger,
		Raw:    &forwardWriter{events: console, plain: stderr, min: level},
	}, nil
}

// newBrokerLogger writes JSON lines to stderr; stdout carries the protocol.
func newBrokerLogger(v *viper.Viper, stderr io.Writer, verbose bool) (zerolog.Logger, error) {
	level, err := parseLevel(v.GetString(keyLogLevel))
	if err != nil {
		return zerolog.Nop(), err
	}
	if verbose {
		level = zerolog.DebugLevel
	}

	return zerolog.New(stderr).Level(level).With().Timestamp().Int("pid", os.Getpid()).Logger(), nil
}

func parseLevel(raw string) (zerolog.Level, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return zerolog.InfoLevel, nil
	}

	level, err := zerolog.ParseLevel(strings.ToLower(raw))
	if err != nil {
		return zerolog.InfoLevel, fmt.Errorf("invalid %s %q: %w", keyLogLevel, raw, err)
	}

	return level, nil
}

// forwardWriter relays the broker's stderr line by line. JSON events below
// min are dropped; anything that is not a JSON event passes through plain.
type forwardWriter struct {
	events io.Writer
	plain  io.Writer
	min    zerolog.Level

	mu  sync.Mutex
	buf []byte
}

func (w *forwardWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			return len(p), nil
		}
		line := append([]byte(nil), w.buf[:i+1]...)
		w.buf = w.buf[i+1:]

		if err := w.forward(line); err != nil {
			return len(p), err
		}
	}
}

func (w *forwardWriter) forward(line []byte) error {
	if len(bytes.TrimSpace(line)) == 0 {
		return nil
	}

	var event struct {
		Level string `json:"level"`
	}
	if err := json.Unmarshal(line, &event); err != nil {
		_, err := w.plain.Write(line)
		return err
	}

	level, err := zerolog.ParseLevel(event.Level)
	if err == nil && level < w.min {
		return nil
	}

	_, err = w.events.Write(line)
	return err
}
