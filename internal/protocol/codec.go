package protocol

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// LineReader yields one newline-terminated frame at a time.
type LineReader struct {
	r *bufio.Reader
}

func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{r: bufio.NewReader(r)}
}

// ReadLine returns the next frame without its terminator. A final frame
// without a newline is still returned; io.EOF follows it.
func (l *LineReader) ReadLine() ([]byte, error) {
	line, err := l.r.ReadBytes('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return trimLine(line), nil
		}
		return nil, err
	}

	return trimLine(line), nil
}

func trimLine(line []byte) []byte {
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}

	return line
}

// LineWriter writes one JSON document per line and flushes after each.
type LineWriter struct {
	w *bufio.Writer
}

func NewLineWriter(w io.Writer) *LineWriter {
	return &LineWriter{w: bufio.NewWriter(w)}
}

func (l *LineWriter) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode line: %w", err)
	}
	data = append(data, '\n')

	if _, err := l.w.Write(data); err != nil {
		return fmt.Errorf("write line: %w", err)
	}
	if err := l.w.Flush(); err != nil {
		return fmt.Errorf("flush line: %w", err)
	}

	return nil
}
