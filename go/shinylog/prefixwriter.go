package shinylog

import (
	"bytes"
	"io"
	"sync"
)

// PrefixWriter is an io.Writer that copies complete lines to an underlying
// writer, each preceded by a colored prefix. Partial lines are held until
// their newline arrives or Flush is called.
type PrefixWriter struct {
	mu     sync.Mutex
	out    io.Writer
	prefix []byte
	buf    bytes.Buffer
}

// NewPrefixWriter returns a writer that tags every line with prefix. The
// prefix may contain {color} tags; they are expanded with the default
// logger's color setting.
func NewPrefixWriter(out io.Writer, prefix string) *PrefixWriter {
	return &PrefixWriter{
		out:    out,
		prefix: []byte(DefaultLogger().FormatColors(prefix + "{reset}")),
	}
}

func (w *PrefixWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		line := w.buf.Bytes()
		i := bytes.IndexByte(line, '\n')
		if i < 0 {
			break
		}
		if err := w.emit(line[:i+1]); err != nil {
			return len(p), err
		}
		w.buf.Next(i + 1)
	}
	return len(p), nil
}

// Flush writes out any buffered partial line with a trailing newline.
func (w *PrefixWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf.Len() == 0 {
		return nil
	}
	line := append(w.buf.Bytes(), '\n')
	w.buf.Reset()
	return w.emit(line)
}

func (w *PrefixWriter) emit(line []byte) error {
	out := make([]byte, 0, len(w.prefix)+len(line))
	out = append(out, w.prefix...)
	out = append(out, bytes.TrimRight(line, "\r\n")...)
	out = append(out, '\n')
	_, err := w.out.Write(out)
	return err
}
