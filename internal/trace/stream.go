package trace

import (
	"io"
	"sync"

	"github.com/fatih/color"
)

// StreamSink writes lines immediately to an io.Writer.
type StreamSink struct {
	mu      sync.Mutex
	w       io.Writer
	warn    *color.Color
	err     *color.Color
	lastErr error
}

// NewStreamSink creates a StreamSink. When colorize is set, warnings are
// written yellow and errors red regardless of terminal detection.
func NewStreamSink(w io.Writer, colorize bool) *StreamSink {
	st := &StreamSink{w: w}
	if colorize {
		st.warn = color.New(color.FgYellow)
		st.warn.EnableColor()
		st.err = color.New(color.FgRed, color.Bold)
		st.err.EnableColor()
	}
	return st
}

// WriteLine writes a regular line.
func (t *StreamSink) WriteLine(text string) { t.write(text, nil) }

// WriteWarning writes a warning line.
func (t *StreamSink) WriteWarning(text string) { t.write(text, t.warn) }

// WriteError writes an error line.
func (t *StreamSink) WriteError(text string) { t.write(text, t.err) }

func (t *StreamSink) write(text string, c *color.Color) {
	if c != nil {
		text = c.Sprint(text)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Best-effort write; the error is kept for Flush.
	if _, err := io.WriteString(t.w, text+"\n"); err != nil {
		t.lastErr = err
	}
}

// Flush returns the last write error and flushes the writer if it can.
func (t *StreamSink) Flush() error {
	t.mu.Lock()
	err := t.lastErr
	t.lastErr = nil
	t.mu.Unlock()
	if err != nil {
		return err
	}
	if flusher, ok := t.w.(interface{ Flush() error }); ok {
		return flusher.Flush()
	}
	return nil
}

// Close flushes and closes the writer if it implements io.Closer.
func (t *StreamSink) Close() error {
	err := t.Flush()
	if closer, ok := t.w.(io.Closer); ok {
		if cerr := closer.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
