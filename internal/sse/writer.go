package sse

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
)

// Writer emits `data: <payload>` frames to the client. It flushes after
// every frame so chunks reach the client as soon as they are translated.
type Writer struct {
	w        io.Writer
	flusher  http.Flusher
	observer func(data []byte)
}

// NewWriter creates a writer over w. When w is an http.ResponseWriter that
// supports flushing, each frame is flushed immediately.
func NewWriter(w io.Writer) *Writer {
	sw := &Writer{w: w}
	if f, ok := w.(http.Flusher); ok {
		sw.flusher = f
	}
	return sw
}

// Observe registers a read-only callback invoked with every frame payload
// written. Used by the completion logging collaborator; it must not block.
func (w *Writer) Observe(fn func(data []byte)) {
	w.observer = fn
}

// SetHeaders sets the event-stream response headers. Must be called before
// the first frame is written.
func SetHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// WriteEvent writes one data frame. Payloads containing newlines are split
// across consecutive data lines so the frame stays well formed.
func (w *Writer) WriteEvent(data []byte) error {
	for _, line := range bytes.Split(data, []byte("\n")) {
		if _, err := fmt.Fprintf(w.w, "data: %s\n", line); err != nil {
			return err
		}
	}
	if _, err := io.WriteString(w.w, "\n"); err != nil {
		return err
	}
	if w.flusher != nil {
		w.flusher.Flush()
	}
	if w.observer != nil {
		w.observer(data)
	}
	return nil
}

// WriteDone writes the terminal sentinel frame.
func (w *Writer) WriteDone() error {
	if _, err := fmt.Fprint(w.w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	if w.flusher != nil {
		w.flusher.Flush()
	}
	return nil
}
