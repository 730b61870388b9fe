package events

import (
	"io"
	"net/http"
	"sync"

	"github.com/kiiskristo/marketpulse-backend/pkg/errors"
)

// Writer encodes events onto an io.Writer and flushes after every frame,
// so each event reaches the consumer before the caller moves on.
type Writer struct {
	mu     sync.Mutex
	w      io.Writer
	format Format
	frames int
}

// NewWriter wraps w. If w is an http.Flusher (or has a Flush() error
// method, like *bufio.Writer) it is flushed after each frame.
func NewWriter(w io.Writer, format Format) *Writer {
	return &Writer{w: w, format: format}
}

// PrepareHeaders sets the streaming response headers and flushes them so
// the client sees the response start before the first stage finishes.
func PrepareHeaders(w http.ResponseWriter, format Format) {
	h := w.Header()
	h.Set("Content-Type", format.ContentType())
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// Send writes one event frame and flushes it.
func (w *Writer) Send(e Event) error {
	frame, err := Encode(e, w.format)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.w.Write(frame); err != nil {
		return errors.Wrapf(err, "failed to write %s frame", e.Type)
	}
	if err := flush(w.w); err != nil {
		return errors.Wrapf(err, "failed to flush %s frame", e.Type)
	}
	w.frames++
	return nil
}

// Frames returns how many frames were written.
func (w *Writer) Frames() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frames
}

func flush(w io.Writer) error {
	switch f := w.(type) {
	case http.Flusher:
		f.Flush()
	case interface{ Flush() error }:
		return f.Flush()
	}
	return nil
}
