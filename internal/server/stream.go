package server

import (
	"io"
	"net/http"
)

// TextStreamWriter relays unframed UTF-8 text, flushing after every write so
// each upstream chunk reaches the client as soon as it arrives.
type TextStreamWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func NewTextStreamWriter(w http.ResponseWriter) *TextStreamWriter {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Accel-Buffering", "no")

	f, _ := w.(http.Flusher)
	return &TextStreamWriter{w: w, flusher: f}
}

// Start sends the status line and headers without waiting for the first chunk.
func (s *TextStreamWriter) Start() {
	if s.started {
		return
	}
	s.started = true
	s.w.WriteHeader(http.StatusOK)
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

func (s *TextStreamWriter) Write(chunk string) error {
	s.Start()
	if _, err := io.WriteString(s.w, chunk); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}
