package server

import (
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/tingly-dev/tea-assistant/internal/relay"
)

// textStreamSink writes relay text straight to the response and flushes
// each chunk. Close only stops relay writes; the handler may still append
// an ERROR marker with writeMarker before the response ends.
type textStreamSink struct {
	mu      sync.Mutex
	w       gin.ResponseWriter
	closed  bool
	failed  error
	written int
}

func newTextStreamSink(w gin.ResponseWriter) *textStreamSink {
	return &textStreamSink{w: w}
}

func (s *textStreamSink) Write(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return relay.ErrSinkClosed
	}
	return s.writeLocked(text)
}

func (s *textStreamSink) writeLocked(text string) error {
	if s.failed != nil {
		return s.failed
	}
	if text == "" {
		return nil
	}
	n, err := s.w.WriteString(text)
	s.written += n
	if err != nil {
		s.failed = err
		return err
	}
	s.w.Flush()
	return nil
}

func (s *textStreamSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return relay.ErrSinkClosed
	}
	s.closed = true
	return nil
}

// writeMarker appends "\nERROR: msg\n" unless the client connection already failed.
func (s *textStreamSink) writeMarker(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.writeLocked(errorMarker(msg))
}

// broken reports whether a write to the client failed.
func (s *textStreamSink) broken() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed != nil
}

func errorMarker(msg string) string {
	return "\nERROR: " + msg + "\n"
}
