package gateway

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/ineyio/flowgate"
)

// sseSink writes canonical events as text/event-stream frames:
// "data: <payload>\n\n", flushed per event.
type sseSink struct {
	mu sync.Mutex
	w  http.ResponseWriter
	rc *http.ResponseController
}

func newSSESink(w http.ResponseWriter) *sseSink {
	return &sseSink{w: w, rc: http.NewResponseController(w)}
}

// start writes the stream headers.
func (s *sseSink) start() {
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // disable nginx buffering
	s.w.WriteHeader(http.StatusOK)
	_ = s.rc.Flush()
}

func (s *sseSink) Send(e flowgate.StreamEvent) error {
	payload, err := e.Encode()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("%w: %v", flowgate.ErrSinkClosed, err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("%w: %v", flowgate.ErrSinkClosed, err)
	}
	return nil
}
