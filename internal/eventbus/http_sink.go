package eventbus

import (
	"encoding/json"
	"net/http"
	"sync"
)

// HTTPStreamSink writes each accepted event as one NDJSON line, flushing
// after every write so a long-running webhook request streams progress to
// the caller instead of buffering until the pipeline finishes.
type HTTPStreamSink struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	encoder *json.Encoder
}

type wireEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// NewHTTPStreamSink wraps w for NDJSON streaming. w must support
// http.Flusher (chi's default ResponseWriter does); if it doesn't, writes
// still succeed but are buffered until the handler returns.
func NewHTTPStreamSink(w http.ResponseWriter) *HTTPStreamSink {
	flusher, _ := w.(http.Flusher)
	return &HTTPStreamSink{
		w:       w,
		flusher: flusher,
		encoder: json.NewEncoder(w),
	}
}

func (s *HTTPStreamSink) Accept(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.encoder.Encode(wireEvent{Type: string(event.EventKind()), Data: event})
	if s.flusher != nil {
		s.flusher.Flush()
	}
}
