package eventbus

import (
	"sync"

	"go.uber.org/zap"
)

// Sink is the delivery contract every pipeline emits to (spec §4.7). Accept
// is always called sequentially for a given pipeline run — implementations
// need no internal synchronization against concurrent calls from the same
// run, only against calls from other runs sharing the same Sink instance.
type Sink interface {
	Accept(event Event)
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Accept(event Event) { f(event) }

// SafeSink wraps a Sink so a panicking Accept is recovered and logged
// rather than aborting the AI stream consumer loop (spec §4.4: "exceptions
// from the sink are logged and do not abort the stream").
type SafeSink struct {
	inner  Sink
	logger *zap.Logger
}

func NewSafeSink(inner Sink, logger *zap.Logger) *SafeSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SafeSink{inner: inner, logger: logger}
}

func (s *SafeSink) Accept(event Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("event sink panicked", zap.Any("panic", r), zap.String("event_kind", string(event.EventKind())))
		}
	}()
	s.inner.Accept(event)
}

// Collector is an in-memory Sink used by tests and by callers that want to
// inspect the full event sequence after a pipeline run completes.
type Collector struct {
	mu     sync.Mutex
	events []Event
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Accept(event Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}
