package eventbus

import "sync"

// Stream is a single pipeline run's event history plus its live subscribers,
// letting cmd/codecrowd's GET /analyses/{correlationId}/events handler
// attach after the POST that started the run already returned — a late
// subscriber replays everything emitted so far before receiving live events.
// Accept is only ever called sequentially by one pipeline goroutine (the
// Sink contract), so the mutex here only guards against concurrent
// Subscribe/unsubscribe calls from HTTP handlers.
type Stream struct {
	mu     sync.Mutex
	events []Event
	subs   map[int]chan Event
	nextID int
	done   bool
}

func newStream() *Stream {
	return &Stream{subs: make(map[int]chan Event)}
}

func (s *Stream) Accept(event Event) {
	s.mu.Lock()
	s.events = append(s.events, event)
	subs := make([]chan Event, 0, len(s.subs))
	for _, ch := range s.subs {
		subs = append(subs, ch)
	}
	if _, ok := event.(Completed); ok {
		s.done = true
	}
	s.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
			// slow subscriber; drop rather than block the pipeline.
		}
	}
}

// Subscribe returns the events emitted so far, a channel for everything
// emitted from now on, and an unsubscribe func the caller must run when
// done reading.
func (s *Stream) Subscribe() (history []Event, live <-chan Event, unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history = append([]Event(nil), s.events...)
	ch := make(chan Event, 32)
	id := s.nextID
	s.nextID++
	s.subs[id] = ch

	return history, ch, func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Done reports whether a Completed event has already been recorded.
func (s *Stream) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Registry maps a pipeline run's correlationId to its Stream, for the
// webhook handler (which starts a run) and the SSE handler (which attaches
// to it) to share without a direct call path between them.
type Registry struct {
	mu      sync.Mutex
	streams map[string]*Stream
}

func NewRegistry() *Registry {
	return &Registry{streams: make(map[string]*Stream)}
}

// Start creates and registers a new Stream for correlationID. Callers pass
// the returned Stream itself as the pipeline's Sink.
func (r *Registry) Start(correlationID string) *Stream {
	s := newStream()
	r.mu.Lock()
	r.streams[correlationID] = s
	r.mu.Unlock()
	return s
}

// Get returns the Stream registered for correlationID, if any.
func (r *Registry) Get(correlationID string) (*Stream, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.streams[correlationID]
	return s, ok
}

// Forget removes correlationID's Stream, freeing its buffered history. The
// caller is expected to invoke this a grace period after the run completes,
// once SSE subscribers have had a chance to attach and drain.
func (r *Registry) Forget(correlationID string) {
	r.mu.Lock()
	delete(r.streams, correlationID)
	r.mu.Unlock()
}
