package debug

import "sync"

// eventSink serializes event delivery and makes termination idempotent:
// the first terminate wins, and late events from still-draining pumps are
// dropped instead of racing a closed channel.
type eventSink struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

func newEventSink(buffer int) *eventSink {
	return &eventSink{ch: make(chan Event, buffer)}
}

func (s *eventSink) events() <-chan Event { return s.ch }

func (s *eventSink) emit(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.ch <- e
}

// terminate emits the terminated event and closes the stream exactly once.
func (s *eventSink) terminate(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.ch <- Event{Kind: EventTerminated, Reason: reason}
	s.closed = true
	close(s.ch)
}

func (s *eventSink) output(stream, data string) {
	s.emit(Event{Kind: EventOutput, Output: &Output{Stream: stream, Data: data}})
}
