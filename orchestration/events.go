package orchestration

import (
	"sync"
	"time"

	"github.com/aicouncil/council/core"
)

// EventType labels a progress event.
type EventType string

const (
	EventProcessingStarted   EventType = "processing_started"
	EventAnalysisComplete    EventType = "analysis_complete"
	EventRoutingComplete     EventType = "routing_complete"
	EventExecutionProgress   EventType = "execution_progress"
	EventArbitrationDecision EventType = "arbitration_decision"
	EventSynthesisProgress   EventType = "synthesis_progress"
	EventFinalResponse       EventType = "final_response"
	EventError               EventType = "error"
	// EventProgressDropped marks a gap where the bus shed older events
	EventProgressDropped EventType = "progress_dropped"
)

// IsTerminal reports whether the event ends the stream
func (t EventType) IsTerminal() bool {
	return t == EventFinalResponse || t == EventError
}

// ProgressEvent is one entry in a request's progress stream.
type ProgressEvent struct {
	Type      EventType              `json:"type"`
	RequestID string                 `json:"request_id"`
	Timestamp time.Time              `json:"ts"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// NewEvent builds a timestamped event
func NewEvent(t EventType, requestID string, payload map[string]interface{}) ProgressEvent {
	return ProgressEvent{
		Type:      t,
		RequestID: requestID,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

// busCapacity bounds the per-subscriber buffer. Overflow sheds the
// oldest non-terminal event.
const busCapacity = 64

// Bus fans progress events out to subscribers without ever blocking the
// publisher. Each subscriber has its own bounded buffer drained by its
// own goroutine; a slow consumer loses old events, never new ones, and
// a terminal event is never dropped. The bus also keeps a bounded
// history so a subscriber that attaches mid-request, or after the
// terminal event, replays everything published so far.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]*subscriber
	nextID int
	closed bool
	logger core.Logger
	// history retains published events for late subscribers, bounded
	// with the same shed-oldest policy as subscriber buffers
	history       []ProgressEvent
	historyMarker bool
}

type subscriber struct {
	mu sync.Mutex
	// buf is a FIFO of pending events, at most busCapacity long
	buf []ProgressEvent
	// markerInBuf is set while a progress_dropped marker is queued, so
	// one overflow burst produces one marker
	markerInBuf bool
	wake        chan struct{}
	out         chan ProgressEvent
	quit        chan struct{}
	done        chan struct{}
	closing     bool
}

// NewBus creates an empty bus
func NewBus(logger core.Logger) *Bus {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Bus{
		subs:   make(map[int]*subscriber),
		logger: logger,
	}
}

// Subscribe registers a consumer and returns its event channel plus an
// unsubscribe function. Events already published are replayed first, so
// a consumer that attaches after submission still sees the stream from
// processing_started onward. The channel is closed after the terminal
// event is delivered or the subscriber unsubscribes.
func (b *Bus) Subscribe() (<-chan ProgressEvent, func()) {
	sub := &subscriber{
		wake: make(chan struct{}, 1),
		out:  make(chan ProgressEvent),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	sub.buf = append([]ProgressEvent(nil), b.history...)
	sub.markerInBuf = b.historyMarker
	if b.closed {
		// Replay the retained history, then close
		sub.closing = true
		b.mu.Unlock()
		go sub.pump()
		return sub.out, func() { sub.stop() }
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	go sub.pump()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			b.mu.Unlock()
			sub.stop()
			return
		}
		b.mu.Unlock()
	}
	return sub.out, cancel
}

// Publish enqueues an event for every subscriber. It never blocks: a
// full subscriber buffer sheds its oldest non-terminal event and gains
// a single progress_dropped marker for the burst.
func (b *Bus) Publish(event ProgressEvent) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.appendHistory(event)
	subs := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.enqueue(event, b.logger)
	}

	if event.Type.IsTerminal() {
		b.Close()
	}
}

// Close detaches all subscribers. Each subscriber drains its remaining
// buffer before its channel closes.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.subs = nil
	b.mu.Unlock()

	for _, s := range subs {
		s.finish()
	}
}

// appendHistory retains the event for late subscribers. Callers hold
// b.mu.
func (b *Bus) appendHistory(event ProgressEvent) {
	if len(b.history) >= busCapacity {
		var dropped bool
		b.history, dropped = shedOldest(b.history)
		if dropped && !b.historyMarker {
			b.historyMarker = true
			marker := ProgressEvent{
				Type:      EventProgressDropped,
				RequestID: event.RequestID,
				Timestamp: time.Now(),
			}
			b.history = append([]ProgressEvent{marker}, b.history...)
			b.history, _ = shedOldest(b.history)
		}
	}
	b.history = append(b.history, event)
}

func (s *subscriber) enqueue(event ProgressEvent, logger core.Logger) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return
	}
	if len(s.buf) >= busCapacity {
		dropped := s.dropOldest()
		if dropped && !s.markerInBuf {
			s.markerInBuf = true
			marker := ProgressEvent{
				Type:      EventProgressDropped,
				RequestID: event.RequestID,
				Timestamp: time.Now(),
			}
			s.buf = append([]ProgressEvent{marker}, s.buf...)
			// Marker took the freed slot; shed one more to make room
			s.dropOldest()
			logger.Warn("Progress events dropped for slow consumer", map[string]interface{}{
				"operation":  "progress_publish",
				"request_id": event.RequestID,
			})
		}
	}
	s.buf = append(s.buf, event)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// dropOldest removes the first non-terminal, non-marker event from the
// buffer. Terminal events are never shed.
func (s *subscriber) dropOldest() bool {
	var dropped bool
	s.buf, dropped = shedOldest(s.buf)
	return dropped
}

// shedOldest removes the first non-terminal, non-marker event from a
// buffer. Terminal events are never shed.
func shedOldest(buf []ProgressEvent) ([]ProgressEvent, bool) {
	for i := range buf {
		if buf[i].Type.IsTerminal() || buf[i].Type == EventProgressDropped {
			continue
		}
		return append(buf[:i], buf[i+1:]...), true
	}
	return buf, false
}

// finish asks the pump to drain remaining events and close out
func (s *subscriber) finish() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// stop abandons undelivered events and closes out immediately
func (s *subscriber) stop() {
	s.mu.Lock()
	s.closing = true
	s.buf = nil
	s.mu.Unlock()
	close(s.quit)
	select {
	case s.wake <- struct{}{}:
	default:
	}
	<-s.done
}

func (s *subscriber) pump() {
	defer close(s.done)
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.buf) == 0 {
			if s.closing {
				s.mu.Unlock()
				return
			}
			s.mu.Unlock()
			<-s.wake
			continue
		}
		event := s.buf[0]
		s.buf = s.buf[1:]
		if event.Type == EventProgressDropped {
			s.markerInBuf = false
		}
		s.mu.Unlock()

		select {
		case s.out <- event:
		case <-s.quit:
			return
		}
	}
}
