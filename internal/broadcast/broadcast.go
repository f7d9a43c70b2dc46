// Package broadcast delivers live pipeline status events to in-process
// subscribers. Delivery is best effort: a subscriber whose buffer is full
// misses events rather than stalling the pipeline, and new subscribers see
// only events published after they subscribe.
package broadcast

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType identifies what happened.
type EventType string

const (
	EventValidationStarted        EventType = "validation_started"
	EventValidationCompleted      EventType = "validation_completed"
	EventRecommendationProposed   EventType = "recommendation_proposed"
	EventRecommendationTransition EventType = "recommendation_transition"
	EventHeartbeat                EventType = "heartbeat"
)

// StatusEvent is one broadcast message. Data carries event-specific fields
// such as rec_id, prior_status and new_status for transitions.
type StatusEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}

// NewStatusEvent creates an event with a fresh ID and the current time.
func NewStatusEvent(eventType EventType, message string, data map[string]any) *StatusEvent {
	if data == nil {
		data = make(map[string]any)
	}
	return &StatusEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		Message:   message,
		Data:      data,
	}
}

// NewTransitionEvent creates a recommendation transition event.
func NewTransitionEvent(recID, priorStatus, newStatus string) *StatusEvent {
	return NewStatusEvent(EventRecommendationTransition, "recommendation "+recID+": "+priorStatus+" -> "+newStatus, map[string]any{
		"rec_id":       recID,
		"prior_status": priorStatus,
		"new_status":   newStatus,
	})
}

const defaultBufferSize = 64

// Subscription is one subscriber's event feed. Events() is closed when the
// subscription is cancelled or the broadcaster shuts down. Dropped() reports
// how many events this subscriber missed because its buffer was full.
type Subscription struct {
	ch      chan *StatusEvent
	cancel  func()
	mu      sync.Mutex
	dropped int
	closed  bool
}

// Events returns the subscriber's receive channel.
func (s *Subscription) Events() <-chan *StatusEvent {
	return s.ch
}

// Dropped returns the number of events dropped due to a full buffer.
func (s *Subscription) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Cancel removes the subscription from the broadcaster and closes Events().
// Safe to call more than once.
func (s *Subscription) Cancel() {
	s.cancel()
}

func (s *Subscription) deliver(ev *StatusEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- ev:
	default:
		s.dropped++
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Broadcaster fans events out to all current subscribers. Publish never
// blocks. When a heartbeat interval is configured the broadcaster also emits
// periodic heartbeat events so idle subscribers can tell a quiet pipeline
// from a dead one.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool

	stopHeartbeat chan struct{}
	heartbeatDone chan struct{}
}

// New creates a broadcaster. A zero heartbeat interval disables heartbeats.
func New(heartbeat time.Duration) *Broadcaster {
	b := &Broadcaster{
		subs: make(map[*Subscription]struct{}),
	}
	if heartbeat > 0 {
		b.stopHeartbeat = make(chan struct{})
		b.heartbeatDone = make(chan struct{})
		go b.heartbeatLoop(heartbeat)
	}
	return b
}

// Subscribe registers a new subscriber with the default buffer size.
func (b *Broadcaster) Subscribe() *Subscription {
	return b.SubscribeBuffer(defaultBufferSize)
}

// SubscribeBuffer registers a new subscriber with an explicit buffer size.
// Subscribing to a closed broadcaster returns an already-closed subscription.
func (b *Broadcaster) SubscribeBuffer(size int) *Subscription {
	if size < 1 {
		size = 1
	}
	sub := &Subscription{ch: make(chan *StatusEvent, size)}
	sub.cancel = func() {
		b.mu.Lock()
		delete(b.subs, sub)
		b.mu.Unlock()
		sub.close()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.close()
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Publish delivers the event to every current subscriber without blocking.
// Publishing after Close is a no-op.
func (b *Broadcaster) Publish(ev *StatusEvent) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	subs := make([]*Subscription, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		sub.deliver(ev)
	}
}

// Close stops the heartbeat and closes all subscriptions.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.subs = make(map[*Subscription]struct{})
	b.mu.Unlock()

	if b.stopHeartbeat != nil {
		close(b.stopHeartbeat)
		<-b.heartbeatDone
	}
	for _, sub := range subs {
		sub.close()
	}
}

func (b *Broadcaster) heartbeatLoop(interval time.Duration) {
	defer close(b.heartbeatDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.Publish(NewStatusEvent(EventHeartbeat, "heartbeat", nil))
		case <-b.stopHeartbeat:
			return
		}
	}
}
