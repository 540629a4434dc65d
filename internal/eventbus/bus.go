// Package eventbus carries pipeline progress events between the monitor
// loop, the dispatcher and the daily digest without coupling them.
package eventbus

import (
	"sync"
	"time"
)

// Event types emitted by the monitor pipeline.
const (
	TypeCycleStart       = "cycle.start"
	TypeCycleDone        = "cycle.done"
	TypeMessageSkipped   = "message.skipped"
	TypeMessageProcessed = "message.processed"
	TypeNotifySent       = "notify.sent"
	TypeNotifyFailed     = "notify.failed"
)

// Event is an in-memory progress signal. Data holds a small map of
// event-specific fields (message id, counts, skip reason).
type Event struct {
	Type string
	Time time.Time
	Data any
}

// Bus fans events out to subscribers. Publish never blocks: a subscriber
// whose buffer is full loses the event, so consumers that must not miss
// anything size their buffer for the burst they expect.
type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory Bus. It runs no goroutines of its own.
func New() Bus {
	return &fanout{subs: map[*subscriber]struct{}{}}
}

type fanout struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

// subscriber serializes sends against close so Publish can run
// concurrently with an unsubscribe.
type subscriber struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

func (s *subscriber) offer(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- e:
	default:
		// full buffer, drop
	}
}

func (s *subscriber) shut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

func (b *fanout) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	targets := make([]*subscriber, 0, len(b.subs))
	for s := range b.subs {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	for _, s := range targets {
		s.offer(e)
	}
}

func (b *fanout) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	s := &subscriber{ch: make(chan Event, buffer)}

	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		delete(b.subs, s)
		b.mu.Unlock()
		s.shut()
	}
	return s.ch, unsub
}
