// Package stream fans job events out to subscribers.
//
// Every subscriber owns a bounded queue. Publish never blocks: when a queue is full
// its oldest event is discarded. A subscriber joining late receives one catch-up
// event describing the current state before live events.
package stream

import (
	"sync"
	"sync/atomic"

	"github.com/huangsam/xray/internal/contract"
	"github.com/huangsam/xray/schema"
)

// DefaultQueueSize is the per-subscriber queue length.
const DefaultQueueSize = 64

// Subscription is one consumer's view of a job stream.
// C is closed after the terminal event or when the subscription is removed.
type Subscription struct {
	C <-chan schema.Event

	ch      chan schema.Event
	id      uint64
	jobID   string
	closed  bool
	dropped atomic.Int64
}

// JobID returns the job this subscription follows.
func (s *Subscription) JobID() string { return s.jobID }

// Dropped returns how many events were discarded for this subscriber.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// topic is the retained state of one job stream.
type topic struct {
	subs     map[uint64]*Subscription
	progress *schema.Event // latest progress
	snapshot *schema.Event // latest partial_result
	terminal *schema.Event
	current  schema.Event // stage, message and progress as last reported
}

// Hub holds one topic per job.
type Hub struct {
	mu        sync.Mutex
	topics    map[string]*topic
	nextID    uint64
	queueSize int
	onDrop    func(jobID string)
}

// Option configures a Hub.
type Option func(*Hub)

// WithQueueSize sets the per-subscriber queue length.
func WithQueueSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

// WithDropHook registers a function called for every discarded event.
func WithDropHook(fn func(jobID string)) Option {
	return func(h *Hub) { h.onDrop = fn }
}

// NewHub creates an empty hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{topics: make(map[string]*topic), queueSize: DefaultQueueSize}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Open creates the topic of a job if it does not exist yet.
func (h *Hub) Open(jobID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.topicLocked(jobID)
}

func (h *Hub) topicLocked(jobID string) *topic {
	t, ok := h.topics[jobID]
	if !ok {
		t = &topic{subs: make(map[uint64]*Subscription)}
		h.topics[jobID] = t
	}
	return t
}

// Publish delivers ev to every subscriber of the job and retains it for late joiners.
// Events after a terminal event are ignored.
func (h *Hub) Publish(jobID string, ev schema.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	t := h.topicLocked(jobID)
	if t.terminal != nil {
		return
	}

	switch ev.Type {
	case schema.EventProgress:
		t.progress = &ev
	case schema.EventPartialResult:
		t.snapshot = &ev
	case schema.EventComplete, schema.EventError:
		t.terminal = &ev
	}
	if ev.Type != schema.EventPing {
		t.current.Stage = ev.Stage
		t.current.Progress = ev.Progress
		if ev.Message != "" {
			t.current.Message = ev.Message
		}
	}

	for _, sub := range t.subs {
		h.enqueue(sub, ev)
	}
	if ev.IsTerminal() {
		for id, sub := range t.subs {
			h.closeLocked(sub)
			delete(t.subs, id)
		}
	}
}

// enqueue adds ev to the subscriber queue, discarding the oldest event when full.
// Only the hub sends on the queue, so after one receive the send cannot block.
func (h *Hub) enqueue(sub *Subscription, ev schema.Event) {
	select {
	case sub.ch <- ev:
		return
	default:
	}
	select {
	case <-sub.ch:
		sub.dropped.Add(1)
		if h.onDrop != nil {
			h.onDrop(sub.jobID)
		}
	default:
	}
	select {
	case sub.ch <- ev:
	default:
	}
}

// catchUp returns the single event that summarizes the topic so far.
func (t *topic) catchUp() (schema.Event, bool) {
	switch {
	case t.terminal != nil:
		return *t.terminal, true
	case t.snapshot != nil:
		ev := *t.snapshot
		ev.Stage = t.current.Stage
		ev.Progress = t.current.Progress
		ev.Message = t.current.Message
		return ev, true
	case t.progress != nil:
		return *t.progress, true
	default:
		return schema.Event{}, false
	}
}

// Subscribe attaches a new consumer to an open job stream.
// The catch-up event and registration happen atomically with respect to Publish.
func (h *Hub) Subscribe(jobID string) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	t, ok := h.topics[jobID]
	if !ok {
		return nil, contract.ErrNotFound
	}

	h.nextID++
	ch := make(chan schema.Event, h.queueSize)
	sub := &Subscription{C: ch, ch: ch, id: h.nextID, jobID: jobID}

	if ev, ok := t.catchUp(); ok {
		sub.ch <- ev
	}
	if t.terminal != nil {
		h.closeLocked(sub)
		return sub, nil
	}
	t.subs[sub.id] = sub
	return sub, nil
}

// Unsubscribe detaches a consumer and closes its queue.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok := h.topics[sub.jobID]; ok {
		delete(t.subs, sub.id)
	}
	h.closeLocked(sub)
}

// Subscribers returns the number of live subscribers of a job.
func (h *Hub) Subscribers(jobID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok := h.topics[jobID]; ok {
		return len(t.subs)
	}
	return 0
}

// Remove closes every subscriber of a job and forgets its topic.
func (h *Hub) Remove(jobID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.topics[jobID]
	if !ok {
		return
	}
	for _, sub := range t.subs {
		h.closeLocked(sub)
	}
	delete(h.topics, jobID)
}

func (h *Hub) closeLocked(sub *Subscription) {
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
}
