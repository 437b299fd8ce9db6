// Package events fans launch progress out to API and terminal subscribers.
package events

import (
	"encoding/json"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the launcher.
const (
	TypeTransition = "launch.transition"
	TypeCompleted  = "launch.completed"
)

const (
	defaultCapacity = 256
	subscriberQueue = 64
)

type Event struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

type subscriber struct {
	ch     chan Event
	closed bool
}

// Hub is an in-memory pub/sub that keeps the latest events for late subscribers.
// Event ids increase by one per Publish, starting at 1.
type Hub struct {
	capacity int
	dropped  atomic.Uint64

	mu     sync.Mutex
	lastID int64
	// recent holds at most capacity events, oldest first.
	recent []Event
	subs   map[*subscriber]struct{}
}

func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Hub{
		capacity: capacity,
		recent:   make([]Event, 0, capacity),
		subs:     make(map[*subscriber]struct{}),
	}
}

// Publish stores the event and offers it to every subscriber. A subscriber
// whose queue is full misses the event; it can catch up with SnapshotSince.
func (h *Hub) Publish(eventType string, data any) Event {
	payload := json.RawMessage("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastID++
	ev := Event{ID: h.lastID, Type: eventType, At: time.Now().UTC(), Data: payload}

	if len(h.recent) == h.capacity {
		copy(h.recent, h.recent[1:])
		h.recent = h.recent[:h.capacity-1]
	}
	h.recent = append(h.recent, ev)

	for s := range h.subs {
		select {
		case s.ch <- ev:
		default:
			h.dropped.Add(1)
		}
	}
	return ev
}

// Subscribe returns a channel of new events and a cancel func that closes it.
// Cancel is idempotent.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	s := &subscriber{ch: make(chan Event, subscriberQueue)}

	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	return s.ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if s.closed {
			return
		}
		s.closed = true
		delete(h.subs, s)
		close(s.ch)
	}
}

// SnapshotSince returns buffered events with ID > lastID, oldest first.
func (h *Hub) SnapshotSince(lastID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	i := sort.Search(len(h.recent), func(i int) bool { return h.recent[i].ID > lastID })
	return append([]Event(nil), h.recent[i:]...)
}

// Dropped counts deliveries skipped because a subscriber queue was full.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }
