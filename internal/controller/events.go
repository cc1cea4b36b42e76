package controller

import (
	"sync"

	"github.com/google/uuid"
)

// EventKind names the part of the state that changed.
type EventKind string

const (
	EventMapCenter     EventKind = "map_center"
	EventStations      EventKind = "stations"
	EventCatalog       EventKind = "catalog"
	EventSensors       EventKind = "sensors"
	EventSensorData    EventKind = "sensor_data"
	EventStatus        EventKind = "status"
	EventArchives      EventKind = "archives"
	EventArchiveLoaded EventKind = "archive_loaded"
)

// Event is a change notification. Subscribers re-read State for the full
// picture; Data carries the changed value where it is small.
type Event struct {
	Seq  uint64    `json:"seq"`
	Kind EventKind `json:"kind"`
	Data any       `json:"data,omitempty"`
}

// Subscription is a registered event listener.
type Subscription struct {
	ID     string
	Events <-chan Event

	hub *hub
}

// Close unregisters the subscription and closes its channel.
func (s *Subscription) Close() {
	s.hub.remove(s.ID)
}

// hub fans events out to subscribers. A subscriber whose buffer is full
// misses the event rather than stalling the loop.
type hub struct {
	mu     sync.Mutex
	subs   map[string]chan Event
	buffer int
	seq    uint64
	closed bool
}

func newHub(buffer int) *hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &hub{subs: make(map[string]chan Event), buffer: buffer}
}

// add registers a subscriber. After closeAll the returned channel is
// already closed.
func (h *hub) add() *Subscription {
	ch := make(chan Event, h.buffer)
	id := uuid.NewString()

	h.mu.Lock()
	if h.closed {
		close(ch)
	} else {
		h.subs[id] = ch
	}
	h.mu.Unlock()

	return &Subscription{ID: id, Events: ch, hub: h}
}

func (h *hub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

func (h *hub) publish(kind EventKind, data any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	ev := Event{Seq: h.seq, Kind: kind, Data: data}
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
