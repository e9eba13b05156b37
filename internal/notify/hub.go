package notify

import (
	"sync"
	"time"

	"gpstether/internal/fix"
)

// Event types.
const (
	EventService  = "service"
	EventGPS      = "gps"
	EventLocation = "location"
)

// Event is one notification as seen by stream subscribers.
type Event struct {
	Type    string   `json:"type"`
	Time    string   `json:"time"`
	Running *bool    `json:"running,omitempty"`
	Text    string   `json:"text,omitempty"`
	Fix     *fix.Fix `json:"fix,omitempty"`
}

// Hub fans events out to any listeners (e.g. WebSocket clients).
// It keeps the most recent event so new subscribers get an immediate sample.
type Hub struct {
	mu       sync.RWMutex
	subs     map[int]chan Event
	nextID   int
	last     Event
	haveLast bool

	now func() time.Time
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[int]chan Event),
		now:  time.Now,
	}
}

func (h *Hub) Subscribe(buffer int) (int, <-chan Event) {
	if h == nil {
		return 0, nil
	}
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	last := h.last
	have := h.haveLast
	h.mu.Unlock()
	if have {
		select {
		case ch <- last:
		default:
		}
	}
	return id, ch
}

func (h *Hub) Unsubscribe(id int) {
	if h == nil {
		return
	}
	h.mu.Lock()
	ch, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
		close(ch)
	}
	h.mu.Unlock()
}

// Publish delivers ev to every subscriber. Slow subscribers miss events.
func (h *Hub) Publish(ev Event) {
	if h == nil {
		return
	}
	if ev.Time == "" {
		ev.Time = h.now().UTC().Format(time.RFC3339Nano)
	}
	h.mu.Lock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	h.last = ev
	h.haveLast = true
	h.mu.Unlock()
}

func (h *Hub) ServiceStatus(running bool) {
	h.Publish(Event{Type: EventService, Running: &running})
}

func (h *Hub) GPSStatus(text string) {
	h.Publish(Event{Type: EventGPS, Text: text})
}

func (h *Hub) Location(f fix.Fix) {
	h.Publish(Event{Type: EventLocation, Text: f.String(), Fix: &f})
}
