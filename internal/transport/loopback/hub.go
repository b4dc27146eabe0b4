package loopback

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Delivery is an outgoing message handed to a local subscriber.
type Delivery struct {
	OutgoingID int64     `json:"outgoing_id"`
	Ident      string    `json:"ident"`
	Text       string    `json:"text"`
	Time       time.Time `json:"time"`
}

// Hub routes deliveries to local subscribers by ident.
type Hub struct {
	mu      sync.RWMutex
	streams map[string]map[string]chan Delivery
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		streams: map[string]map[string]chan Delivery{},
	}
}

// Subscribe registers a new stream for ident and returns its id, a
// read-only channel of deliveries, and a cancel function to unsubscribe.
func (h *Hub) Subscribe(ident string) (string, <-chan Delivery, func()) {
	streamID := uuid.NewString()
	ch := make(chan Delivery, 32)

	h.mu.Lock()
	streams, ok := h.streams[ident]
	if !ok {
		streams = map[string]chan Delivery{}
		h.streams[ident] = streams
	}
	streams[streamID] = ch
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		streams := h.streams[ident]
		if streams != nil {
			if current, ok := streams[streamID]; ok {
				delete(streams, streamID)
				close(current)
			}
			if len(streams) == 0 {
				delete(h.streams, ident)
			}
		}
		h.mu.Unlock()
	}

	return streamID, ch, cancel
}

// Publish delivers d to all subscribers of d.Ident and returns how many
// received it. Slow receivers are skipped.
func (h *Hub) Publish(d Delivery) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, ch := range h.streams[d.Ident] {
		select {
		case ch <- d:
			n++
		default:
		}
	}
	return n
}

// Subscribers returns the number of streams open for ident.
func (h *Hub) Subscribers(ident string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.streams[ident])
}
