// Package stream fans committed engine events out to live subscribers.
package stream

import (
	"strings"
	"sync"

	"thurman/core/events"
)

const defaultBuffer = 64

// Filter selects which records a subscriber receives. Empty fields match
// everything; Type matches exactly or by "prefix." when it ends with a dot.
type Filter struct {
	Pool string
	Type string
}

func (f Filter) match(rec *events.Record) bool {
	if f.Pool != "" && rec.Attributes["pool"] != f.Pool {
		return false
	}
	if f.Type == "" {
		return true
	}
	if strings.HasSuffix(f.Type, ".") {
		return strings.HasPrefix(rec.Type, f.Type)
	}
	return rec.Type == f.Type
}

type subscriber struct {
	filter Filter
	ch     chan *events.Record
}

// Hub broadcasts event records to subscribers. A subscriber whose buffer is
// full is disconnected rather than blocking the engine.
type Hub struct {
	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	buffer int
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{subs: make(map[*subscriber]struct{}), buffer: buffer}
}

// Subscribe registers a subscriber. The returned channel is closed when the
// subscriber is cancelled or falls behind.
func (h *Hub) Subscribe(filter Filter) (<-chan *events.Record, func()) {
	sub := &subscriber{filter: filter, ch: make(chan *events.Record, h.buffer)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub.ch, func() { h.remove(sub) }
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.ch)
}

// Subscribers returns the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Emit implements events.Emitter.
func (h *Hub) Emit(e events.Event) {
	if e == nil {
		return
	}
	rec := &events.Record{Type: e.EventType(), Attributes: map[string]string{}}
	if recordable, ok := e.(events.Recordable); ok {
		rec = recordable.Record()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		if !sub.filter.match(rec) {
			continue
		}
		select {
		case sub.ch <- rec:
		default:
			delete(h.subs, sub)
			close(sub.ch)
		}
	}
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		delete(h.subs, sub)
		close(sub.ch)
	}
}
