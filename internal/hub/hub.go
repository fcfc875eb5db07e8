package hub

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/oklog/ulid/v2"
)

const defaultBufferSize = 64

// Observer is one connected chat client. Frames are fully serialized JSON
// messages ready to be written to the socket.
type Observer struct {
	id string
	ch chan []byte
}

func (o *Observer) ID() string {
	return o.id
}

func (o *Observer) Frames() <-chan []byte {
	return o.ch
}

type Options struct {
	// Welcome builds the greeting enqueued for every new observer.
	Welcome func() *Event
	// BufferSize is the per-observer frame buffer. An observer whose
	// buffer is full at delivery time is treated as disconnected.
	BufferSize int
}

// Hub tracks connected observers and fans events out to them. Observers
// that cannot keep up are dropped rather than slowing the rest down.
type Hub struct {
	mu          sync.RWMutex
	observers   map[string]*Observer
	subscribers map[string]chan *Event
	opts        Options
}

func New(opts Options) *Hub {
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufferSize
	}
	return &Hub{
		observers:   make(map[string]*Observer),
		subscribers: make(map[string]chan *Event),
		opts:        opts,
	}
}

// Register adds a new observer. The welcome event, if configured, is
// always the first frame the observer receives.
func (h *Hub) Register() *Observer {
	obs := &Observer{
		id: ulid.Make().String(),
		ch: make(chan []byte, h.opts.BufferSize),
	}
	var welcome []byte
	if h.opts.Welcome != nil {
		data, err := json.Marshal(h.opts.Welcome())
		if err != nil {
			slog.Warn("failed to marshal welcome event", "error", err)
		} else {
			welcome = data
		}
	}
	h.mu.Lock()
	h.observers[obs.id] = obs
	if welcome != nil {
		obs.ch <- welcome
	}
	h.mu.Unlock()
	return obs
}

// Unregister removes an observer and closes its frame channel. Calling it
// for an unknown or already removed id is a no-op.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	if obs, ok := h.observers[id]; ok {
		close(obs.ch)
		delete(h.observers, id)
	}
	h.mu.Unlock()
}

// Len reports the number of connected observers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers)
}

// SendTo delivers payload to a single observer. A full buffer or unknown
// id reports false; a full buffer additionally drops the observer.
func (h *Hub) SendTo(id string, payload any) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Warn("failed to marshal payload", "error", err)
		return false
	}
	return h.send(id, data)
}

// Broadcast fans the event out to every observer and subscriber. Delivery
// is best effort: a failing observer is removed, the others are unaffected.
func (h *Hub) Broadcast(ev *Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("failed to marshal event", "error", err)
		return
	}
	h.mu.RLock()
	ids := make([]string, 0, len(h.observers))
	for id := range h.observers {
		ids = append(ids, id)
	}
	for _, ch := range h.subscribers {
		select {
		case ch <- ev:
		default:
			// buffer full, drop event for this subscriber
		}
	}
	h.mu.RUnlock()
	for _, id := range ids {
		h.send(id, data)
	}
}

// Subscribe registers an internal event tap, used by components that react
// to the transcript without holding a connection. Events are dropped for a
// subscriber whose buffer is full.
func (h *Hub) Subscribe(bufSize int) (string, <-chan *Event) {
	id := ulid.Make().String()
	ch := make(chan *Event, bufSize)
	h.mu.Lock()
	h.subscribers[id] = ch
	h.mu.Unlock()
	return id, ch
}

func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	if ch, ok := h.subscribers[id]; ok {
		close(ch)
		delete(h.subscribers, id)
	}
	h.mu.Unlock()
}

func (h *Hub) send(id string, frame []byte) bool {
	h.mu.RLock()
	obs, ok := h.observers[id]
	if !ok {
		h.mu.RUnlock()
		return false
	}
	select {
	case obs.ch <- frame:
		h.mu.RUnlock()
		return true
	default:
		h.mu.RUnlock()
		h.Unregister(id)
		return false
	}
}
