package orchestrator

import (
	"sync"

	"github.com/GriffinCanCode/arcade/internal/shared/types"
)

// history keeps the last published events and fans new ones out to
// stream readers.
type history struct {
	mu     sync.RWMutex
	events []types.StateEvent
	limit  int

	nextID int
	subs   map[int]chan types.StateEvent
}

func newHistory(limit int) *history {
	return &history{limit: limit, subs: make(map[int]chan types.StateEvent)}
}

func (h *history) add(ev types.StateEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.events = append(h.events, ev)
	if over := len(h.events) - h.limit; over > 0 {
		h.events = append(h.events[:0], h.events[over:]...)
	}
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *history) list() []types.StateEvent {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]types.StateEvent(nil), h.events...)
}

func (h *history) subscribe(buffer int) (<-chan types.StateEvent, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan types.StateEvent, buffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}
