package pushstate

import (
	"sync"

	"github.com/spasibg/spasi-push/types"
)

const (
	EventState  = "state"
	EventPrompt = "prompt"
)

type Event struct {
	Type  string       `json:"type"`
	State *types.State `json:"state,omitempty"`
}

// Hub fans events out to the watchers of each installation. Slow watchers
// miss events rather than block the publisher.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: map[string]map[chan Event]struct{}{}}
}

func (h *Hub) Subscribe(installation string) (<-chan Event, func()) {
	ch := make(chan Event, 16)

	h.mu.Lock()
	inner, ok := h.subs[installation]
	if !ok {
		inner = map[chan Event]struct{}{}
		h.subs[installation] = inner
	}
	inner[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[installation], ch)
			if len(h.subs[installation]) == 0 {
				delete(h.subs, installation)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *Hub) Publish(installation string, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[installation] {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *Hub) Watchers(installation string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[installation])
}

// Prompt asks the installation's browser to show the permission prompt.
func (h *Hub) Prompt(installation string) {
	h.Publish(installation, Event{Type: EventPrompt})
}
