package pushstate

import (
	"sync"
	"time"

	"github.com/spasibg/spasi-push/lib/metrics"
)

type Factory func(installation string) *Manager

// Registry keeps exactly one Manager per installation.
type Registry struct {
	mu       sync.Mutex
	managers map[string]*Manager
	factory  Factory
	hub      *Hub
	onEvict  func(installation string)
}

// NewRegistry builds managers with factory. onEvict, when set, is called
// after an idle manager was closed.
func NewRegistry(factory Factory, hub *Hub, onEvict func(string)) *Registry {
	if hub == nil {
		hub = NewHub()
	}
	return &Registry{
		managers: map[string]*Manager{},
		factory:  factory,
		hub:      hub,
		onEvict:  onEvict,
	}
}

// Get returns the started manager of installation, creating it on first use.
func (r *Registry) Get(installation string) *Manager {
	r.mu.Lock()
	m, ok := r.managers[installation]
	if !ok {
		m = r.factory(installation)
		r.managers[installation] = m
		metrics.Managers.Set(float64(len(r.managers)))
	}
	r.mu.Unlock()

	m.Start()
	return m
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.managers)
}

// Sweep closes managers nobody looked at for maxIdle and that have no
// watchers. It returns how many were evicted.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	r.mu.Lock()
	var idle []*Manager
	for id, m := range r.managers {
		if m.idleSince().After(cutoff) || r.hub.Watchers(id) > 0 {
			continue
		}
		delete(r.managers, id)
		idle = append(idle, m)
	}
	metrics.Managers.Set(float64(len(r.managers)))
	r.mu.Unlock()

	for _, m := range idle {
		m.Close()
		if r.onEvict != nil {
			r.onEvict(m.Installation())
		}
	}
	return len(idle)
}

func (r *Registry) Close() {
	r.mu.Lock()
	all := r.managers
	r.managers = map[string]*Manager{}
	metrics.Managers.Set(0)
	r.mu.Unlock()

	for _, m := range all {
		m.Close()
	}
}
