package pushsdk

import "sync"

type Listener func(value bool)

// Events is an in-memory listener registry. The zero value is ready to use.
type Events struct {
	mu        sync.Mutex
	next      uint64
	listeners map[string]map[uint64]Listener
}

func (e *Events) On(event string, fn Listener) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listeners == nil {
		e.listeners = map[string]map[uint64]Listener{}
	}
	if e.listeners[event] == nil {
		e.listeners[event] = map[uint64]Listener{}
	}
	e.next++
	id := e.next
	e.listeners[event][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() { e.off(event, id) })
	}
}

func (e *Events) off(event string, id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.listeners[event], id)
}

// Trigger calls every listener registered for event once, outside the lock,
// and returns how many were called.
func (e *Events) Trigger(event string, value bool) int {
	e.mu.Lock()
	fns := make([]Listener, 0, len(e.listeners[event]))
	for _, fn := range e.listeners[event] {
		fns = append(fns, fn)
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(value)
	}
	return len(fns)
}

func (e *Events) Count(event string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners[event])
}
