package pushstate

import (
	"context"
	"sync"

	"github.com/spasibg/spasi-push/types"
)

// Gate is opened once, when initialization finished. Every consumer waits
// on it instead of probing the SDK on its own.
type Gate struct {
	once  sync.Once
	done  chan struct{}
	state types.State
}

func NewGate() *Gate {
	return &Gate{done: make(chan struct{})}
}

// Open records the initial state. Only the first call has an effect.
func (g *Gate) Open(s types.State) {
	g.once.Do(func() {
		g.state = s
		close(g.done)
	})
}

func (g *Gate) Wait(ctx context.Context) (types.State, error) {
	select {
	case <-g.done:
		return g.state, nil
	case <-ctx.Done():
		return types.State{}, ctx.Err()
	}
}
