package pushsdk

import (
	"sync"

	"github.com/spasibg/spasi-push/lib/flags"
)

// Provider hands out the SDK of each installation. A Provider builds one
// variant only; the variant is chosen when the Provider is constructed.
type Provider struct {
	mu      sync.Mutex
	slots   map[string]*Slot
	install func(slot *Slot, installation string) SDK
	dev     bool
}

func NewSimulatorProvider(store flags.Store) *Provider {
	return &Provider{
		slots: map[string]*Slot{},
		dev:   true,
		install: func(slot *Slot, installation string) SDK {
			sdk, _ := InstallSimulator(slot, store, installation)
			return sdk
		},
	}
}

func NewWebPushProvider(keys VAPID, regs Registrations, prompt PromptFunc) *Provider {
	return &Provider{
		slots: map[string]*Slot{},
		install: func(slot *Slot, installation string) SDK {
			sdk, _ := slot.Install(NewWebPush(installation, keys, regs, prompt))
			return sdk
		},
	}
}

func (p *Provider) Development() bool {
	return p.dev
}

func (p *Provider) For(installation string) SDK {
	p.mu.Lock()
	slot, ok := p.slots[installation]
	if !ok {
		slot = &Slot{}
		p.slots[installation] = slot
	}
	p.mu.Unlock()

	if sdk := slot.Get(); sdk != nil {
		return sdk
	}
	return p.install(slot, installation)
}

func (p *Provider) Release(installation string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.slots, installation)
}
