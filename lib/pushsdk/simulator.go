package pushsdk

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/spasibg/spasi-push/lib/flags"
)

// Simulator stands in for the vendor SDK during development. Every answer
// is derived from the installation's flags.Subscribed flag.
type Simulator struct {
	Events
	mu           sync.Mutex
	flags        flags.Store
	installation string
}

func NewSimulator(store flags.Store, installation string) *Simulator {
	return &Simulator{flags: store, installation: installation}
}

// InstallSimulator puts a simulator into slot unless an SDK is already there.
func InstallSimulator(slot *Slot, store flags.Store, installation string) (SDK, bool) {
	if existing := slot.Get(); existing != nil {
		return existing, false
	}
	return slot.Install(NewSimulator(store, installation))
}

func (s *Simulator) Name() string {
	return "simulator"
}

func (s *Simulator) IsPushSupported(context.Context) (bool, error) {
	return true, nil
}

func (s *Simulator) IsSubscribed(ctx context.Context) (bool, error) {
	v, _, err := s.flags.Get(ctx, s.installation, flags.Subscribed)
	if err != nil {
		return false, errors.Wrap(err, "reading simulated subscription")
	}
	return v, nil
}

func (s *Simulator) SubscriberID(ctx context.Context) (string, error) {
	subscribed, err := s.IsSubscribed(ctx)
	if err != nil || !subscribed {
		return "", err
	}
	return "sim-" + s.installation, nil
}

// ShowPrompt accepts immediately.
func (s *Simulator) ShowPrompt(ctx context.Context) error {
	if err := s.SetSubscription(ctx, true); err != nil {
		return err
	}
	s.Trigger(EventPromptAnswered, true)
	return nil
}

// SetSubscription writes the flag and, when the value changed, fires the
// subscriptionChange listeners with the new value.
func (s *Simulator) SetSubscription(ctx context.Context, subscribed bool) error {
	s.mu.Lock()
	current, _, err := s.flags.Get(ctx, s.installation, flags.Subscribed)
	if err != nil {
		s.mu.Unlock()
		return errors.Wrap(err, "reading simulated subscription")
	}
	if err := s.flags.Set(ctx, s.installation, flags.Subscribed, subscribed); err != nil {
		s.mu.Unlock()
		return errors.Wrap(err, "writing simulated subscription")
	}
	s.mu.Unlock()

	if current != subscribed {
		s.Trigger(EventSubscriptionChange, subscribed)
	}
	return nil
}
