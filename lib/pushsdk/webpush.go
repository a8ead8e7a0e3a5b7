package pushsdk

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

type VAPID struct {
	PublicKey  string
	PrivateKey string
	Subscriber string
}

func (v VAPID) Configured() bool {
	return v.PublicKey != "" && v.PrivateKey != ""
}

// PromptFunc asks the browser behind installation to show the permission prompt.
type PromptFunc func(installation string)

// WebPush is the production SDK. The browser owns the permission prompt;
// it is asked through PromptFunc and answers through Answer.
type WebPush struct {
	Events
	mu           sync.Mutex
	installation string
	keys         VAPID
	regs         Registrations
	prompt       PromptFunc
}

func NewWebPush(installation string, keys VAPID, regs Registrations, prompt PromptFunc) *WebPush {
	return &WebPush{
		installation: installation,
		keys:         keys,
		regs:         regs,
		prompt:       prompt,
	}
}

func (w *WebPush) Name() string {
	return "webpush"
}

func (w *WebPush) IsPushSupported(context.Context) (bool, error) {
	return w.keys.Configured() && w.prompt != nil, nil
}

func (w *WebPush) IsSubscribed(ctx context.Context) (bool, error) {
	_, ok, err := w.regs.Get(ctx, w.installation)
	return ok, err
}

func (w *WebPush) SubscriberID(ctx context.Context) (string, error) {
	reg, ok, err := w.regs.Get(ctx, w.installation)
	if err != nil || !ok {
		return "", err
	}
	return reg.Token(), nil
}

func (w *WebPush) Registration(ctx context.Context) (Registration, error) {
	reg, ok, err := w.regs.Get(ctx, w.installation)
	if err != nil {
		return Registration{}, err
	}
	if !ok {
		return Registration{}, ErrNoRegistration
	}
	return reg, nil
}

func (w *WebPush) ShowPrompt(ctx context.Context) error {
	if supported, _ := w.IsPushSupported(ctx); !supported {
		return ErrUnsupported
	}
	w.prompt(w.installation)
	return nil
}

func (w *WebPush) Answer(ctx context.Context, reg *Registration) error {
	if reg == nil {
		w.Trigger(EventPromptAnswered, false)
		return nil
	}
	if !reg.Valid() {
		return errors.New("registration is missing endpoint or keys")
	}

	w.mu.Lock()
	_, existed, err := w.regs.Get(ctx, w.installation)
	if err == nil {
		err = w.regs.Put(ctx, w.installation, *reg)
	}
	w.mu.Unlock()
	if err != nil {
		return errors.Wrap(err, "storing registration")
	}

	if !existed {
		w.Trigger(EventSubscriptionChange, true)
	}
	w.Trigger(EventPromptAnswered, true)
	return nil
}

// SetSubscription(false) drops the registration. Turning a subscription on
// needs a registration from the browser, so SetSubscription(true) only
// succeeds when one already exists.
func (w *WebPush) SetSubscription(ctx context.Context, subscribed bool) error {
	w.mu.Lock()
	_, existed, err := w.regs.Get(ctx, w.installation)
	if err != nil {
		w.mu.Unlock()
		return err
	}
	if subscribed {
		w.mu.Unlock()
		if !existed {
			return ErrNoRegistration
		}
		return nil
	}
	err = w.regs.Delete(ctx, w.installation)
	w.mu.Unlock()
	if err != nil {
		return err
	}

	if existed {
		w.Trigger(EventSubscriptionChange, false)
	}
	return nil
}
