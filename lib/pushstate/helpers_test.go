package pushstate

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spasibg/spasi-push/lib/flags"
	"github.com/spasibg/spasi-push/lib/pushsdk"
	"github.com/spasibg/spasi-push/types"
)

type recordingPersister struct {
	mu    sync.Mutex
	calls []types.Subscriber
	err   error
}

func (p *recordingPersister) Upsert(_ context.Context, s types.Subscriber) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, s)
	return p.err
}

func (p *recordingPersister) Calls() []types.Subscriber {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]types.Subscriber(nil), p.calls...)
}

// brokenSDK fails every query, or blocks until the context ends when block is set.
type brokenSDK struct {
	pushsdk.Events
	err   error
	block bool
}

func (b *brokenSDK) Name() string { return "broken" }

func (b *brokenSDK) wait(ctx context.Context) error {
	if b.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return b.err
}

func (b *brokenSDK) IsPushSupported(ctx context.Context) (bool, error) { return false, b.wait(ctx) }
func (b *brokenSDK) IsSubscribed(ctx context.Context) (bool, error)    { return false, b.wait(ctx) }
func (b *brokenSDK) SubscriberID(ctx context.Context) (string, error)  { return "", b.wait(ctx) }
func (b *brokenSDK) ShowPrompt(ctx context.Context) error              { return b.wait(ctx) }
func (b *brokenSDK) SetSubscription(ctx context.Context, _ bool) error { return b.wait(ctx) }

// flakySDK supports push but cannot tell whether the browser is subscribed.
type flakySDK struct {
	brokenSDK
}

func (f *flakySDK) IsPushSupported(context.Context) (bool, error) { return true, nil }

func quietLog() logrus.FieldLogger {
	l := logrus.New()
	l.Out = io.Discard
	return l
}

func newTestManager(t *testing.T, o Options) *Manager {
	t.Helper()
	if o.Installation == "" {
		o.Installation = "inst"
	}
	if o.Flags == nil {
		o.Flags = flags.NewMemoryStore()
	}
	if o.Log == nil {
		o.Log = quietLog()
	}
	if o.PromptTimeout == 0 {
		o.PromptTimeout = time.Second
	}
	if o.RecheckDelay == 0 {
		o.RecheckDelay = 10 * time.Millisecond
	}
	m := NewManager(o)
	t.Cleanup(m.Close)
	return m
}

func waitFor(t *testing.T, ch <-chan Event, typ string) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Type == typ {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event", typ)
			return Event{}
		}
	}
}
