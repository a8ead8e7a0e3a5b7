package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/sirupsen/logrus"
	"github.com/spasibg/spasi-push/lib/pushsdk"
	"github.com/spasibg/spasi-push/lib/subscribers"
	"github.com/spasibg/spasi-push/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePush struct {
	mu       sync.Mutex
	payloads map[string][]byte
	status   map[string]int
}

func (f *fakePush) send(payload []byte, sub *webpush.Subscription, opts *webpush.Options) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if opts.VAPIDPrivateKey == "" {
		return nil, errors.New("no key")
	}
	status, ok := f.status[sub.Endpoint]
	if !ok {
		return nil, errors.New("network down")
	}
	f.payloads[sub.Endpoint] = payload
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader("nope"))}, nil
}

func newTestSender(t *testing.T, fake *fakePush) (*Sender, subscribers.Store) {
	t.Helper()
	store, err := subscribers.OpenSQLite(filepath.Join(t.TempDir(), "b.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	log := logrus.New()
	log.Out = io.Discard
	s := NewSender(store, pushsdk.VAPID{PublicKey: "pub", PrivateKey: "priv", Subscriber: "admin@spasi.bg"}, "spasi.bg")
	s.Send = fake.send
	s.Log = log
	return s, store
}

func sub(token, endpoint, city string) types.Subscriber {
	c := city
	return types.Subscriber{PushToken: token, Endpoint: endpoint, P256DH: "k", Auth: "a", City: &c}
}

func TestDeliver(t *testing.T) {
	ctx := context.Background()
	fake := &fakePush{payloads: map[string][]byte{}, status: map[string]int{
		"https://push/ok":   201,
		"https://push/gone": 410,
		"https://push/bad":  500,
	}}
	s, store := newTestSender(t, fake)

	require.NoError(t, store.Upsert(ctx, sub("1", "https://push/ok", "Sofia")))
	require.NoError(t, store.Upsert(ctx, sub("2", "https://push/gone", "Sofia")))
	require.NoError(t, store.Upsert(ctx, sub("3", "https://push/bad", "Sofia")))
	require.NoError(t, store.Upsert(ctx, sub("4", "https://push/down", "Sofia")))
	require.NoError(t, store.Upsert(ctx, types.Subscriber{PushToken: "5"}))
	require.NoError(t, store.Upsert(ctx, sub("6", "https://push/ok-varna", "Varna")))

	report, err := s.Deliver(ctx, Push{Title: "Signal", Body: "Help needed", Icon: "danger-red", City: "Sofia"})
	require.NoError(t, err)
	assert.Equal(t, Report{Sent: 1, Gone: 1, Failed: 2}, report)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(fake.payloads["https://push/ok"], &payload))
	assert.Equal(t, "Signal", payload["title"])
	assert.Equal(t, "https://spasi.bg/static/danger.png", payload["icon"])

	// gone subscribers are kept for the admin to remove
	_, err = store.Get(ctx, "2")
	assert.NoError(t, err)

	report, err = s.Deliver(ctx, Push{Title: "All"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
}

func TestDeliverWithoutKeys(t *testing.T) {
	s, _ := newTestSender(t, &fakePush{})
	s.Keys = pushsdk.VAPID{}
	_, err := s.Deliver(context.Background(), Push{})
	assert.ErrorIs(t, err, pushsdk.ErrUnsupported)
}

func TestWorker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fake := &fakePush{payloads: map[string][]byte{}, status: map[string]int{"https://push/ok": 201}}
	s, store := newTestSender(t, fake)
	require.NoError(t, store.Upsert(ctx, sub("1", "https://push/ok", "Ruse")))

	w := NewWorker(s, 1)
	reports := make(chan Report, 1)
	go w.Run(ctx, func(_ Push, r Report, err error) {
		assert.NoError(t, err)
		reports <- r
	})

	require.True(t, w.Enqueue(Push{Title: "hello"}))
	select {
	case r := <-reports:
		assert.Equal(t, 1, r.Sent)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not deliver")
	}
}

func TestWorkerQueueFull(t *testing.T) {
	w := NewWorker(&Sender{}, 1)
	assert.True(t, w.Enqueue(Push{}))
	assert.False(t, w.Enqueue(Push{}))
}
