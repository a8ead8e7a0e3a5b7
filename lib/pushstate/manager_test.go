package pushstate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spasibg/spasi-push/lib/flags"
	"github.com/spasibg/spasi-push/lib/pushsdk"
	"github.com/spasibg/spasi-push/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKeys = pushsdk.VAPID{PublicKey: "pub", PrivateKey: "priv"}

func TestDevSubscribePersistsNothing(t *testing.T) {
	ctx := context.Background()
	store := flags.NewMemoryStore()
	persister := &recordingPersister{}
	m := newTestManager(t, Options{
		Dev:       true,
		SDK:       pushsdk.NewSimulator(store, "inst"),
		Flags:     store,
		Persister: persister,
	})

	state := m.Start()
	assert.False(t, state.Subscribed)

	res := m.Subscribe(ctx, types.Profile{UserID: "u1"})
	assert.Equal(t, types.OutcomeSubscribed, res.Outcome)
	assert.NoError(t, res.Err)
	assert.True(t, m.State().Subscribed)
	assert.Empty(t, persister.Calls())

	cached, ok, _ := store.Get(ctx, "inst", flags.Subscribed)
	assert.True(t, ok)
	assert.True(t, cached)

	res = m.Unsubscribe(ctx)
	assert.Equal(t, types.OutcomeUnsubscribed, res.Outcome)
	assert.False(t, m.State().Subscribed)
	cached, _, _ = store.Get(ctx, "inst", flags.Subscribed)
	assert.False(t, cached)
	assert.Empty(t, persister.Calls())
}

func TestSubscribePersistsOncePerChange(t *testing.T) {
	ctx := context.Background()
	store := flags.NewMemoryStore()
	persister := &recordingPersister{}
	m := newTestManager(t, Options{
		SDK:       pushsdk.NewSimulator(store, "inst"),
		Flags:     store,
		Persister: persister,
	})
	m.Start()

	profile := types.Profile{UserID: "u1", City: "Sofia", Categories: []string{"signals"}}
	res := m.Subscribe(ctx, profile)
	require.Equal(t, types.OutcomeSubscribed, res.Outcome)
	require.NoError(t, res.Err)

	calls := persister.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "sim-inst", calls[0].PushToken)
	assert.Equal(t, "u1", *calls[0].UserID)
	assert.Equal(t, "Sofia", *calls[0].City)
	assert.Equal(t, []string{"signals"}, calls[0].Categories)

	// same token, same profile: nothing new to write
	res = m.Subscribe(ctx, profile)
	require.Equal(t, types.OutcomeSubscribed, res.Outcome)
	assert.Len(t, persister.Calls(), 1)

	profile.City = "Plovdiv"
	m.Subscribe(ctx, profile)
	calls = persister.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "Plovdiv", *calls[1].City)
}

func TestSubscribeReportsPersistenceFailure(t *testing.T) {
	store := flags.NewMemoryStore()
	persister := &recordingPersister{err: errors.New("table is gone")}
	m := newTestManager(t, Options{
		SDK:       pushsdk.NewSimulator(store, "inst"),
		Flags:     store,
		Persister: persister,
	})
	m.Start()

	res := m.Subscribe(context.Background(), types.Profile{})
	assert.Equal(t, types.OutcomeSubscribed, res.Outcome)
	assert.True(t, errors.Is(res.Err, ErrPersist))
	assert.True(t, res.State.Subscribed, "client state is not rolled back")
}

func webPushManager(t *testing.T, persister Persister) (*Manager, *pushsdk.WebPush, *Hub) {
	t.Helper()
	hub := NewHub()
	sdk := pushsdk.NewWebPush("inst", testKeys, pushsdk.NewMemoryRegistrations(), hub.Prompt)
	m := newTestManager(t, Options{SDK: sdk, Persister: persister, Hub: hub})
	return m, sdk, hub
}

func TestSubscribeWaitsForBrowserAnswer(t *testing.T) {
	ctx := context.Background()
	persister := &recordingPersister{}
	m, sdk, hub := webPushManager(t, persister)
	m.Start()

	events, stop := hub.Subscribe("inst")
	defer stop()

	done := make(chan types.Result, 1)
	go func() { done <- m.Subscribe(ctx, types.Profile{City: "Varna"}) }()

	waitFor(t, events, EventPrompt)
	reg := pushsdk.Registration{Endpoint: "https://push.example/42", P256DH: "key", Auth: "secret"}
	require.NoError(t, sdk.Answer(ctx, &reg))

	res := <-done
	assert.Equal(t, types.OutcomeSubscribed, res.Outcome)
	assert.NoError(t, res.Err)

	calls := persister.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, reg.Token(), calls[0].PushToken)
	assert.Equal(t, reg.Endpoint, calls[0].Endpoint)
	assert.Equal(t, "Varna", *calls[0].City)
}

func TestSubscribeDenied(t *testing.T) {
	ctx := context.Background()
	persister := &recordingPersister{}
	m, sdk, hub := webPushManager(t, persister)
	m.Start()

	events, stop := hub.Subscribe("inst")
	defer stop()

	done := make(chan types.Result, 1)
	go func() { done <- m.Subscribe(ctx, types.Profile{}) }()

	waitFor(t, events, EventPrompt)
	require.NoError(t, sdk.Answer(ctx, nil))

	res := <-done
	assert.Equal(t, types.OutcomeDenied, res.Outcome)
	assert.False(t, m.State().Subscribed)
	assert.Empty(t, persister.Calls())
}

func TestSubscribeFallsBackToRecheck(t *testing.T) {
	ctx := context.Background()
	regs := pushsdk.NewMemoryRegistrations()
	reg := pushsdk.Registration{Endpoint: "https://push.example/quiet", P256DH: "key", Auth: "secret"}
	// this browser registers without ever answering the prompt
	sdk := pushsdk.NewWebPush("inst", testKeys, regs, func(inst string) {
		_ = regs.Put(ctx, inst, reg)
	})
	persister := &recordingPersister{}
	m := newTestManager(t, Options{SDK: sdk, Persister: persister})
	m.Start()

	res := m.Subscribe(ctx, types.Profile{})
	assert.Equal(t, types.OutcomeSubscribed, res.Outcome)
	require.Len(t, persister.Calls(), 1)
	assert.Equal(t, reg.Token(), persister.Calls()[0].PushToken)
}

func TestSubscribePromptTimeout(t *testing.T) {
	persister := &recordingPersister{}
	hub := NewHub()
	sdk := pushsdk.NewWebPush("inst", testKeys, pushsdk.NewMemoryRegistrations(), hub.Prompt)
	m := newTestManager(t, Options{
		SDK:           sdk,
		Persister:     persister,
		Hub:           hub,
		PromptTimeout: 50 * time.Millisecond,
	})
	m.Start()

	res := m.Subscribe(context.Background(), types.Profile{})
	assert.Equal(t, types.OutcomeTransient, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrPromptTimeout)
	assert.Empty(t, persister.Calls())
}

func TestUnsubscribeProduction(t *testing.T) {
	ctx := context.Background()
	store := flags.NewMemoryStore()
	persister := &recordingPersister{}
	sim := pushsdk.NewSimulator(store, "inst")
	m := newTestManager(t, Options{SDK: sim, Flags: store, Persister: persister})
	m.Start()

	require.Equal(t, types.OutcomeSubscribed, m.Subscribe(ctx, types.Profile{}).Outcome)

	res := m.Unsubscribe(ctx)
	assert.Equal(t, types.OutcomeUnsubscribed, res.Outcome)
	assert.False(t, m.State().Subscribed)
	subscribed, _ := sim.IsSubscribed(ctx)
	assert.False(t, subscribed)

	// subscribing again writes the record again
	m.Subscribe(ctx, types.Profile{})
	assert.Len(t, persister.Calls(), 2)
}

func TestUnsupportedWithoutSDK(t *testing.T) {
	persister := &recordingPersister{}
	m := newTestManager(t, Options{Persister: persister})
	state := m.Start()
	assert.True(t, state.Initialized)
	assert.False(t, state.PushSupported)

	assert.Equal(t, types.OutcomeUnsupported, m.Subscribe(context.Background(), types.Profile{}).Outcome)
	assert.Equal(t, types.OutcomeUnsupported, m.Unsubscribe(context.Background()).Outcome)
}

func TestChangeListenerMirrorsSDK(t *testing.T) {
	ctx := context.Background()
	store := flags.NewMemoryStore()
	persister := &recordingPersister{}
	sim := pushsdk.NewSimulator(store, "inst")
	m := newTestManager(t, Options{SDK: sim, Flags: store, Persister: persister})
	m.Start()

	events, stop := m.Watch()
	defer stop()

	require.NoError(t, sim.SetSubscription(ctx, true))
	ev := waitFor(t, events, EventState)
	assert.True(t, ev.State.Subscribed)
	assert.True(t, m.State().Subscribed)
	assert.Len(t, persister.Calls(), 1)

	m.Close()
	require.NoError(t, sim.SetSubscription(ctx, false))
	assert.True(t, m.State().Subscribed, "closed manager no longer follows the SDK")
	assert.Equal(t, 0, sim.Count(pushsdk.EventSubscriptionChange))
}

func TestStartPaintsCachedFlag(t *testing.T) {
	ctx := context.Background()
	store := flags.NewMemoryStore()
	require.NoError(t, store.Set(ctx, "inst", flags.Subscribed, true))

	// the SDK has no registration, so its answer overrides the stale cache
	sdk := pushsdk.NewWebPush("inst", testKeys, pushsdk.NewMemoryRegistrations(), func(string) {})
	m := newTestManager(t, Options{SDK: sdk, Flags: store})

	state := m.Start()
	assert.False(t, state.Subscribed)
	cached, _, _ := store.Get(ctx, "inst", flags.Subscribed)
	assert.False(t, cached)
}

func TestWaitHonoursContext(t *testing.T) {
	m := newTestManager(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	res := m.Subscribe(ctx, types.Profile{})
	assert.Equal(t, types.OutcomeTransient, res.Outcome)
}

func TestStartKeepsCachedFlagWhenCheckFails(t *testing.T) {
	ctx := context.Background()
	store := flags.NewMemoryStore()
	require.NoError(t, store.Set(ctx, "inst", flags.Subscribed, true))

	sdk := &flakySDK{brokenSDK: brokenSDK{err: errors.New("registry unavailable")}}
	m := newTestManager(t, Options{SDK: sdk, Flags: store})

	state := m.Start()
	assert.True(t, state.PushSupported)
	cached, ok, err := store.Get(ctx, "inst", flags.Subscribed)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, cached, "a failed enabled-check leaves the cached flag alone")
}

func TestSubscribeFailsFastWithoutListener(t *testing.T) {
	hub := NewHub()
	sdk := pushsdk.NewWebPush("inst", testKeys, pushsdk.NewMemoryRegistrations(), hub.Prompt)
	m := newTestManager(t, Options{
		SDK:           sdk,
		Hub:           hub,
		PromptTimeout: 5 * time.Second,
		PromptReachable: func(installation string) bool {
			return hub.Watchers(installation) > 0
		},
	})
	m.Start()

	start := time.Now()
	res := m.Subscribe(context.Background(), types.Profile{})
	assert.Equal(t, types.OutcomeTransient, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrPromptUnreachable)
	assert.Less(t, time.Since(start), time.Second)

	start = time.Now()
	res = m.Unsubscribe(context.Background())
	assert.Equal(t, types.OutcomeUnsubscribed, res.Outcome)
	assert.Less(t, time.Since(start), time.Second)
}

func TestUnsubscribeCancelsPendingPrompt(t *testing.T) {
	hub := NewHub()
	sdk := pushsdk.NewWebPush("inst", testKeys, pushsdk.NewMemoryRegistrations(), hub.Prompt)
	persister := &recordingPersister{}
	m := newTestManager(t, Options{
		SDK:           sdk,
		Hub:           hub,
		Persister:     persister,
		PromptTimeout: 5 * time.Second,
		RecheckDelay:  time.Second,
	})
	m.Start()

	events, stop := hub.Subscribe("inst")
	defer stop()

	done := make(chan types.Result, 1)
	go func() { done <- m.Subscribe(context.Background(), types.Profile{}) }()
	waitFor(t, events, EventPrompt)

	start := time.Now()
	res := m.Unsubscribe(context.Background())
	assert.Equal(t, types.OutcomeUnsubscribed, res.Outcome)
	assert.Less(t, time.Since(start), time.Second, "unsubscribe does not wait out the prompt")

	select {
	case sub := <-done:
		assert.Equal(t, types.OutcomeTransient, sub.Outcome)
		assert.ErrorIs(t, sub.Err, ErrPromptCancelled)
	case <-time.After(time.Second):
		t.Fatal("subscribe kept waiting after unsubscribe")
	}
	assert.False(t, m.State().Subscribed)
	assert.Empty(t, persister.Calls())
}

func TestPersistKeySeparatesProfiles(t *testing.T) {
	for _, pair := range [][2]types.Profile{
		{{City: "x", Categories: []string{"a,b"}}, {City: "x", Categories: []string{"a", "b"}}},
		{{UserID: "u|Sofia"}, {UserID: "u", City: "Sofia"}},
		{{City: "Sofia|"}, {City: "Sofia", Categories: []string{""}}},
	} {
		assert.NotEqual(t, persistKey("tok", pair[0]), persistKey("tok", pair[1]), "%+v", pair)
	}
	assert.Equal(t, persistKey("tok", types.Profile{City: "Varna"}), persistKey("tok", types.Profile{City: "Varna"}))
}
