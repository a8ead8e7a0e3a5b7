// Package pushstate owns the subscription state of every browser
// installation: initialization, subscribe/unsubscribe, the change listener
// and the persistence of subscriber records.
package pushstate

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spasibg/spasi-push/lib/flags"
	"github.com/spasibg/spasi-push/lib/metrics"
	"github.com/spasibg/spasi-push/lib/pushsdk"
	"github.com/spasibg/spasi-push/types"
)

const (
	DefaultPromptTimeout = 2 * time.Minute
	DefaultRecheckDelay  = 3 * time.Second

	persistTimeout = 10 * time.Second
)

var (
	ErrPromptTimeout  = errors.New("permission prompt was not answered in time")
	ErrNoSubscriberID = errors.New("push SDK reported no subscriber id")
	ErrPersist        = errors.New("saving subscriber failed")
	// ErrPromptUnreachable means no browser tab is listening for the prompt.
	ErrPromptUnreachable = errors.New("no open page can show the permission prompt")
	ErrPromptCancelled   = errors.New("permission prompt cancelled by unsubscribe")
)

// Persister writes subscriber records. subscribers.Store satisfies it.
type Persister interface {
	Upsert(ctx context.Context, s types.Subscriber) error
}

type Options struct {
	Installation string
	Dev          bool
	// SDK may be nil, which means push is unavailable.
	SDK       pushsdk.SDK
	Flags     flags.Store
	Persister Persister
	Hub       *Hub

	InitTimeout   time.Duration
	PromptTimeout time.Duration
	RecheckDelay  time.Duration

	// PromptReachable, when set, reports whether a prompt shown now can reach
	// the browser. Subscribe fails fast when it returns false.
	PromptReachable func(installation string) bool

	Log logrus.FieldLogger
}

// Manager is the single holder of one installation's subscription state.
type Manager struct {
	opts Options
	log  logrus.FieldLogger
	gate *Gate

	startOnce sync.Once
	// opMu serializes Subscribe and Unsubscribe.
	opMu sync.Mutex
	// persistMu serializes subscriber writes so one change is written once.
	persistMu sync.Mutex

	mu           sync.Mutex
	state        types.State
	profile      types.Profile
	persistedKey string
	offs         []func()
	lastSeen     time.Time
	cancelPrompt context.CancelCauseFunc

	answers chan bool
}

func NewManager(o Options) *Manager {
	if o.InitTimeout <= 0 {
		o.InitTimeout = DefaultInitTimeout
	}
	if o.PromptTimeout <= 0 {
		o.PromptTimeout = DefaultPromptTimeout
	}
	if o.RecheckDelay <= 0 {
		o.RecheckDelay = DefaultRecheckDelay
	}
	if o.Hub == nil {
		o.Hub = NewHub()
	}
	log := o.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Manager{
		opts:     o,
		log:      log.WithField("installation", o.Installation),
		gate:     NewGate(),
		answers:  make(chan bool, 1),
		lastSeen: time.Now(),
	}
}

func (m *Manager) Installation() string {
	return m.opts.Installation
}

func (m *Manager) SDK() pushsdk.SDK {
	return m.opts.SDK
}

// Start initializes the manager once; later calls return immediately.
// The cached flag is published first so watchers can paint before the SDK
// answers, then the SDK's answer replaces it.
func (m *Manager) Start() types.State {
	m.startOnce.Do(func() {
		ctx := context.Background()

		if cached, ok, err := m.opts.Flags.Get(ctx, m.opts.Installation, flags.Subscribed); err != nil {
			m.log.WithError(err).Warn("Reading cached subscription flag")
		} else if ok {
			m.mu.Lock()
			m.state.Subscribed = cached
			s := m.state
			m.mu.Unlock()
			m.publish(s)
		}

		state, answered := Initialize(ctx, m.opts.SDK, m.opts.Dev, m.opts.InitTimeout, m.log)

		if m.opts.SDK != nil && state.PushSupported {
			offChange := m.opts.SDK.On(pushsdk.EventSubscriptionChange, m.onChange)
			offAnswer := m.opts.SDK.On(pushsdk.EventPromptAnswered, m.onAnswer)
			m.mu.Lock()
			m.offs = append(m.offs, offChange, offAnswer)
			m.mu.Unlock()
			// a failed enabled-check must not overwrite the cached flag
			if answered {
				m.writeCache(ctx, state.Subscribed)
			}
		}

		m.mu.Lock()
		m.state = state
		m.mu.Unlock()

		m.gate.Open(state)
		m.publish(state)
	})
	return m.State()
}

func (m *Manager) Wait(ctx context.Context) (types.State, error) {
	if _, err := m.gate.Wait(ctx); err != nil {
		return types.State{}, err
	}
	return m.State(), nil
}

func (m *Manager) State() types.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSeen = time.Now()
	return m.state
}

func (m *Manager) Watch() (<-chan Event, func()) {
	return m.opts.Hub.Subscribe(m.opts.Installation)
}

func (m *Manager) Subscribe(ctx context.Context, profile types.Profile) types.Result {
	res := m.subscribe(ctx, profile)
	metrics.Operations.WithLabelValues("subscribe", string(res.Outcome)).Inc()
	return res
}

func (m *Manager) subscribe(ctx context.Context, profile types.Profile) types.Result {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	state, err := m.Wait(ctx)
	if err != nil {
		return types.Result{Outcome: types.OutcomeTransient, State: state, Err: err}
	}

	m.mu.Lock()
	m.profile = profile
	m.mu.Unlock()

	if m.opts.Dev {
		state = m.setSubscribed(true)
		m.writeCache(ctx, true)
		m.log.Info("Simulated subscription")
		return types.Result{Outcome: types.OutcomeSubscribed, State: state}
	}

	sdk := m.opts.SDK
	if sdk == nil || !state.PushSupported {
		return types.Result{Outcome: types.OutcomeUnsupported, State: state}
	}

	if m.opts.PromptReachable != nil && !m.opts.PromptReachable(m.opts.Installation) {
		m.log.Info("No page is listening for the permission prompt")
		return types.Result{Outcome: types.OutcomeTransient, State: state, Err: ErrPromptUnreachable}
	}

	select {
	case <-m.answers:
	default:
	}

	ctx, cancel := context.WithCancelCause(ctx)
	m.mu.Lock()
	m.cancelPrompt = cancel
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.cancelPrompt = nil
		m.mu.Unlock()
		cancel(nil)
	}()

	if err := sdk.ShowPrompt(ctx); err != nil {
		if errors.Is(err, pushsdk.ErrUnsupported) {
			return types.Result{Outcome: types.OutcomeUnsupported, State: m.State()}
		}
		m.log.WithError(err).Error("Showing permission prompt")
		return types.Result{Outcome: types.OutcomeTransient, State: m.State(), Err: errors.Wrap(err, "showing prompt")}
	}

	if res, done := m.awaitAnswer(ctx, sdk); done {
		return res
	}

	subscribed, err := sdk.IsSubscribed(ctx)
	if err != nil {
		m.log.WithError(err).Error("Checking subscription after prompt")
		return types.Result{Outcome: types.OutcomeTransient, State: m.State(), Err: errors.Wrap(err, "checking subscription")}
	}
	if !subscribed {
		return types.Result{Outcome: types.OutcomeDenied, State: m.State()}
	}

	state = m.setSubscribed(true)
	m.writeCache(ctx, true)

	res := types.Result{Outcome: types.OutcomeSubscribed, State: state}
	if err := m.persist(ctx); err != nil {
		res.Err = err
	}
	return res
}

// awaitAnswer blocks until the prompt is answered. The periodic re-check of
// the SDK only covers SDKs that never fire EventPromptAnswered. done is true
// when the returned result is final.
func (m *Manager) awaitAnswer(ctx context.Context, sdk pushsdk.SDK) (types.Result, bool) {
	promptCtx, cancel := context.WithTimeout(ctx, m.opts.PromptTimeout)
	defer cancel()

	recheck := time.NewTimer(m.opts.RecheckDelay)
	defer recheck.Stop()

	for {
		select {
		case accepted := <-m.answers:
			if !accepted {
				m.log.Info("Permission prompt declined")
				return types.Result{Outcome: types.OutcomeDenied, State: m.State()}, true
			}
			return types.Result{}, false
		case <-recheck.C:
			if subscribed, err := sdk.IsSubscribed(promptCtx); err == nil && subscribed {
				return types.Result{}, false
			}
			recheck.Reset(m.opts.RecheckDelay)
		case <-promptCtx.Done():
			err := context.Cause(ctx)
			if err == nil {
				err = ErrPromptTimeout
			}
			return types.Result{Outcome: types.OutcomeTransient, State: m.State(), Err: err}, true
		}
	}
}

func (m *Manager) Unsubscribe(ctx context.Context) types.Result {
	res := m.unsubscribe(ctx)
	metrics.Operations.WithLabelValues("unsubscribe", string(res.Outcome)).Inc()
	return res
}

func (m *Manager) unsubscribe(ctx context.Context) types.Result {
	m.mu.Lock()
	if m.cancelPrompt != nil {
		m.cancelPrompt(ErrPromptCancelled)
	}
	m.mu.Unlock()

	m.opMu.Lock()
	defer m.opMu.Unlock()

	state, err := m.Wait(ctx)
	if err != nil {
		return types.Result{Outcome: types.OutcomeTransient, State: state, Err: err}
	}

	if m.opts.Dev {
		state = m.setSubscribed(false)
		m.writeCache(ctx, false)
		return types.Result{Outcome: types.OutcomeUnsubscribed, State: state}
	}

	sdk := m.opts.SDK
	if sdk == nil || !state.PushSupported {
		return types.Result{Outcome: types.OutcomeUnsupported, State: state}
	}

	if err := sdk.SetSubscription(ctx, false); err != nil {
		m.log.WithError(err).Error("Turning subscription off")
		return types.Result{Outcome: types.OutcomeTransient, State: m.State(), Err: errors.Wrap(err, "unsubscribing")}
	}

	state = m.setSubscribed(false)
	m.writeCache(ctx, false)
	m.mu.Lock()
	m.persistedKey = ""
	m.mu.Unlock()
	return types.Result{Outcome: types.OutcomeUnsubscribed, State: state}
}

func (m *Manager) onChange(subscribed bool) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	m.log.WithField("subscribed", subscribed).Debug("Subscription changed")
	m.setSubscribed(subscribed)
	m.writeCache(ctx, subscribed)

	if !subscribed {
		m.mu.Lock()
		m.persistedKey = ""
		m.mu.Unlock()
		return
	}
	if err := m.persist(ctx); err != nil {
		m.log.WithError(err).Error("Persisting subscriber after change")
	}
}

func (m *Manager) onAnswer(accepted bool) {
	select {
	case m.answers <- accepted:
	default:
	}
}

// persist upserts the subscriber record unless the same token and profile
// were already written. Development installations are never persisted.
func (m *Manager) persist(ctx context.Context) error {
	if m.opts.Dev || m.opts.Persister == nil || m.opts.SDK == nil {
		return nil
	}

	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	sdk := m.opts.SDK
	token, err := sdk.SubscriberID(ctx)
	if err != nil {
		return errors.Wrap(err, "resolving subscriber id")
	}
	if token == "" {
		return ErrNoSubscriberID
	}

	m.mu.Lock()
	profile := m.profile
	persisted := m.persistedKey
	m.mu.Unlock()

	key := persistKey(token, profile)
	if key == persisted {
		return nil
	}

	rec := profile.Apply(types.Subscriber{PushToken: token})
	if ep, ok := sdk.(pushsdk.Endpointer); ok {
		reg, err := ep.Registration(ctx)
		if err != nil {
			return errors.Wrap(err, "resolving registration")
		}
		rec.Endpoint = reg.Endpoint
		rec.P256DH = reg.P256DH
		rec.Auth = reg.Auth
	}

	err = m.opts.Persister.Upsert(ctx, rec)
	metrics.Upserts.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		m.log.WithError(err).WithField("token", token).Error("Saving subscriber")
		return errors.Wrap(ErrPersist, err.Error())
	}

	m.mu.Lock()
	m.persistedKey = key
	m.mu.Unlock()
	m.log.WithField("token", token).Info("Saved subscriber")
	return nil
}

func persistKey(token string, p types.Profile) string {
	key, _ := json.Marshal(struct {
		Token   string        `json:"token"`
		Profile types.Profile `json:"profile"`
	}{token, p})
	return string(key)
}

func (m *Manager) setSubscribed(v bool) types.State {
	m.mu.Lock()
	m.state.Subscribed = v
	s := m.state
	m.mu.Unlock()
	m.publish(s)
	return s
}

func (m *Manager) writeCache(ctx context.Context, v bool) {
	if err := m.opts.Flags.Set(ctx, m.opts.Installation, flags.Subscribed, v); err != nil {
		m.log.WithError(err).Warn("Writing cached subscription flag")
	}
}

func (m *Manager) publish(s types.State) {
	m.opts.Hub.Publish(m.opts.Installation, Event{Type: EventState, State: &s})
}

func (m *Manager) idleSince() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSeen
}

// Close detaches the SDK listeners.
func (m *Manager) Close() {
	m.mu.Lock()
	offs := m.offs
	m.offs = nil
	m.mu.Unlock()
	for _, off := range offs {
		off()
	}
}
