package types

// State is the per-installation subscription state every consumer reads.
type State struct {
	Subscribed     bool `json:"isSubscribed"`
	PushSupported  bool `json:"isPushSupported"`
	Initialized    bool `json:"isInitialized"`
	DevEnvironment bool `json:"isDevEnvironment"`
}

type Outcome string

const (
	OutcomeSubscribed   Outcome = "subscribed"
	OutcomeUnsubscribed Outcome = "unsubscribed"
	OutcomeUnsupported  Outcome = "unsupported"
	OutcomeDenied       Outcome = "denied"
	OutcomeTransient    Outcome = "transient_error"
)

// Result is what Subscribe and Unsubscribe return. Err may be set together
// with OutcomeSubscribed when the subscriber record could not be written.
type Result struct {
	Outcome Outcome
	State   State
	Err     error
}
