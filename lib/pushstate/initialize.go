package pushstate

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spasibg/spasi-push/lib/pushsdk"
	"github.com/spasibg/spasi-push/types"
)

const DefaultInitTimeout = 10 * time.Second

// Initialize works out the starting state for one installation. It never
// fails: SDK errors and timeouts are logged and leave the state initialized
// with whatever support was established so far.
//
// answered reports whether the SDK answered the enabled-check, telling a real
// "not subscribed" apart from a failed query.
func Initialize(ctx context.Context, sdk pushsdk.SDK, dev bool, timeout time.Duration, log logrus.FieldLogger) (types.State, bool) {
	if timeout <= 0 {
		timeout = DefaultInitTimeout
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	state := types.State{DevEnvironment: dev}
	if sdk == nil {
		log.Info("Push SDK unavailable, notifications disabled")
		state.Initialized = true
		return state, false
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if dev {
		state.PushSupported = true
	} else {
		supported, err := sdk.IsPushSupported(ctx)
		if err != nil {
			log.WithError(err).Error("Checking push support")
			state.Initialized = true
			return state, false
		}
		state.PushSupported = supported
	}

	answered := false
	if state.PushSupported {
		subscribed, err := sdk.IsSubscribed(ctx)
		if err != nil {
			log.WithError(err).Error("Checking push subscription")
		} else {
			state.Subscribed = subscribed
			answered = true
		}
	}

	state.Initialized = true
	log.WithFields(logrus.Fields{
		"sdk":        sdk.Name(),
		"supported":  state.PushSupported,
		"subscribed": state.Subscribed,
	}).Debug("Push initialized")
	return state, answered
}
