// Package pushsdk defines the push vendor surface the subscription manager
// talks to, and its two variants: the development Simulator and the
// production WebPush SDK.
package pushsdk

import (
	"context"
	"errors"
)

const (
	EventSubscriptionChange = "subscriptionChange"
	// EventPromptAnswered fires with true when the user accepted the
	// permission prompt and false when they declined it.
	EventPromptAnswered = "promptAnswered"
)

var (
	ErrUnsupported    = errors.New("push notifications are not supported")
	ErrNoRegistration = errors.New("installation has no push registration")
)

// SDK is the per-installation vendor surface.
type SDK interface {
	Name() string
	IsPushSupported(ctx context.Context) (bool, error)
	IsSubscribed(ctx context.Context) (bool, error)
	// SubscriberID returns the push token, or "" when not subscribed.
	SubscriberID(ctx context.Context) (string, error)
	// ShowPrompt asks the user for permission and returns without waiting
	// for the answer; the answer arrives as EventPromptAnswered.
	ShowPrompt(ctx context.Context) error
	SetSubscription(ctx context.Context, subscribed bool) error
	// On registers a listener and returns the function that removes it.
	On(event string, fn Listener) (off func())
}

// Endpointer is implemented by SDKs that can deliver pushes themselves and
// therefore know the browser endpoint behind the subscriber id.
type Endpointer interface {
	Registration(ctx context.Context) (Registration, error)
}

// Answerer is implemented by SDKs whose prompt is answered out of band.
type Answerer interface {
	// Answer records the user's answer; reg is nil when they declined.
	Answer(ctx context.Context, reg *Registration) error
}
