package types

import (
	errs "errors"
	"time"
)

// StatePayload is the JSON body served to the browser for /push/state and
// as the result of subscribe/unsubscribe.
type StatePayload struct {
	State       State   `json:"state"`
	Outcome     Outcome `json:"outcome,omitempty"`
	ShowDialog  bool    `json:"showDialog"`
	DialogDelay int64   `json:"dialogDelayMs,omitempty"`
	Toast       string  `json:"toast,omitempty"`
	Err         error   `json:"-"`
	Error       string  `json:"error,omitempty"`
}

func NewStatePayload(s State) StatePayload {
	return StatePayload{State: s}
}

func (d StatePayload) WithResult(r Result) StatePayload {
	d.State = r.State
	d.Outcome = r.Outcome
	d.Toast = toastFor(r)
	return d.WithError(r.Err)
}

func (d StatePayload) WithDialog(show bool, delay time.Duration) StatePayload {
	d.ShowDialog = show
	if show {
		d.DialogDelay = delay.Milliseconds()
	}
	return d
}

func (d StatePayload) WithError(err error) StatePayload {
	if err == nil {
		return d
	}
	d.Err = errs.Join(d.Err, err)
	d.Error = d.Err.Error()
	return d
}

func toastFor(r Result) string {
	switch r.Outcome {
	case OutcomeSubscribed:
		if r.Err != nil {
			return "Subscribed, but we could not save your subscription. Please try again later."
		}
		return "Notifications are on."
	case OutcomeUnsubscribed:
		return "Notifications are off."
	case OutcomeUnsupported:
		return "Notifications are not available in this browser."
	case OutcomeDenied:
		return "Notifications were not allowed."
	case OutcomeTransient:
		return "Something went wrong, please try again."
	}
	return ""
}
