package broadcast

import (
	"context"

	"github.com/pkg/errors"
)

// Worker delivers queued pushes one at a time in the background.
type Worker struct {
	sender  *Sender
	trigger chan Push
}

func NewWorker(sender *Sender, queue int) *Worker {
	return &Worker{sender: sender, trigger: make(chan Push, queue)}
}

// Enqueue returns false when the queue is full.
func (w *Worker) Enqueue(p Push) bool {
	select {
	case w.trigger <- p:
		return true
	default:
		return false
	}
}

// Run blocks until ctx is done. done, if set, receives every report.
func (w *Worker) Run(ctx context.Context, done func(Push, Report, error)) {
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-w.trigger:
			w.sender.Log.WithField("title", p.Title).Info("Triggering push notifications")
			report, err := w.sender.Deliver(ctx, p)
			if err != nil {
				w.sender.Log.Error(errors.Wrap(err, "delivering broadcast"))
			}
			if done != nil {
				done(p, report, err)
			}
		}
	}
}
