package pushstate

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/spasibg/spasi-push/lib/flags"
	"github.com/spasibg/spasi-push/types"
)

// Dialog decides whether the one-time "turn on notifications" dialog may be shown.
type Dialog struct {
	Flags flags.Store
	Delay time.Duration
}

func (d Dialog) ShouldShow(ctx context.Context, installation string, s types.State) (bool, error) {
	if !s.Initialized || !s.PushSupported || s.Subscribed {
		return false, nil
	}
	shown, _, err := d.Flags.Get(ctx, installation, flags.DialogShown)
	if err != nil {
		return false, errors.Wrap(err, "reading dialog flag")
	}
	return !shown, nil
}

// MarkShown sets the shown flag. The flag is never cleared.
func (d Dialog) MarkShown(ctx context.Context, installation string) error {
	shown, _, err := d.Flags.Get(ctx, installation, flags.DialogShown)
	if err != nil {
		return errors.Wrap(err, "reading dialog flag")
	}
	if shown {
		return nil
	}
	return errors.Wrap(d.Flags.Set(ctx, installation, flags.DialogShown, true), "writing dialog flag")
}
