package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// fireActions runs every action with a as argument. A failing or panicking
// action is logged and its error collected; the remaining actions still run.
func fireActions(ctx context.Context, a Alert, actions []Action) error {
	var errs []error
	for _, act := range actions {
		if err := runAction(ctx, a, act); err != nil {
			slog.Error("alert: action failed",
				"alert", a.Name(),
				"action", act.Name(),
				"err", err,
			)
			errs = append(errs, fmt.Errorf("action %s: %w", act.Name(), err))
			continue
		}
		slog.Debug("alert: action delivered", "alert", a.Name(), "action", act.Name())
	}
	return errors.Join(errs...)
}

func runAction(ctx context.Context, a Alert, act Action) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return act.Notify(ctx, a)
}
