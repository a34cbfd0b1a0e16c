package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/cms-tsg-fog/RateMon-sub001/shiftmon/internal/alert"
	"github.com/cms-tsg-fog/RateMon-sub001/shiftmon/internal/config"
)

// Event is the serialised form of a firing alert shared by every channel.
type Event struct {
	ID      string    `json:"id"`
	Alert   string    `json:"alert"`
	Level   string    `json:"level"`
	Status  string    `json:"status"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	FiredAt time.Time `json:"fired_at"`
}

// NewEvent captures a's current rendering.
func NewEvent(a alert.Alert, now time.Time) Event {
	return Event{
		ID:      uuid.NewString(),
		Alert:   a.Name(),
		Level:   a.Level().String(),
		Status:  a.Status().String(),
		Message: a.Message(),
		Details: a.Details(),
		FiredAt: now.UTC(),
	}
}

// Set is the named actions built from config, plus whatever they need
// closing at shutdown.
type Set struct {
	Actions map[string]alert.Action
	closers []io.Closer
}

// Close releases every connection held by the set.
func (s *Set) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Build constructs every configured action. Connections to NATS and
// Postgres are opened here so misconfiguration surfaces at startup.
func Build(ctx context.Context, cfgs []config.ActionConfig) (*Set, error) {
	set := &Set{Actions: make(map[string]alert.Action, len(cfgs))}
	for _, c := range cfgs {
		a, closer, err := New(ctx, c)
		if err != nil {
			_ = set.Close()
			return nil, fmt.Errorf("notify: action %q: %w", c.Name, err)
		}
		set.Actions[c.Name] = a
		if closer != nil {
			set.closers = append(set.closers, closer)
		}
	}
	return set, nil
}

// New returns the action for one config entry and an optional closer.
func New(ctx context.Context, c config.ActionConfig) (alert.Action, io.Closer, error) {
	switch c.Type {
	case "console":
		return NewConsole(c.Name, os.Stdout), nil, nil
	case "slack", "teams", "webhook":
		url := c.URL()
		if url == "" {
			return nil, nil, fmt.Errorf("%s: url_env %q is unset", c.Type, c.URLEnv)
		}
		return NewWebhook(c.Name, c.Type, url), nil, nil
	case "email":
		if c.APIKey() == "" || c.From == "" || len(c.To) == 0 {
			return nil, nil, errors.New("email: api key, from and to are required")
		}
		return NewEmail(c.Name, c.APIKey(), c.From, c.To, c.Subject), nil, nil
	case "nats":
		n, err := DialNATS(c.Name, c.URL(), c.Subject)
		if err != nil {
			return nil, nil, err
		}
		return n, n, nil
	case "pglog":
		p, err := DialPGLog(ctx, c.Name, c.DSN())
		if err != nil {
			return nil, nil, err
		}
		return p, p, nil
	default:
		return nil, nil, fmt.Errorf("unknown type %q", c.Type)
	}
}
