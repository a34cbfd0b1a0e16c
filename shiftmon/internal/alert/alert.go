package alert

import (
	"context"
	"fmt"
	"strings"
)

// Status is the runtime state of an alert. Values are ordered by severity so
// combinators can take the maximum.
type Status int

const (
	StatusDisabled Status = iota
	StatusReady
	StatusGood
	StatusInvalid
	StatusSnoozed
	StatusAlarm
)

func (s Status) String() string {
	switch s {
	case StatusDisabled:
		return "disabled"
	case StatusReady:
		return "ready"
	case StatusGood:
		return "good"
	case StatusInvalid:
		return "invalid"
	case StatusSnoozed:
		return "snoozed"
	case StatusAlarm:
		return "alarm"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Level is the severity attached to an alert definition.
type Level int

const (
	LevelInfo Level = iota
	LevelWarning
	LevelError
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	case LevelCritical:
		return "critical"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ParseLevel maps a config string to a Level. Empty means warning.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "info":
		return LevelInfo, nil
	case "", "warning", "warn":
		return LevelWarning, nil
	case "error":
		return LevelError, nil
	case "critical", "fatal":
		return LevelCritical, nil
	default:
		return LevelInfo, fmt.Errorf("alert: unknown level %q", s)
	}
}

// Data is the payload checked by an alert. Clone must return a deep copy so
// a snapshot taken at Check time is immune to later mutation by the caller.
type Data interface {
	Clone() Data
}

// Action is one notification channel. Name identifies the action for
// de-duplication inside Multiple.
type Action interface {
	Name() string
	Notify(ctx context.Context, a Alert) error
}

// Alert is implemented by leaves and combinators alike.
type Alert interface {
	Name() string

	// Check evaluates data and updates Status. It returns false only for a
	// fresh Alarm, in which case the caller should Fire.
	Check(data Data) bool

	Status() Status
	Active() bool
	Triggered() bool

	Message() string
	Details() string
	Level() Level
	Actions() []Action

	Fire(ctx context.Context) error
	Snooze()
	Reset()
}

// actionFunc adapts a function to Action.
type actionFunc struct {
	name string
	fn   func(ctx context.Context, a Alert) error
}

// NewAction wraps fn as a named Action.
func NewAction(name string, fn func(ctx context.Context, a Alert) error) Action {
	return &actionFunc{name: name, fn: fn}
}

func (f *actionFunc) Name() string { return f.name }

func (f *actionFunc) Notify(ctx context.Context, a Alert) error { return f.fn(ctx, a) }
