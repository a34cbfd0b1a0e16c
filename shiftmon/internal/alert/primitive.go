package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Predicate classifies a data snapshot as StatusGood or StatusAlarm. A
// returned error marks the alert Invalid.
type Predicate func(data Data) (Status, error)

// Primitive is a leaf alert: a Definition plus a Predicate.
type Primitive struct {
	base
	predicate Predicate
	lastFired time.Time
}

// NewPrimitive builds a leaf from def and pred.
func NewPrimitive(def Definition, pred Predicate, opts ...Option) (*Primitive, error) {
	if pred == nil {
		return nil, fmt.Errorf("alert %s: nil predicate", def.Name)
	}
	b, err := newBase(def, opts)
	if err != nil {
		return nil, err
	}
	return &Primitive{base: b, predicate: pred}, nil
}

// Check implements Alert.
func (p *Primitive) Check(data Data) bool {
	if !p.def.Enabled {
		p.status = StatusDisabled
		return true
	}

	snap := p.takeSnapshot(data)
	st, err := p.evaluate(snap)
	if err != nil {
		slog.Debug("alert: condition evaluation failed", "alert", p.def.Name, "err", err)
		p.status = StatusInvalid
		return true
	}
	if st != StatusAlarm {
		p.status = st
		return true
	}

	now := p.now()
	if !p.lastFired.IsZero() && now.Sub(p.lastFired) < p.def.Period {
		p.status = StatusSnoozed
		return true
	}
	p.lastFired = now
	p.status = StatusAlarm
	return false
}

// evaluate runs the predicate, converting a panic into an error.
func (p *Primitive) evaluate(snap Data) (st Status, err error) {
	defer func() {
		if r := recover(); r != nil {
			st, err = StatusInvalid, fmt.Errorf("predicate panic: %v", r)
		}
	}()
	st, err = p.predicate(snap)
	if err != nil {
		return StatusInvalid, err
	}
	if st != StatusGood && st != StatusAlarm {
		return StatusInvalid, errors.New("predicate returned " + st.String())
	}
	return st, nil
}

func (p *Primitive) Message() string   { return p.ownMessage() }
func (p *Primitive) Details() string   { return p.ownDetails() }
func (p *Primitive) Level() Level      { return p.def.Level }
func (p *Primitive) Actions() []Action { return append([]Action(nil), p.def.Actions...) }

// Fire re-stamps the snooze timer and runs every action.
func (p *Primitive) Fire(ctx context.Context) error {
	p.lastFired = p.now()
	return fireActions(ctx, p, p.Actions())
}

// Snooze restarts the snooze timer; an Alarm becomes Snoozed.
func (p *Primitive) Snooze() {
	p.lastFired = p.now()
	if p.status == StatusAlarm {
		p.status = StatusSnoozed
	}
}

// Reset returns the alert to Ready and drops the snapshot. The snooze timer
// is kept.
func (p *Primitive) Reset() {
	p.status = StatusReady
	p.snapshot = nil
}

// LastFired returns the last fire time; the zero time means never.
func (p *Primitive) LastFired() time.Time {
	return p.lastFired
}

// Snapshot returns the data captured by the last Check.
func (p *Primitive) Snapshot() Data {
	return p.snapshot
}
