package alert

import (
	"bytes"
	"fmt"
	"text/template"
	"time"
)

// Definition is the immutable configuration of one alert node.
type Definition struct {
	Name    string
	Enabled bool
	Period  time.Duration
	Level   Level

	// Message and Details are text/template sources rendered against a
	// View of the alert.
	Message string
	Details string

	Actions []Action
}

// View is the value templates are executed against.
type View struct {
	Name   string
	Level  Level
	Status Status
	Data   Data
}

// Option customises a node at construction.
type Option func(*base)

// WithClock replaces time.Now for the node's snooze timer.
func WithClock(now func() time.Time) Option {
	return func(b *base) { b.now = now }
}

// base carries the state shared by leaves and combinators.
type base struct {
	def      Definition
	now      func() time.Time
	status   Status
	snapshot Data

	msgTmpl *template.Template
	detTmpl *template.Template
}

func newBase(def Definition, opts []Option) (base, error) {
	def.Actions = append([]Action(nil), def.Actions...)
	b := base{def: def, now: time.Now, status: StatusReady}

	var err error
	if b.msgTmpl, err = parseTemplate(def.Name+".message", def.Message); err != nil {
		return base{}, err
	}
	if b.detTmpl, err = parseTemplate(def.Name+".details", def.Details); err != nil {
		return base{}, err
	}
	for _, o := range opts {
		o(&b)
	}
	return b, nil
}

func parseTemplate(name, src string) (*template.Template, error) {
	if src == "" {
		return nil, nil
	}
	t, err := template.New(name).Option("missingkey=zero").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("alert %s: parse template: %w", name, err)
	}
	return t, nil
}

func (b *base) Name() string    { return b.def.Name }
func (b *base) Status() Status  { return b.status }
func (b *base) Active() bool    { return b.status == StatusSnoozed || b.status == StatusAlarm }
func (b *base) Triggered() bool { return b.status == StatusAlarm }

// takeSnapshot stores a clone of data; nil stays nil.
func (b *base) takeSnapshot(data Data) Data {
	if data == nil {
		b.snapshot = nil
		return nil
	}
	b.snapshot = data.Clone()
	return b.snapshot
}

// render executes t against the current snapshot. A template failure falls
// back to the raw source so a notification is never lost to a typo.
func (b *base) render(t *template.Template, src, fallback string) string {
	if t == nil {
		return fallback
	}
	var buf bytes.Buffer
	v := View{Name: b.def.Name, Level: b.def.Level, Status: b.status, Data: b.snapshot}
	if err := t.Execute(&buf, v); err != nil {
		return src
	}
	return buf.String()
}

func (b *base) ownMessage() string {
	return b.render(b.msgTmpl, b.def.Message, b.def.Name)
}

func (b *base) ownDetails() string {
	return b.render(b.detTmpl, b.def.Details, "")
}
