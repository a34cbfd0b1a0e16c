package alert

import (
	"context"
	"strings"
)

// Multiple merges its active children into one notification.
type Multiple struct {
	composite
}

// NewMultiple builds a Multiple over children.
func NewMultiple(def Definition, children []Alert, opts ...Option) (*Multiple, error) {
	c, err := newComposite(def, children, opts)
	if err != nil {
		return nil, err
	}
	return &Multiple{composite: c}, nil
}

// Message is the combinator's own header when active children disagree,
// otherwise the single active message.
func (m *Multiple) Message() string {
	msgs := distinct(m.active(), Alert.Message)
	if len(msgs) == 1 {
		return msgs[0]
	}
	return m.ownMessage()
}

// Details is the own header followed by each distinct active child detail.
func (m *Multiple) Details() string {
	parts := distinct(m.active(), Alert.Details)
	if head := m.ownDetails(); head != "" {
		parts = append([]string{head}, parts...)
	}
	return strings.Join(parts, "\n")
}

// Level is the maximum of the own level and every active child's level.
func (m *Multiple) Level() Level {
	lvl := m.def.Level
	for _, child := range m.active() {
		if child.Level() > lvl {
			lvl = child.Level()
		}
	}
	return lvl
}

// Actions is the union of the own actions and the active children's actions,
// de-duplicated by name in first-seen order.
func (m *Multiple) Actions() []Action {
	seen := make(map[string]bool)
	var out []Action
	add := func(acts []Action) {
		for _, a := range acts {
			if seen[a.Name()] {
				continue
			}
			seen[a.Name()] = true
			out = append(out, a)
		}
	}
	add(m.def.Actions)
	for _, child := range m.active() {
		add(child.Actions())
	}
	return out
}

func (m *Multiple) Fire(ctx context.Context) error {
	return fireActions(ctx, m, m.Actions())
}

// distinct collects non-empty values of f over alerts, dropping repeats.
func distinct(alerts []Alert, f func(Alert) string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, a := range alerts {
		s := f(a)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
