package alert

import "context"

// Priority ranks its children: message, details, level and actions come from
// the first active child in declared order.
type Priority struct {
	composite
}

// NewPriority builds a Priority over children.
func NewPriority(def Definition, children []Alert, opts ...Option) (*Priority, error) {
	c, err := newComposite(def, children, opts)
	if err != nil {
		return nil, err
	}
	return &Priority{composite: c}, nil
}

// leader is the first active child, or nil.
func (p *Priority) leader() Alert {
	for _, child := range p.children {
		if child.Active() {
			return child
		}
	}
	return nil
}

func (p *Priority) Message() string {
	if l := p.leader(); l != nil {
		return l.Message()
	}
	return p.ownMessage()
}

func (p *Priority) Details() string {
	if l := p.leader(); l != nil {
		return l.Details()
	}
	return p.ownDetails()
}

func (p *Priority) Level() Level {
	if l := p.leader(); l != nil {
		return l.Level()
	}
	return p.def.Level
}

func (p *Priority) Actions() []Action {
	if l := p.leader(); l != nil {
		return l.Actions()
	}
	return append([]Action(nil), p.def.Actions...)
}

func (p *Priority) Fire(ctx context.Context) error {
	return fireActions(ctx, p, p.Actions())
}
