package alert

import (
	"fmt"

	"github.com/cms-tsg-fog/RateMon-sub001/shiftmon/internal/config"
)

// Registry names the measures and flags alert nodes may refer to.
type Registry struct {
	Measures map[string]Measure
	Flags    map[string]Flag
}

// Build constructs the alert tree rooted at node. Action names resolve
// through actions; measure and flag names through reg.
func Build(node config.AlertNode, actions map[string]Action, reg Registry, opts ...Option) (Alert, error) {
	level, err := ParseLevel(node.Level)
	if err != nil {
		return nil, fmt.Errorf("alert %s: %w", node.Name, err)
	}
	def := Definition{
		Name:    node.Name,
		Enabled: !node.Disabled,
		Period:  node.Period,
		Level:   level,
		Message: node.Message,
		Details: node.Details,
	}
	for _, name := range node.Actions {
		a, ok := actions[name]
		if !ok {
			return nil, fmt.Errorf("alert %s: unknown action %q", node.Name, name)
		}
		def.Actions = append(def.Actions, a)
	}

	switch node.Type {
	case "rate":
		m, ok := reg.Measures[node.Measure]
		if !ok {
			return nil, fmt.Errorf("alert %s: unknown measure %q", node.Name, node.Measure)
		}
		return asAlert(NewRateAlert(def, m, node.Op, node.Threshold, opts...))

	case "flag":
		f, ok := reg.Flags[node.Flag]
		if !ok {
			return nil, fmt.Errorf("alert %s: unknown flag %q", node.Name, node.Flag)
		}
		return asAlert(NewFlagAlert(def, f, opts...))

	case "priority", "multiple":
		children := make([]Alert, 0, len(node.Children))
		for _, c := range node.Children {
			child, err := Build(c, actions, reg, opts...)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		if node.Type == "priority" {
			return asAlert(NewPriority(def, children, opts...))
		}
		return asAlert(NewMultiple(def, children, opts...))

	default:
		return nil, fmt.Errorf("alert %s: unknown type %q", node.Name, node.Type)
	}
}

// asAlert keeps a failed constructor from leaking a typed nil.
func asAlert[T Alert](a T, err error) (Alert, error) {
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Walk calls fn for a and every descendant, depth first, with the depth of
// each node.
func Walk(a Alert, fn func(a Alert, depth int)) {
	walk(a, 0, fn)
}

func walk(a Alert, depth int, fn func(Alert, int)) {
	fn(a, depth)
	if p, ok := a.(interface{ Children() []Alert }); ok {
		for _, c := range p.Children() {
			walk(c, depth+1, fn)
		}
	}
}
