package alert

import "fmt"

// composite holds the ordered children shared by Priority and Multiple.
type composite struct {
	base
	children []Alert
}

func newComposite(def Definition, children []Alert, opts []Option) (composite, error) {
	for i, c := range children {
		if c == nil {
			return composite{}, fmt.Errorf("alert %s: child %d is nil", def.Name, i)
		}
	}
	b, err := newBase(def, opts)
	if err != nil {
		return composite{}, err
	}
	return composite{base: b, children: append([]Alert(nil), children...)}, nil
}

// Check re-checks every child so their timers stay live. The combinator's
// status is the most severe child status; no children means Good.
func (c *composite) Check(data Data) bool {
	if !c.def.Enabled {
		c.status = StatusDisabled
		return true
	}
	snap := c.takeSnapshot(data)

	st := StatusGood
	for i, child := range c.children {
		child.Check(snap)
		if i == 0 || child.Status() > st {
			st = child.Status()
		}
	}
	if len(c.children) > 0 && st < StatusGood {
		st = StatusGood
	}
	c.status = st
	return st != StatusAlarm
}

// active returns the children currently Snoozed or in Alarm, in order.
func (c *composite) active() []Alert {
	var out []Alert
	for _, child := range c.children {
		if child.Active() {
			out = append(out, child)
		}
	}
	return out
}

// Children returns the child alerts in declared order.
func (c *composite) Children() []Alert {
	return append([]Alert(nil), c.children...)
}

func (c *composite) Snooze() {
	for _, child := range c.active() {
		child.Snooze()
	}
	if c.status == StatusAlarm {
		c.status = StatusSnoozed
	}
}

func (c *composite) Reset() {
	for _, child := range c.children {
		child.Reset()
	}
	c.status = StatusReady
	c.snapshot = nil
}
