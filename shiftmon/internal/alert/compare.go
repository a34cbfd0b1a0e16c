package alert

import "fmt"

// validOp reports whether op is a supported comparison operator.
func validOp(op string) bool {
	switch op {
	case ">", ">=", "<", "<=", "==":
		return true
	default:
		return false
	}
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	default:
		return false
	}
}

// Measure extracts a numeric value from a snapshot.
type Measure func(Data) (float64, error)

// Flag extracts a boolean condition from a snapshot.
type Flag func(Data) (bool, error)

// NewRateAlert returns a leaf that alarms when measure(data) op threshold
// holds. An empty op means ">". A measure error marks the alert Invalid.
func NewRateAlert(def Definition, measure Measure, op string, threshold float64, opts ...Option) (*Primitive, error) {
	if op == "" {
		op = ">"
	}
	if !validOp(op) {
		return nil, fmt.Errorf("alert %s: unknown operator %q", def.Name, op)
	}
	if measure == nil {
		return nil, fmt.Errorf("alert %s: nil measure", def.Name)
	}
	pred := func(data Data) (Status, error) {
		v, err := measure(data)
		if err != nil {
			return StatusInvalid, err
		}
		if compareFloat(v, op, threshold) {
			return StatusAlarm, nil
		}
		return StatusGood, nil
	}
	return NewPrimitive(def, pred, opts...)
}

// NewFlagAlert returns a leaf that alarms when flag(data) is false.
func NewFlagAlert(def Definition, flag Flag, opts ...Option) (*Primitive, error) {
	if flag == nil {
		return nil, fmt.Errorf("alert %s: nil flag", def.Name)
	}
	pred := func(data Data) (Status, error) {
		ok, err := flag(data)
		if err != nil {
			return StatusInvalid, err
		}
		if ok {
			return StatusGood, nil
		}
		return StatusAlarm, nil
	}
	return NewPrimitive(def, pred, opts...)
}
