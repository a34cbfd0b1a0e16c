package monitor

import (
	"math"

	"github.com/cms-tsg-fog/RateMon-sub001/pkg/baseline"
	"github.com/cms-tsg-fog/RateMon-sub001/shiftmon/internal/config"
)

// Input is everything needed to classify one trigger in one cycle.
type Input struct {
	Observed float64

	// HasModel is false when no fit exists; Ceiling is used instead.
	HasModel   bool
	Prediction baseline.Prediction

	// Sigma is the residual RMS scaled to the current normalization.
	Sigma float64

	Mode           string
	DeviationLimit float64
	PercentLimit   float64
	Ceiling        float64
}

// Verdict is the outcome of Classify.
type Verdict struct {
	Bad         bool
	Expected    float64
	Deviation   float64
	PercentDiff float64
}

// Classify decides whether a trigger is bad. Sigma and percent modes are
// exclusive. Without a model, or with an expected rate of zero in percent
// mode, the static category ceiling applies.
func Classify(in Input) Verdict {
	if !in.HasModel {
		return Verdict{Bad: in.Observed > in.Ceiling}
	}

	exp := in.Prediction.Expected
	v := Verdict{
		Expected:    exp,
		Deviation:   deviation(in.Observed, exp, in.Sigma),
		PercentDiff: percentDiff(in.Observed, exp),
	}

	switch in.Mode {
	case config.ModePercent:
		if exp <= 0 {
			v.Bad = in.Observed > in.Ceiling
			return v
		}
		v.Bad = math.Abs(v.PercentDiff) > in.PercentLimit
	default:
		v.Bad = math.Abs(v.Deviation) > in.DeviationLimit
	}
	return v
}

// deviation is (observed - expected) / sigma. A zero sigma makes any
// mismatch infinitely far.
func deviation(observed, expected, sigma float64) float64 {
	d := observed - expected
	if sigma > 0 {
		return d / sigma
	}
	switch {
	case d > 0:
		return math.Inf(1)
	case d < 0:
		return math.Inf(-1)
	}
	return 0
}

// percentDiff is 100 * (observed - expected) / expected, or 0 when expected
// is not positive.
func percentDiff(observed, expected float64) float64 {
	if expected <= 0 {
		return 0
	}
	return 100 * (observed - expected) / expected
}
