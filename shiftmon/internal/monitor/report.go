package monitor

import (
	"errors"
	"math"
	"time"

	"github.com/cms-tsg-fog/RateMon-sub001/shiftmon/internal/alert"
)

// Entry describes one escalated trigger in a Report.
type Entry struct {
	Trigger     string
	Category    string
	Count       int
	Observed    float64
	Expected    float64
	Deviation   float64
	PercentDiff float64
	Prescale    float64
	HasModel    bool
}

// Report is the alert.Data handed to the alert tree on flush.
type Report struct {
	Run         int64
	Mode        string
	Time        time.Time
	Pileup      float64
	PileupReady bool

	// ThresholdsStale is set while the override document could not be
	// refreshed.
	ThresholdsStale bool

	// Entries are the batched triggers, sorted by name.
	Entries []Entry

	// Bad is the number of triggers currently classified bad.
	Bad int
}

// Clone implements alert.Data.
func (r *Report) Clone() alert.Data {
	c := *r
	c.Entries = append([]Entry(nil), r.Entries...)
	return &c
}

var errNotReport = errors.New("monitor: data is not a report")

func asReport(d alert.Data) (*Report, error) {
	r, ok := d.(*Report)
	if !ok || r == nil {
		return nil, errNotReport
	}
	return r, nil
}

// Measures and flags exposed to alert nodes.
const (
	MeasureEscalatedCount    = "escalated_count"
	MeasureMaxAbsDeviation   = "max_abs_deviation"
	MeasureMaxAbsPercentDiff = "max_abs_percent_diff"
	FlagThresholdsFresh      = "thresholds_fresh"
	FlagPileupReady          = "pileup_ready"
)

// Registry returns the measures and flags a Report supports.
func Registry() alert.Registry {
	return alert.Registry{
		Measures: map[string]alert.Measure{
			MeasureEscalatedCount: func(d alert.Data) (float64, error) {
				r, err := asReport(d)
				if err != nil {
					return 0, err
				}
				return float64(len(r.Entries)), nil
			},
			MeasureMaxAbsDeviation: maxAbs(func(e Entry) float64 { return e.Deviation }),
			MeasureMaxAbsPercentDiff: maxAbs(func(e Entry) float64 {
				return e.PercentDiff
			}),
		},
		Flags: map[string]alert.Flag{
			FlagThresholdsFresh: func(d alert.Data) (bool, error) {
				r, err := asReport(d)
				if err != nil {
					return false, err
				}
				return !r.ThresholdsStale, nil
			},
			FlagPileupReady: func(d alert.Data) (bool, error) {
				r, err := asReport(d)
				if err != nil {
					return false, err
				}
				return r.PileupReady, nil
			},
		},
	}
}

// maxAbs returns a measure of the largest |f(entry)| over modelled entries.
func maxAbs(f func(Entry) float64) alert.Measure {
	return func(d alert.Data) (float64, error) {
		r, err := asReport(d)
		if err != nil {
			return 0, err
		}
		var m float64
		for _, e := range r.Entries {
			if !e.HasModel {
				continue
			}
			if v := math.Abs(f(e)); v > m {
				m = v
			}
		}
		return m, nil
	}
}

// RunSummary describes a run that just ended.
type RunSummary struct {
	Run     int64
	Mode    string
	Started time.Time
	Ended   time.Time
	Cycles  int
	Flushes int

	// Escalated lists every trigger batched during the run, sorted.
	Escalated []string

	// WorstDeviation is the largest |deviation| seen per escalated trigger.
	WorstDeviation map[string]float64
}

// Clone implements alert.Data.
func (s *RunSummary) Clone() alert.Data {
	c := *s
	c.Escalated = append([]string(nil), s.Escalated...)
	c.WorstDeviation = make(map[string]float64, len(s.WorstDeviation))
	for k, v := range s.WorstDeviation {
		c.WorstDeviation[k] = v
	}
	return &c
}
