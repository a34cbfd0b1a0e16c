package monitor

import (
	"sort"
	"time"

	"github.com/cms-tsg-fog/RateMon-sub001/shiftmon/internal/alert"
)

// TriggerStatus is the API view of one debounce record.
type TriggerStatus struct {
	Trigger     string  `json:"trigger"`
	Category    string  `json:"category"`
	Count       int     `json:"count"`
	Observed    float64 `json:"observed"`
	Expected    float64 `json:"expected"`
	Deviation   float64 `json:"deviation"`
	PercentDiff float64 `json:"percent_diff"`
	Prescale    float64 `json:"prescale"`
	HasModel    bool    `json:"has_model"`
	Batched     bool    `json:"batched"`
}

// AlertStatus is the API view of one alert tree node.
type AlertStatus struct {
	Name   string `json:"name"`
	Depth  int    `json:"depth"`
	Status string `json:"status"`
	Level  string `json:"level"`
	Active bool   `json:"active"`
}

// Status is a point-in-time copy of the session, published after every
// cycle.
type Status struct {
	Run             int64           `json:"run"`
	Mode            string          `json:"mode"`
	LastCycle       time.Time       `json:"last_cycle"`
	LastFlush       time.Time       `json:"last_flush,omitempty"`
	LastError       string          `json:"last_error,omitempty"`
	Pileup          float64         `json:"pileup"`
	PileupReady     bool            `json:"pileup_ready"`
	Roster          int             `json:"roster"`
	Modelled        int             `json:"modelled"`
	ThresholdsStale bool            `json:"thresholds_stale"`
	Batch           []string        `json:"batch"`
	Triggers        []TriggerStatus `json:"triggers"`
	Alerts          []AlertStatus   `json:"alerts"`
}

// Status returns the last published snapshot.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// publish rebuilds the snapshot from session-owned state. The slices are
// fresh on every call and never mutated after the swap.
func (s *Session) publish(now time.Time, fetchErr error) {
	st := Status{
		Run:             s.run,
		Mode:            s.mode,
		LastCycle:       now,
		LastFlush:       s.lastFlush,
		Pileup:          s.pileup,
		PileupReady:     s.pileupReady,
		Roster:          len(s.roster),
		ThresholdsStale: s.thresholds.Stale(),
		Batch:           []string{},
		Triggers:        []TriggerStatus{},
		Alerts:          []AlertStatus{},
	}
	if fetchErr != nil {
		st.LastError = fetchErr.Error()
	}
	for _, b := range s.roster {
		if b.hasModel {
			st.Modelled++
		}
	}
	for name := range s.batch {
		st.Batch = append(st.Batch, name)
	}
	sort.Strings(st.Batch)

	for name, rec := range s.records {
		_, batched := s.batch[name]
		st.Triggers = append(st.Triggers, TriggerStatus{
			Trigger:     name,
			Category:    string(s.roster[name].trigger.Category),
			Count:       rec.Count,
			Observed:    rec.Observed,
			Expected:    rec.Expected,
			Deviation:   rec.Deviation,
			PercentDiff: rec.PercentDiff,
			Prescale:    rec.Prescale,
			HasModel:    rec.HasModel,
			Batched:     batched,
		})
	}
	sort.Slice(st.Triggers, func(i, j int) bool { return st.Triggers[i].Trigger < st.Triggers[j].Trigger })

	if s.tree != nil {
		alert.Walk(s.tree, func(a alert.Alert, depth int) {
			st.Alerts = append(st.Alerts, AlertStatus{
				Name:   a.Name(),
				Depth:  depth,
				Status: a.Status().String(),
				Level:  a.Level().String(),
				Active: a.Active(),
			})
		})
	}
	s.metrics.StaleOverride.Set(boolGauge(st.ThresholdsStale))

	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
