package batch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cms-tsg-fog/RateMon-sub001/fitter/internal/history"
	"github.com/cms-tsg-fog/RateMon-sub001/pkg/curvefit"
	"github.com/cms-tsg-fog/RateMon-sub001/pkg/fitstore"
	"github.com/cms-tsg-fog/RateMon-sub001/pkg/types"
)

// Report summarises the fit of one trigger.
type Report struct {
	Trigger  string
	Group    string
	Points   int
	Dropped  int
	Selected []types.FitModel

	// Sentinel is true when no model could be fitted.
	Sentinel bool
	Warnings []string
}

// Summary is the outcome of a whole batch.
type Summary struct {
	Reports   []Report
	Fitted    int
	Sentinels int
	Warnings  int
}

// Options tunes what Run writes.
type Options struct {
	// SkipSentinels leaves infeasible fits out of the store. Set it when the
	// store is merged onto an existing artifact, where a sentinel group
	// would replace a working model.
	SkipSentinels bool
}

// Run fits every series with eng, one trigger at a time, and stores the
// selected models in store. Infeasible fits are stored as sentinels so the
// artifact records that the trigger was attempted, unless opts says
// otherwise. Run stops early only when ctx is cancelled.
func Run(ctx context.Context, eng *curvefit.Engine, series []history.Series, store *fitstore.Store, opts Options) (Summary, error) {
	var sum Summary
	for _, s := range series {
		if err := ctx.Err(); err != nil {
			return sum, fmt.Errorf("batch: cancelled after %d trigger(s): %w", len(sum.Reports), err)
		}
		rep := fitOne(eng, s)
		for _, m := range rep.Selected {
			if m.IsSentinel() && opts.SkipSentinels {
				continue
			}
			store.Put(m)
		}

		sum.Reports = append(sum.Reports, rep)
		sum.Warnings += len(rep.Warnings)
		if rep.Sentinel {
			sum.Sentinels++
		} else {
			sum.Fitted++
		}
	}
	slog.Info("batch: done",
		"triggers", len(sum.Reports),
		"fitted", sum.Fitted,
		"sentinels", sum.Sentinels,
		"warnings", sum.Warnings,
	)
	return sum, nil
}

func fitOne(eng *curvefit.Engine, s history.Series) Report {
	group := s.Trigger.Category.Group()
	res := eng.Fit(s.Trigger.Name, group, s.Samples)

	rep := Report{
		Trigger:  s.Trigger.Name,
		Group:    group,
		Points:   res.Points,
		Dropped:  res.Dropped,
		Selected: res.Selected,
		Sentinel: true,
	}
	for _, m := range res.Selected {
		if !m.IsSentinel() {
			rep.Sentinel = false
		}
		for _, w := range m.Warnings {
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("%s: %s", m.Type, w))
		}
	}

	if rep.Sentinel {
		slog.Warn("batch: no usable fit",
			"trigger", rep.Trigger,
			"points", rep.Points,
			"dropped", rep.Dropped,
		)
	}
	for _, w := range rep.Warnings {
		slog.Warn("batch: fit quality", "trigger", rep.Trigger, "warning", w)
	}
	return rep
}
