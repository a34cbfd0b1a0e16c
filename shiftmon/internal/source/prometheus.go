package source

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	dto "github.com/prometheus/client_model/go"
	"golang.org/x/sync/errgroup"

	"github.com/cms-tsg-fog/RateMon-sub001/pkg/types"
	"github.com/cms-tsg-fog/RateMon-sub001/shiftmon/internal/config"
)

// Exposition metric names.
const (
	metricRate        = "ratemon_trigger_rate"
	metricPrescale    = "ratemon_trigger_prescale"
	metricPileup      = "ratemon_pileup"
	metricPileupReady = "ratemon_pileup_ready"
	metricBunches     = "ratemon_colliding_bunches"
	metricRun         = "ratemon_run_number"
	metricRunMode     = "ratemon_run_mode"
)

// Prometheus reads trigger rates from a Prometheus text exposition. Run,
// pileup and bunch metrics come from LumiEndpoint when set, fetched
// concurrently with the rates.
type Prometheus struct {
	cfg    config.SourceConfig
	client *http.Client
}

// Fetch implements Source. Every failure wraps ErrFetch.
func (p *Prometheus) Fetch(ctx context.Context) (*Measurement, error) {
	var rates, lumi map[string]*dto.MetricFamily

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		mfs, err := fetchMetrics(gctx, p.client, p.cfg.Endpoint)
		if err != nil {
			return fmt.Errorf("%s: %w", p.cfg.Endpoint, err)
		}
		rates = mfs
		return nil
	})
	if p.cfg.LumiEndpoint != "" {
		g.Go(func() error {
			mfs, err := fetchMetrics(gctx, p.client, p.cfg.LumiEndpoint)
			if err != nil {
				return fmt.Errorf("%s: %w", p.cfg.LumiEndpoint, err)
			}
			lumi = mfs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	if lumi == nil {
		lumi = rates
	}

	m, err := decode(rates, lumi)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	return m, nil
}

// decode assembles a Measurement from parsed families.
func decode(rates, lumi map[string]*dto.MetricFamily) (*Measurement, error) {
	run, runAt, ok := scalar(lumi[metricRun])
	if !ok {
		return nil, fmt.Errorf("missing %s", metricRun)
	}

	m := &Measurement{
		Run:    int64(run),
		Rates:  make(map[string]TriggerRate),
		Bucket: runAt,
	}
	track := func(t time.Time) {
		if t.After(m.Bucket) {
			m.Bucket = t
		}
	}

	if v, t, ok := scalar(lumi[metricBunches]); ok {
		m.Bunches = v
		track(t)
	}
	if v, t, ok := scalar(lumi[metricPileup]); ok {
		m.Pileup = v
		track(t)
	}
	if v, _, ok := scalar(lumi[metricPileupReady]); ok {
		m.PileupReady = v > 0
	}
	if mf := lumi[metricRunMode]; mf != nil {
		for _, metric := range mf.GetMetric() {
			if value(metric) > 0 {
				m.Mode = label(metric, "mode")
				break
			}
		}
	}

	prescales := make(map[string]float64)
	if mf := rates[metricPrescale]; mf != nil {
		for _, metric := range mf.GetMetric() {
			prescales[label(metric, "trigger")] = value(metric)
		}
	}

	if mf := rates[metricRate]; mf != nil {
		for _, metric := range mf.GetMetric() {
			name := label(metric, "trigger")
			if name == "" {
				continue
			}
			cat, err := types.ParseCategory(label(metric, "category"))
			if err != nil {
				cat = types.CategoryOf(name)
			}
			v := value(metric)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				slog.Warn("source: non-finite rate dropped", "trigger", name)
				continue
			}
			ps, ok := prescales[name]
			if !ok {
				ps = 1
			}
			at := stamp(metric)
			track(at)
			m.Rates[name] = TriggerRate{
				Trigger:  types.Trigger{Name: name, Category: cat},
				Rate:     v,
				Prescale: ps,
				Bucket:   at,
			}
		}
	}
	return m, nil
}
