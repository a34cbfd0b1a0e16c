package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/cms-tsg-fog/RateMon-sub001/pkg/baseline"
	"github.com/cms-tsg-fog/RateMon-sub001/pkg/types"
	"github.com/cms-tsg-fog/RateMon-sub001/shiftmon/internal/alert"
	"github.com/cms-tsg-fog/RateMon-sub001/shiftmon/internal/config"
	"github.com/cms-tsg-fog/RateMon-sub001/shiftmon/internal/metrics"
	"github.com/cms-tsg-fog/RateMon-sub001/shiftmon/internal/source"
	"github.com/cms-tsg-fog/RateMon-sub001/shiftmon/internal/thresholds"
)

// Options wires a Session to its collaborators.
type Options struct {
	Config config.MonitorConfig
	Source source.Source

	// Predictor defaults to one over an empty store, so every trigger
	// falls back to the category ceiling.
	Predictor *baseline.Predictor

	// Thresholds may be nil.
	Thresholds *thresholds.Store

	// Alerts is the tree checked on flush. Nil logs the batch only.
	Alerts alert.Alert

	// SummaryActions receive the end-of-run summary.
	SummaryActions []alert.Action

	Metrics *metrics.Metrics
	Now     func() time.Time
}

// binding is a roster entry: the trigger and its resolved model.
type binding struct {
	trigger  types.Trigger
	model    types.FitModel
	hasModel bool
}

// debounceRecord tracks a trigger while it is bad. It is deleted on the
// next good classification.
type debounceRecord struct {
	Count       int
	Bad         bool
	Observed    float64
	Expected    float64
	Deviation   float64
	PercentDiff float64
	Prescale    float64
	HasModel    bool
}

// runStats accumulates the RunSummary of the current run.
type runStats struct {
	started   time.Time
	cycles    int
	flushes   int
	escalated map[string]bool
	worst     map[string]float64
}

func newRunStats(now time.Time) runStats {
	return runStats{
		started:   now,
		escalated: make(map[string]bool),
		worst:     make(map[string]float64),
	}
}

// Session is the monitor loop state. Cycle and Run must be called from a
// single goroutine; Status and Reconfigure are safe from any goroutine.
type Session struct {
	cfg        config.MonitorConfig
	ignore     map[string]bool
	src        source.Source
	predictor  *baseline.Predictor
	thresholds *thresholds.Store
	tree       alert.Alert
	summary    alert.Alert
	metrics    *metrics.Metrics
	now        func() time.Time
	classify   func(Input) Verdict

	started     bool
	run         int64
	mode        string
	pileup      float64
	pileupReady bool
	roster      map[string]binding
	records     map[string]*debounceRecord
	batch       map[string]Entry
	lastFlush   time.Time
	lastBucket  time.Time
	stats       runStats

	mu      sync.Mutex
	pending *config.MonitorConfig
	status  Status
}

const summaryMessage = `Run {{.Data.Run}} ended: {{len .Data.Escalated}} trigger(s) escalated over {{.Data.Cycles}} cycle(s)`

// New builds a Session. Source is required.
func New(opts Options) (*Session, error) {
	if opts.Source == nil {
		return nil, errors.New("monitor: source is required")
	}
	if opts.Config.EscalationThreshold < 1 {
		opts.Config.EscalationThreshold = config.DefaultEscalationThreshold
	}
	if opts.Predictor == nil {
		opts.Predictor = baseline.New(nil, baseline.Config{KSigma: opts.Config.KSigma})
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Session{
		src:        opts.Source,
		predictor:  opts.Predictor,
		thresholds: opts.Thresholds,
		tree:       opts.Alerts,
		metrics:    opts.Metrics,
		now:        opts.Now,
		classify:   Classify,
		roster:     make(map[string]binding),
		records:    make(map[string]*debounceRecord),
		batch:      make(map[string]Entry),
		stats:      newRunStats(opts.Now()),
	}
	s.setConfig(opts.Config)

	if len(opts.SummaryActions) > 0 {
		sum, err := alert.NewPrimitive(alert.Definition{
			Name:    "run_summary",
			Enabled: true,
			Level:   alert.LevelInfo,
			Message: summaryMessage,
			Actions: opts.SummaryActions,
		}, func(alert.Data) (alert.Status, error) { return alert.StatusAlarm, nil })
		if err != nil {
			return nil, fmt.Errorf("monitor: summary alert: %w", err)
		}
		s.summary = sum
	}
	return s, nil
}

func (s *Session) setConfig(cfg config.MonitorConfig) {
	s.cfg = cfg
	s.ignore = make(map[string]bool, len(cfg.Ignore))
	for _, name := range cfg.Ignore {
		s.ignore[name] = true
	}
}

// Reconfigure replaces the monitor settings at the start of the next cycle.
// KSigma and ModelType are bound to the predictor and need a restart.
func (s *Session) Reconfigure(cfg config.MonitorConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = &cfg
}

func (s *Session) applyPending() {
	s.mu.Lock()
	p := s.pending
	s.pending = nil
	s.mu.Unlock()
	if p == nil {
		return
	}
	if p.EscalationThreshold < 1 {
		p.EscalationThreshold = config.DefaultEscalationThreshold
	}
	s.setConfig(*p)
	slog.Info("monitor: configuration applied",
		"mode", p.Mode,
		"escalation_threshold", p.EscalationThreshold,
		"ignore", len(p.Ignore),
	)
}

// Run polls until ctx is cancelled. The next fetch never starts before the
// previous cycle and its sleep are over.
func (s *Session) Run(ctx context.Context) error {
	slog.Info("monitor: starting", "poll_interval", s.cfg.PollInterval, "mode", s.cfg.Mode)
	for {
		s.Cycle(ctx, s.now())

		interval := s.cfg.PollInterval
		if interval <= 0 {
			interval = config.DefaultPollInterval
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Info("monitor: stopped")
			return nil
		case <-timer.C:
		}
	}
}

// Cycle performs one fetch, classify and maybe-flush step. Every trigger is
// classified against the same now.
func (s *Session) Cycle(ctx context.Context, now time.Time) {
	s.applyPending()
	s.metrics.Cycles.Inc()

	m, err := s.src.Fetch(ctx)
	if err != nil {
		slog.Warn("monitor: fetch failed, skipping cycle", "err", err)
		s.metrics.FetchErrors.Inc()
		s.publish(now, err)
		return
	}

	if !s.started || m.Run != s.run || len(s.roster) == 0 {
		s.startRun(ctx, m, now)
	}
	s.stats.cycles++
	s.mode = m.Mode
	s.pileup, s.pileupReady = m.Pileup, m.PileupReady
	s.predictor.SetNormalization(m.Bunches)

	newData := m.Bucket.IsZero() || m.Bucket.After(s.lastBucket)
	if newData {
		if !m.Bucket.IsZero() {
			s.lastBucket = m.Bucket
		}
		s.classifyAll(m)
	} else {
		slog.Debug("monitor: no new data since last poll", "bucket", m.Bucket)
	}

	if s.shouldFlush(newData, now) {
		s.flush(ctx, now)
	}
	s.publish(now, nil)
}

// startRun rebuilds roster, debounce table and model bindings. When the run
// number changed, the summary of the ended run is emitted first.
func (s *Session) startRun(ctx context.Context, m *source.Measurement, now time.Time) {
	runChanged := !s.started || m.Run != s.run
	if s.started && runChanged {
		s.emitSummary(ctx, now)
	}
	if runChanged {
		s.stats = newRunStats(now)
	}

	s.started = true
	s.run = m.Run
	s.roster = make(map[string]binding, len(m.Rates))
	s.records = make(map[string]*debounceRecord)

	modelled := 0
	for name, r := range m.Rates {
		b := binding{trigger: r.Trigger}
		b.model, b.hasModel = s.predictor.Resolve(r.Trigger)
		if b.hasModel {
			modelled++
		}
		s.roster[name] = b
	}
	s.metrics.RunNumber.Set(float64(m.Run))

	slog.Info("monitor: roster rebuilt",
		"run", m.Run,
		"mode", m.Mode,
		"triggers", len(s.roster),
		"modelled", modelled,
	)
}

// classifyAll classifies every roster trigger present in m.
func (s *Session) classifyAll(m *source.Measurement) {
	if !m.PileupReady || m.Pileup < s.cfg.MinPileup {
		slog.Debug("monitor: pileup gate closed, skipping classification",
			"pileup", m.Pileup, "ready", m.PileupReady, "min", s.cfg.MinPileup)
		return
	}

	names := make([]string, 0, len(s.roster))
	for name := range s.roster {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		rate, ok := m.Rates[name]
		if !ok {
			continue
		}
		s.classifySafe(name, s.roster[name], rate, m.Pileup)
	}
	s.metrics.BadTriggers.Set(float64(len(s.records)))
	s.metrics.BatchSize.Set(float64(len(s.batch)))
}

// classifySafe isolates one trigger's evaluation from the others.
func (s *Session) classifySafe(name string, b binding, rate source.TriggerRate, pileup float64) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("monitor: trigger evaluation panicked", "trigger", name, "panic", r)
		}
	}()
	s.classifyOne(name, b, rate, pileup)
}

func (s *Session) classifyOne(name string, b binding, rate source.TriggerRate, pileup float64) {
	if s.ignore[name] {
		delete(s.records, name)
		return
	}
	if rate.Prescale == 0 {
		// A disabled trigger breaks the consecutive-bad run.
		delete(s.records, name)
		return
	}

	cat := b.trigger.Category
	in := Input{
		Observed:       rate.Rate,
		Mode:           s.cfg.Mode,
		DeviationLimit: s.thresholds.Deviation(name, s.cfg.DeviationThreshold),
		PercentLimit:   s.thresholds.Percent(name, s.cfg.PercentThreshold),
		Ceiling:        s.thresholds.Ceiling(cat, s.ceiling(cat)),
	}
	if b.hasModel {
		in.HasModel = true
		in.Prediction = s.predictor.Predict(name, b.model, pileup)
		in.Sigma = b.model.MSE * s.predictor.Normalization()
	}
	v := s.classify(in)

	s.metrics.TriggerRate.WithLabelValues(name).Set(rate.Rate)
	if b.hasModel {
		s.metrics.ExpectedRate.WithLabelValues(name).Set(v.Expected)
	}

	if !v.Bad {
		delete(s.records, name)
		return
	}

	rec, ok := s.records[name]
	if !ok {
		rec = &debounceRecord{}
		s.records[name] = rec
	}
	rec.Count++
	rec.Bad = true
	rec.Observed = rate.Rate
	rec.Expected = v.Expected
	rec.Deviation = v.Deviation
	rec.PercentDiff = v.PercentDiff
	rec.Prescale = rate.Prescale
	rec.HasModel = b.hasModel

	entry := Entry{
		Trigger:     name,
		Category:    string(cat),
		Count:       rec.Count,
		Observed:    rec.Observed,
		Expected:    rec.Expected,
		Deviation:   rec.Deviation,
		PercentDiff: rec.PercentDiff,
		Prescale:    rec.Prescale,
		HasModel:    rec.HasModel,
	}
	if rec.Count == s.cfg.EscalationThreshold {
		s.batch[name] = entry
		s.stats.escalated[name] = true
		s.metrics.Escalations.WithLabelValues(string(cat)).Inc()
		slog.Warn("monitor: trigger escalated",
			"trigger", name,
			"count", rec.Count,
			"observed", rec.Observed,
			"expected", rec.Expected,
			"deviation", rec.Deviation,
		)
	} else if _, batched := s.batch[name]; batched {
		s.batch[name] = entry
	}
	if s.stats.escalated[name] && b.hasModel {
		if d := math.Abs(v.Deviation); d > s.stats.worst[name] && !math.IsInf(d, 0) {
			s.stats.worst[name] = d
		}
	}
}

func (s *Session) ceiling(cat types.Category) float64 {
	if v, ok := s.cfg.Ceilings[string(cat)]; ok {
		return v
	}
	if cat == types.CategoryL1 {
		return config.DefaultL1Ceiling
	}
	return config.DefaultHLTCeiling
}

// shouldFlush holds iff the batch is non-empty, new data arrived and the
// cooldown since the last flush has elapsed.
func (s *Session) shouldFlush(newData bool, now time.Time) bool {
	if len(s.batch) == 0 || !newData {
		return false
	}
	return s.lastFlush.IsZero() || now.Sub(s.lastFlush) >= s.cfg.Cooldown
}

// flush checks the alert tree against the batch and fires on a fresh alarm.
// An Invalid tree keeps the batch for the next attempt. Debounce records
// are not touched.
func (s *Session) flush(ctx context.Context, now time.Time) {
	rep := s.report(now)

	if s.tree != nil {
		fresh := !s.tree.Check(rep)
		if s.tree.Status() == alert.StatusInvalid {
			slog.Error("monitor: alert tree invalid, keeping batch", "alert", s.tree.Name())
			return
		}
		if fresh {
			if err := s.tree.Fire(ctx); err != nil {
				slog.Error("monitor: notification delivery incomplete",
					"alert", s.tree.Name(), "err", err)
				s.metrics.ActionErrors.WithLabelValues(s.tree.Name()).Inc()
			}
		}
		slog.Info("monitor: batch flushed",
			"entries", len(rep.Entries),
			"alert_status", s.tree.Status().String(),
			"fired", fresh,
		)
	} else {
		slog.Warn("monitor: batch flushed without alert tree", "entries", len(rep.Entries))
	}

	s.batch = make(map[string]Entry)
	s.lastFlush = now
	s.stats.flushes++
	s.metrics.Flushes.Inc()
	s.metrics.BatchSize.Set(0)
}

// report builds the alert payload from the batch.
func (s *Session) report(now time.Time) *Report {
	rep := &Report{
		Run:             s.run,
		Mode:            s.mode,
		Time:            now,
		Pileup:          s.pileup,
		PileupReady:     s.pileupReady,
		ThresholdsStale: s.thresholds.Stale(),
		Bad:             len(s.records),
	}
	for _, e := range s.batch {
		rep.Entries = append(rep.Entries, e)
	}
	sort.Slice(rep.Entries, func(i, j int) bool { return rep.Entries[i].Trigger < rep.Entries[j].Trigger })
	return rep
}

// emitSummary logs the ended run and delivers it to the summary actions.
func (s *Session) emitSummary(ctx context.Context, now time.Time) {
	sum := &RunSummary{
		Run:            s.run,
		Mode:           s.mode,
		Started:        s.stats.started,
		Ended:          now,
		Cycles:         s.stats.cycles,
		Flushes:        s.stats.flushes,
		WorstDeviation: make(map[string]float64, len(s.stats.worst)),
	}
	for name := range s.stats.escalated {
		sum.Escalated = append(sum.Escalated, name)
	}
	sort.Strings(sum.Escalated)
	for k, v := range s.stats.worst {
		sum.WorstDeviation[k] = v
	}

	slog.Info("monitor: run ended",
		"run", sum.Run,
		"cycles", sum.Cycles,
		"flushes", sum.Flushes,
		"escalated", sum.Escalated,
	)
	if s.summary == nil {
		return
	}
	if s.summary.Check(sum) {
		return
	}
	if err := s.summary.Fire(ctx); err != nil {
		slog.Error("monitor: run summary delivery incomplete", "run", sum.Run, "err", err)
		s.metrics.ActionErrors.WithLabelValues(s.summary.Name()).Inc()
	}
}
