package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cms-tsg-fog/RateMon-sub001/pkg/baseline"
	"github.com/cms-tsg-fog/RateMon-sub001/pkg/fitstore"
	"github.com/cms-tsg-fog/RateMon-sub001/pkg/types"
	"github.com/cms-tsg-fog/RateMon-sub001/shiftmon/internal/alert"
	"github.com/cms-tsg-fog/RateMon-sub001/shiftmon/internal/config"
	"github.com/cms-tsg-fog/RateMon-sub001/shiftmon/internal/metrics"
	"github.com/cms-tsg-fog/RateMon-sub001/shiftmon/internal/source"
	"github.com/cms-tsg-fog/RateMon-sub001/shiftmon/internal/thresholds"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// stubSource returns whatever the test put in m or err.
type stubSource struct {
	m     *source.Measurement
	err   error
	calls int
}

func (s *stubSource) Fetch(context.Context) (*source.Measurement, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.m, nil
}

// meas builds a measurement for run at bucket index b.
func meas(run int64, b int, rates map[string]float64) *source.Measurement {
	m := &source.Measurement{
		Run:         run,
		Mode:        "collisions2024",
		Bunches:     1,
		Pileup:      30,
		PileupReady: true,
		Bucket:      t0.Add(time.Duration(b) * 23 * time.Second),
		Rates:       make(map[string]source.TriggerRate, len(rates)),
	}
	for name, v := range rates {
		m.Rates[name] = source.TriggerRate{
			Trigger:  types.Trigger{Name: name, Category: types.CategoryOf(name)},
			Rate:     v,
			Prescale: 1,
			Bucket:   m.Bucket,
		}
	}
	return m
}

// notes collects notification messages.
type notes struct {
	mu   sync.Mutex
	msgs []string
}

func (n *notes) action(name string) alert.Action {
	return alert.NewAction(name, func(_ context.Context, a alert.Alert) error {
		n.mu.Lock()
		defer n.mu.Unlock()
		n.msgs = append(n.msgs, a.Message())
		return nil
	})
}

func (n *notes) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.msgs)
}

func testConfig() config.MonitorConfig {
	return config.MonitorConfig{
		Mode:                config.ModeSigma,
		PollInterval:        10 * time.Millisecond,
		Cooldown:            5 * time.Minute,
		EscalationThreshold: 3,
		DeviationThreshold:  3,
		PercentThreshold:    50,
		KSigma:              3,
		Ceilings:            map[string]float64{"L1": 50000, "HLT": 1000},
	}
}

type fixture struct {
	src     *stubSource
	sess    *Session
	alerts  *notes
	summary *notes
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, cfg config.MonitorConfig, pred *baseline.Predictor, th *thresholds.Store) *fixture {
	t.Helper()
	f := &fixture{src: &stubSource{}, alerts: &notes{}, summary: &notes{}, metrics: metrics.New()}

	tree, err := alert.Build(config.AlertNode{
		Name:      "rates",
		Type:      "rate",
		Measure:   MeasureEscalatedCount,
		Threshold: 0,
		Message:   "{{len .Data.Entries}} trigger(s) off",
		Actions:   []string{"shifter"},
	}, map[string]alert.Action{"shifter": f.alerts.action("shifter")}, Registry())
	require.NoError(t, err)

	f.sess, err = New(Options{
		Config:         cfg,
		Source:         f.src,
		Predictor:      pred,
		Thresholds:     th,
		Alerts:         tree,
		SummaryActions: []alert.Action{f.summary.action("log")},
		Metrics:        f.metrics,
		Now:            func() time.Time { return t0 },
	})
	require.NoError(t, err)
	return f
}

// step feeds one measurement and runs a cycle at bucket b.
func (f *fixture) step(run int64, b int, rates map[string]float64) {
	f.src.m, f.src.err = meas(run, b, rates), nil
	f.sess.Cycle(context.Background(), t0.Add(time.Duration(b)*23*time.Second))
}

func TestSession_BelowThresholdNeverBatched(t *testing.T) {
	f := newFixture(t, testConfig(), nil, nil)

	f.step(1, 0, map[string]float64{"HLT_Bad_v1": 2000})
	f.step(1, 1, map[string]float64{"HLT_Bad_v1": 2000})
	assert.Empty(t, f.sess.batch)
	assert.Equal(t, 2, f.sess.records["HLT_Bad_v1"].Count)

	f.step(1, 2, map[string]float64{"HLT_Bad_v1": 10})
	assert.Empty(t, f.sess.records, "good observation deletes the record")
	assert.Empty(t, f.sess.batch)
	assert.Zero(t, f.alerts.count())
}

func TestSession_EscalatesExactlyOnce(t *testing.T) {
	f := newFixture(t, testConfig(), nil, nil)
	bad := map[string]float64{"HLT_Bad_v1": 2000, "HLT_Good_v1": 100}

	for b := 0; b < 13; b++ {
		f.step(1, b, bad)
	}

	assert.Equal(t, 13, f.sess.records["HLT_Bad_v1"].Count)
	assert.Equal(t, 1, f.alerts.count())
	assert.Equal(t, "1 trigger(s) off", f.alerts.msgs[0])
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Escalations.WithLabelValues("HLT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Flushes))
	assert.Empty(t, f.sess.batch)
	_, ok := f.sess.records["HLT_Good_v1"]
	assert.False(t, ok)
}

func TestSession_FlushNeedsNewData(t *testing.T) {
	f := newFixture(t, testConfig(), nil, nil)
	bad := map[string]float64{"HLT_Bad_v1": 2000}

	f.step(1, 0, bad)
	f.step(1, 1, bad)

	// Same bucket again: not new data, no classification, no flush.
	f.src.m = meas(1, 1, bad)
	f.sess.Cycle(context.Background(), t0.Add(time.Hour))
	assert.Equal(t, 2, f.sess.records["HLT_Bad_v1"].Count)

	f.step(1, 2, bad)
	assert.Equal(t, 1, f.alerts.count())
}

func TestSession_CooldownDefersFlush(t *testing.T) {
	f := newFixture(t, testConfig(), nil, nil)

	// A escalates at bucket 2 and flushes immediately.
	for b := 0; b < 3; b++ {
		f.step(1, b, map[string]float64{"HLT_A_v1": 2000})
	}
	require.Equal(t, 1, f.alerts.count())

	// B escalates at bucket 5, within the 5 minute cooldown.
	for b := 3; b < 6; b++ {
		f.step(1, b, map[string]float64{"HLT_A_v1": 2000, "HLT_B_v1": 2000})
	}
	assert.Equal(t, 1, f.alerts.count())
	assert.Contains(t, f.sess.batch, "HLT_B_v1")

	// Bucket 16 is 322s after the first flush.
	f.step(1, 16, map[string]float64{"HLT_A_v1": 2000, "HLT_B_v1": 10})
	assert.Equal(t, 2, f.alerts.count())
	assert.Empty(t, f.sess.batch)
	assert.Equal(t, 7, f.sess.records["HLT_A_v1"].Count, "flush leaves debounce records alone")
}

func TestSession_BatchSurvivesRecovery(t *testing.T) {
	cfg := testConfig()
	f := newFixture(t, cfg, nil, nil)

	for b := 0; b < 3; b++ {
		f.step(1, b, map[string]float64{"HLT_A_v1": 2000})
	}
	for b := 3; b < 6; b++ {
		f.step(1, b, map[string]float64{"HLT_A_v1": 2000, "HLT_B_v1": 2000})
	}
	// B recovers before the cooldown ends; it stays batched.
	f.step(1, 6, map[string]float64{"HLT_A_v1": 2000, "HLT_B_v1": 10})
	assert.Contains(t, f.sess.batch, "HLT_B_v1")
	_, ok := f.sess.records["HLT_B_v1"]
	assert.False(t, ok)
}

func TestSession_IgnoredTriggerNeverBad(t *testing.T) {
	cfg := testConfig()
	cfg.Ignore = []string{"HLT_Physics_v7"}
	f := newFixture(t, cfg, nil, nil)

	for b := 0; b < 5; b++ {
		f.step(1, b, map[string]float64{"HLT_Physics_v7": 1e6})
	}
	assert.Empty(t, f.sess.records)
	assert.Zero(t, f.alerts.count())
}

// stepDisabled runs a cycle at bucket b with name's prescale set to 0.
func (f *fixture) stepDisabled(run int64, b int, rates map[string]float64, name string) {
	f.src.m, f.src.err = meas(run, b, rates), nil
	r := f.src.m.Rates[name]
	r.Prescale = 0
	f.src.m.Rates[name] = r
	f.sess.Cycle(context.Background(), f.src.m.Bucket)
}

func TestSession_DisabledPrescaleSkipped(t *testing.T) {
	f := newFixture(t, testConfig(), nil, nil)
	for b := 0; b < 5; b++ {
		f.stepDisabled(1, b, map[string]float64{"HLT_Off_v1": 1e6}, "HLT_Off_v1")
	}
	assert.Empty(t, f.sess.records)
}

func TestSession_DisabledPrescaleBreaksBadRun(t *testing.T) {
	f := newFixture(t, testConfig(), nil, nil)
	bad := map[string]float64{"HLT_Flaky_v1": 2000}

	f.step(1, 0, bad)
	f.step(1, 1, bad)
	require.Equal(t, 2, f.sess.records["HLT_Flaky_v1"].Count)

	f.stepDisabled(1, 2, bad, "HLT_Flaky_v1")
	assert.NotContains(t, f.sess.records, "HLT_Flaky_v1")

	f.step(1, 3, bad)
	assert.Equal(t, 1, f.sess.records["HLT_Flaky_v1"].Count)
	assert.Empty(t, f.sess.batch, "two bad cycles either side of a gap are not three in a row")

	f.step(1, 4, bad)
	f.step(1, 5, bad)
	assert.Equal(t, 3, f.sess.records["HLT_Flaky_v1"].Count)
	assert.Equal(t, 1, f.alerts.count())
}

func TestSession_PanickingTriggerDoesNotBlockOthers(t *testing.T) {
	f := newFixture(t, testConfig(), nil, nil)
	f.sess.classify = func(in Input) Verdict {
		if in.Observed == 666 {
			panic("corrupt binding")
		}
		return Classify(in)
	}

	rates := map[string]float64{"HLT_A_v1": 2000, "HLT_B_v1": 666, "HLT_C_v1": 2000}
	for b := 0; b < 3; b++ {
		f.step(1, b, rates)
	}

	assert.Equal(t, 3, f.sess.records["HLT_A_v1"].Count)
	assert.Equal(t, 3, f.sess.records["HLT_C_v1"].Count)
	assert.NotContains(t, f.sess.records, "HLT_B_v1")
	assert.Equal(t, 1, f.alerts.count(), "the batch holding A and C still flushes")
}

func TestSession_InvalidTreeKeepsBatch(t *testing.T) {
	sent := &notes{}
	tree, err := alert.NewRateAlert(alert.Definition{
		Name:    "broken",
		Enabled: true,
		Actions: []alert.Action{sent.action("shifter")},
	}, func(alert.Data) (float64, error) { return 0, errors.New("measure unavailable") }, ">", 0)
	require.NoError(t, err)

	src := &stubSource{}
	m := metrics.New()
	sess, err := New(Options{
		Config:  testConfig(),
		Source:  src,
		Alerts:  tree,
		Metrics: m,
		Now:     func() time.Time { return t0 },
	})
	require.NoError(t, err)

	for b := 0; b < 4; b++ {
		src.m = meas(1, b, map[string]float64{"HLT_Bad_v1": 2000})
		sess.Cycle(context.Background(), src.m.Bucket)
	}

	assert.Equal(t, alert.StatusInvalid, tree.Status())
	assert.Contains(t, sess.batch, "HLT_Bad_v1")
	assert.True(t, sess.lastFlush.IsZero(), "cooldown is not restarted")
	assert.Zero(t, sent.count())
	assert.Zero(t, testutil.ToFloat64(m.Flushes))
}

func TestSession_PileupGate(t *testing.T) {
	cfg := testConfig()
	cfg.MinPileup = 40
	f := newFixture(t, cfg, nil, nil)

	for b := 0; b < 5; b++ {
		f.step(1, b, map[string]float64{"HLT_Bad_v1": 2000})
	}
	assert.Empty(t, f.sess.records)
}

func TestSession_FetchFailureDegrades(t *testing.T) {
	f := newFixture(t, testConfig(), nil, nil)
	f.step(1, 0, map[string]float64{"HLT_Bad_v1": 2000})

	f.src.err = errors.New("connection refused")
	f.sess.Cycle(context.Background(), t0.Add(time.Minute))

	st := f.sess.Status()
	assert.Equal(t, "connection refused", st.LastError)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.FetchErrors))
	assert.Equal(t, 1, f.sess.records["HLT_Bad_v1"].Count, "failed cycle changes nothing")

	f.step(1, 1, map[string]float64{"HLT_Bad_v1": 2000})
	assert.Equal(t, 2, f.sess.records["HLT_Bad_v1"].Count)
	assert.Empty(t, f.sess.Status().LastError)
}

func TestSession_RunChangeRebuildsAndSummarises(t *testing.T) {
	f := newFixture(t, testConfig(), nil, nil)

	for b := 0; b < 4; b++ {
		f.step(100, b, map[string]float64{"HLT_Bad_v1": 2000})
	}
	require.Equal(t, 4, f.sess.records["HLT_Bad_v1"].Count)

	f.step(101, 4, map[string]float64{"HLT_Bad_v1": 2000, "HLT_New_v1": 5})
	assert.Equal(t, 1, f.summary.count())
	assert.Equal(t, "Run 100 ended: 1 trigger(s) escalated over 4 cycle(s)", f.summary.msgs[0])
	assert.Equal(t, int64(101), f.sess.run)
	assert.Len(t, f.sess.roster, 2)
	assert.Equal(t, 1, f.sess.records["HLT_Bad_v1"].Count, "records restart with the run")

	// Same run again: no second summary.
	f.step(101, 5, map[string]float64{"HLT_Bad_v1": 2000})
	assert.Equal(t, 1, f.summary.count())
}

func TestSession_ModelBasedClassification(t *testing.T) {
	store := fitstore.New()
	store.Put(types.FitModel{
		Trigger: "HLT_IsoMu24_v13",
		Group:   types.CategoryHLT.Group(),
		Type:    types.ModelLinear,
		Params:  [4]float64{0, 10},
		MSE:     5,
		Points:  100,
	})
	pred := baseline.New(store, baseline.Config{})
	f := newFixture(t, testConfig(), pred, nil)

	// Expected 300 Hz at pileup 30; sigma 5.
	f.step(1, 0, map[string]float64{"HLT_IsoMu24_v13": 310})
	assert.Empty(t, f.sess.records)

	f.step(1, 1, map[string]float64{"HLT_IsoMu24_v13": 250})
	rec := f.sess.records["HLT_IsoMu24_v13"]
	require.NotNil(t, rec)
	assert.True(t, rec.HasModel)
	assert.InDelta(t, 300, rec.Expected, 1e-9)
	assert.InDelta(t, -10, rec.Deviation, 1e-9)

	st := f.sess.Status()
	assert.Equal(t, 1, st.Modelled)
	require.Len(t, st.Triggers, 1)
	assert.Equal(t, "HLT_IsoMu24_v13", st.Triggers[0].Trigger)
}

func TestSession_ThresholdOverrides(t *testing.T) {
	th := thresholds.NewStore()
	require.NoError(t, th.Apply([]byte("ceilings: {HLT: 5000}")))
	f := newFixture(t, testConfig(), nil, th)

	f.step(1, 0, map[string]float64{"HLT_Bad_v1": 2000})
	assert.Empty(t, f.sess.records)

	require.Error(t, th.Apply([]byte("ceilings: nope")))
	f.step(1, 1, map[string]float64{"HLT_Bad_v1": 2000})
	assert.Empty(t, f.sess.records, "last good document stays in effect")
	assert.True(t, f.sess.Status().ThresholdsStale)
}

func TestSession_Reconfigure(t *testing.T) {
	f := newFixture(t, testConfig(), nil, nil)
	f.step(1, 0, map[string]float64{"HLT_Bad_v1": 2000})

	cfg := testConfig()
	cfg.Ignore = []string{"HLT_Bad_v1"}
	f.sess.Reconfigure(cfg)

	f.step(1, 1, map[string]float64{"HLT_Bad_v1": 2000})
	assert.Empty(t, f.sess.records)
}

func TestSession_StatusListsAlertTree(t *testing.T) {
	f := newFixture(t, testConfig(), nil, nil)
	for b := 0; b < 3; b++ {
		f.step(1, b, map[string]float64{"HLT_Bad_v1": 2000})
	}
	st := f.sess.Status()
	require.Len(t, st.Alerts, 1)
	assert.Equal(t, "rates", st.Alerts[0].Name)
	assert.Equal(t, "alarm", st.Alerts[0].Status)
	assert.Equal(t, int64(1), st.Run)
}

func TestSession_RunStopsOnCancel(t *testing.T) {
	f := newFixture(t, testConfig(), nil, nil)
	f.src.m = meas(1, 0, map[string]float64{"HLT_A_v1": 1})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.sess.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestNew_RequiresSource(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}
