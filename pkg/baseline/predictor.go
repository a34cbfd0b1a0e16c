// Package baseline evaluates fitted rate models at live pileup values.
//
// A Predictor binds a fit store to the current run's normalization factor
// (colliding bunch count). Expected rates are never negative; the uncertainty
// band is KSigma * MSE * bunches.
package baseline

import (
	"math"

	"github.com/cms-tsg-fog/RateMon-sub001/pkg/fitstore"
	"github.com/cms-tsg-fog/RateMon-sub001/pkg/types"
)

// DefaultKSigma is the band width in units of the fit's residual RMS.
const DefaultKSigma = 3.0

// Config selects how models are resolved and how wide the band is.
type Config struct {
	// KSigma scales the band. Zero means DefaultKSigma.
	KSigma float64

	// ModelType pins resolution to one model type. Empty picks the
	// lowest-MSE model stored for the trigger.
	ModelType types.ModelType
}

// Prediction is the expected rate and its uncertainty band at one input.
type Prediction struct {
	Expected float64
	Band     float64
}

// Predictor evaluates fit models for the current run.
//
// Not safe for concurrent use; the monitor session owns it.
type Predictor struct {
	store   *fitstore.Store
	cfg     Config
	bunches float64
}

// New returns a Predictor over store with a normalization of 1.
func New(store *fitstore.Store, cfg Config) *Predictor {
	if cfg.KSigma <= 0 {
		cfg.KSigma = DefaultKSigma
	}
	if store == nil {
		store = fitstore.New()
	}
	return &Predictor{store: store, cfg: cfg, bunches: 1}
}

// SetNormalization sets the per-run colliding bunch count. Non-positive or
// non-finite values reset it to 1.
func (p *Predictor) SetNormalization(bunches float64) {
	if bunches <= 0 || math.IsNaN(bunches) || math.IsInf(bunches, 0) {
		bunches = 1
	}
	p.bunches = bunches
}

// Normalization returns the current colliding bunch count.
func (p *Predictor) Normalization() float64 {
	return p.bunches
}

// Resolve returns the model for t from the namespace of its category. L1
// and HLT triggers never resolve to each other's models.
func (p *Predictor) Resolve(t types.Trigger) (types.FitModel, bool) {
	group := t.Category.Group()
	if p.cfg.ModelType != types.ModelNone {
		m, err := p.store.Lookup(t.Name, group, p.cfg.ModelType)
		if err != nil || m.IsSentinel() {
			return types.FitModel{}, false
		}
		return m, true
	}
	return p.store.Best(t.Name, group)
}

// Predict evaluates m at x scaled by the current normalization.
func (p *Predictor) Predict(trigger string, m types.FitModel, x float64) Prediction {
	expected := m.Eval(x) * p.bunches
	if math.IsNaN(expected) || math.IsInf(expected, 0) || expected < 0 {
		expected = 0
	}
	band := p.cfg.KSigma * m.MSE * p.bunches
	if math.IsNaN(band) || math.IsInf(band, 0) || band < 0 {
		band = 0
	}
	return Prediction{Expected: expected, Band: band}
}
