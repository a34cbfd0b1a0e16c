package curvefit

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/cms-tsg-fog/RateMon-sub001/pkg/types"
)

// Selection controls which fitted models Fit reports as selected.
type Selection string

const (
	SelectAll      Selection = "all"
	SelectBest     Selection = "best"
	SelectWeighted Selection = "weighted"
)

// Defaults for Options.
const (
	DefaultMinPoints    = 10
	DefaultOutlierSigma = 4.0
	DefaultTrimFraction = 0.10
)

// DefaultBias is the per-type penalty used by SelectWeighted. A model's score
// is MSE + bias, in the units of the fitted Y, so a more complex form has to
// lower the residual RMS by more than its extra bias to be chosen. The
// values are tuning constants.
var DefaultBias = map[types.ModelType]float64{
	types.ModelLinear: 0,
	types.ModelQuad:   0.01,
	types.ModelCube:   0.02,
	types.ModelExp:    0.03,
	types.ModelSinh:   0.02,
}

// ErrInvalidOptions is returned by New for unusable options.
var ErrInvalidOptions = errors.New("curvefit: invalid options")

// Options configures an Engine.
type Options struct {
	// Models lists the model types to fit. Empty means all of types.ModelTypes.
	Models []types.ModelType

	// MinPoints is the minimum number of usable samples; fewer yields a sentinel.
	MinPoints int

	// OutlierSigma drops points with |y - mean| > OutlierSigma*stddev.
	// Zero disables the cut.
	OutlierSigma float64

	// Robust enables one trim-and-refit pass.
	Robust bool

	// TrimFraction is the share of worst-residual points dropped in robust mode.
	TrimFraction float64

	// ForceOrigin pins the polynomial models through (0, 0).
	ForceOrigin bool

	Selection Selection

	// Bias overrides DefaultBias per model type for SelectWeighted.
	Bias map[types.ModelType]float64
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Models:       append([]types.ModelType(nil), types.ModelTypes...),
		MinPoints:    DefaultMinPoints,
		OutlierSigma: DefaultOutlierSigma,
		Robust:       true,
		TrimFraction: DefaultTrimFraction,
		Selection:    SelectWeighted,
	}
}

// Engine fits rate models. It holds only configuration and is safe to reuse
// across triggers.
type Engine struct {
	opts Options
	bias map[types.ModelType]float64
}

// New validates opts and returns an Engine.
func New(opts Options) (*Engine, error) {
	if len(opts.Models) == 0 {
		opts.Models = append([]types.ModelType(nil), types.ModelTypes...)
	}
	for _, mt := range opts.Models {
		if _, err := types.ParseModelType(string(mt)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
		}
	}
	if opts.MinPoints <= 0 {
		opts.MinPoints = DefaultMinPoints
	}
	if opts.OutlierSigma < 0 {
		return nil, fmt.Errorf("%w: outlier sigma must be >= 0", ErrInvalidOptions)
	}
	if opts.TrimFraction < 0 || opts.TrimFraction >= 0.5 {
		return nil, fmt.Errorf("%w: trim fraction must be in [0, 0.5)", ErrInvalidOptions)
	}
	switch opts.Selection {
	case "":
		opts.Selection = SelectWeighted
	case SelectAll, SelectBest, SelectWeighted:
	default:
		return nil, fmt.Errorf("%w: unknown selection %q", ErrInvalidOptions, opts.Selection)
	}

	bias := make(map[types.ModelType]float64, len(DefaultBias))
	for k, v := range DefaultBias {
		bias[k] = v
	}
	for k, v := range opts.Bias {
		bias[k] = v
	}
	return &Engine{opts: opts, bias: bias}, nil
}

// Options returns the effective options.
func (e *Engine) Options() Options {
	return e.opts
}

// Result is the outcome of fitting one trigger.
type Result struct {
	Trigger string
	Group   string

	// Points is the number of samples left after preprocessing.
	Points int

	// Dropped counts samples removed by the zero/invalid filter and the
	// outlier cut.
	Dropped int

	// Models holds one entry per configured model type. Infeasible fits are
	// sentinels.
	Models map[types.ModelType]types.FitModel

	// Selected holds the models chosen by the selection policy, in
	// types.ModelTypes order for SelectAll. It always has at least one entry;
	// when nothing could be fitted that entry is a sentinel.
	Selected []types.FitModel
}

// Fit fits every configured model type to samples.
func (e *Engine) Fit(trigger, group string, samples []types.Sample) Result {
	xs, ys := e.preprocess(samples)
	res := Result{
		Trigger: trigger,
		Group:   group,
		Points:  len(xs),
		Dropped: len(samples) - len(xs),
		Models:  make(map[types.ModelType]types.FitModel, len(e.opts.Models)),
	}

	for _, mt := range e.opts.Models {
		if len(xs) < e.opts.MinPoints || len(xs) <= mt.NumParams() {
			res.Models[mt] = types.Sentinel(trigger, group)
			continue
		}
		res.Models[mt] = e.fitOne(trigger, group, mt, xs, ys)
	}
	res.Selected = e.selectModels(trigger, group, res.Models)
	return res
}

// preprocess applies the zero/invalid filter and the single-pass outlier cut.
func (e *Engine) preprocess(samples []types.Sample) (xs, ys []float64) {
	xs = make([]float64, 0, len(samples))
	ys = make([]float64, 0, len(samples))
	for _, s := range samples {
		if !s.Valid || s.Y == 0 || !finite(s.X) || !finite(s.Y) {
			continue
		}
		xs = append(xs, s.X)
		ys = append(ys, s.Y)
	}
	if e.opts.OutlierSigma <= 0 || len(ys) < 2 {
		return xs, ys
	}

	mean, std := stat.MeanStdDev(ys, nil)
	if std == 0 || math.IsNaN(std) {
		return xs, ys
	}
	limit := e.opts.OutlierSigma * std
	keptX, keptY := xs[:0], ys[:0]
	for i := range ys {
		if math.Abs(ys[i]-mean) > limit {
			continue
		}
		keptX = append(keptX, xs[i])
		keptY = append(keptY, ys[i])
	}
	return keptX, keptY
}

// fitOne fits a single model type, applying the robust trim when enabled.
func (e *Engine) fitOne(trigger, group string, mt types.ModelType, xs, ys []float64) types.FitModel {
	f := e.solver(mt)

	params, err := f(xs, ys)
	if err != nil {
		m := types.Sentinel(trigger, group)
		m.Warnings = []string{fmt.Sprintf("%s: %v", mt, err)}
		return m
	}

	if e.opts.Robust && e.opts.TrimFraction > 0 {
		if tx, ty, ok := trimWorst(mt, params, xs, ys, e.opts.TrimFraction); ok {
			if refit, err := f(tx, ty); err == nil {
				params = refit
				xs, ys = tx, ty
			}
		}
	}

	return finish(trigger, group, mt, params, e.freeParams(mt), xs, ys)
}

// freeParams lists the parameter indices a solver actually estimates.
func (e *Engine) freeParams(mt types.ModelType) []int {
	start := 0
	if e.opts.ForceOrigin && isPoly(mt) {
		start = 1
	}
	free := make([]int, 0, mt.NumParams())
	for i := start; i < mt.NumParams(); i++ {
		free = append(free, i)
	}
	return free
}

func isPoly(mt types.ModelType) bool {
	return mt == types.ModelLinear || mt == types.ModelQuad || mt == types.ModelCube
}

type solveFunc func(xs, ys []float64) ([4]float64, error)

func (e *Engine) solver(mt types.ModelType) solveFunc {
	switch mt {
	case types.ModelLinear:
		return polySolver(1, e.opts.ForceOrigin)
	case types.ModelQuad:
		return polySolver(2, e.opts.ForceOrigin)
	case types.ModelCube:
		return polySolver(3, e.opts.ForceOrigin)
	case types.ModelExp:
		return fitExp
	case types.ModelSinh:
		return fitSinh
	default:
		return func([]float64, []float64) ([4]float64, error) {
			return [4]float64{}, fmt.Errorf("unsupported model type %q", mt)
		}
	}
}

// trimWorst drops the ceil(frac*n) points with the largest absolute residual.
// It refuses when the remainder would not over-determine the model.
func trimWorst(mt types.ModelType, params [4]float64, xs, ys []float64, frac float64) ([]float64, []float64, bool) {
	n := len(xs)
	k := int(math.Ceil(frac * float64(n)))
	if k == 0 || n-k <= mt.NumParams() {
		return nil, nil, false
	}
	m := types.FitModel{Type: mt, Params: params}
	res := make([]float64, n)
	for i := range xs {
		res[i] = math.Abs(ys[i] - m.Eval(xs[i]))
	}

	// Argsort orders ascending; the worst k sit at the tail.
	order := make([]int, n)
	floats.Argsort(res, order)
	drop := make(map[int]bool, k)
	for _, idx := range order[n-k:] {
		drop[idx] = true
	}
	tx := make([]float64, 0, n-k)
	ty := make([]float64, 0, n-k)
	for i := range xs {
		if drop[i] {
			continue
		}
		tx = append(tx, xs[i])
		ty = append(ty, ys[i])
	}
	return tx, ty, true
}

// selectModels applies the selection policy.
func (e *Engine) selectModels(trigger, group string, models map[types.ModelType]types.FitModel) []types.FitModel {
	var (
		all       []types.FitModel
		best      types.FitModel
		bestScore = math.Inf(1)
	)
	for _, mt := range types.ModelTypes {
		m, ok := models[mt]
		if !ok || m.IsSentinel() {
			continue
		}
		all = append(all, m)

		score := m.MSE
		if e.opts.Selection == SelectWeighted {
			score = m.MSE + e.bias[mt]
		}
		if score < bestScore {
			best, bestScore = m, score
		}
	}
	if len(all) == 0 {
		return []types.FitModel{types.Sentinel(trigger, group)}
	}
	if e.opts.Selection == SelectAll {
		return all
	}
	return []types.FitModel{best}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
