package curvefit

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"github.com/cms-tsg-fog/RateMon-sub001/pkg/types"
)

const (
	maxIterations  = 5000
	maxEvaluations = 20000
)

var errFlatInput = errors.New("input has zero spread")

// fitExp fits y = a + b*exp(c + d*x). The seed passes an exponential with
// one e-fold across the x range through the extreme y values.
func fitExp(xs, ys []float64) ([4]float64, error) {
	xmin, xmax := floats.Min(xs), floats.Max(xs)
	span := xmax - xmin
	if span == 0 {
		return [4]float64{}, errFlatInput
	}
	lin, err := polySolver(1, false)(xs, ys)
	if err != nil {
		return [4]float64{}, err
	}

	d := 1 / span
	b := (floats.Max(ys) - floats.Min(ys)) / (math.Exp(d*xmax) - math.Exp(d*xmin))
	if lin[1] < 0 {
		b = -b
	}
	a := lin[0] + lin[1]*xmin - b*math.Exp(d*xmin)
	return minimize(types.ModelExp, []float64{a, b, 0, d}, xs, ys)
}

// fitSinh fits y = b*sinh(a*x) + c, seeded from the linear fit since
// sinh(a*x) ~ a*x near the origin.
func fitSinh(xs, ys []float64) ([4]float64, error) {
	reach := math.Max(math.Abs(floats.Min(xs)), math.Abs(floats.Max(xs)))
	if reach == 0 {
		return [4]float64{}, errFlatInput
	}
	lin, err := polySolver(1, false)(xs, ys)
	if err != nil {
		return [4]float64{}, err
	}
	a := 1 / reach
	return minimize(types.ModelSinh, []float64{a, lin[1] / a, lin[0]}, xs, ys)
}

// minimize runs Nelder-Mead on the sum of squared residuals. Hitting the
// iteration budget is not a failure; the best point found is used.
func minimize(mt types.ModelType, init []float64, xs, ys []float64) ([4]float64, error) {
	ssr := func(p []float64) float64 {
		var pp [4]float64
		copy(pp[:], p)
		sum := sumSquares(types.FitModel{Type: mt, Params: pp}, xs, ys)
		if !finite(sum) {
			return math.MaxFloat64
		}
		return sum
	}

	settings := &optimize.Settings{
		MajorIterations: maxIterations,
		FuncEvaluations: maxEvaluations,
	}
	res, err := optimize.Minimize(optimize.Problem{Func: ssr}, init, settings, &optimize.NelderMead{})
	if res == nil {
		return [4]float64{}, fmt.Errorf("minimize %s: %w", mt, err)
	}
	if res.F == math.MaxFloat64 {
		return [4]float64{}, fmt.Errorf("minimize %s: no finite solution", mt)
	}
	var p [4]float64
	copy(p[:], res.X)
	return p, nil
}

func sumSquares(m types.FitModel, xs, ys []float64) float64 {
	var sum float64
	for i, x := range xs {
		r := ys[i] - m.Eval(x)
		sum += r * r
	}
	return sum
}
