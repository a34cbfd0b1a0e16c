package curvefit

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	"github.com/cms-tsg-fog/RateMon-sub001/pkg/types"
)

// finish sanitises params and derives the quality figures of a fit.
func finish(trigger, group string, mt types.ModelType, params [4]float64, free []int, xs, ys []float64) types.FitModel {
	m := types.FitModel{
		Trigger: trigger,
		Group:   group,
		Type:    mt,
		Points:  len(xs),
	}
	for i, v := range params {
		if !finite(v) {
			m.Warnings = append(m.Warnings, fmt.Sprintf("param %d non-finite, replaced with 0", i))
			v = 0
		}
		m.Params[i] = v
	}

	n := float64(len(xs))
	ssr := sumSquares(m, xs, ys)
	m.MSE = math.Sqrt(ssr / n)
	if !finite(m.MSE) {
		s := types.Sentinel(trigger, group)
		s.Warnings = append(m.Warnings, fmt.Sprintf("%s: residual not finite", mt))
		return s
	}
	m.ChiSquare = chiSquare(m, xs, ys)

	dof := len(xs) - len(free)
	if dof > 0 {
		errs, ok := paramErrors(m, free, xs, ssr/float64(dof))
		if !ok {
			m.Warnings = append(m.Warnings, "covariance unavailable")
		}
		for i, v := range errs {
			if !finite(v) {
				m.Warnings = append(m.Warnings, fmt.Sprintf("error %d non-finite, replaced with 0", i))
				v = 0
			}
			m.Errors[i] = v
		}
	}
	return m
}

// chiSquare is the Pearson statistic sum(r^2 / yhat) over points with a
// positive prediction.
func chiSquare(m types.FitModel, xs, ys []float64) float64 {
	var chi float64
	for i, x := range xs {
		pred := m.Eval(x)
		if pred <= 0 {
			continue
		}
		r := ys[i] - pred
		chi += r * r / pred
	}
	if !finite(chi) {
		return 0
	}
	return chi
}

// paramErrors returns sqrt(diag(pinv(J^T J)) * s2) for the free parameters,
// with J the numerical Jacobian of the model predictions. The SVD
// pseudo-inverse keeps over-parameterised forms (exp: b and c are
// degenerate) from failing outright; directions with vanishing singular
// values get zero error.
func paramErrors(m types.FitModel, free []int, xs []float64, s2 float64) ([4]float64, bool) {
	var out [4]float64
	if len(free) == 0 {
		return out, true
	}

	predict := func(y, p []float64) {
		mm := m
		for j, idx := range free {
			mm.Params[idx] = p[j]
		}
		for i, x := range xs {
			y[i] = mm.Eval(x)
		}
	}
	x0 := make([]float64, len(free))
	for j, idx := range free {
		x0[j] = m.Params[idx]
	}
	jac := mat.NewDense(len(xs), len(free), nil)
	fd.Jacobian(jac, predict, x0, nil)

	var svd mat.SVD
	if !svd.Factorize(jac, mat.SVDThin) {
		return out, false
	}
	sv := svd.Values(nil)
	if len(sv) == 0 || sv[0] == 0 {
		return out, false
	}
	var v mat.Dense
	svd.VTo(&v)

	tol := sv[0] * 1e-12 * float64(max(len(xs), len(free)))
	for j, idx := range free {
		var c float64
		for k, s := range sv {
			if s <= tol {
				continue
			}
			vjk := v.At(j, k)
			c += vjk * vjk / (s * s)
		}
		out[idx] = math.Sqrt(c * s2)
	}
	return out, true
}
