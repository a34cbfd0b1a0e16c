package curvefit

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var errTooFewPoints = errors.New("too few points for model")

// polySolver returns a linear least-squares solver for a polynomial of the
// given degree. With origin set the constant term is pinned to zero.
func polySolver(degree int, origin bool) solveFunc {
	return func(xs, ys []float64) ([4]float64, error) {
		start := 0
		if origin {
			start = 1
		}
		cols := degree + 1 - start
		n := len(xs)
		if n <= cols {
			return [4]float64{}, errTooFewPoints
		}

		a := mat.NewDense(n, cols, nil)
		for i, x := range xs {
			for j := 0; j < cols; j++ {
				a.Set(i, j, math.Pow(x, float64(j+start)))
			}
		}
		b := mat.NewVecDense(n, append([]float64(nil), ys...))

		var qr mat.QR
		qr.Factorize(a)
		var beta mat.VecDense
		if err := qr.SolveVecTo(&beta, false, b); err != nil {
			return [4]float64{}, fmt.Errorf("least squares: %w", err)
		}

		var p [4]float64
		for j := 0; j < cols; j++ {
			p[j+start] = beta.AtVec(j)
		}
		return p, nil
	}
}
