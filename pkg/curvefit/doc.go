// Package curvefit fits candidate rate models to historical samples of one
// trigger.
//
// Engine.Fit runs a fixed pipeline per trigger:
//
//  1. drop samples with y == 0 or flagged invalid
//  2. optionally drop points further than OutlierSigma standard deviations
//     from the pooled mean (computed once, not iteratively)
//  3. fit every configured model type by least squares; polynomial forms use
//     a QR solve (gonum/mat), exp and sinh use Nelder-Mead (gonum/optimize)
//  4. in robust mode, drop the worst TrimFraction of residuals and refit once
//  5. derive coefficient errors from the Jacobian pseudo-inverse, RMS
//     residual (stored as MSE) and Pearson chi-square
//  6. select models according to Selection (all | best | weighted)
//
// Degenerate input never produces an error: fewer than MinPoints usable
// samples yields types.Sentinel, and non-finite coefficients are zeroed and
// recorded in FitModel.Warnings.
package curvefit
