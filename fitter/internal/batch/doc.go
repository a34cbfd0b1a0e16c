// Package batch runs the curve-fit engine over historical series and
// collects the selected models into a fit store.
package batch
