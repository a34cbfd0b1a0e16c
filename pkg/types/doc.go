// Package types defines the shared Go types used by both the shift monitor
// and the fit batch. These are the canonical in-memory representations of
// triggers, historical samples and fitted rate models, independent of any
// storage or wire format.
//
// A FitModel with Type == ModelNone is the sentinel returned whenever a fit
// is infeasible (too few points, empty input). Consumers check IsSentinel
// instead of handling an error.
package types
