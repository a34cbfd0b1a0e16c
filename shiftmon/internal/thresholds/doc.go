// Package thresholds holds the optional per-trigger threshold overrides.
//
// The document is YAML:
//
//	triggers:
//	  HLT_IsoMu24_v13: {deviation: 4, percent: 40}
//	ceilings:
//	  L1: 40000
//	  HLT: 800
//
// Store keeps the last good document. A failed read or parse wraps
// ErrInvalid, leaves the previous values in effect and sets Stale until the
// next good refresh. All getters are safe on a nil *Store and return the
// caller's default.
package thresholds
