// Package fitstore holds the fit-model artifact produced by the fit batch and
// consumed by the shift monitor.
//
// The artifact is a nested map trigger -> group -> model type -> FitModel,
// serialised as JSON. Save followed by Load reproduces the store exactly.
// Merge(a, b) returns the union of trigger keys; when both stores hold the
// same trigger, their group maps are unioned and b wins on a group-level
// collision.
package fitstore
