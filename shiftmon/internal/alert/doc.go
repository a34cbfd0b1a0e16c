// Package alert implements the recursive alert state machine.
//
// Every node satisfies Alert. Leaves (Primitive, built by NewRateAlert and
// NewFlagAlert) evaluate a predicate against a cloned Data snapshot:
//
//	Disabled  definition disabled; Check reports ok
//	Ready     initial state, and after Reset
//	Good      predicate held
//	Invalid   predicate errored or panicked; never fires
//	Snoozed   predicate alarmed within Period of the last fire
//	Alarm     fresh alarm; Check returns false and the caller should Fire
//
// Combinators hold ordered children and re-check all of them on every
// Check. Priority reports the first active child. Multiple merges the active
// children into one notification with de-duplicated details and actions.
//
// Build turns a config.AlertNode tree into Alerts, resolving action names
// and the measures and flags of a Registry.
package alert
