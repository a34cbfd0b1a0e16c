// Package monitor runs the debounced classification loop.
//
// A Session owns the trigger roster, the per-trigger debounce records and
// the notification batch. Each Cycle:
//
//  1. fetches a Measurement; a failure is logged and the cycle ends
//  2. rebuilds roster and model bindings when the run number changes,
//     emitting the RunSummary of the ended run first
//  3. on new data, classifies every trigger with Classify (sigma or
//     percent mode, or the category ceiling without a model)
//  4. counts consecutive bad cycles; a trigger joins the batch once, when
//     its count reaches the escalation threshold
//  5. flushes the batch through the alert tree when it is non-empty, new
//     data arrived and the cooldown elapsed
//
// Status returns a copy of the session for the HTTP API.
package monitor
