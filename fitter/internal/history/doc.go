// Package history loads historical (pileup, rate) samples per trigger for
// the fit batch.
//
// Two loaders implement Loader:
//
//   - File reads a YAML sample document, for offline fits and tests.
//   - Influx runs a Flux query against the archived rate bucket and divides
//     each rate by the colliding bunch count of its row.
//
// Both return series sorted by trigger name so the batch output is
// deterministic.
package history
