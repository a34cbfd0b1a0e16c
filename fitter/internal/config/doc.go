// Package config loads the fitter YAML document: where historical samples
// come from, which engine options to fit with and where the fit store is
// written.
package config
