// Package config loads and watches the shiftmon configuration file.
//
// Top-level types:
//   - Config{Source, Monitor, Thresholds, Actions, Alerts, SummaryActions,
//     API, LogLevel}: full tree parsed from YAML
//   - SourceConfig: exposition endpoint(s), timeout and request auth
//   - MonitorConfig: classifier mode (sigma|percent), poll interval,
//     cooldown, escalation threshold, category ceilings, ignore list
//   - ActionConfig: one notification channel; secrets are named by *_env
//     fields and resolved from the environment at use
//   - AlertNode: recursive alert tree node (rate|flag|priority|multiple)
//
// Load(path) reads the file, applies defaults, then validates enums,
// action references and the alert tree.
//
// Watch(ctx, path, onChange) reloads on write through fsnotify. WatchFile
// is the underlying loop and is also used for the threshold document.
package config
