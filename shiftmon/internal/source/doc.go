// Package source fetches live trigger measurements.
//
// Source is the interface the monitor polls. New(cfg) returns the
// Prometheus implementation, which scrapes a text exposition carrying:
//
//	ratemon_trigger_rate{trigger,category}  rate in Hz
//	ratemon_trigger_prescale{trigger}       prescale; 0 means disabled
//	ratemon_pileup, ratemon_pileup_ready    pileup and its readiness flag
//	ratemon_colliding_bunches               per-run normalization
//	ratemon_run_number, ratemon_run_mode{mode}
//
// Sample timestamps identify the time bucket; the monitor compares
// Measurement.Bucket between polls to detect new data. When lumi_endpoint is
// configured, both endpoints are fetched concurrently through errgroup.
//
// Every failure wraps ErrFetch so callers can degrade the cycle.
package source
