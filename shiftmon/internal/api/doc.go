// Package api exposes shiftmon's state over HTTP for dashboards and the
// shift crew.
//
// Endpoints (all GET, JSON):
//
//	/api/v1/health              overall state, run, counts, last cycle/flush
//	/api/v1/triggers            debounce table and pending batch
//	/api/v1/triggers/{name}     one bad trigger
//	/api/v1/alerts              alert tree statuses, depth first
//	/api/v1/models/{trigger}    stored fits for a trigger
//	/metrics                    Prometheus exposition (no auth)
//
// Handler reads only the Status snapshot the monitor publishes after each
// cycle. APIKeyMiddleware guards /api/ when api.auth.mode is apikey.
package api
