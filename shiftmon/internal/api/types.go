package api

import (
	"github.com/cms-tsg-fog/RateMon-sub001/pkg/types"
	"github.com/cms-tsg-fog/RateMon-sub001/shiftmon/internal/monitor"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	State           string  `json:"state"`
	Run             int64   `json:"run"`
	Mode            string  `json:"mode"`
	Pileup          float64 `json:"pileup"`
	PileupReady     bool    `json:"pileup_ready"`
	Roster          int     `json:"roster"`
	Modelled        int     `json:"modelled"`
	BadCount        int     `json:"bad_count"`
	BatchSize       int     `json:"batch_size"`
	ActiveAlerts    int     `json:"active_alerts"`
	ThresholdsStale bool    `json:"thresholds_stale"`
	LastCycle       string  `json:"last_cycle,omitempty"` // RFC3339
	LastFlush       string  `json:"last_flush,omitempty"` // RFC3339
	LastError       string  `json:"last_error,omitempty"`
}

// TriggersResponse is the payload for GET /api/v1/triggers.
type TriggersResponse struct {
	Run      int64                   `json:"run"`
	Batch    []string                `json:"batch"`
	Triggers []monitor.TriggerStatus `json:"triggers"`
}

// ModelsResponse is the payload for GET /api/v1/models/{trigger}.
type ModelsResponse struct {
	Trigger string           `json:"trigger"`
	Models  []types.FitModel `json:"models"`
}

type errorResponse struct {
	Error string `json:"error"`
}
