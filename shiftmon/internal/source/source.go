package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/common/model"

	"github.com/cms-tsg-fog/RateMon-sub001/pkg/types"
	"github.com/cms-tsg-fog/RateMon-sub001/shiftmon/internal/config"
)

// ErrFetch wraps every transport or parse failure returned by a Source.
var ErrFetch = errors.New("source: fetch failed")

// TriggerRate is one trigger's latest bucket.
type TriggerRate struct {
	Trigger types.Trigger

	// Rate is the observed rate in Hz.
	Rate float64

	// Prescale is the correction factor applied upstream; 0 means disabled.
	Prescale float64

	// Bucket is the exposition timestamp of the rate sample.
	Bucket time.Time
}

// Measurement is everything one poll yields for the active run.
type Measurement struct {
	Run     int64
	Mode    string
	Bunches float64

	Pileup      float64
	PileupReady bool

	// Bucket is the newest sample timestamp seen. Zero when the exposition
	// carries no timestamps.
	Bucket time.Time

	Rates map[string]TriggerRate
}

// Source is implemented by every live measurement provider.
type Source interface {
	Fetch(ctx context.Context) (*Measurement, error)
}

// New returns the Source described by cfg. It builds the HTTP client once
// and reuses it across fetches.
func New(cfg config.SourceConfig) (Source, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("source: endpoint is required")
	}
	return &Prometheus{cfg: cfg, client: buildHTTPClient(cfg)}, nil
}

// authRoundTripper injects authentication headers into every request.
type authRoundTripper struct {
	base http.RoundTripper
	auth config.AuthConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case "apikey":
		req = req.Clone(req.Context())
		header := t.auth.Header
		if header == "" {
			header = "X-API-Key"
		}
		req.Header.Set(header, t.auth.Key())
	case "bearer":
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.auth.Token())
	}
	return t.base.RoundTrip(req)
}

func buildHTTPClient(cfg config.SourceConfig) *http.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultFetchTimeout
	}
	return &http.Client{
		Transport: &authRoundTripper{base: http.DefaultTransport, auth: cfg.Auth},
		Timeout:   timeout,
	}
}

// fetchMetrics performs an HTTP GET to url and returns parsed metric families.
func fetchMetrics(ctx context.Context, client *http.Client, url string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseMetrics(resp.Body)
}

// parseMetrics decodes a Prometheus text exposition. A partial result with a
// trailing parse warning is still returned successfully.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	parser := expfmt.NewTextParser(model.UTF8Validation)
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

// value returns the gauge, counter or untyped value of m.
func value(m *dto.Metric) float64 {
	switch {
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	case m.Counter != nil:
		return m.Counter.GetValue()
	case m.Untyped != nil:
		return m.Untyped.GetValue()
	}
	return 0
}

// label returns the value of the named label, or "".
func label(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

// stamp converts the optional exposition timestamp to time.Time.
func stamp(m *dto.Metric) time.Time {
	if m.TimestampMs == nil {
		return time.Time{}
	}
	return time.UnixMilli(m.GetTimestampMs()).UTC()
}

// scalar returns the single value of a label-less family and whether it was
// present.
func scalar(mf *dto.MetricFamily) (float64, time.Time, bool) {
	if mf == nil || len(mf.GetMetric()) == 0 {
		return 0, time.Time{}, false
	}
	m := mf.GetMetric()[0]
	return value(m), stamp(m), true
}
