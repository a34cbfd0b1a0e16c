package history

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/query"

	"github.com/cms-tsg-fog/RateMon-sub001/fitter/internal/config"
	"github.com/cms-tsg-fog/RateMon-sub001/pkg/types"
)

// records is the subset of *api.QueryTableResult the loader reads.
type records interface {
	Next() bool
	Record() *query.FluxRecord
	Err() error
}

// Influx loads archived per-trigger rates from InfluxDB. Each point carries
// fields rate (Hz), pileup and bunches, and tags trigger and category. The
// sample Y is rate per colliding bunch.
type Influx struct {
	cfg config.InfluxConfig
}

// NewInflux returns a loader for cfg.
func NewInflux(cfg config.InfluxConfig) *Influx {
	return &Influx{cfg: cfg}
}

// Load implements Loader.
func (l *Influx) Load(ctx context.Context) ([]Series, error) {
	client := influxdb2.NewClient(l.cfg.URL, l.cfg.Token())
	defer client.Close()

	if l.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.Timeout)
		defer cancel()
	}

	flux := BuildQuery(l.cfg)
	slog.Info("history: querying influxdb", "bucket", l.cfg.Bucket, "start", l.cfg.Start, "runs", len(l.cfg.Runs))

	result, err := client.QueryAPI(l.cfg.Org).Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("history: influxdb query: %w", err)
	}
	defer result.Close() //nolint:errcheck
	return decodeRecords(result)
}

// BuildQuery renders the Flux query for cfg.
func BuildQuery(cfg config.InfluxConfig) string {
	var b strings.Builder
	fmt.Fprintf(&b, "from(bucket: %q)\n", cfg.Bucket)
	if cfg.Stop != "" {
		fmt.Fprintf(&b, "  |> range(start: %s, stop: %s)\n", cfg.Start, cfg.Stop)
	} else {
		fmt.Fprintf(&b, "  |> range(start: %s)\n", cfg.Start)
	}
	fmt.Fprintf(&b, "  |> filter(fn: (r) => r._measurement == %q)\n", cfg.Measurement)
	if len(cfg.Runs) > 0 {
		runs := make([]string, len(cfg.Runs))
		for i, r := range cfg.Runs {
			runs[i] = strconv.Quote(strconv.FormatInt(r, 10))
		}
		fmt.Fprintf(&b, "  |> filter(fn: (r) => contains(value: r.run, set: [%s]))\n", strings.Join(runs, ", "))
	}
	b.WriteString(`  |> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")` + "\n")
	b.WriteString(`  |> sort(columns: ["_time"], desc: false)`)
	return b.String()
}

// decodeRecords turns pivoted rows into series. Rows without a trigger tag
// are skipped; rows with no colliding bunches become invalid samples.
func decodeRecords(rs records) ([]Series, error) {
	b := newBuilder()
	skipped := 0
	for rs.Next() {
		rec := rs.Record()
		name, _ := rec.ValueByKey("trigger").(string)
		if name == "" {
			skipped++
			continue
		}
		cat := types.CategoryOf(name)
		if c, ok := rec.ValueByKey("category").(string); ok && c != "" {
			if parsed, err := types.ParseCategory(c); err == nil {
				cat = parsed
			}
		}

		rate, okRate := number(rec.ValueByKey("rate"))
		pileup, okPileup := number(rec.ValueByKey("pileup"))
		bunches, okBunches := number(rec.ValueByKey("bunches"))

		s := types.Sample{X: pileup, Valid: okRate && okPileup && okBunches && bunches > 0}
		if s.Valid {
			s.Y = rate / bunches
		}
		b.add(types.Trigger{Name: name, Category: cat}, s)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("history: influxdb result: %w", err)
	}
	if skipped > 0 {
		slog.Warn("history: rows without trigger tag skipped", "count", skipped)
	}
	return b.series()
}

func number(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case int64:
		f = float64(n)
	case uint64:
		f = float64(n)
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
