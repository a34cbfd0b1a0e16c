package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/cms-tsg-fog/RateMon-sub001/pkg/types"
)

// ErrNoData is returned when a loader finds no samples at all.
var ErrNoData = errors.New("history: no samples")

// Series is every historical sample of one trigger.
type Series struct {
	Trigger types.Trigger
	Samples []types.Sample
}

// Loader returns historical series, sorted by trigger name.
type Loader interface {
	Load(ctx context.Context) ([]Series, error)
}

// Filter keeps only the named triggers. An empty list keeps everything.
func Filter(series []Series, names []string) []Series {
	if len(names) == 0 {
		return series
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	out := series[:0:0]
	for _, s := range series {
		if want[s.Trigger.Name] {
			out = append(out, s)
		}
	}
	return out
}

// --- YAML sample file --------------------------------------------------------

// File loads series from a YAML document:
//
//	triggers:
//	  - name: HLT_IsoMu24
//	    category: HLT          # optional, derived from the name otherwise
//	    samples:
//	      - {x: 31.2, y: 0.0113}
//	      - {x: 0, y: 0, valid: false}
type File struct {
	Path string
}

type fileDoc struct {
	Triggers []fileSeries `yaml:"triggers"`
}

type fileSeries struct {
	Name     string       `yaml:"name"`
	Category string       `yaml:"category"`
	Samples  []fileSample `yaml:"samples"`
}

type fileSample struct {
	X     float64 `yaml:"x"`
	Y     float64 `yaml:"y"`
	Valid *bool   `yaml:"valid"`
}

// Load implements Loader.
func (f File) Load(_ context.Context) ([]Series, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("history: read file: %w", err)
	}
	return ParseFile(data)
}

// ParseFile decodes a YAML sample document. Samples without a valid key
// are valid. Repeated trigger entries are concatenated.
func ParseFile(data []byte) ([]Series, error) {
	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("history: parse yaml: %w", err)
	}

	b := newBuilder()
	for i, fs := range doc.Triggers {
		if fs.Name == "" {
			return nil, fmt.Errorf("history: triggers[%d]: name is required", i)
		}
		cat := types.CategoryOf(fs.Name)
		if fs.Category != "" {
			c, err := types.ParseCategory(fs.Category)
			if err != nil {
				return nil, fmt.Errorf("history: trigger %s: %w", fs.Name, err)
			}
			cat = c
		}
		for _, s := range fs.Samples {
			valid := s.Valid == nil || *s.Valid
			b.add(types.Trigger{Name: fs.Name, Category: cat}, types.Sample{X: s.X, Y: s.Y, Valid: valid})
		}
	}
	return b.series()
}

// builder groups samples per trigger and emits them sorted by name.
type builder struct {
	byName map[string]*Series
}

func newBuilder() *builder {
	return &builder{byName: make(map[string]*Series)}
}

func (b *builder) add(t types.Trigger, s types.Sample) {
	cur, ok := b.byName[t.Name]
	if !ok {
		cur = &Series{Trigger: t}
		b.byName[t.Name] = cur
	}
	cur.Samples = append(cur.Samples, s)
}

func (b *builder) series() ([]Series, error) {
	if len(b.byName) == 0 {
		return nil, ErrNoData
	}
	out := make([]Series, 0, len(b.byName))
	for _, s := range b.byName {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Trigger.Name < out[j].Trigger.Name })
	return out, nil
}
