package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cms-tsg-fog/RateMon-sub001/pkg/curvefit"
	"github.com/cms-tsg-fog/RateMon-sub001/pkg/types"
)

// Defaults applied when a field is absent.
const (
	DefaultOutput      = "fits.json"
	DefaultMeasurement = "trigger_rate"
	DefaultStart       = "-30d"
	DefaultTimeout     = 2 * time.Minute
	DefaultLogLevel    = "info"
)

// History source kinds.
const (
	SourceFile   = "file"
	SourceInflux = "influx"
)

// Config is the root of the fitter YAML document.
type Config struct {
	// Output is where the fit store is written.
	Output string `yaml:"output"`

	// MergeInto, if set, names an existing store the new fits are merged
	// onto. New fits win per trigger group.
	MergeInto string `yaml:"merge_into"`

	// Triggers restricts fitting to these names. Empty fits everything the
	// history holds.
	Triggers []string `yaml:"triggers"`

	History HistoryConfig `yaml:"history"`
	Fit     FitConfig     `yaml:"fit"`

	// LogLevel is one of: debug | info | warn | error.
	LogLevel string `yaml:"log_level"`
}

// HistoryConfig selects where historical samples come from.
type HistoryConfig struct {
	// Type is one of: file | influx.
	Type string `yaml:"type"`

	// Path is the YAML sample file for type file.
	Path string `yaml:"path"`

	Influx InfluxConfig `yaml:"influx"`
}

// InfluxConfig describes the InfluxDB bucket holding archived rates.
type InfluxConfig struct {
	URL      string `yaml:"url"`
	TokenEnv string `yaml:"token_env"`
	Org      string `yaml:"org"`
	Bucket   string `yaml:"bucket"`

	// Measurement holds fields rate, pileup, bunches and tags trigger,
	// category, run.
	Measurement string `yaml:"measurement"`

	// Start and Stop are Flux range bounds: RFC3339 or a relative
	// duration such as -30d. Empty Stop means now.
	Start string `yaml:"start"`
	Stop  string `yaml:"stop"`

	// Runs restricts the query to these run numbers.
	Runs []int64 `yaml:"runs"`

	Timeout time.Duration `yaml:"timeout"`
}

// Token returns the InfluxDB token resolved from the environment.
func (c InfluxConfig) Token() string {
	if c.TokenEnv == "" {
		return ""
	}
	return os.Getenv(c.TokenEnv)
}

// FitConfig maps onto curvefit.Options.
type FitConfig struct {
	Models       []string           `yaml:"models"`
	MinPoints    int                `yaml:"min_points"`
	OutlierSigma *float64           `yaml:"outlier_sigma"`
	Robust       *bool              `yaml:"robust"`
	TrimFraction *float64           `yaml:"trim_fraction"`
	ForceOrigin  bool               `yaml:"force_origin"`
	Selection    string             `yaml:"selection"`
	Bias         map[string]float64 `yaml:"bias"`
}

// Options converts the fit section to engine options, starting from
// curvefit.DefaultOptions.
func (f FitConfig) Options() (curvefit.Options, error) {
	opts := curvefit.DefaultOptions()
	if len(f.Models) > 0 {
		opts.Models = opts.Models[:0]
		for _, name := range f.Models {
			mt, err := types.ParseModelType(name)
			if err != nil {
				return opts, fmt.Errorf("fit.models: %w", err)
			}
			opts.Models = append(opts.Models, mt)
		}
	}
	if f.MinPoints > 0 {
		opts.MinPoints = f.MinPoints
	}
	if f.OutlierSigma != nil {
		opts.OutlierSigma = *f.OutlierSigma
	}
	if f.Robust != nil {
		opts.Robust = *f.Robust
	}
	if f.TrimFraction != nil {
		opts.TrimFraction = *f.TrimFraction
	}
	opts.ForceOrigin = f.ForceOrigin
	if f.Selection != "" {
		opts.Selection = curvefit.Selection(f.Selection)
	}
	if len(f.Bias) > 0 {
		opts.Bias = make(map[types.ModelType]float64, len(f.Bias))
		for name, v := range f.Bias {
			mt, err := types.ParseModelType(name)
			if err != nil {
				return opts, fmt.Errorf("fit.bias: %w", err)
			}
			opts.Bias[mt] = v
		}
	}
	return opts, nil
}

// Load reads and parses the YAML config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data)
}

// Parse parses raw YAML bytes into a Config, applying defaults and
// validation.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Output: DefaultOutput,
		History: HistoryConfig{
			Type: SourceFile,
			Influx: InfluxConfig{
				Measurement: DefaultMeasurement,
				Start:       DefaultStart,
				Timeout:     DefaultTimeout,
			},
		},
		LogLevel: DefaultLogLevel,
	}
}

func validate(cfg *Config) error {
	if cfg.Output == "" {
		return fmt.Errorf("output is required")
	}
	h := cfg.History
	switch h.Type {
	case SourceFile:
		if h.Path == "" {
			return fmt.Errorf("history.path is required for type file")
		}
	case SourceInflux:
		if h.Influx.URL == "" || h.Influx.Org == "" || h.Influx.Bucket == "" {
			return fmt.Errorf("history.influx: url, org and bucket are required")
		}
		if h.Influx.Timeout <= 0 {
			return fmt.Errorf("history.influx.timeout must be positive")
		}
	default:
		return fmt.Errorf("history.type: unknown type %q", h.Type)
	}
	opts, err := cfg.Fit.Options()
	if err != nil {
		return err
	}
	if _, err := curvefit.New(opts); err != nil {
		return fmt.Errorf("fit: %w", err)
	}
	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level: unknown level %q", cfg.LogLevel)
	}
	return nil
}
