package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultPollInterval        = 30 * time.Second
	DefaultCooldown            = 5 * time.Minute
	DefaultEscalationThreshold = 3
	DefaultDeviationThreshold  = 3.0
	DefaultPercentThreshold    = 50.0
	DefaultKSigma              = 3.0
	DefaultL1Ceiling           = 50000.0
	DefaultHLTCeiling          = 1000.0
	DefaultFetchTimeout        = 10 * time.Second
	DefaultRefreshInterval     = 2 * time.Minute
	DefaultHTTPPort            = 8080
	DefaultLogLevel            = "info"
)

// Classification modes.
const (
	ModeSigma   = "sigma"
	ModePercent = "percent"
)

// Config is the full shiftmon configuration tree. Fields map 1:1 to
// shiftmon.example.yaml.
type Config struct {
	Source     SourceConfig     `yaml:"source"`
	Monitor    MonitorConfig    `yaml:"monitor"`
	Thresholds ThresholdsConfig `yaml:"thresholds"`

	// Actions is the list of notification channels alert nodes refer to by name.
	Actions []ActionConfig `yaml:"actions"`

	// Alerts is the root of the alert tree.
	Alerts AlertNode `yaml:"alerts"`

	// SummaryActions receive the end-of-run summary.
	SummaryActions []string `yaml:"summary_actions"`

	API APIConfig `yaml:"api"`

	// LogLevel is one of: debug | info | warn | error.
	LogLevel string `yaml:"log_level"`
}

// SourceConfig describes where live trigger rates are scraped from.
type SourceConfig struct {
	// Endpoint is the Prometheus text exposition URL carrying trigger rates.
	Endpoint string `yaml:"endpoint"`

	// LumiEndpoint optionally serves the pileup, bunch and run metrics. When
	// empty they are read from Endpoint.
	LumiEndpoint string `yaml:"lumi_endpoint"`

	Timeout time.Duration `yaml:"timeout"`

	Auth AuthConfig `yaml:"auth"`
}

// AuthConfig specifies how requests to the source are authenticated.
type AuthConfig struct {
	// Mode is one of: apikey | bearer | none.
	Mode string `yaml:"mode"`

	// Header is the HTTP header the API key is sent in.
	Header string `yaml:"header"`

	// KeyEnv names the environment variable holding the API key.
	KeyEnv string `yaml:"key_env"`

	// TokenEnv names the environment variable holding the bearer token.
	TokenEnv string `yaml:"token_env"`
}

// Key returns the API key value resolved from the environment.
func (a AuthConfig) Key() string { return env(a.KeyEnv) }

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string { return env(a.TokenEnv) }

// MonitorConfig drives classification, debouncing and flushing.
type MonitorConfig struct {
	// Mode selects the classifier: sigma | percent.
	Mode string `yaml:"mode"`

	PollInterval time.Duration `yaml:"poll_interval"`

	// Cooldown is the minimum time between two notification flushes.
	Cooldown time.Duration `yaml:"cooldown"`

	// EscalationThreshold is the number of consecutive bad cycles before a
	// trigger joins the notification batch.
	EscalationThreshold int `yaml:"escalation_threshold"`

	// DeviationThreshold is the |sigma| above which a trigger is bad.
	DeviationThreshold float64 `yaml:"deviation_threshold"`

	// PercentThreshold is the |percent diff| above which a trigger is bad.
	PercentThreshold float64 `yaml:"percent_threshold"`

	// KSigma scales the prediction band.
	KSigma float64 `yaml:"k_sigma"`

	// Ceilings are the static rate limits in Hz per category (L1, HLT),
	// used for triggers without a fit.
	Ceilings map[string]float64 `yaml:"ceilings"`

	// Ignore lists triggers that are never flagged.
	Ignore []string `yaml:"ignore"`

	// MinPileup skips classification below this pileup.
	MinPileup float64 `yaml:"min_pileup"`

	// FitStore is the path of the fit artifact written by fitter.
	FitStore string `yaml:"fit_store"`

	// ModelType pins one model type; empty selects the lowest-MSE fit.
	ModelType string `yaml:"model_type"`
}

// ThresholdsConfig locates the optional threshold-override document.
type ThresholdsConfig struct {
	// Path is a local YAML file watched for changes.
	Path string `yaml:"path"`

	// URL is polled every RefreshInterval. Path and URL are exclusive.
	URL string `yaml:"url"`

	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// Enabled reports whether an override document is configured.
func (t ThresholdsConfig) Enabled() bool { return t.Path != "" || t.URL != "" }

// ActionConfig defines one notification channel.
type ActionConfig struct {
	// Name is how alert nodes refer to the action.
	Name string `yaml:"name"`

	// Type is one of: console | slack | teams | webhook | email | nats | pglog.
	Type string `yaml:"type"`

	// URLEnv names the environment variable holding the webhook or NATS URL.
	URLEnv string `yaml:"url_env"`

	// Email fields.
	From      string   `yaml:"from"`
	To        []string `yaml:"to"`
	APIKeyEnv string   `yaml:"api_key_env"`

	// Subject is the NATS subject, or the e-mail subject prefix.
	Subject string `yaml:"subject"`

	// DSNEnv names the environment variable holding the Postgres DSN.
	DSNEnv string `yaml:"dsn_env"`
}

// URL returns the channel URL resolved from the environment.
func (a ActionConfig) URL() string { return env(a.URLEnv) }

// APIKey returns the channel API key resolved from the environment.
func (a ActionConfig) APIKey() string { return env(a.APIKeyEnv) }

// DSN returns the Postgres connection string resolved from the environment.
func (a ActionConfig) DSN() string { return env(a.DSNEnv) }

// AlertNode is one node of the alert tree.
type AlertNode struct {
	Name string `yaml:"name"`

	// Type is one of: rate | flag | priority | multiple.
	Type string `yaml:"type"`

	// Disabled turns the node off without removing it.
	Disabled bool `yaml:"disabled"`

	// Measure names the value a rate node compares.
	Measure string `yaml:"measure"`

	// Op is the comparison operator of a rate node; empty means ">".
	Op string `yaml:"op"`

	Threshold float64 `yaml:"threshold"`

	// Flag names the condition a flag node requires to hold.
	Flag string `yaml:"flag"`

	// Period is the snooze period between two firings.
	Period time.Duration `yaml:"period"`

	// Level is one of: info | warning | error | critical.
	Level string `yaml:"level"`

	Message string `yaml:"message"`
	Details string `yaml:"details"`

	Actions  []string    `yaml:"actions"`
	Children []AlertNode `yaml:"children"`
}

// APIConfig configures the status HTTP server.
type APIConfig struct {
	// Port is the listen port; 0 disables the server.
	Port int `yaml:"port"`

	Auth ServerAuthConfig `yaml:"auth"`
}

// ServerAuthConfig configures status API authentication.
type ServerAuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv names the environment variable holding the expected API key.
	KeyEnv string `yaml:"key_env"`
}

// Key returns the server API key resolved from the environment.
func (a ServerAuthConfig) Key() string { return env(a.KeyEnv) }

func env(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML document, applies defaults and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	applyCeilingDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Source: SourceConfig{Timeout: DefaultFetchTimeout},
		Monitor: MonitorConfig{
			Mode:                ModeSigma,
			PollInterval:        DefaultPollInterval,
			Cooldown:            DefaultCooldown,
			EscalationThreshold: DefaultEscalationThreshold,
			DeviationThreshold:  DefaultDeviationThreshold,
			PercentThreshold:    DefaultPercentThreshold,
			KSigma:              DefaultKSigma,
		},
		Thresholds: ThresholdsConfig{RefreshInterval: DefaultRefreshInterval},
		API:        APIConfig{Port: DefaultHTTPPort},
		LogLevel:   DefaultLogLevel,
	}
}

// applyCeilingDefaults fills in category ceilings the file left out. A map
// in the document replaces the default map wholesale, so this runs after
// unmarshalling.
func applyCeilingDefaults(cfg *Config) {
	if cfg.Monitor.Ceilings == nil {
		cfg.Monitor.Ceilings = make(map[string]float64)
	}
	if _, ok := cfg.Monitor.Ceilings["L1"]; !ok {
		cfg.Monitor.Ceilings["L1"] = DefaultL1Ceiling
	}
	if _, ok := cfg.Monitor.Ceilings["HLT"]; !ok {
		cfg.Monitor.Ceilings["HLT"] = DefaultHLTCeiling
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	if cfg.Source.Endpoint == "" {
		return fmt.Errorf("source.endpoint is required")
	}
	switch cfg.Source.Auth.Mode {
	case "apikey", "bearer", "none", "":
	default:
		return fmt.Errorf("source.auth: unknown mode %q", cfg.Source.Auth.Mode)
	}

	m := cfg.Monitor
	switch m.Mode {
	case ModeSigma, ModePercent:
	default:
		return fmt.Errorf("monitor.mode: unknown mode %q", m.Mode)
	}
	if m.PollInterval <= 0 {
		return fmt.Errorf("monitor.poll_interval must be positive")
	}
	if m.Cooldown < 0 {
		return fmt.Errorf("monitor.cooldown must not be negative")
	}
	if m.EscalationThreshold < 1 {
		return fmt.Errorf("monitor.escalation_threshold must be at least 1")
	}
	if m.DeviationThreshold <= 0 || m.PercentThreshold <= 0 || m.KSigma <= 0 {
		return fmt.Errorf("monitor: thresholds and k_sigma must be positive")
	}
	for cat := range m.Ceilings {
		if cat != "L1" && cat != "HLT" {
			return fmt.Errorf("monitor.ceilings: unknown category %q", cat)
		}
	}

	if cfg.Thresholds.Path != "" && cfg.Thresholds.URL != "" {
		return fmt.Errorf("thresholds: path and url are mutually exclusive")
	}

	names := make(map[string]bool, len(cfg.Actions))
	for i, a := range cfg.Actions {
		if a.Name == "" {
			return fmt.Errorf("actions[%d]: name is required", i)
		}
		if names[a.Name] {
			return fmt.Errorf("actions[%d]: duplicate name %q", i, a.Name)
		}
		names[a.Name] = true
		switch a.Type {
		case "console", "slack", "teams", "webhook", "email", "nats", "pglog":
		default:
			return fmt.Errorf("actions[%d] %q: unknown type %q", i, a.Name, a.Type)
		}
	}
	for _, n := range cfg.SummaryActions {
		if !names[n] {
			return fmt.Errorf("summary_actions: unknown action %q", n)
		}
	}

	if cfg.Alerts.Type != "" {
		if err := validateNode(cfg.Alerts, "alerts", names); err != nil {
			return err
		}
	}

	switch cfg.API.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("api.auth: unknown mode %q", cfg.API.Auth.Mode)
	}
	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level: unknown level %q", cfg.LogLevel)
	}
	return nil
}

func validateNode(n AlertNode, path string, actions map[string]bool) error {
	if n.Name == "" {
		return fmt.Errorf("%s: name is required", path)
	}
	path = path + "." + n.Name
	switch n.Type {
	case "rate":
		if n.Measure == "" {
			return fmt.Errorf("%s: rate node needs a measure", path)
		}
	case "flag":
		if n.Flag == "" {
			return fmt.Errorf("%s: flag node needs a flag", path)
		}
	case "priority", "multiple":
		if len(n.Children) == 0 {
			return fmt.Errorf("%s: %s node needs children", path, n.Type)
		}
	default:
		return fmt.Errorf("%s: unknown type %q", path, n.Type)
	}
	if n.Period < 0 {
		return fmt.Errorf("%s: period must not be negative", path)
	}
	for _, a := range n.Actions {
		if !actions[a] {
			return fmt.Errorf("%s: unknown action %q", path, a)
		}
	}
	for _, c := range n.Children {
		if err := validateNode(c, path, actions); err != nil {
			return err
		}
	}
	return nil
}
