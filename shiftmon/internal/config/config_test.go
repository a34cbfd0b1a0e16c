package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
source:
  endpoint: "http://localhost:9100/metrics"
monitor:
  mode: percent
  poll_interval: 10s
  escalation_threshold: 4
  ceilings:
    HLT: 400
  ignore: [HLT_Physics_v1]
actions:
  - name: console
    type: console
  - name: shifter
    type: email
    from: ratemon@example.org
    to: [shift@example.org]
    api_key_env: SENDGRID_KEY
summary_actions: [console]
alerts:
  name: root
  type: priority
  children:
    - name: rates
      type: rate
      measure: escalated_count
      threshold: 0
      level: error
      period: 10m
      actions: [console, shifter]
    - name: pileup
      type: flag
      flag: pileup_ready
      actions: [console]
`

func TestLoad_Valid(t *testing.T) {
	cfg := loadFromString(t, validYAML)

	assert.Equal(t, "http://localhost:9100/metrics", cfg.Source.Endpoint)
	assert.Equal(t, ModePercent, cfg.Monitor.Mode)
	assert.Equal(t, 10*time.Second, cfg.Monitor.PollInterval)
	assert.Equal(t, 4, cfg.Monitor.EscalationThreshold)
	assert.Equal(t, []string{"HLT_Physics_v1"}, cfg.Monitor.Ignore)
	require.Len(t, cfg.Actions, 2)
	assert.Equal(t, []string{"shift@example.org"}, cfg.Actions[1].To)

	require.Len(t, cfg.Alerts.Children, 2)
	assert.Equal(t, 10*time.Minute, cfg.Alerts.Children[0].Period)
	assert.Equal(t, "pileup_ready", cfg.Alerts.Children[1].Flag)
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadFromString(t, `
source:
  endpoint: "http://localhost:9100/metrics"
`)
	assert.Equal(t, ModeSigma, cfg.Monitor.Mode)
	assert.Equal(t, DefaultPollInterval, cfg.Monitor.PollInterval)
	assert.Equal(t, DefaultCooldown, cfg.Monitor.Cooldown)
	assert.Equal(t, DefaultEscalationThreshold, cfg.Monitor.EscalationThreshold)
	assert.Equal(t, DefaultKSigma, cfg.Monitor.KSigma)
	assert.Equal(t, DefaultHTTPPort, cfg.API.Port)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, DefaultL1Ceiling, cfg.Monitor.Ceilings["L1"])
	assert.Equal(t, DefaultHLTCeiling, cfg.Monitor.Ceilings["HLT"])
}

func TestLoad_PartialCeilingsKeepOtherDefault(t *testing.T) {
	cfg := loadFromString(t, validYAML)
	assert.Equal(t, 400.0, cfg.Monitor.Ceilings["HLT"])
	assert.Equal(t, DefaultL1Ceiling, cfg.Monitor.Ceilings["L1"])
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"missing endpoint": `
monitor:
  mode: sigma
`,
		"unknown mode": `
source: {endpoint: "http://x"}
monitor: {mode: both}
`,
		"zero escalation": `
source: {endpoint: "http://x"}
monitor: {escalation_threshold: 0}
`,
		"unknown action type": `
source: {endpoint: "http://x"}
actions:
  - {name: pager, type: pagerduty}
`,
		"duplicate action": `
source: {endpoint: "http://x"}
actions:
  - {name: c, type: console}
  - {name: c, type: console}
`,
		"alert refers to unknown action": `
source: {endpoint: "http://x"}
alerts:
  name: root
  type: rate
  measure: escalated_count
  actions: [nowhere]
`,
		"combinator without children": `
source: {endpoint: "http://x"}
alerts: {name: root, type: multiple}
`,
		"rate without measure": `
source: {endpoint: "http://x"}
alerts: {name: root, type: rate}
`,
		"both threshold sources": `
source: {endpoint: "http://x"}
thresholds: {path: /tmp/t.yaml, url: "http://t"}
`,
		"unknown ceiling category": `
source: {endpoint: "http://x"}
monitor:
  ceilings: {L2: 5}
`,
		"unknown log level": `
source: {endpoint: "http://x"}
log_level: loud
`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestEnvResolution(t *testing.T) {
	t.Setenv("TEST_API_KEY", "supersecret")
	t.Setenv("TEST_DSN", "postgres://u@h/db")

	assert.Equal(t, "supersecret", AuthConfig{KeyEnv: "TEST_API_KEY"}.Key())
	assert.Equal(t, "supersecret", ServerAuthConfig{KeyEnv: "TEST_API_KEY"}.Key())
	assert.Equal(t, "postgres://u@h/db", ActionConfig{DSNEnv: "TEST_DSN"}.DSN())
	assert.Empty(t, ActionConfig{}.URL())
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shiftmon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 4)
	go func() { _ = Watch(ctx, path, func(c *Config) { got <- c }) }()

	// Give the watcher time to register before the write.
	time.Sleep(100 * time.Millisecond)
	updated := validYAML + "\nlog_level: debug\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))

	// A write may surface as several events; wait for the final content.
	deadline := time.After(3 * time.Second)
	for {
		select {
		case c := <-got:
			if c.LogLevel == "debug" {
				return
			}
		case <-deadline:
			t.Fatal("no reload observed")
		}
	}
}

func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shiftmon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	cfg, err := Load(path)
	require.NoError(t, err)
	return cfg
}
