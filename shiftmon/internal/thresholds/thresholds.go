package thresholds

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cms-tsg-fog/RateMon-sub001/pkg/types"
	"github.com/cms-tsg-fog/RateMon-sub001/shiftmon/internal/config"
)

// ErrInvalid wraps every failure to obtain or parse an override document.
var ErrInvalid = errors.New("thresholds: invalid document")

// Trigger holds per-trigger limits. Zero fields fall back to the monitor
// defaults.
type Trigger struct {
	Deviation float64 `yaml:"deviation"`
	Percent   float64 `yaml:"percent"`
}

// Overrides is the parsed threshold document.
type Overrides struct {
	Triggers map[string]Trigger `yaml:"triggers"`
	Ceilings map[string]float64 `yaml:"ceilings"`
}

// Parse decodes and validates an override document.
func Parse(data []byte) (Overrides, error) {
	var o Overrides
	if err := yaml.Unmarshal(data, &o); err != nil {
		return Overrides{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	for name, t := range o.Triggers {
		if t.Deviation < 0 || t.Percent < 0 || !finite(t.Deviation) || !finite(t.Percent) {
			return Overrides{}, fmt.Errorf("%w: trigger %s: thresholds must be finite and non-negative", ErrInvalid, name)
		}
	}
	ceilings := make(map[string]float64, len(o.Ceilings))
	for cat, v := range o.Ceilings {
		c, err := types.ParseCategory(cat)
		if err != nil {
			return Overrides{}, fmt.Errorf("%w: ceilings: %w", ErrInvalid, err)
		}
		if v <= 0 || !finite(v) {
			return Overrides{}, fmt.Errorf("%w: ceilings: %s must be positive", ErrInvalid, cat)
		}
		ceilings[string(c)] = v
	}
	o.Ceilings = ceilings
	return o, nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// Store keeps the last good Overrides. A failed refresh leaves the previous
// document in effect and marks the store stale until the next good one.
type Store struct {
	mu      sync.RWMutex
	current Overrides
	stale   bool
	updated time.Time
	now     func() time.Time
}

// NewStore returns an empty, fresh Store.
func NewStore() *Store {
	return &Store{now: time.Now}
}

// Apply parses data and, when valid, replaces the current overrides.
func (s *Store) Apply(data []byte) error {
	o, err := Parse(data)
	if err != nil {
		s.markStale()
		return err
	}
	s.mu.Lock()
	s.current = o
	s.stale = false
	s.updated = s.now()
	s.mu.Unlock()
	return nil
}

func (s *Store) markStale() {
	s.mu.Lock()
	s.stale = true
	s.mu.Unlock()
}

// LoadFile applies the document at path.
func (s *Store) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		s.markStale()
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return s.Apply(data)
}

// FetchURL applies the document served at url.
func (s *Store) FetchURL(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		s.markStale()
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		s.markStale()
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		s.markStale()
		return fmt.Errorf("%w: unexpected status %d", ErrInvalid, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		s.markStale()
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return s.Apply(data)
}

// Stale reports whether the last refresh failed.
func (s *Store) Stale() bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stale
}

// Updated returns the time of the last good refresh.
func (s *Store) Updated() time.Time {
	if s == nil {
		return time.Time{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updated
}

// Deviation returns the sigma threshold for trigger, or def.
func (s *Store) Deviation(trigger string, def float64) float64 {
	if s == nil {
		return def
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.current.Triggers[trigger]; ok && t.Deviation > 0 {
		return t.Deviation
	}
	return def
}

// Percent returns the percent-diff threshold for trigger, or def.
func (s *Store) Percent(trigger string, def float64) float64 {
	if s == nil {
		return def
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.current.Triggers[trigger]; ok && t.Percent > 0 {
		return t.Percent
	}
	return def
}

// Ceiling returns the rate ceiling for cat, or def.
func (s *Store) Ceiling(cat types.Category, def float64) float64 {
	if s == nil {
		return def
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.current.Ceilings[string(cat)]; ok {
		return v
	}
	return def
}

// Run keeps the store current until ctx is cancelled: a file is watched
// with fsnotify, a URL is polled every RefreshInterval. Refresh failures are
// logged and leave the store stale.
func (s *Store) Run(ctx context.Context, cfg config.ThresholdsConfig) error {
	switch {
	case cfg.Path != "":
		if err := s.LoadFile(cfg.Path); err != nil {
			slog.Warn("thresholds: initial load failed", "path", cfg.Path, "err", err)
		}
		return config.WatchFile(ctx, cfg.Path, func() error { return s.LoadFile(cfg.Path) })

	case cfg.URL != "":
		interval := cfg.RefreshInterval
		if interval <= 0 {
			interval = config.DefaultRefreshInterval
		}
		client := &http.Client{Timeout: config.DefaultFetchTimeout}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			if err := s.FetchURL(ctx, client, cfg.URL); err != nil {
				slog.Warn("thresholds: refresh failed, keeping last good document",
					"url", cfg.URL, "err", err)
			}
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	}
	<-ctx.Done()
	return nil
}
