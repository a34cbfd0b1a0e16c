package fitstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/cms-tsg-fog/RateMon-sub001/pkg/types"
)

// ErrNotFound is returned by Lookup when no model matches.
var ErrNotFound = errors.New("fitstore: model not found")

// Models maps a model type to its fit.
type Models map[types.ModelType]types.FitModel

// Groups maps a group (category namespace) to its models.
type Groups map[string]Models

// Store is a thread-safe fit-model artifact keyed by trigger name.
type Store struct {
	mu   sync.RWMutex
	data map[string]Groups
}

// New returns an empty Store.
func New() *Store {
	return &Store{data: make(map[string]Groups)}
}

// Put stores or replaces the model m under m.Trigger / m.Group / m.Type.
func (s *Store) Put(m types.FitModel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	groups, ok := s.data[m.Trigger]
	if !ok {
		groups = make(Groups)
		s.data[m.Trigger] = groups
	}
	models, ok := groups[m.Group]
	if !ok {
		models = make(Models)
		groups[m.Group] = models
	}
	models[m.Type] = m
}

// Lookup returns the model for trigger/group/type.
func (s *Store) Lookup(trigger, group string, mt types.ModelType) (types.FitModel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.data[trigger][group][mt]
	if !ok {
		return types.FitModel{}, fmt.Errorf("%w: %s/%s/%s", ErrNotFound, trigger, group, mt)
	}
	return m, nil
}

// Best returns the non-sentinel model with the lowest MSE for trigger/group.
// Ties are broken by model type order in types.ModelTypes.
func (s *Store) Best(trigger, group string) (types.FitModel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	models := s.data[trigger][group]
	var (
		best  types.FitModel
		found bool
	)
	for _, mt := range types.ModelTypes {
		m, ok := models[mt]
		if !ok || m.IsSentinel() || math.IsNaN(m.MSE) {
			continue
		}
		if !found || m.MSE < best.MSE {
			best, found = m, true
		}
	}
	return best, found
}

// Triggers returns the sorted list of trigger names in the store.
func (s *Store) Triggers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.data))
	for name := range s.data {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Count returns the number of triggers held.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Snapshot returns a deep copy of the nested map.
func (s *Store) Snapshot() map[string]Groups {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyData(s.data)
}

// Save writes the store as indented JSON to path. The write goes through a
// temp file in the same directory and a rename so readers never observe a
// partial artifact.
func (s *Store) Save(path string) error {
	s.mu.RLock()
	body, err := json.MarshalIndent(s.data, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("fitstore: encode: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".fitstore-*")
	if err != nil {
		return fmt.Errorf("fitstore: create temp: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return fmt.Errorf("fitstore: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("fitstore: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("fitstore: rename: %w", err)
	}
	return nil
}

// Load reads a store previously written by Save.
func Load(path string) (*Store, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fitstore: read file: %w", err)
	}
	data := make(map[string]Groups)
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("fitstore: decode %s: %w", path, err)
	}
	return &Store{data: data}, nil
}

// Merge returns a new store holding the union of a and b. For a trigger
// present in both, groups only in a are kept and b's value wins for every
// group present in b.
func Merge(a, b *Store) *Store {
	out := &Store{data: a.Snapshot()}
	for trigger, groups := range b.Snapshot() {
		dst, ok := out.data[trigger]
		if !ok {
			out.data[trigger] = groups
			continue
		}
		for group, models := range groups {
			dst[group] = models
		}
	}
	return out
}

func copyData(src map[string]Groups) map[string]Groups {
	out := make(map[string]Groups, len(src))
	for trigger, groups := range src {
		g := make(Groups, len(groups))
		for group, models := range groups {
			m := make(Models, len(models))
			for mt, fm := range models {
				if fm.Warnings != nil {
					fm.Warnings = append([]string(nil), fm.Warnings...)
				}
				m[mt] = fm
			}
			g[group] = m
		}
		out[trigger] = g
	}
	return out
}
