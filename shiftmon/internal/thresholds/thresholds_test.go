package thresholds

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cms-tsg-fog/RateMon-sub001/pkg/types"
)

const goodDoc = `
triggers:
  HLT_IsoMu24_v13:
    deviation: 4
    percent: 40
  HLT_Ele32_v9:
    percent: 25
ceilings:
  HLT: 800
`

func TestStore_ApplyAndLookup(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Apply([]byte(goodDoc)))

	assert.Equal(t, 4.0, s.Deviation("HLT_IsoMu24_v13", 3))
	assert.Equal(t, 3.0, s.Deviation("HLT_Ele32_v9", 3), "zero field falls back")
	assert.Equal(t, 25.0, s.Percent("HLT_Ele32_v9", 50))
	assert.Equal(t, 50.0, s.Percent("unknown", 50))
	assert.Equal(t, 800.0, s.Ceiling(types.CategoryHLT, 1000))
	assert.Equal(t, 50000.0, s.Ceiling(types.CategoryL1, 50000))
	assert.False(t, s.Stale())
	assert.False(t, s.Updated().IsZero())
}

func TestStore_InvalidKeepsLastGood(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Apply([]byte(goodDoc)))

	for _, bad := range []string{
		"triggers: [not, a, map]",
		"ceilings: {L2: 5}",
		"ceilings: {HLT: -1}",
		"triggers: {X: {deviation: -2}}",
	} {
		err := s.Apply([]byte(bad))
		require.Error(t, err, bad)
		assert.ErrorIs(t, err, ErrInvalid)
		assert.True(t, s.Stale())
		assert.Equal(t, 4.0, s.Deviation("HLT_IsoMu24_v13", 3))
	}

	require.NoError(t, s.Apply([]byte(goodDoc)))
	assert.False(t, s.Stale())
}

func TestStore_LoadFile(t *testing.T) {
	s := NewStore()
	path := filepath.Join(t.TempDir(), "thresholds.yaml")

	err := s.LoadFile(path)
	assert.ErrorIs(t, err, ErrInvalid)
	assert.True(t, s.Stale())

	require.NoError(t, os.WriteFile(path, []byte(goodDoc), 0o600))
	require.NoError(t, s.LoadFile(path))
	assert.False(t, s.Stale())
}

func TestStore_FetchURL(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(goodDoc))
	}))
	defer srv.Close()

	s := NewStore()
	require.NoError(t, s.FetchURL(context.Background(), srv.Client(), srv.URL))
	assert.Equal(t, 40.0, s.Percent("HLT_IsoMu24_v13", 50))

	fail.Store(true)
	err := s.FetchURL(context.Background(), srv.Client(), srv.URL)
	assert.ErrorIs(t, err, ErrInvalid)
	assert.True(t, s.Stale())
	assert.Equal(t, 40.0, s.Percent("HLT_IsoMu24_v13", 50))
}

func TestStore_NilIsDefaults(t *testing.T) {
	var s *Store
	assert.False(t, s.Stale())
	assert.Equal(t, 3.0, s.Deviation("x", 3))
	assert.Equal(t, 50.0, s.Percent("x", 50))
	assert.Equal(t, 9.0, s.Ceiling(types.CategoryL1, 9))
}
