package types

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory(" hlt ")
	require.NoError(t, err)
	assert.Equal(t, CategoryHLT, c)

	_, err = ParseCategory("L2")
	assert.Error(t, err)
}

func TestCategoryOf(t *testing.T) {
	assert.Equal(t, CategoryL1, CategoryOf("L1_SingleMu22"))
	assert.Equal(t, CategoryHLT, CategoryOf("HLT_IsoMu24_v13"))
	assert.Equal(t, "l1", CategoryL1.Group())
}

func TestEval(t *testing.T) {
	tests := []struct {
		name string
		m    FitModel
		x    float64
		want float64
	}{
		{"linear", FitModel{Type: ModelLinear, Params: [4]float64{3, 2}}, 5, 13},
		{"quad", FitModel{Type: ModelQuad, Params: [4]float64{1, 1, 1}}, 2, 7},
		{"cube", FitModel{Type: ModelCube, Params: [4]float64{0, 0, 0, 1}}, 3, 27},
		{"exp", FitModel{Type: ModelExp, Params: [4]float64{1, 2, 0, 1}}, 0, 3},
		{"sinh", FitModel{Type: ModelSinh, Params: [4]float64{1, 2, 5}}, 0, 5},
		{"sentinel", Sentinel("t", "hlt"), 42, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, tc.m.Eval(tc.x), 1e-12)
		})
	}
	assert.InDelta(t, 2*math.Sinh(0.5)+5, FitModel{Type: ModelSinh, Params: [4]float64{0.5, 2, 5}}.Eval(1), 1e-12)
}

func TestParseModelType(t *testing.T) {
	mt, err := ParseModelType("cube")
	require.NoError(t, err)
	assert.Equal(t, 4, mt.NumParams())

	_, err = ParseModelType("poly5")
	assert.Error(t, err)
}
