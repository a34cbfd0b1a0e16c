package baseline

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cms-tsg-fog/RateMon-sub001/pkg/fitstore"
	"github.com/cms-tsg-fog/RateMon-sub001/pkg/types"
)

func quad(trigger, group string, p0, p1, p2, mse float64) types.FitModel {
	return types.FitModel{
		Trigger: trigger,
		Group:   group,
		Type:    types.ModelQuad,
		Params:  [4]float64{p0, p1, p2},
		MSE:     mse,
	}
}

func TestPredict_ScalesByNormalization(t *testing.T) {
	p := New(nil, Config{})
	p.SetNormalization(2000)

	m := quad("HLT_IsoMu24", "hlt", 0.01, 0.002, 0, 0.001)
	pred := p.Predict("HLT_IsoMu24", m, 40)

	assert.InDelta(t, (0.01+0.002*40)*2000, pred.Expected, 1e-9)
	assert.InDelta(t, 3*0.001*2000, pred.Band, 1e-9)
}

func TestPredict_NeverNegative(t *testing.T) {
	p := New(nil, Config{KSigma: 2})
	m := quad("HLT_Neg", "hlt", -50, -3, -0.1, 1)
	for _, x := range []float64{-100, -1, 0, 1, 30, 1e6} {
		pred := p.Predict("HLT_Neg", m, x)
		assert.GreaterOrEqual(t, pred.Expected, 0.0, "x=%v", x)
	}

	overflow := types.FitModel{Type: types.ModelExp, Params: [4]float64{0, 1, 0, 10}}
	pred := p.Predict("HLT_Overflow", overflow, 1e5)
	assert.False(t, math.IsInf(pred.Expected, 0))
	assert.GreaterOrEqual(t, pred.Expected, 0.0)
}

func TestSetNormalization_RejectsNonPositive(t *testing.T) {
	p := New(nil, Config{})
	p.SetNormalization(0)
	assert.Equal(t, 1.0, p.Normalization())
	p.SetNormalization(math.NaN())
	assert.Equal(t, 1.0, p.Normalization())
	p.SetNormalization(1866)
	assert.Equal(t, 1866.0, p.Normalization())
}

func TestResolve_CategoryNamespaces(t *testing.T) {
	st := fitstore.New()
	st.Put(quad("Shared_Name", "hlt", 1, 0, 0, 0.5))
	st.Put(quad("L1_SingleMu22", "l1", 2, 0, 0, 0.5))

	p := New(st, Config{})

	m, ok := p.Resolve(types.Trigger{Name: "Shared_Name", Category: types.CategoryHLT})
	require.True(t, ok)
	assert.Equal(t, 1.0, m.Params[0])

	_, ok = p.Resolve(types.Trigger{Name: "Shared_Name", Category: types.CategoryL1})
	assert.False(t, ok, "L1 must not see HLT models")

	_, ok = p.Resolve(types.Trigger{Name: "L1_SingleMu22", Category: types.CategoryHLT})
	assert.False(t, ok, "HLT must not see L1 models")
}

func TestResolve_PinnedModelType(t *testing.T) {
	st := fitstore.New()
	st.Put(quad("HLT_A", "hlt", 1, 0, 0, 0.1))
	st.Put(types.FitModel{Trigger: "HLT_A", Group: "hlt", Type: types.ModelLinear, Params: [4]float64{9}, MSE: 5})

	p := New(st, Config{ModelType: types.ModelLinear})
	m, ok := p.Resolve(types.Trigger{Name: "HLT_A", Category: types.CategoryHLT})
	require.True(t, ok)
	assert.Equal(t, types.ModelLinear, m.Type)

	p = New(st, Config{ModelType: types.ModelCube})
	_, ok = p.Resolve(types.Trigger{Name: "HLT_A", Category: types.CategoryHLT})
	assert.False(t, ok)
}
