package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Measures(t *testing.T) {
	rep := &Report{
		PileupReady: true,
		Entries: []Entry{
			{Trigger: "HLT_A_v1", HasModel: true, Deviation: -7.5, PercentDiff: 20},
			{Trigger: "HLT_B_v1", HasModel: true, Deviation: 4, PercentDiff: -65},
			{Trigger: "L1_C", Deviation: 0, PercentDiff: 0},
		},
	}
	reg := Registry()

	v, err := reg.Measures[MeasureEscalatedCount](rep)
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)

	v, err = reg.Measures[MeasureMaxAbsDeviation](rep)
	require.NoError(t, err)
	assert.Equal(t, 7.5, v)

	v, err = reg.Measures[MeasureMaxAbsPercentDiff](rep)
	require.NoError(t, err)
	assert.Equal(t, 65.0, v)

	ok, err := reg.Flags[FlagPileupReady](rep)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = reg.Flags[FlagThresholdsFresh](&Report{ThresholdsStale: true})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegistry_WrongDataErrors(t *testing.T) {
	_, err := Registry().Measures[MeasureEscalatedCount](&RunSummary{})
	assert.ErrorIs(t, err, errNotReport)
}

func TestReport_CloneIsDeep(t *testing.T) {
	rep := &Report{Entries: []Entry{{Trigger: "HLT_A_v1", Count: 3}}}
	c := rep.Clone().(*Report)
	rep.Entries[0].Count = 99
	assert.Equal(t, 3, c.Entries[0].Count)

	sum := &RunSummary{Escalated: []string{"a"}, WorstDeviation: map[string]float64{"a": 4}}
	sc := sum.Clone().(*RunSummary)
	sum.Escalated[0] = "b"
	sum.WorstDeviation["a"] = 9
	assert.Equal(t, "a", sc.Escalated[0])
	assert.Equal(t, 4.0, sc.WorstDeviation["a"])
}
