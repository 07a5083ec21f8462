package train

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"icltrain/internal/curriculum"
)

func squaredError(output, targets [][]float64) [][]float64 {
	out := make([][]float64, len(output))
	for b := range output {
		out[b] = make([]float64, len(output[b]))
		for p := range output[b] {
			d := output[b][p] - targets[b][p]
			out[b][p] = d * d
		}
	}
	return out
}

func TestBaseline_ClosedForm(t *testing.T) {
	cases := []struct {
		pos  curriculum.Position
		want float64
	}{
		// (5+4+3+2+1+0+0+0)/8
		{curriculum.Position{NDimsTruncated: 5, NPoints: 8}, 1.875},
		// (2+1)/2
		{curriculum.Position{NDimsTruncated: 2, NPoints: 2}, 1.5},
		// (1)/4
		{curriculum.Position{NDimsTruncated: 1, NPoints: 4}, 0.25},
		// dims dominate: (10+9)/2
		{curriculum.Position{NDimsTruncated: 10, NPoints: 2}, 9.5},
	}
	for _, tc := range cases {
		assert.InDelta(t, tc.want, Baseline(tc.pos), 1e-12, "position %+v", tc.pos)
	}
}

func TestAggregator_RecordComputesPointwiseAndExcess(t *testing.T) {
	agg := NewAggregator()
	pos := curriculum.Position{NDimsTruncated: 2, NPoints: 2}

	output := [][]float64{{1, 0}, {3, 2}}
	targets := [][]float64{{0, 0}, {1, 0}}
	// Per-position squared error: position 0 -> (1+4)/2, position 1 -> (0+4)/2.
	entry := agg.Record(7, 3.0, output, targets, squaredError, pos)

	assert.Equal(t, 7, entry.Step)
	assert.InDelta(t, 3.0, entry.Loss, 1e-12)
	assert.InDelta(t, 2.0, entry.ExcessLoss, 1e-12) // 3.0 / baseline 1.5
	require.Len(t, entry.PointwiseLoss, 2)
	assert.InDelta(t, 2.5, entry.PointwiseLoss[0], 1e-12)
	assert.InDelta(t, 2.0, entry.PointwiseLoss[1], 1e-12)
	assert.Equal(t, 2, entry.NPoints)
	assert.Equal(t, 2, entry.NDims)

	require.Len(t, agg.Entries(), 1)
	assert.Equal(t, entry, agg.Entries()[0])
}

func TestAggregator_FlushRestoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	pos := curriculum.Position{NDimsTruncated: 1, NPoints: 1}

	agg := NewAggregator()
	for step := 0; step < 5; step++ {
		agg.Record(step, float64(step), [][]float64{{1}}, [][]float64{{0}}, squaredError, pos)
	}
	require.NoError(t, agg.Flush(dir))

	// Restore as a resume from completed step 2 would: later entries are
	// dropped so the resumed loop re-records them exactly once.
	resumed := NewAggregator()
	require.NoError(t, resumed.Restore(dir, 2))
	require.Len(t, resumed.Entries(), 3)
	for i, e := range resumed.Entries() {
		assert.Equal(t, i, e.Step)
	}
}

func TestAggregator_RestoreMissingFileIsEmpty(t *testing.T) {
	agg := NewAggregator()
	require.NoError(t, agg.Restore(t.TempDir(), 100))
	assert.Empty(t, agg.Entries())
}

func TestAggregator_FlushEmptyWritesArray(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, NewAggregator().Flush(dir))

	resumed := NewAggregator()
	require.NoError(t, resumed.Restore(dir, 0))
	assert.Empty(t, resumed.Entries())
}
