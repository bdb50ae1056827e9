package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerClass(t *testing.T) {
	tests := []struct {
		name          string
		gt            []int
		pred          []int
		wantLabels    []int
		wantPrecision []float64
		wantRecall    []float64
		wantF1        []float64
	}{
		{
			name:          "perfect",
			gt:            []int{0, 1, 2, 1},
			pred:          []int{0, 1, 2, 1},
			wantLabels:    []int{0, 1, 2},
			wantPrecision: []float64{1, 1, 1},
			wantRecall:    []float64{1, 1, 1},
			wantF1:        []float64{1, 1, 1},
		},
		{
			name:          "mixed",
			gt:            []int{0, 1, 1, 2},
			pred:          []int{0, 1, 0, 0},
			wantLabels:    []int{0, 1, 2},
			wantPrecision: []float64{1.0 / 3.0, 1, 0},
			wantRecall:    []float64{1, 0.5, 0},
			wantF1:        []float64{0.5, 2.0 / 3.0, 0},
		},
		{
			name:          "prediction outside ground truth",
			gt:            []int{1, 1, 3},
			pred:          []int{1, 7, 3},
			wantLabels:    []int{1, 3},
			wantPrecision: []float64{1, 1},
			wantRecall:    []float64{0.5, 1},
			wantF1:        []float64{2.0 / 3.0, 1},
		},
		{
			name:          "empty",
			gt:            nil,
			pred:          nil,
			wantLabels:    []int{},
			wantPrecision: []float64{},
			wantRecall:    []float64{},
			wantF1:        []float64{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PerClass(tt.gt, tt.pred)
			require.NoError(t, err)

			assert.Equal(t, tt.wantLabels, got.Labels)
			assert.InDeltaSlice(t, tt.wantPrecision, got.Precision, 1e-9)
			assert.InDeltaSlice(t, tt.wantRecall, got.Recall, 1e-9)
			assert.InDeltaSlice(t, tt.wantF1, got.F1, 1e-9)
		})
	}
}

func TestPerClassLengthEqualsDistinctGroundTruth(t *testing.T) {
	gt := []int{4, 4, 2, 9, 2, 4}
	pred := []int{4, 2, 2, 0, 1, 4}

	r, err := PerClass(gt, pred)
	require.NoError(t, err)

	for _, n := range []int{len(r.Precision), len(r.Recall), len(r.F1), len(r.Support)} {
		assert.Equal(t, 3, n)
	}
	assert.Equal(t, []int{2, 1, 3}, r.Support)
}

func TestPerClassWarnsOnIllDefinedPrecision(t *testing.T) {
	r, err := PerClass([]int{0, 1}, []int{0, 0})
	require.NoError(t, err)

	assert.Equal(t, 0.0, r.Precision[1])
	assert.Len(t, r.Warnings, 1)
	assert.Contains(t, r.Warnings[0], "label 1")
}

func TestPerClassLengthMismatch(t *testing.T) {
	_, err := PerClass([]int{0, 1}, []int{0})
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestClasses(t *testing.T) {
	r, err := PerClass([]int{0, 5}, []int{0, 5})
	require.NoError(t, err)

	got := r.Classes([]string{"cat", "dog"})
	require.Len(t, got, 2)
	assert.Equal(t, "cat", got[0].ClassName)
	assert.Equal(t, "class_5", got[1].ClassName)
	assert.Equal(t, 1, got[1].Support)
}

func TestFormatArray(t *testing.T) {
	assert.Equal(t, "[0.5000 1.0000 0.0000]", FormatArray([]float64{0.5, 1, 0}))
	assert.Equal(t, "[]", FormatArray(nil))
}
