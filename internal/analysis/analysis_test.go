package analysis

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"testing"

	"github.com/andresmejia3/verdict/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func groundTruth(labels ...int) GroundTruth {
	gt := GroundTruth{Labels: labels}
	for i, l := range labels {
		gt.Filenames = append(gt.Filenames, fmt.Sprintf("img/%03d.jpg", i))
		gt.Classes = append(gt.Classes, fmt.Sprintf("c%d", l))
	}
	return gt
}

func TestMerge(t *testing.T) {
	outputs := map[string]any{
		"pred_score":   []any{0.9, 0.2, 0.5},
		"pred_label":   []any{1.0, 0.0, 2.0},
		"pred_class":   []any{"c1", "c0", "c2"},
		"class_scores": []any{[]any{0.1, 0.9}, []any{0.8, 0.2}, []any{0.5, 0.5}},
		"accuracy":     66.6,
		"model":        "resnet",
		"meta":         map[string]any{"epoch": 3},
		"gt_label":     []any{9, 9, 9},
	}

	records, err := Merge(outputs, groundTruth(1, 1, 2))
	require.NoError(t, err)
	require.Len(t, records, 3)

	r := records[0]
	assert.Equal(t, "img/000.jpg", r.Filename)
	assert.Equal(t, 0.9, r.PredScore)
	assert.Equal(t, 1, r.PredLabel)
	assert.Equal(t, "c1", r.PredClass)
	assert.Equal(t, 1, r.GtLabel, "ground truth comes from the dataset")
	assert.Equal(t, []string{"class_scores"}, r.ExtraKeys())

	assert.False(t, records[1].Correct())
	assert.True(t, records[2].Correct())
}

func TestMergeTypedSlices(t *testing.T) {
	outputs := map[string]any{
		"pred_score": [][]float64{{0.2, 0.7, 0.1}, {0.6, 0.3, 0.1}},
		"pred_label": []int{1, 0},
		"pred_class": []string{"b", "a"},
	}

	records, err := Merge(outputs, groundTruth(1, 1))
	require.NoError(t, err)
	assert.Equal(t, 0.7, records[0].PredScore, "score vectors reduce to their maximum")
	assert.Equal(t, 0.6, records[1].PredScore)
	assert.Equal(t, []float64{0.2, 0.7, 0.1}, records[0].Extra["pred_scores"], "the vector itself is kept")
	assert.Equal(t, []float64{0.6, 0.3, 0.1}, records[1].Extra["pred_scores"])

	data, err := json.Marshal(records[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"pred_scores":[0.2,0.7,0.1]`)
}

func TestMergeExistingPredScoresWins(t *testing.T) {
	outputs := map[string]any{
		"pred_score":  []any{[]any{0.2, 0.8}},
		"pred_scores": []any{"from results"},
		"pred_label":  []any{1},
		"pred_class":  []any{"b"},
	}
	records, err := Merge(outputs, groundTruth(1))
	require.NoError(t, err)
	assert.Equal(t, 0.8, records[0].PredScore)
	assert.Equal(t, "from results", records[0].Extra["pred_scores"])
}

func TestMergeLengthMismatch(t *testing.T) {
	outputs := map[string]any{
		"pred_score": []any{0.9, 0.2},
		"pred_label": []any{1, 0},
		"pred_class": []any{"a", "b"},
	}
	_, err := Merge(outputs, groundTruth(1, 1, 2))
	assert.ErrorIs(t, err, ErrLengthMismatch)

	_, err = Merge(outputs, GroundTruth{Labels: []int{1, 2}, Filenames: []string{"a"}, Classes: []string{"a", "b"}})
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestMergeBadLabel(t *testing.T) {
	outputs := map[string]any{
		"pred_score": []any{0.9},
		"pred_label": []any{1.5},
		"pred_class": []any{"a"},
	}
	_, err := Merge(outputs, groundTruth(1))
	assert.ErrorIs(t, err, ErrBadValue)
}

// syntheticRecords returns n records where the first `correct` predictions match ground truth.
func syntheticRecords(n, correct int) []types.Record {
	rng := rand.New(rand.NewSource(7))
	records := make([]types.Record, n)
	for i := range records {
		gt := i % 4
		pred := gt
		if i >= correct {
			pred = (gt + 1) % 4
		}
		records[i] = types.Record{
			Filename:  fmt.Sprintf("%d.jpg", i),
			PredScore: rng.Float64(),
			PredLabel: pred,
			GtLabel:   gt,
		}
	}
	return records
}

func TestSortByScore(t *testing.T) {
	records := syntheticRecords(50, 40)
	sorted := SortByScore(records)

	require.Len(t, sorted, len(records))
	for i := 1; i < len(sorted); i++ {
		assert.LessOrEqual(t, sorted[i-1].PredScore, sorted[i].PredScore)
	}
	assert.Equal(t, "0.jpg", records[0].Filename, "input must not be reordered")
}

func TestSortByScoreStable(t *testing.T) {
	records := []types.Record{
		{Filename: "a", PredScore: 0.5},
		{Filename: "b", PredScore: 0.1},
		{Filename: "c", PredScore: 0.5},
	}
	sorted := SortByScore(records)
	assert.Equal(t, []string{"b", "a", "c"}, []string{sorted[0].Filename, sorted[1].Filename, sorted[2].Filename})
}

func TestPartition(t *testing.T) {
	records := SortByScore(syntheticRecords(100, 95))
	success, fail := Partition(records)

	assert.Len(t, success, 95)
	assert.Len(t, fail, 5)
	assert.Equal(t, len(records), len(success)+len(fail))

	for _, r := range success {
		assert.True(t, r.Correct())
	}
	for _, r := range fail {
		assert.False(t, r.Correct())
	}
	for i := 1; i < len(success); i++ {
		assert.LessOrEqual(t, success[i-1].PredScore, success[i].PredScore, "partition keeps sorted order")
	}
}

func TestTruncate(t *testing.T) {
	records := syntheticRecords(5, 5)

	tests := []struct {
		k    int
		want int
	}{
		{k: 20, want: 5},
		{k: 3, want: 3},
		{k: 0, want: 0},
		{k: -1, want: 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.k), func(t *testing.T) {
			got := Truncate(records, tt.k)
			assert.Len(t, got, tt.want)
			if tt.want > 0 {
				assert.Equal(t, records[0].Filename, got[0].Filename)
			}
		})
	}
	assert.Empty(t, Truncate(nil, 20))
}

func TestLabels(t *testing.T) {
	gt, pred := Labels([]types.Record{{GtLabel: 1, PredLabel: 2}, {GtLabel: 0, PredLabel: 0}})
	assert.Equal(t, []int{1, 0}, gt)
	assert.Equal(t, []int{2, 0}, pred)
}
