// Package analysis merges predictions with ground truth and ranks the resulting records.
package analysis

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"

	"github.com/andresmejia3/verdict/internal/types"
)

var (
	// ErrLengthMismatch is returned when a per-example field does not have one entry per dataset example.
	ErrLengthMismatch = errors.New("analysis: field length does not match dataset size")

	// ErrBadValue is returned when a prediction value has the wrong type.
	ErrBadValue = errors.New("analysis: invalid prediction value")
)

// groundTruthFields come from the dataset and replace same-named output fields.
var groundTruthFields = map[string]bool{
	types.FieldFilename: true,
	types.FieldGtLabel:  true,
	types.FieldGtClass:  true,
}

// GroundTruth is the dataset side of the merge, one entry per example in dataset order.
type GroundTruth struct {
	Filenames []string
	Labels    []int
	Classes   []string
}

// Merge builds one record per example. Only output fields holding a sequence take part;
// scalars and mappings describe the whole run and are skipped.
func Merge(outputs map[string]any, gt GroundTruth) ([]types.Record, error) {
	n := len(gt.Labels)
	if len(gt.Filenames) != n || len(gt.Classes) != n {
		return nil, fmt.Errorf("%w: %d filenames, %d labels, %d classes",
			ErrLengthMismatch, len(gt.Filenames), n, len(gt.Classes))
	}

	columns := make(map[string][]any, len(outputs))
	for k, v := range outputs {
		if groundTruthFields[k] {
			continue
		}
		seq, ok := asSequence(v)
		if !ok {
			continue
		}
		if len(seq) != n {
			return nil, fmt.Errorf("%w: %q has %d entries, dataset has %d", ErrLengthMismatch, k, len(seq), n)
		}
		columns[k] = seq
	}

	// a pred_score vector is kept under pred_scores unless the outputs already carry that field
	_, hasScores := columns[types.FieldPredScores]

	records := make([]types.Record, n)
	for i := 0; i < n; i++ {
		r := types.Record{
			Filename: gt.Filenames[i],
			GtLabel:  gt.Labels[i],
			GtClass:  gt.Classes[i],
		}
		for k, col := range columns {
			var err error
			switch k {
			case types.FieldPredScore:
				r.PredScore, err = toScore(col[i])
				if _, ok := asSequence(col[i]); ok && !hasScores {
					if r.Extra == nil {
						r.Extra = make(map[string]any)
					}
					r.Extra[types.FieldPredScores] = col[i]
				}
			case types.FieldPredLabel:
				r.PredLabel, err = toInt(col[i])
			case types.FieldPredClass:
				r.PredClass = fmt.Sprint(col[i])
			default:
				if r.Extra == nil {
					r.Extra = make(map[string]any)
				}
				r.Extra[k] = col[i]
			}
			if err != nil {
				return nil, fmt.Errorf("example %d, field %q: %w", i, k, err)
			}
		}
		records[i] = r
	}
	return records, nil
}

// asSequence reports whether v is list-like and returns its elements. Strings are not sequences.
func asSequence(v any) ([]any, bool) {
	if s, ok := v.([]any); ok {
		return s, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// toScore accepts a scalar confidence or a probability vector, which is reduced to its maximum.
// Merge keeps the vector itself under pred_scores.
func toScore(v any) (float64, error) {
	if seq, ok := asSequence(v); ok {
		if len(seq) == 0 {
			return 0, fmt.Errorf("%w: empty score vector", ErrBadValue)
		}
		best := math.Inf(-1)
		for _, e := range seq {
			f, err := toFloat(e)
			if err != nil {
				return 0, err
			}
			best = math.Max(best, f)
		}
		return best, nil
	}
	return toFloat(v)
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case int32:
		return float64(t), nil
	}
	return 0, fmt.Errorf("%w: expected a number, got %T", ErrBadValue, v)
}

func toInt(v any) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case int32:
		return int(t), nil
	case float64:
		if t != math.Trunc(t) {
			return 0, fmt.Errorf("%w: expected an integer label, got %v", ErrBadValue, t)
		}
		return int(t), nil
	case float32:
		return toInt(float64(t))
	}
	return 0, fmt.Errorf("%w: expected an integer label, got %T", ErrBadValue, v)
}

// SortByScore returns a copy of records ordered by ascending prediction score.
// Records with equal scores keep their dataset order.
func SortByScore(records []types.Record) []types.Record {
	out := make([]types.Record, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PredScore < out[j].PredScore
	})
	return out
}

// Partition splits records into correct and incorrect predictions, keeping their order.
func Partition(records []types.Record) (success, fail []types.Record) {
	for _, r := range records {
		if r.Correct() {
			success = append(success, r)
		} else {
			fail = append(fail, r)
		}
	}
	return success, fail
}

// Truncate keeps the first k records.
func Truncate(records []types.Record, k int) []types.Record {
	if k < 0 {
		k = 0
	}
	if k > len(records) {
		k = len(records)
	}
	return records[:k]
}

// Labels extracts the ground-truth and predicted label sequences.
func Labels(records []types.Record) (gt, pred []int) {
	gt = make([]int, len(records))
	pred = make([]int, len(records))
	for i, r := range records {
		gt[i] = r.GtLabel
		pred[i] = r.PredLabel
	}
	return gt, pred
}
