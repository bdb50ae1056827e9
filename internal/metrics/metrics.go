// Package metrics computes per-class classification metrics.
package metrics

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/andresmejia3/verdict/internal/types"
)

// ErrLengthMismatch is returned when the label and prediction sequences differ in length.
var ErrLengthMismatch = errors.New("metrics: ground truth and predictions differ in length")

// Report holds per-class metrics with no averaging. All slices are indexed alongside Labels.
type Report struct {
	Labels    []int
	Precision []float64
	Recall    []float64
	F1        []float64
	Support   []int
	// Warnings lists classes whose precision or recall was ill-defined and set to 0
	Warnings []string
}

type counts struct {
	tp, fp, fn int
}

// PerClass computes precision, recall and F1 for every distinct ground-truth label.
// Labels are sorted ascending. A zero denominator yields 0, as sklearn does by default.
func PerClass(gt, pred []int) (Report, error) {
	if len(gt) != len(pred) {
		return Report{}, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(gt), len(pred))
	}

	byLabel := make(map[int]*counts)
	for _, l := range gt {
		if _, ok := byLabel[l]; !ok {
			byLabel[l] = &counts{}
		}
	}

	support := make(map[int]int, len(byLabel))
	for i := range gt {
		t, p := gt[i], pred[i]
		support[t]++
		if t == p {
			byLabel[t].tp++
			continue
		}
		byLabel[t].fn++
		// Predictions of labels absent from ground truth have no row to count against
		if c, ok := byLabel[p]; ok {
			c.fp++
		}
	}

	labels := make([]int, 0, len(byLabel))
	for l := range byLabel {
		labels = append(labels, l)
	}
	sort.Ints(labels)

	r := Report{
		Labels:    labels,
		Precision: make([]float64, len(labels)),
		Recall:    make([]float64, len(labels)),
		F1:        make([]float64, len(labels)),
		Support:   make([]int, len(labels)),
	}

	for i, l := range labels {
		c := byLabel[l]
		r.Support[i] = support[l]

		if c.tp+c.fp > 0 {
			r.Precision[i] = float64(c.tp) / float64(c.tp+c.fp)
		} else {
			r.Warnings = append(r.Warnings, fmt.Sprintf("precision is ill-defined for label %d (no predicted samples)", l))
		}
		if c.tp+c.fn > 0 {
			r.Recall[i] = float64(c.tp) / float64(c.tp+c.fn)
		}
		if r.Precision[i]+r.Recall[i] > 0 {
			r.F1[i] = 2 * r.Precision[i] * r.Recall[i] / (r.Precision[i] + r.Recall[i])
		}
	}

	return r, nil
}

// Classes pairs each row of the report with its human-readable class name.
// Labels outside names are reported as "class_<id>".
func (r Report) Classes(names []string) []types.ClassMetric {
	out := make([]types.ClassMetric, len(r.Labels))
	for i, l := range r.Labels {
		name := "class_" + strconv.Itoa(l)
		if l >= 0 && l < len(names) {
			name = names[l]
		}
		out[i] = types.ClassMetric{
			ClassID:   l,
			ClassName: name,
			Precision: r.Precision[i],
			Recall:    r.Recall[i],
			F1:        r.F1[i],
			Support:   r.Support[i],
		}
	}
	return out
}

// FormatArray renders values as a bracketed, space-separated row, e.g. "[0.9500 1.0000]".
func FormatArray(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'f', 4, 64)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
