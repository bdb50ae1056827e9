package types

import (
	"encoding/json"
	"sort"
)

// Field names shared by the results file, the record JSON and the renderer.
const (
	FieldFilename  = "filename"
	FieldPredScore = "pred_score"
	FieldPredLabel = "pred_label"
	FieldPredClass = "pred_class"
	FieldGtLabel   = "gt_label"
	FieldGtClass   = "gt_class"
	// FieldPredScores keeps a per-class score vector when pred_score was given as one
	FieldPredScores = "pred_scores"
)

// Record is one evaluated example: the model's prediction next to the dataset's ground truth.
type Record struct {
	Filename  string
	PredScore float64
	PredLabel int
	PredClass string
	GtLabel   int
	GtClass   string
	// Extra holds any other per-example fields found in the results file (e.g. class_scores)
	Extra map[string]any
}

// Correct reports whether the prediction matches the ground truth.
func (r Record) Correct() bool {
	return r.PredLabel == r.GtLabel
}

// Fields returns the record as a flat map keyed by the original field names.
func (r Record) Fields() map[string]any {
	m := make(map[string]any, len(r.Extra)+6)
	for k, v := range r.Extra {
		m[k] = v
	}
	m[FieldFilename] = r.Filename
	m[FieldPredScore] = r.PredScore
	m[FieldPredLabel] = r.PredLabel
	m[FieldPredClass] = r.PredClass
	m[FieldGtLabel] = r.GtLabel
	m[FieldGtClass] = r.GtClass
	return m
}

// MarshalJSON flattens Extra into the top-level object so the dump matches the results file layout.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Fields())
}

// ExtraKeys returns the Extra field names in a stable order.
func (r Record) ExtraKeys() []string {
	keys := make([]string, 0, len(r.Extra))
	for k := range r.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ClassMetric is the precision/recall/F1 of a single class.
type ClassMetric struct {
	ClassID   int     `json:"class_id"`
	ClassName string  `json:"class_name"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}
