// Package results loads the prediction outputs a test run dumped to disk.
package results

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/andresmejia3/verdict/internal/types"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"gopkg.in/yaml.v3"
)

var (
	// ErrMissingFields is returned when the results lack the prediction fields needed for analysis.
	ErrMissingFields = errors.New("results: missing prediction fields")

	// ErrUnsupportedFormat is returned for a results file extension with no decoder.
	ErrUnsupportedFormat = errors.New("results: unsupported file format")
)

// RequiredFields must be present in every results file.
var RequiredFields = []string{types.FieldPredScore, types.FieldPredClass, types.FieldPredLabel}

// Outputs maps a field name to its value, usually a sequence with one entry per example.
type Outputs map[string]any

// Load decodes a results file. The format is chosen by extension:
// .json, .yaml/.yml, or .pb/.bin (a binary google.protobuf.Struct).
func Load(path string) (Outputs, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read results")
	}

	out := Outputs{}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, errors.Wrapf(err, "decode json results %s", path)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &out); err != nil {
			return nil, errors.Wrapf(err, "decode yaml results %s", path)
		}
	case ".pb", ".bin":
		s := &structpb.Struct{}
		if err := proto.Unmarshal(data, s); err != nil {
			return nil, errors.Wrapf(err, "decode protobuf results %s", path)
		}
		out = s.AsMap()
	default:
		return nil, fmt.Errorf("%w: %q (use .json, .yaml, .yml, .pb or .bin)", ErrUnsupportedFormat, ext)
	}

	return out, nil
}

// Validate checks that the prediction fields exist.
func Validate(out Outputs) error {
	var missing []string
	for _, f := range RequiredFields {
		if _, ok := out[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	quoted := make([]string, len(missing))
	for i, m := range missing {
		quoted[i] = strconv.Quote(m)
	}
	return fmt.Errorf(`%w: no %s in result file, please set "--out-items" in test.py`,
		ErrMissingFields, strings.Join(quoted, ", "))
}

// Save encodes outputs in the format implied by the path's extension.
func Save(path string, out Outputs) error {
	var (
		data []byte
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		data, err = json.Marshal(out)
	case ".yaml", ".yml":
		data, err = yaml.Marshal(map[string]any(out))
	case ".pb", ".bin":
		var s *structpb.Struct
		s, err = structpb.NewStruct(normalize(out).(map[string]any))
		if err == nil {
			data, err = proto.Marshal(s)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return errors.Wrapf(err, "encode results %s", path)
	}
	return errors.Wrap(os.WriteFile(path, data, 0644), "write results")
}

// normalize converts typed slices into []any so structpb can encode them.
func normalize(v any) any {
	switch t := v.(type) {
	case Outputs:
		return normalize(map[string]any(t))
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, vv := range t {
			m[k] = normalize(vv)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, vv := range t {
			s[i] = normalize(vv)
		}
		return s
	case []int:
		s := make([]any, len(t))
		for i, vv := range t {
			s[i] = vv
		}
		return s
	case []float64:
		s := make([]any, len(t))
		for i, vv := range t {
			s[i] = vv
		}
		return s
	case []float32:
		s := make([]any, len(t))
		for i, vv := range t {
			s[i] = float64(vv)
		}
		return s
	case []string:
		s := make([]any, len(t))
		for i, vv := range t {
			s[i] = vv
		}
		return s
	case [][]float64:
		s := make([]any, len(t))
		for i, vv := range t {
			s[i] = normalize(vv)
		}
		return s
	}
	return v
}
