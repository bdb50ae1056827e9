// Package config loads the YAML file describing the model and dataset under analysis.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	baseKey   = "_base_"
	deleteKey = "_delete_"
)

// ErrMissingSection is returned by Decode when the requested key path does not exist.
var ErrMissingSection = errors.New("config: missing section")

// Config is a parsed configuration tree.
type Config struct {
	Path string
	tree map[string]any
}

// FromFile reads a YAML config. Files listed under "_base_" are loaded first
// (relative to the including file) and the including file's keys are merged over them.
func FromFile(path string) (*Config, error) {
	tree, err := load(path, map[string]bool{})
	if err != nil {
		return nil, err
	}
	return &Config{Path: path, tree: tree}, nil
}

// New wraps an existing tree, mostly for tests.
func New(tree map[string]any) *Config {
	if tree == nil {
		tree = map[string]any{}
	}
	return &Config{tree: tree}
}

func load(path string, seen map[string]bool) (map[string]any, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if seen[abs] {
		return nil, fmt.Errorf("config: circular _base_ reference at %s", path)
	}
	seen[abs] = true
	defer delete(seen, abs)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	tree := map[string]any{}
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	rawBase, ok := tree[baseKey]
	if !ok {
		return tree, nil
	}
	delete(tree, baseKey)

	var bases []string
	switch b := rawBase.(type) {
	case string:
		bases = []string{b}
	case []any:
		for _, v := range b {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("config %s: _base_ entries must be strings, got %T", path, v)
			}
			bases = append(bases, s)
		}
	default:
		return nil, fmt.Errorf("config %s: _base_ must be a string or list, got %T", path, rawBase)
	}

	merged := map[string]any{}
	dir := filepath.Dir(path)
	for _, b := range bases {
		if !filepath.IsAbs(b) {
			b = filepath.Join(dir, b)
		}
		baseTree, err := load(b, seen)
		if err != nil {
			return nil, err
		}
		mergeInto(merged, baseTree)
	}
	mergeInto(merged, tree)
	return merged, nil
}

// mergeInto merges src over dst. Nested maps merge recursively unless src sets "_delete_: true".
func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		srcMap, srcIsMap := v.(map[string]any)
		if !srcIsMap {
			dst[k] = v
			continue
		}
		if del, _ := srcMap[deleteKey].(bool); del {
			clean := make(map[string]any, len(srcMap))
			for kk, vv := range srcMap {
				if kk != deleteKey {
					clean[kk] = vv
				}
			}
			dst[k] = clean
			continue
		}
		dstMap, dstIsMap := dst[k].(map[string]any)
		if !dstIsMap {
			dstMap = map[string]any{}
			dst[k] = dstMap
		}
		mergeInto(dstMap, srcMap)
	}
}

// MergeFromDict applies dotted-key overrides such as "data.test.ann_file".
// Numeric segments index into existing lists.
func (c *Config) MergeFromDict(opts map[string]any) error {
	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	// Shorter paths first so "a=..." never clobbers a sibling "a.b=..." given in the same call
	sort.Slice(keys, func(i, j int) bool {
		ni, nj := strings.Count(keys[i], "."), strings.Count(keys[j], ".")
		if ni != nj {
			return ni < nj
		}
		return keys[i] < keys[j]
	})

	for _, k := range keys {
		if err := setPath(c.tree, strings.Split(k, "."), opts[k]); err != nil {
			return fmt.Errorf("override %q: %w", k, err)
		}
	}
	return nil
}

func setPath(node any, parts []string, value any) error {
	head := parts[0]
	last := len(parts) == 1

	switch n := node.(type) {
	case map[string]any:
		if last {
			n[head] = value
			return nil
		}
		child, ok := n[head]
		if !ok || !isContainer(child) {
			child = map[string]any{}
			n[head] = child
		}
		return setPath(child, parts[1:], value)
	case []any:
		idx, err := strconv.Atoi(head)
		if err != nil {
			return fmt.Errorf("key %q used on a list", head)
		}
		if idx < 0 || idx >= len(n) {
			return fmt.Errorf("index %d out of range for list of length %d", idx, len(n))
		}
		if last {
			n[idx] = value
			return nil
		}
		if !isContainer(n[idx]) {
			n[idx] = map[string]any{}
		}
		return setPath(n[idx], parts[1:], value)
	default:
		return fmt.Errorf("cannot descend into %T at %q", node, head)
	}
}

func isContainer(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}

// Get returns the value at a dotted key path.
func (c *Config) Get(path string) (any, bool) {
	var node any = c.tree
	for _, p := range strings.Split(path, ".") {
		switch n := node.(type) {
		case map[string]any:
			v, ok := n[p]
			if !ok {
				return nil, false
			}
			node = v
		case []any:
			idx, err := strconv.Atoi(p)
			if err != nil || idx < 0 || idx >= len(n) {
				return nil, false
			}
			node = n[idx]
		default:
			return nil, false
		}
	}
	return node, true
}

// Decode unmarshals the section at path into out using its yaml tags.
func (c *Config) Decode(path string, out any) error {
	section, ok := c.Get(path)
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingSection, path)
	}
	data, err := yaml.Marshal(section)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// Dump renders the merged tree back to YAML.
func (c *Config) Dump() ([]byte, error) {
	return yaml.Marshal(c.tree)
}
