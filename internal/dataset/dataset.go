// Package dataset resolves the ground truth of an evaluation set from its config section.
package dataset

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

var (
	// ErrUnknownType is returned for a dataset type with no registered builder.
	ErrUnknownType = errors.New("dataset: unknown type")

	// ErrNoClasses is returned when the class names cannot be determined.
	ErrNoClasses = errors.New("dataset: no class names")

	// ErrLabelOutOfRange is returned when a ground-truth label has no class name.
	ErrLabelOutOfRange = errors.New("dataset: label out of range")
)

// ImageExtensions are the files picked up when scanning a class-per-folder layout.
// Each one has a decoder registered by the model package.
var ImageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".gif", ".tif", ".tiff"}

// Config is the data.test section of the analysis config.
type Config struct {
	Type       string `yaml:"type"`
	DataPrefix string `yaml:"data_prefix"`
	AnnFile    string `yaml:"ann_file"`
	// Classes is either a list of names or a path to a file with one name per line
	Classes any `yaml:"classes"`
}

// Info describes one example.
type Info struct {
	ImgPrefix string
	Filename  string
	GtLabel   int
}

// Path joins the prefix, if any, with the relative filename.
func (i Info) Path() string {
	if i.ImgPrefix == "" {
		return i.Filename
	}
	return filepath.Join(i.ImgPrefix, i.Filename)
}

// Dataset holds the examples in iteration order and the class names.
type Dataset struct {
	Type    string
	Classes []string
	Infos   []Info
}

// Len returns the number of examples.
func (d *Dataset) Len() int {
	return len(d.Infos)
}

// Filenames returns every example path in dataset order.
func (d *Dataset) Filenames() []string {
	out := make([]string, len(d.Infos))
	for i, info := range d.Infos {
		out[i] = info.Path()
	}
	return out
}

// GtLabels returns every ground-truth label in dataset order.
func (d *Dataset) GtLabels() []int {
	out := make([]int, len(d.Infos))
	for i, info := range d.Infos {
		out[i] = info.GtLabel
	}
	return out
}

// ClassName maps a label to its human-readable name.
func (d *Dataset) ClassName(label int) (string, error) {
	if label < 0 || label >= len(d.Classes) {
		return "", fmt.Errorf("%w: %d (have %d classes)", ErrLabelOutOfRange, label, len(d.Classes))
	}
	return d.Classes[label], nil
}

// GtClasses maps every ground-truth label to its class name.
func (d *Dataset) GtClasses() ([]string, error) {
	out := make([]string, len(d.Infos))
	for i, info := range d.Infos {
		name, err := d.ClassName(info.GtLabel)
		if err != nil {
			return nil, fmt.Errorf("example %d (%s): %w", i, info.Filename, err)
		}
		out[i] = name
	}
	return out, nil
}

type builder func(cfg Config) (*Dataset, error)

var builders = map[string]builder{
	"CustomDataset": buildCustom,
}

// Types lists the registered dataset types.
func Types() []string {
	out := make([]string, 0, len(builders))
	for k := range builders {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Build constructs the dataset described by cfg.
func Build(cfg Config) (*Dataset, error) {
	b, ok := builders[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %s)", ErrUnknownType, cfg.Type, strings.Join(Types(), ", "))
	}
	ds, err := b(cfg)
	if err != nil {
		return nil, err
	}
	ds.Type = cfg.Type
	return ds, nil
}

// buildCustom reads an annotation file when one is configured, otherwise scans data_prefix
// where each sorted subdirectory is a class.
func buildCustom(cfg Config) (*Dataset, error) {
	names, err := loadClasses(cfg.Classes)
	if err != nil {
		return nil, err
	}

	if cfg.AnnFile != "" {
		infos, err := loadAnnotations(cfg.AnnFile, cfg.DataPrefix)
		if err != nil {
			return nil, err
		}
		if names == nil {
			return nil, fmt.Errorf("%w: set data.test.classes when using ann_file", ErrNoClasses)
		}
		return &Dataset{Classes: names, Infos: infos}, nil
	}

	if cfg.DataPrefix == "" {
		return nil, errors.New("dataset: either ann_file or data_prefix is required")
	}
	folders, infos, err := scanFolders(cfg.DataPrefix)
	if err != nil {
		return nil, err
	}
	if names == nil {
		names = folders
	}
	return &Dataset{Classes: names, Infos: infos}, nil
}

func loadClasses(raw any) ([]string, error) {
	switch c := raw.(type) {
	case nil:
		return nil, nil
	case string:
		return readLines(c)
	case []any:
		out := make([]string, len(c))
		for i, v := range c {
			out[i] = fmt.Sprint(v)
		}
		return out, nil
	case []string:
		return c, nil
	default:
		return nil, fmt.Errorf("dataset: classes must be a list or a file path, got %T", raw)
	}
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read classes: %w", err)
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			out = append(out, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan classes: %w", err)
	}
	return out, nil
}

// loadAnnotations parses "<filename> <label>" lines. The label is split off the right so
// filenames may contain spaces.
func loadAnnotations(path, prefix string) ([]Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read ann_file: %w", err)
	}
	defer f.Close()

	var infos []Info
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		idx := strings.LastIndexAny(line, " \t")
		if idx == -1 {
			return nil, fmt.Errorf("%s:%d: expected \"<filename> <label>\"", path, lineNo)
		}
		label, err := strconv.Atoi(line[idx+1:])
		if err != nil {
			return nil, fmt.Errorf("%s:%d: invalid label: %w", path, lineNo, err)
		}
		infos = append(infos, Info{
			ImgPrefix: prefix,
			Filename:  strings.TrimSpace(line[:idx]),
			GtLabel:   label,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan ann_file: %w", err)
	}
	return infos, nil
}

func scanFolders(root string) ([]string, []Info, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, nil, fmt.Errorf("read data_prefix: %w", err)
	}

	var folders []string
	for _, e := range entries {
		if e.IsDir() {
			folders = append(folders, e.Name())
		}
	}
	sort.Strings(folders)
	if len(folders) == 0 {
		return nil, nil, fmt.Errorf("%w: no class folders under %s", ErrNoClasses, root)
	}

	var infos []Info
	for label, folder := range folders {
		var files []string
		err := filepath.WalkDir(filepath.Join(root, folder), func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !isImage(d.Name()) {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			files = append(files, filepath.ToSlash(rel))
			return nil
		})
		if err != nil {
			return nil, nil, fmt.Errorf("scan %s: %w", folder, err)
		}
		sort.Strings(files)
		for _, f := range files {
			infos = append(infos, Info{ImgPrefix: root, Filename: f, GtLabel: label})
		}
	}
	return folders, infos, nil
}

func isImage(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range ImageExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
