// Package model builds the classifier description from the config and renders its predictions.
package model

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/nfnt/resize"
	"golang.org/x/image/bmp"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/tiff"
)

// ErrUnknownType is returned for a model type with no registered builder.
var ErrUnknownType = errors.New("model: unknown type")

// registered classifier types.
var classifierTypes = map[string]bool{
	"ImageClassifier": true,
}

// Config is the model section of the analysis config.
type Config struct {
	Type     string `yaml:"type"`
	Backbone struct {
		Type string `yaml:"type"`
	} `yaml:"backbone"`
	Head struct {
		Type       string `yaml:"type"`
		NumClasses int    `yaml:"num_classes"`
	} `yaml:"head"`
}

// Classifier is what the analysis needs from the model: its shape and a way to draw results.
type Classifier struct {
	Type       string
	Backbone   string
	NumClasses int
	// MaxWidth downscales rendered images wider than this; 0 keeps the original size
	MaxWidth  uint
	TextColor color.Color
	BoxColor  color.Color
}

// Annotation is one "key: value" line drawn onto an image.
type Annotation struct {
	Key   string
	Value any
}

// Build validates the model section and returns a classifier ready for rendering.
func Build(cfg Config) (*Classifier, error) {
	if !classifierTypes[cfg.Type] {
		known := make([]string, 0, len(classifierTypes))
		for k := range classifierTypes {
			known = append(known, k)
		}
		sort.Strings(known)
		return nil, fmt.Errorf("%w: %q (registered: %s)", ErrUnknownType, cfg.Type, strings.Join(known, ", "))
	}
	if cfg.Head.NumClasses < 0 {
		return nil, fmt.Errorf("model: head.num_classes must be >= 0, got %d", cfg.Head.NumClasses)
	}
	return &Classifier{
		Type:       cfg.Type,
		Backbone:   cfg.Backbone.Type,
		NumClasses: cfg.Head.NumClasses,
		TextColor:  color.White,
		BoxColor:   color.RGBA{A: 160},
	}, nil
}

// CheckClasses reports a mismatch between the head size and the dataset's class count.
// A zero head size is treated as unknown.
func (c *Classifier) CheckClasses(n int) error {
	if c.NumClasses == 0 || c.NumClasses == n {
		return nil
	}
	return fmt.Errorf("model head predicts %d classes but the dataset defines %d", c.NumClasses, n)
}

const (
	lineHeight = 15
	padding    = 4
)

// ShowResult draws the annotations in the top-left corner of the image at imgPath and writes
// the result to outFile, encoded according to its extension.
func (c *Classifier) ShowResult(imgPath string, anns []Annotation, outFile string) error {
	f, err := os.Open(imgPath)
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	src, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("decode %s: %w", imgPath, err)
	}

	if c.MaxWidth > 0 && uint(src.Bounds().Dx()) > c.MaxWidth {
		src = resize.Resize(c.MaxWidth, 0, src, resize.Lanczos3)
	}

	b := src.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(canvas, canvas.Bounds(), src, b.Min, draw.Src)

	c.annotate(canvas, anns)

	return save(canvas, outFile)
}

func (c *Classifier) annotate(img *image.RGBA, anns []Annotation) {
	if len(anns) == 0 {
		return
	}
	face := basicfont.Face7x13

	lines := make([]string, len(anns))
	width := 0
	for i, a := range anns {
		lines[i] = a.Key + ": " + formatValue(a.Value)
		if w := font.MeasureString(face, lines[i]).Ceil(); w > width {
			width = w
		}
	}

	box := image.Rect(0, 0, width+2*padding, len(lines)*lineHeight+2*padding).Intersect(img.Bounds())
	draw.Draw(img, box, image.NewUniform(c.BoxColor), image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c.TextColor),
		Face: face,
	}
	for i, line := range lines {
		d.Dot = fixed.P(padding, padding+(i+1)*lineHeight-3)
		d.DrawString(line)
	}
}

func formatValue(v any) string {
	switch t := v.(type) {
	case float64:
		return strconv.FormatFloat(t, 'f', 4, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', 4, 32)
	case string:
		return t
	default:
		return fmt.Sprint(v)
	}
}

func save(img image.Image, path string) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		err = png.Encode(out, img)
	case ".gif":
		err = gif.Encode(out, img, nil)
	case ".bmp":
		err = bmp.Encode(out, img)
	case ".tif", ".tiff":
		err = tiff.Encode(out, img, nil)
	default:
		err = jpeg.Encode(out, img, &jpeg.Options{Quality: 95})
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return nil
}
