package model

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/andresmejia3/verdict/internal/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func readImage(t *testing.T, path string) image.Image {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, _, err := image.Decode(f)
	require.NoError(t, err)
	return img
}

func TestBuild(t *testing.T) {
	var cfg Config
	cfg.Type = "ImageClassifier"
	cfg.Head.NumClasses = 3

	c, err := Build(cfg)
	require.NoError(t, err)
	assert.Equal(t, 3, c.NumClasses)
	assert.NoError(t, c.CheckClasses(3))
	assert.Error(t, c.CheckClasses(5))

	cfg.Head.NumClasses = 0
	c, err = Build(cfg)
	require.NoError(t, err)
	assert.NoError(t, c.CheckClasses(5), "unknown head size should not be checked")

	_, err = Build(Config{Type: "Detector"})
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestShowResult(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.png")
	writePNG(t, src, 160, 80)

	c, err := Build(Config{Type: "ImageClassifier"})
	require.NoError(t, err)

	out := filepath.Join(dir, "out.png")
	err = c.ShowResult(src, []Annotation{
		{Key: "pred_score", Value: 0.91234},
		{Key: "pred_class", Value: "dog"},
		{Key: "gt_class", Value: "cat"},
	}, out)
	require.NoError(t, err)

	img := readImage(t, out)
	assert.Equal(t, 160, img.Bounds().Dx())
	assert.Equal(t, 80, img.Bounds().Dy())

	// Banner darkens the corner, the far corner is untouched
	r, _, _, _ := img.At(1, 1).RGBA()
	assert.Less(t, r>>8, uint32(200))
	r, _, _, _ = img.At(159, 79).RGBA()
	assert.Equal(t, uint32(200), r>>8)
}

func TestShowResultDownscales(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.png")
	writePNG(t, src, 400, 200)

	c, err := Build(Config{Type: "ImageClassifier"})
	require.NoError(t, err)
	c.MaxWidth = 100

	out := filepath.Join(dir, "out.jpg")
	require.NoError(t, c.ShowResult(src, nil, out))

	img := readImage(t, out)
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 50, img.Bounds().Dy())
}

func TestShowResultMissingImage(t *testing.T) {
	c, err := Build(Config{Type: "ImageClassifier"})
	require.NoError(t, err)

	err = c.ShowResult(filepath.Join(t.TempDir(), "nope.png"), nil, filepath.Join(t.TempDir(), "out.png"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "0.5000", formatValue(0.5))
	assert.Equal(t, "dog", formatValue("dog"))
	assert.Equal(t, "3", formatValue(3))
}

// Every extension the folder scan accepts must decode, or a rendering run aborts midway.
func TestShowResultDecodesDatasetExtensions(t *testing.T) {
	dir := t.TempDir()
	c, err := Build(Config{Type: "ImageClassifier"})
	require.NoError(t, err)

	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for _, ext := range dataset.ImageExtensions {
		t.Run(ext, func(t *testing.T) {
			src := filepath.Join(dir, "src"+ext)
			require.NoError(t, save(img, src))

			out := filepath.Join(dir, "out"+ext)
			require.NoError(t, c.ShowResult(src, []Annotation{{Key: "pred_class", Value: "cat"}}, out))
			assert.Equal(t, 32, readImage(t, out).Bounds().Dx())
		})
	}
}
