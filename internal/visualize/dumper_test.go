package visualize

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"

	"github.com/ironsheep/craft-eval/internal/detection"
	"github.com/ironsheep/craft-eval/internal/heatmap"
)

var sampleFiles = []string{
	"image.png",
	"target_characters.png",
	"target_affinity.png",
	"pred_characters.png",
	"pred_affinity.png",
	"pred_characters_thresh.png",
	"pred_affinity_thresh.png",
}

// testBatch returns a two-sample batch with 32x32 RGB images and 16x16
// heatmaps holding one word each.
func testBatch(t *testing.T) (img, out, char, aff *tensor.Dense) {
	t.Helper()
	const n, size, hsize = 2, 32, 16

	pixels := make([]float32, n*3*size*size)
	for i := range pixels {
		pixels[i] = 0.5
	}

	var chars, affs []heatmap.Plane
	for i := 0; i < n; i++ {
		c := heatmap.NewPlane(hsize, hsize)
		a := heatmap.NewPlane(hsize, hsize)
		for y := 4; y <= 9; y++ {
			for x := 2 + i; x <= 11+i; x++ {
				c.Set(x, y, 0.9)
			}
		}
		for y := 5; y <= 8; y++ {
			a.Set(6+i, y, 0.7)
		}
		chars = append(chars, c)
		affs = append(affs, a)
	}
	out, err := heatmap.Stack(chars, affs)
	require.NoError(t, err)

	var charData, affData []float32
	for i := range chars {
		charData = append(charData, chars[i].Data...)
		affData = append(affData, affs[i].Data...)
	}
	return heatmap.NewTensor(pixels, n, 3, size, size), out,
		heatmap.NewTensor(charData, n, hsize, hsize),
		heatmap.NewTensor(affData, n, hsize, hsize)
}

var testThresholds = heatmap.Thresholds{Character: 0.5, Affinity: 0.5}

func TestDump_WritesSevenFilesPerSample(t *testing.T) {
	dir := t.TempDir()
	img, out, char, aff := testBatch(t)

	require.NoError(t, NewDumper(dir, testThresholds).Dump(3, img, out, char, aff))

	for _, sample := range []string{"0", "1"} {
		entries, err := os.ReadDir(filepath.Join(dir, "3", sample))
		require.NoError(t, err)
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		assert.ElementsMatch(t, sampleFiles, names, "sample %s", sample)
	}
	assert.NoDirExists(t, filepath.Join(dir, "3", "2"))
}

func TestDump_ImageContents(t *testing.T) {
	dir := t.TempDir()
	img, out, char, aff := testBatch(t)
	require.NoError(t, NewDumper(dir, testThresholds).Dump(1, img, out, char, aff))

	src, err := imaging.Open(filepath.Join(dir, "1", "0", "image.png"))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 32, 32), src.Bounds())
	r, g, b, _ := src.At(5, 5).RGBA()
	assert.Equal(t, []uint32{128, 128, 128}, []uint32{r >> 8, g >> 8, b >> 8})

	thresh, err := imaging.Open(filepath.Join(dir, "1", "0", "pred_characters_thresh.png"))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 16, 16), thresh.Bounds())
	on, _, _, _ := thresh.At(5, 5).RGBA()
	off, _, _, _ := thresh.At(0, 0).RGBA()
	assert.Equal(t, uint32(0xffff), on)
	assert.Equal(t, uint32(0), off)
}

func TestDump_Overwrites(t *testing.T) {
	dir := t.TempDir()
	img, out, char, aff := testBatch(t)
	d := NewDumper(dir, testThresholds)

	require.NoError(t, d.Dump(2, img, out, char, aff))
	require.NoError(t, d.Dump(2, img, out, char, aff))
}

func TestDump_Overlay(t *testing.T) {
	dir := t.TempDir()
	img, out, char, aff := testBatch(t)

	d := NewDumper(dir, testThresholds, WithOverlay(detection.DefaultOptions()))
	require.NoError(t, d.Dump(5, img, out, char, aff))

	path := filepath.Join(dir, "5", "1", "pred_words.png")
	require.FileExists(t, path)
	overlay, err := imaging.Open(path)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 32, 32), overlay.Bounds())

	gray := color.NRGBAModel.Convert(color.NRGBA{128, 128, 128, 255})
	changed := false
	b := overlay.Bounds()
	for y := b.Min.Y; y < b.Max.Y && !changed; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if color.NRGBAModel.Convert(overlay.At(x, y)) != gray {
				changed = true
				break
			}
		}
	}
	assert.True(t, changed, "overlay should draw over the image")
}

func TestDump_FilesystemError(t *testing.T) {
	dir := t.TempDir()
	// A file where the iteration directory should go
	require.NoError(t, os.WriteFile(filepath.Join(dir, "4"), []byte("x"), 0o644))
	img, out, char, aff := testBatch(t)

	err := NewDumper(dir, testThresholds).Dump(4, img, out, char, aff)
	assert.Error(t, err)
}

func TestDump_ShapeMismatch(t *testing.T) {
	_, out, char, aff := testBatch(t)

	flat := heatmap.NewTensor(make([]float32, 3*32*32), 3, 32, 32)
	err := NewDumper(t.TempDir(), testThresholds).Dump(1, flat, out, char, aff)
	assert.ErrorIs(t, err, heatmap.ErrShape)

	one := heatmap.NewTensor(make([]float32, 3*32*32), 1, 3, 32, 32)
	err = NewDumper(t.TempDir(), testThresholds).Dump(1, one, out, char, aff)
	assert.ErrorIs(t, err, heatmap.ErrShape)
}

func TestWordColor(t *testing.T) {
	seen := map[color.NRGBA]bool{}
	for i := 0; i < 3; i++ {
		c := color.NRGBAModel.Convert(WordColor(i, 3)).(color.NRGBA)
		assert.Equal(t, uint8(255), c.A)
		seen[c] = true
	}
	assert.Len(t, seen, 3)

	assert.NotPanics(t, func() { WordColor(0, 0) })
}
