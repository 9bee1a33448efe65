package dataset

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/ironsheep/craft-eval/internal/imaging"
)

// ErrNoSamples is returned when a dataset directory holds no usable image.
var ErrNoSamples = errors.New("no samples found")

const (
	characterSuffix = "_char"
	affinitySuffix  = "_aff"
)

var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true}

// DirDataset reads samples from a flat directory laid out as
//
//	<name>.png (or .jpg/.jpeg)   the image
//	<name>_char.png              character heatmap, grayscale
//	<name>_aff.png               affinity heatmap, grayscale
//
// Images are resized to ImageSize x ImageSize and heatmaps to
// HeatmapSize x HeatmapSize; all values are scaled to [0,1].
type DirDataset struct {
	dir         string
	names       []string
	imageFiles  []string
	imageSize   int
	heatmapSize int
	cache       *imaging.ImageCache
}

// NewDirDataset scans dir and checks that every image has both heatmaps.
// Samples are ordered by file name. cache may be shared between datasets;
// nil keeps no decoded file after it is read.
func NewDirDataset(dir string, imageSize, heatmapSize int, cache *imaging.ImageCache) (*DirDataset, error) {
	if imageSize <= 0 || heatmapSize <= 0 {
		return nil, fmt.Errorf("invalid sizes: image %d, heatmap %d", imageSize, heatmapSize)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dataset dir: %w", err)
	}

	if cache == nil {
		cache = imaging.NewImageCache(0)
	}
	d := &DirDataset{
		dir:         dir,
		imageSize:   imageSize,
		heatmapSize: heatmapSize,
		cache:       cache,
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !imageExts[ext] {
			continue
		}
		name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if strings.HasSuffix(name, characterSuffix) || strings.HasSuffix(name, affinitySuffix) {
			continue
		}
		for _, suffix := range []string{characterSuffix, affinitySuffix} {
			if _, err := os.Stat(filepath.Join(dir, name+suffix+".png")); err != nil {
				return nil, fmt.Errorf("sample %s: missing %s heatmap: %w", name, suffix, err)
			}
		}
		d.names = append(d.names, name)
		d.imageFiles = append(d.imageFiles, e.Name())
	}
	if len(d.names) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoSamples, dir)
	}

	return d, nil
}

// Len implements Dataset.
func (d *DirDataset) Len() int {
	return len(d.names)
}

// Get implements Dataset.
func (d *DirDataset) Get(i int) (Sample, error) {
	if i < 0 || i >= len(d.names) {
		return Sample{}, fmt.Errorf("%w: %d of %d", ErrIndex, i, len(d.names))
	}
	name := d.names[i]

	img, err := d.load(d.imageFiles[i])
	if err != nil {
		return Sample{}, err
	}
	char, err := d.load(name + characterSuffix + ".png")
	if err != nil {
		return Sample{}, err
	}
	aff, err := d.load(name + affinitySuffix + ".png")
	if err != nil {
		return Sample{}, err
	}

	s, err := NewSample(imaging.ToCHW(img, d.imageSize, d.imageSize), 3, d.imageSize, d.imageSize,
		imaging.GrayPlane(char, d.heatmapSize, d.heatmapSize),
		imaging.GrayPlane(aff, d.heatmapSize, d.heatmapSize))
	if err != nil {
		return Sample{}, fmt.Errorf("sample %s: %w", name, err)
	}
	return s, nil
}

func (d *DirDataset) load(file string) (image.Image, error) {
	return d.cache.Load(filepath.Join(d.dir, file))
}
