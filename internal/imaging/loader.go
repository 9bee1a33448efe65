package imaging

import (
	"fmt"
	"image"
	"sync"

	"github.com/disintegration/imaging"
)

// ImageCache keeps decoded dataset files in memory, keyed by path, so
// repeated passes over a dataset skip decoding. It is safe for concurrent
// use by loader workers.
//
// A positive limit caps how many images are retained; once full, loads still
// succeed but are not stored. A zero limit retains nothing and a negative
// limit retains everything.
type ImageCache struct {
	mu     sync.RWMutex
	limit  int
	images map[string]image.Image
}

// NewImageCache creates an empty cache holding at most limit images.
func NewImageCache(limit int) *ImageCache {
	return &ImageCache{
		limit:  limit,
		images: make(map[string]image.Image),
	}
}

// Load returns the decoded image at path, reading it on first use. JPEG
// EXIF orientation is applied. Paths are used verbatim as keys.
func (c *ImageCache) Load(path string) (image.Image, error) {
	c.mu.RLock()
	if img, ok := c.images[path]; ok {
		c.mu.RUnlock()
		return img, nil
	}
	c.mu.RUnlock()

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	c.mu.Lock()
	if c.limit < 0 || len(c.images) < c.limit {
		c.images[path] = img
	}
	c.mu.Unlock()

	return img, nil
}

// Len returns the number of cached images.
func (c *ImageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images)
}
