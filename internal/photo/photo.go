// Package photo loads card photographs and reference scans.
//
// Images are decoded with EXIF orientation applied, so a phone photo taken
// in portrait comes out upright. PNG, JPEG, GIF, BMP, TIFF and the netpbm
// formats (PBM, PGM, PPM, PAM) are supported.
package photo

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // Register GIF format decoder
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	_ "github.com/spakin/netpbm" // Register PBM/PGM/PPM/PAM format decoders
)

// ErrEmptyImage is returned for zero-length image data.
var ErrEmptyImage = errors.New("empty image data")

// Extensions lists the file extensions treated as images when walking a
// directory.
var Extensions = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".pbm", ".pgm", ".ppm", ".pnm", ".pam"}

// IsImageFile reports whether path has an image extension.
func IsImageFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Decode reads an image from r.
func Decode(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// DecodeBase64 decodes a base64 encoded image, optionally wrapped in a data
// URI such as "data:image/png;base64,...".
func DecodeBase64(s string) (image.Image, error) {
	if strings.HasPrefix(s, "data:") {
		i := strings.Index(s, ",")
		if i < 0 {
			return nil, errors.New("malformed data URI")
		}
		s = s[i+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid base64 image: %w", err)
	}
	if len(raw) == 0 {
		return nil, ErrEmptyImage
	}
	return Decode(bytes.NewReader(raw))
}

// EncodeBase64PNG encodes img as PNG and returns it base64 encoded.
func EncodeBase64PNG(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Open decodes the image file at path.
func Open(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

type cached struct {
	img     image.Image
	modTime time.Time
	size    int64
}

// Cache keeps decoded images keyed by path. An entry is reloaded when the
// file's size or modification time changes, so a photo overwritten in place
// is rescanned rather than served stale.
//
// Cache is safe for concurrent use.
type Cache struct {
	mu     sync.RWMutex
	images map[string]cached
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{images: make(map[string]cached)}
}

// Load returns the image at path, from the cache when the file is unchanged.
func (c *Cache) Load(path string) (image.Image, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}

	c.mu.RLock()
	entry, ok := c.images[path]
	c.mu.RUnlock()
	if ok && entry.modTime.Equal(stat.ModTime()) && entry.size == stat.Size() {
		return entry.img, nil
	}

	img, err := Open(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.images[path] = cached{img: img, modTime: stat.ModTime(), size: stat.Size()}
	c.mu.Unlock()

	return img, nil
}

// Len returns the number of cached images.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images)
}

// Evict removes path from the cache.
func (c *Cache) Evict(path string) {
	c.mu.Lock()
	delete(c.images, path)
	c.mu.Unlock()
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.images = make(map[string]cached)
	c.mu.Unlock()
}
