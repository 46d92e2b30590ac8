// Package segment turns a photograph into candidate card contours.
//
// A Segmenter preprocesses the photograph (downscale and contrast-limited
// lightness equalisation), binarises it with one of three thresholding
// strategies and traces the boundary of every connected region of the
// resulting masks. The contours are handed to the quad fitter unsorted.
package segment

import (
	"fmt"
	"image"

	"github.com/ausocean/utils/logging"

	"github.com/ironsheep/card-scanner/internal/geometry"
)

// Options configures preprocessing and thresholding.
type Options struct {
	// MaxSize bounds the longest side of the preprocessed image.
	MaxSize int `toml:"max_size" default:"1000"`

	// ClipLimit and TileGrid configure lightness equalisation. A clip limit
	// of zero disables equalisation.
	ClipLimit float64 `toml:"clip_limit" default:"2.0"`
	TileGrid  int     `toml:"tile_grid" default:"8"`

	// Gray level a pixel must exceed to be foreground.
	SimpleLevel uint8 `toml:"simple_level" default:"70"`
	RGBLevel    uint8 `toml:"rgb_level" default:"110"`

	// AdaptiveOffset is subtracted from the local mean.
	AdaptiveOffset float64 `toml:"adaptive_offset" default:"10"`

	// Regions with fewer pixels are not traced.
	MinRegion int `toml:"min_region" default:"64"`
}

// DefaultOptions returns the calibrated defaults.
func DefaultOptions() Options {
	return Options{
		MaxSize:        1000,
		ClipLimit:      2.0,
		TileGrid:       8,
		SimpleLevel:    70,
		RGBLevel:       110,
		AdaptiveOffset: 10,
		MinRegion:      64,
	}
}

// Segmenter extracts contours with a strategy fixed at construction.
type Segmenter struct {
	strategy Strategy
	masks    maskFunc
	opts     Options
	log      logging.Logger
}

// New returns a Segmenter for strategy.
func New(strategy Strategy, opts Options, log logging.Logger) (*Segmenter, error) {
	masks, ok := strategies[strategy]
	if !ok {
		return nil, fmt.Errorf("unknown thresholding strategy %d", int(strategy))
	}
	return &Segmenter{strategy: strategy, masks: masks, opts: opts, log: log}, nil
}

// Strategy returns the thresholding strategy in use.
func (s *Segmenter) Strategy() Strategy { return s.strategy }

// Preprocess downscales and equalises img.
func (s *Segmenter) Preprocess(img image.Image) *image.NRGBA {
	return Preprocess(img, s.opts)
}

// Contours thresholds a preprocessed image and traces every region.
func (s *Segmenter) Contours(pre image.Image) []geometry.Contour {
	var out []geometry.Contour
	for _, mask := range s.masks(pre, s.opts) {
		out = append(out, findContours(mask, s.opts.MinRegion)...)
	}
	s.log.Debug("extracted contours", "strategy", s.strategy.String(), "count", len(out))
	return out
}

// Segment preprocesses img and returns the preprocessed image together with
// its contours. Contour coordinates refer to the preprocessed image.
func (s *Segmenter) Segment(img image.Image) (*image.NRGBA, []geometry.Contour) {
	pre := s.Preprocess(img)
	return pre, s.Contours(pre)
}
