package segment

import (
	"fmt"
	"image"
	"strings"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/channel"
	"github.com/anthonynsimon/bild/effect"
	bildsegment "github.com/anthonynsimon/bild/segment"
)

// Strategy selects how the preprocessed image is binarised.
type Strategy int

const (
	// Simple thresholds luminance at a fixed level.
	Simple Strategy = iota
	// Adaptive thresholds luminance against a Gaussian-weighted local mean.
	Adaptive
	// RGB thresholds each colour channel separately and traces all three.
	RGB
)

var strategyNames = map[Strategy]string{
	Simple:   "simple",
	Adaptive: "adaptive",
	RGB:      "rgb",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// ParseStrategy converts a configuration name into a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	for s, n := range strategyNames {
		if strings.EqualFold(name, n) {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown thresholding strategy %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Strategy) MarshalText() ([]byte, error) {
	if _, ok := strategyNames[s]; !ok {
		return nil, fmt.Errorf("unknown thresholding strategy %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler so strategies can be
// named in configuration files.
func (s *Strategy) UnmarshalText(text []byte) error {
	parsed, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// maskFunc binarises an image into one or more foreground masks.
type maskFunc func(img image.Image, o Options) []*image.Gray

var strategies = map[Strategy]maskFunc{
	Simple:   simpleMasks,
	Adaptive: adaptiveMasks,
	RGB:      rgbMasks,
}

// above returns a mask that is white where the luminance of img exceeds
// level.
func above(img image.Image, level uint8) *image.Gray {
	if level == 255 {
		return image.NewGray(img.Bounds())
	}
	return bildsegment.Threshold(img, level+1)
}

func simpleMasks(img image.Image, o Options) []*image.Gray {
	return []*image.Gray{above(img, o.SimpleLevel)}
}

func rgbMasks(img image.Image, o Options) []*image.Gray {
	masks := make([]*image.Gray, 0, 3)
	for _, c := range []channel.Channel{channel.Red, channel.Green, channel.Blue} {
		masks = append(masks, above(channel.Extract(img, c), o.RGBLevel))
	}
	return masks
}

// adaptiveBlock returns the odd neighbourhood size for an image: one plus
// twice the smaller of the height and a twentieth of the width.
func adaptiveBlock(w, h int) int {
	return 1 + 2*min(h, w/20)
}

func adaptiveMasks(img image.Image, o Options) []*image.Gray {
	gray := effect.Grayscale(img)
	b := gray.Bounds()
	block := adaptiveBlock(b.Dx(), b.Dy())
	sigma := 0.3*(float64(block-1)*0.5-1) + 0.8
	mean := blur.Gaussian(gray, sigma)

	mask := image.NewGray(b)
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			v := float64(gray.Pix[y*gray.Stride+x])
			m := float64(mean.Pix[y*mean.Stride+4*x])
			if v > m-o.AdaptiveOffset {
				mask.Pix[y*mask.Stride+x] = 255
			}
		}
	}
	return []*image.Gray{mask}
}
