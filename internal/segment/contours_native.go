//go:build !withcv

package segment

import (
	"image"

	"github.com/ironsheep/card-scanner/internal/geometry"
)

// findContours uses the pure Go tracer. Build with -tags withcv to use
// OpenCV instead.
func findContours(mask *image.Gray, minRegion int) []geometry.Contour {
	return Trace(mask, minRegion)
}
