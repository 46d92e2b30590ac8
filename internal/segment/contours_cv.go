//go:build withcv
// +build withcv

package segment

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/ironsheep/card-scanner/internal/geometry"
)

// findContours traces the mask with OpenCV, listing every outer and hole
// boundary. Contours enclosing fewer than minRegion pixels are dropped.
func findContours(mask *image.Gray, minRegion int) []geometry.Contour {
	m, err := gocv.ImageGrayToMatGray(mask)
	if err != nil {
		return Trace(mask, minRegion)
	}
	defer m.Close()

	pv := gocv.FindContours(m, gocv.RetrievalList, gocv.ChainApproxNone)
	defer pv.Close()

	origin := mask.Bounds().Min
	out := make([]geometry.Contour, 0, pv.Size())
	for i := 0; i < pv.Size(); i++ {
		c := pv.At(i)
		if gocv.ContourArea(c) < float64(minRegion) {
			continue
		}
		pts := c.ToPoints()
		contour := make(geometry.Contour, len(pts))
		for j, p := range pts {
			contour[j] = p.Add(origin)
		}
		out = append(out, contour)
	}
	return out
}
