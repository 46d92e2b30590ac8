package quad

// Params holds the tunables of quad fitting and card candidacy. The struct
// tags let it be embedded directly in the service configuration.
type Params struct {
	// LengthCutoff is the fraction of the perimeter below which an edge is
	// collapsed during simplification.
	LengthCutoff float64 `toml:"length_cutoff" default:"0.15"`

	// MaxSearchVertices bounds the simplified polygon before the O(n⁴)
	// candidate search. Edges keep collapsing past the cutoff until the
	// polygon is at most this size.
	MaxSearchVertices int `toml:"max_search_vertices" default:"10"`

	// ShrinkFactor scales the hull toward its centroid before the
	// containment test so that shared boundary points do not fail it.
	ShrinkFactor float64 `toml:"shrink_factor" default:"0.9999"`

	// RegionSize places the corner-region cut line at this fraction of the
	// centre-to-corner distance.
	RegionSize float64 `toml:"region_size" default:"0.9"`

	// CropScale converts corner difference into crop factor.
	CropScale float64 `toml:"crop_scale" default:"0.22"`

	MaxCornerDiff float64 `toml:"max_corner_diff" default:"0.35"`

	// Form factor band calibrated to the 63×88 mm playing card.
	MinFormFactor float64 `toml:"min_form_factor" default:"0.25"`
	MaxFormFactor float64 `toml:"max_form_factor" default:"0.33"`

	// Quad area bounds relative to the largest segment and the image.
	MinSegmentFraction float64 `toml:"min_segment_fraction" default:"0.1"`
	MaxImageFraction   float64 `toml:"max_image_fraction" default:"0.99"`

	// Hulls smaller than this fraction of the image end the contour sweep.
	MinImageFraction float64 `toml:"min_image_fraction" default:"0.001"`
}

// DefaultParams returns the calibrated defaults.
func DefaultParams() Params {
	return Params{
		LengthCutoff:       0.15,
		MaxSearchVertices:  10,
		ShrinkFactor:       0.9999,
		RegionSize:         0.9,
		CropScale:          0.22,
		MaxCornerDiff:      0.35,
		MinFormFactor:      0.25,
		MaxFormFactor:      0.33,
		MinSegmentFraction: 0.1,
		MaxImageFraction:   0.99,
		MinImageFraction:   0.001,
	}
}

// Accepts applies the card-candidacy test: the quad area must lie strictly
// between MinSegmentFraction of the largest segment and MaxImageFraction of
// the image, the corner difference must be below MaxCornerDiff and the form
// factor must be inside the open band.
func (p Params) Accepts(area, cornerDiff, formFactor, maxSegmentArea, imageArea float64) bool {
	return p.MinSegmentFraction*maxSegmentArea < area &&
		area < p.MaxImageFraction*imageArea &&
		cornerDiff < p.MaxCornerDiff &&
		p.MinFormFactor < formFactor && formFactor < p.MaxFormFactor
}

// CropFactor converts a corner difference into the inset applied after
// rectification. A sharp hull gives 1.
func (p Params) CropFactor(cornerDiff float64) float64 {
	return CropFactor(cornerDiff, p.CropScale)
}

// CropFactor returns min(1, 1 - cornerDiff*scale).
func CropFactor(cornerDiff, scale float64) float64 {
	cf := 1 - cornerDiff*scale
	if cf > 1 {
		return 1
	}
	return cf
}
