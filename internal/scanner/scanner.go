// Package scanner identifies a trading card in a photograph.
//
// A scan runs the stages
//
//	Preprocessed → ContoursExtracted → QuadCandidateFound → Rectified → Fingerprinted → Matched
//
// in order and stops at the first failure. Contours are tried largest first
// until one is fitted by a plausible card quadrilateral; that quadrilateral
// is warped to a rectangle, fingerprinted and looked up in the reference
// index. A quadrilateral too small to warp counts as a failed fit, so the
// search moves on and no scan stops at Rectified.
//
// A Scanner holds no per-scan state and may be used from many goroutines.
// The only thing scans share is the reference index, which is swapped
// atomically when the reference set changes.
package scanner

import (
	"errors"
	"fmt"
	"image"
	"sort"

	"github.com/ausocean/utils/logging"

	"github.com/ironsheep/card-scanner/internal/geometry"
	"github.com/ironsheep/card-scanner/internal/index"
	"github.com/ironsheep/card-scanner/internal/phash"
	"github.com/ironsheep/card-scanner/internal/quad"
	"github.com/ironsheep/card-scanner/internal/rectify"
	"github.com/ironsheep/card-scanner/internal/segment"
)

// Stage is a step of the scan pipeline.
type Stage int

const (
	Preprocessed Stage = iota + 1
	ContoursExtracted
	QuadCandidateFound
	Rectified
	Fingerprinted
	Matched
)

var stageNames = map[Stage]string{
	Preprocessed:       "preprocessed",
	ContoursExtracted:  "contours extracted",
	QuadCandidateFound: "quad candidate found",
	Rectified:          "rectified",
	Fingerprinted:      "fingerprinted",
	Matched:            "matched",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

var (
	// ErrNoCardFound is returned when no contour is fitted by a plausible
	// card quadrilateral.
	ErrNoCardFound = errors.New("no card found")

	// ErrEmptyIndex is returned when scanning against an empty reference set.
	ErrEmptyIndex = index.ErrEmptyIndex
)

// Error reports the stage a scan could not reach.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("scan stopped before %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// CardCandidate is a located and rectified card.
type CardCandidate struct {
	Image      image.Image       `json:"-"`
	Quad       quad.BoundingQuad `json:"quad"`
	CropFactor float64           `json:"crop_factor"`
	Valid      bool              `json:"valid"`
}

// Result is a successful identification.
type Result struct {
	index.Match
	Candidate   CardCandidate     `json:"candidate"`
	Fingerprint phash.Fingerprint `json:"fingerprint"`

	// Attempts is the number of contours characterised before a card was
	// found.
	Attempts int `json:"attempts"`

	tree *index.Tree
}

// KNearest returns the k references closest to the scanned card, from the
// same index snapshot that produced the match.
func (r *Result) KNearest(k int) ([]index.Match, error) {
	return r.tree.KNearest(r.Fingerprint, k)
}

// Options configures a Scanner.
type Options struct {
	Strategy segment.Strategy
	Segment  segment.Options
	Quad     quad.Params
}

// DefaultOptions returns simple thresholding with the calibrated defaults.
func DefaultOptions() Options {
	return Options{
		Strategy: segment.Simple,
		Segment:  segment.DefaultOptions(),
		Quad:     quad.DefaultParams(),
	}
}

// Scanner runs scans against a shared reference index.
type Scanner struct {
	index  *index.Shared
	seg    *segment.Segmenter
	fitter *quad.Fitter
	warp   func(img image.Image, q geometry.Polygon, cropFactor float64) (*image.NRGBA, error)
	log    logging.Logger
}

// New returns a Scanner querying idx. The thresholding strategy is fixed
// here for the lifetime of the Scanner.
func New(idx *index.Shared, o Options, log logging.Logger) (*Scanner, error) {
	if idx == nil {
		return nil, errors.New("scanner: nil index")
	}
	seg, err := segment.New(o.Strategy, o.Segment, log)
	if err != nil {
		return nil, fmt.Errorf("scanner: %w", err)
	}
	return &Scanner{
		index:  idx,
		seg:    seg,
		fitter: quad.NewFitter(o.Quad, log),
		warp:   rectify.Rectify,
		log:    log,
	}, nil
}

// Index returns the shared reference index.
func (s *Scanner) Index() *index.Shared { return s.index }

// Strategy returns the thresholding strategy in use.
func (s *Scanner) Strategy() segment.Strategy { return s.seg.Strategy() }

// Scan preprocesses and segments img, then identifies the card in it.
func (s *Scanner) Scan(img image.Image) (*Result, error) {
	if s.index.Load().Len() == 0 {
		return nil, &Error{Stage: Matched, Err: ErrEmptyIndex}
	}
	pre, contours := s.seg.Segment(img)
	s.log.Debug("segmented image", "width", pre.Bounds().Dx(), "height", pre.Bounds().Dy(), "contours", len(contours))
	return s.ScanContours(pre, contours)
}

// ScanContours identifies the card in img given its candidate contours.
// img must be the image the contours were traced on.
func (s *Scanner) ScanContours(img image.Image, contours []geometry.Contour) (*Result, error) {
	tree := s.index.Load()
	if tree.Len() == 0 {
		return nil, &Error{Stage: Matched, Err: ErrEmptyIndex}
	}

	cand, attempts, err := s.locate(img, contours)
	if err != nil {
		return nil, err
	}

	fp := phash.Hash(cand.Image)
	match, err := tree.Nearest(fp)
	if err != nil {
		return nil, &Error{Stage: Matched, Err: err}
	}
	s.log.Info("identified card", "card", match.CardID, "distance", match.Distance, "ambiguous", match.Ambiguous)

	return &Result{
		Match:       match,
		Candidate:   *cand,
		Fingerprint: fp,
		Attempts:    attempts,
		tree:        tree,
	}, nil
}

// Detect locates and rectifies the card in img without consulting the
// index.
func (s *Scanner) Detect(img image.Image) (*CardCandidate, error) {
	pre, contours := s.seg.Segment(img)
	cand, _, err := s.locate(pre, contours)
	return cand, err
}

// Fingerprint locates the card in img and returns its fingerprint.
func (s *Scanner) Fingerprint(img image.Image) (phash.Fingerprint, error) {
	cand, err := s.Detect(img)
	if err != nil {
		return phash.Fingerprint{}, err
	}
	return phash.Hash(cand.Image), nil
}

// locate tries contours in descending area order and rectifies the first
// valid candidate. A candidate that cannot be rectified is skipped like any
// other geometric failure.
func (s *Scanner) locate(img image.Image, contours []geometry.Contour) (*CardCandidate, int, error) {
	if len(contours) == 0 {
		return nil, 0, &Error{Stage: QuadCandidateFound, Err: ErrNoCardFound}
	}

	type sized struct {
		contour geometry.Contour
		area    float64
	}
	order := make([]sized, len(contours))
	for i, c := range contours {
		order[i] = sized{c, geometry.ContourArea(c)}
	}
	sort.SliceStable(order, func(i, j int) bool { return order[i].area > order[j].area })

	b := img.Bounds()
	imageArea := float64(b.Dx() * b.Dy())
	maxSegmentArea := order[0].area

	attempts := 0
	for _, o := range order {
		attempts++
		c, err := s.fitter.Fit(o.contour, maxSegmentArea, imageArea)
		if errors.Is(err, quad.ErrDegenerateQuad) {
			continue
		}
		if !c.Continue {
			break
		}
		if !c.Valid {
			continue
		}

		warped, err := s.warp(img, c.Quad.Vertices, c.CropFactor)
		if err != nil {
			s.log.Debug("skipping candidate", "attempt", attempts, "error", err.Error())
			continue
		}
		s.log.Debug("found card", "attempt", attempts, "cornerDiff", c.Quad.CornerDiff, "cropFactor", c.CropFactor,
			"width", warped.Bounds().Dx(), "height", warped.Bounds().Dy())
		return &CardCandidate{
			Image:      warped,
			Quad:       c.Quad,
			CropFactor: c.CropFactor,
			Valid:      true,
		}, attempts, nil
	}

	s.log.Debug("no card candidate", "contours", len(contours), "attempts", attempts)
	return nil, attempts, &Error{Stage: QuadCandidateFound, Err: ErrNoCardFound}
}
