// Package httpapi serves card identification over HTTP.
//
//	GET  /health         liveness
//	POST /scan           {"image": "<base64>", "top_k": 3}
//	POST /fingerprint    {"image": "<base64>", "detect": true}
//	GET  /index          reference index statistics
//	POST /index/reload   reread the configured reference store
package httpapi

import (
	"errors"
	"io"
	"time"

	"github.com/ausocean/utils/logging"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"

	"github.com/ironsheep/card-scanner/internal/index"
	"github.com/ironsheep/card-scanner/internal/phash"
	"github.com/ironsheep/card-scanner/internal/photo"
	"github.com/ironsheep/card-scanner/internal/quad"
	"github.com/ironsheep/card-scanner/internal/refstore"
	"github.com/ironsheep/card-scanner/internal/scanner"
)

// Options configures the API.
type Options struct {
	IndexPath  string
	BucketSize int

	// AccessLog receives one line per request. Defaults to stdout.
	AccessLog io.Writer

	// BodyLimit is the largest accepted request body in bytes.
	BodyLimit int
}

type api struct {
	scanner *scanner.Scanner
	log     logging.Logger
	opts    Options
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// New returns a fiber app serving sc.
func New(sc *scanner.Scanner, o Options, log logging.Logger) *fiber.App {
	if o.BucketSize < 1 {
		o.BucketSize = 1
	}
	if o.BodyLimit <= 0 {
		o.BodyLimit = 32 * 1024 * 1024
	}
	a := &api{scanner: sc, log: log, opts: o}

	app := fiber.New(fiber.Config{
		BodyLimit:             o.BodyLimit,
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			if code >= fiber.StatusInternalServerError {
				log.Error("request failed", "path", c.Path(), "error", err.Error())
			}
			return c.Status(code).JSON(ErrorResponse{Error: err.Error()})
		},
	})

	app.Use(logger.New(logger.Config{Output: o.AccessLog}))
	app.Use(cors.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"time":   time.Now(),
		})
	})
	app.Post("/scan", a.scan)
	app.Post("/fingerprint", a.fingerprint)
	app.Get("/index", a.indexInfo)
	app.Post("/index/reload", a.indexReload)

	return app
}

// statusOf maps scan failures onto HTTP errors.
func statusOf(err error) error {
	switch {
	case errors.Is(err, index.ErrEmptyIndex):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	case errors.Is(err, scanner.ErrNoCardFound):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	}
	return err
}

// ScanRequest is the body of POST /scan.
type ScanRequest struct {
	Image string `json:"image"`
	TopK  int    `json:"top_k"`
}

// ScanResponse is returned by POST /scan.
type ScanResponse struct {
	CardID      string            `json:"card_id"`
	Distance    int               `json:"distance"`
	Ambiguous   bool              `json:"ambiguous"`
	Fingerprint phash.Fingerprint `json:"fingerprint"`
	Quad        quad.BoundingQuad `json:"quad"`
	CropFactor  float64           `json:"crop_factor"`
	Attempts    int               `json:"attempts"`
	Nearest     []index.Match     `json:"nearest,omitempty"`
	Elapsed     string            `json:"elapsed"`
}

func (a *api) scan(c *fiber.Ctx) error {
	start := time.Now()

	var req ScanRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body: "+err.Error())
	}
	if req.Image == "" {
		return fiber.NewError(fiber.StatusBadRequest, "image is required")
	}
	img, err := photo.DecodeBase64(req.Image)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	res, err := a.scanner.Scan(img)
	if err != nil {
		return statusOf(err)
	}
	out := ScanResponse{
		CardID:      res.CardID,
		Distance:    res.Distance,
		Ambiguous:   res.Ambiguous,
		Fingerprint: res.Fingerprint,
		Quad:        res.Candidate.Quad,
		CropFactor:  res.Candidate.CropFactor,
		Attempts:    res.Attempts,
	}
	if req.TopK > 1 {
		out.Nearest, err = res.KNearest(req.TopK)
		if err != nil {
			return statusOf(err)
		}
	}
	out.Elapsed = time.Since(start).String()
	return c.JSON(out)
}

// FingerprintRequest is the body of POST /fingerprint. Detect defaults to
// true.
type FingerprintRequest struct {
	Image  string `json:"image"`
	Detect *bool  `json:"detect"`
}

// FingerprintResponse is returned by POST /fingerprint.
type FingerprintResponse struct {
	Fingerprint phash.Fingerprint `json:"fingerprint"`
	Detected    bool              `json:"detected"`
}

func (a *api) fingerprint(c *fiber.Ctx) error {
	var req FingerprintRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body: "+err.Error())
	}
	img, err := photo.DecodeBase64(req.Image)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	if req.Detect != nil && !*req.Detect {
		return c.JSON(FingerprintResponse{Fingerprint: phash.Hash(img)})
	}
	fp, err := a.scanner.Fingerprint(img)
	if err != nil {
		return statusOf(err)
	}
	return c.JSON(FingerprintResponse{Fingerprint: fp, Detected: true})
}

// IndexResponse is returned by the index endpoints.
type IndexResponse struct {
	Path string `json:"path"`
	index.Stats
}

func (a *api) indexInfo(c *fiber.Ctx) error {
	return c.JSON(IndexResponse{Path: a.opts.IndexPath, Stats: a.scanner.Index().Load().Stats()})
}

// ReloadRequest is the body of POST /index/reload. Path may only name the
// configured store; anything else is refused.
type ReloadRequest struct {
	Path string `json:"path"`
}

// errReloadFailed hides store paths and parser output from clients.
var errReloadFailed = fiber.NewError(fiber.StatusInternalServerError, "failed to reload reference index")

// indexReload rereads Options.IndexPath. Callers cannot point the server at
// other files.
func (a *api) indexReload(c *fiber.Ctx) error {
	var req ReloadRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}

	path := a.opts.IndexPath
	if path == "" {
		return fiber.NewError(fiber.StatusBadRequest, "no reference store configured")
	}
	if req.Path != "" && req.Path != path {
		a.log.Warning("refused reload of foreign store", "requested", req.Path, "ip", c.IP())
		return fiber.NewError(fiber.StatusForbidden, "only the configured reference store can be reloaded")
	}

	stats, err := refstore.Reload(a.scanner.Index(), path, a.opts.BucketSize)
	if err != nil {
		a.log.Error("reload failed", "path", path, "error", err.Error())
		return errReloadFailed
	}
	a.log.Info("reloaded reference index", "path", path, "entries", stats.Entries)
	return c.JSON(IndexResponse{Path: path, Stats: stats})
}
