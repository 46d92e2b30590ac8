// Package config loads the card scanner's TOML configuration.
//
// Every field has a default given by its struct tag, so an empty or missing
// file yields a working configuration. A file only needs the keys it
// changes:
//
//	[scan]
//	strategy = "adaptive"
//
//	[index]
//	path = "data/phash.cbor"
//	bucket_size = 4
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ausocean/utils/logging"
	"github.com/mcuadros/go-defaults"

	"github.com/ironsheep/card-scanner/internal/quad"
	"github.com/ironsheep/card-scanner/internal/scanner"
	"github.com/ironsheep/card-scanner/internal/segment"
)

// Environment variables consulted by Load.
const (
	EnvConfigPath = "CARD_SCAN_CONFIG"
	EnvLogLevel   = "CARD_SCAN_LOG_LEVEL"
	EnvIndexPath  = "CARD_SCAN_INDEX"
)

// Log configures logging. With no file, logs go to stderr only.
type Log struct {
	Level      string `toml:"level" default:"info"`
	File       string `toml:"file"`
	MaxSize    int    `toml:"max_size" default:"50"` // MB.
	MaxBackups int    `toml:"max_backups" default:"5"`
	MaxAge     int    `toml:"max_age" default:"28"` // Days.
	Suppress   bool   `toml:"suppress"`
}

// Scan selects the thresholding strategy and whether reference images are
// photographs that need the card located before hashing.
type Scan struct {
	Strategy         segment.Strategy `toml:"strategy"`
	DetectReferences bool             `toml:"detect_references"`
}

// Index locates the reference store.
type Index struct {
	Path       string `toml:"path" default:"data/phash.json"`
	BucketSize int    `toml:"bucket_size" default:"1"`
}

// HTTP configures the REST server.
type HTTP struct {
	Addr string `toml:"addr" default:":9090"`
}

// Config is the complete configuration.
type Config struct {
	Log     Log             `toml:"log"`
	Scan    Scan            `toml:"scan"`
	Segment segment.Options `toml:"segment"`
	Quad    quad.Params     `toml:"quad"`
	Index   Index           `toml:"index"`
	HTTP    HTTP            `toml:"http"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	c := &Config{}
	defaults.SetDefaults(c)
	return c
}

// Load reads the file at path over the defaults. An empty path falls back
// to $CARD_SCAN_CONFIG, and if that is unset too the defaults are used
// alone. $CARD_SCAN_LOG_LEVEL and $CARD_SCAN_INDEX override the file.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}

	c := Default()
	if path != "" {
		md, err := toml.DecodeFile(path, c)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("unknown config keys in %s: %s", path, strings.Join(keys, ", "))
		}
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvIndexPath); v != "" {
		c.Index.Path = v
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks values that would otherwise fail deep in a scan.
func (c *Config) Validate() error {
	var errs []error
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Index.BucketSize < 1 {
		errs = append(errs, fmt.Errorf("index.bucket_size must be at least 1, got %d", c.Index.BucketSize))
	}
	if c.Segment.MaxSize < 0 {
		errs = append(errs, fmt.Errorf("segment.max_size must not be negative, got %d", c.Segment.MaxSize))
	}
	if c.Quad.MaxSearchVertices < 4 {
		errs = append(errs, fmt.Errorf("quad.max_search_vertices must be at least 4, got %d", c.Quad.MaxSearchVertices))
	}
	if c.Quad.MinFormFactor >= c.Quad.MaxFormFactor {
		errs = append(errs, fmt.Errorf("quad.min_form_factor %v must be below quad.max_form_factor %v",
			c.Quad.MinFormFactor, c.Quad.MaxFormFactor))
	}
	return errors.Join(errs...)
}

// ScannerOptions returns the scanner settings.
func (c *Config) ScannerOptions() scanner.Options {
	return scanner.Options{
		Strategy: c.Scan.Strategy,
		Segment:  c.Segment,
		Quad:     c.Quad,
	}
}

// ParseLevel converts a level name into an ausocean logging level.
func ParseLevel(name string) (int8, error) {
	switch strings.ToLower(name) {
	case "debug":
		return logging.Debug, nil
	case "info", "":
		return logging.Info, nil
	case "warn", "warning":
		return logging.Warning, nil
	case "error":
		return logging.Error, nil
	case "fatal":
		return logging.Fatal, nil
	}
	return 0, fmt.Errorf("unknown log level %q", name)
}
