package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/ausocean/utils/logging"

	"github.com/ironsheep/card-scanner/internal/config"
	"github.com/ironsheep/card-scanner/internal/httpapi"
	"github.com/ironsheep/card-scanner/internal/index"
	"github.com/ironsheep/card-scanner/internal/photo"
	"github.com/ironsheep/card-scanner/internal/refstore"
	"github.com/ironsheep/card-scanner/internal/scanner"
	"github.com/ironsheep/card-scanner/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

const usage = `card-scan - identify trading cards from photographs

Usage:
  card-scan                          Run the MCP server on stdin/stdout
  card-scan scan <image>...          Identify the card in each image
  card-scan fingerprint <dir> <out>  Build a reference store from a directory
  card-scan serve-http               Run the HTTP API

Options:
  --version, -v    Print version information
  --help, -h       Print this help message

Environment variables:
  CARD_SCAN_CONFIG=path.toml     Configuration file
  CARD_SCAN_LOG_LEVEL=debug      Override the log level
  CARD_SCAN_INDEX=phash.cbor     Override the reference store path

Reference stores ending in .cbor are binary, anything else is JSON.
`

func main() {
	cmd := ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	switch cmd {
	case "--version", "-v", "version":
		fmt.Printf("card-scan %s\n", Version)
		fmt.Printf("  Build time: %s\n", BuildTime)
		fmt.Printf("  Git commit: %s\n", GitCommit)
		return
	case "--help", "-h", "help":
		fmt.Print(usage)
		return
	}

	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "card-scan: %v\n", err)
		os.Exit(2)
	}

	// Logs go to stderr; stdout carries MCP traffic or scan results.
	log, closer, err := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "card-scan: %v\n", err)
		os.Exit(2)
	}
	defer closer.Close()
	log.Debug("starting", "version", Version, "commit", GitCommit, "command", cmd)

	switch cmd {
	case "", "serve":
		err = runMCP(cfg, log)
	case "scan":
		err = runScan(cfg, log, os.Args[2:])
	case "fingerprint":
		err = runFingerprint(cfg, log, os.Args[2:])
	case "serve-http":
		err = runHTTP(cfg, log)
	default:
		fmt.Fprintf(os.Stderr, "card-scan: unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatal("card-scan failed", "command", cmd, "error", err.Error())
	}
}

// newScanner loads the configured reference store. A missing store is not
// fatal so that the server can start before references exist and pick them
// up later through a reload.
func newScanner(cfg *config.Config, log logging.Logger) (*scanner.Scanner, error) {
	tree, err := refstore.LoadTree(cfg.Index.Path, cfg.Index.BucketSize)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Warning("reference store not found, index is empty", "path", cfg.Index.Path)
	case err != nil:
		return nil, err
	default:
		st := tree.Stats()
		log.Info("loaded reference index", "path", cfg.Index.Path, "entries", st.Entries, "depth", st.Depth)
	}
	return scanner.New(index.NewShared(tree), cfg.ScannerOptions(), log)
}

func runMCP(cfg *config.Config, log logging.Logger) error {
	sc, err := newScanner(cfg, log)
	if err != nil {
		return err
	}
	srv := server.New(sc, server.Options{
		IndexPath:  cfg.Index.Path,
		BucketSize: cfg.Index.BucketSize,
		Version:    Version,
	}, log)
	return srv.Run()
}

func runHTTP(cfg *config.Config, log logging.Logger) error {
	sc, err := newScanner(cfg, log)
	if err != nil {
		return err
	}
	app := httpapi.New(sc, httpapi.Options{
		IndexPath:  cfg.Index.Path,
		BucketSize: cfg.Index.BucketSize,
		AccessLog:  os.Stderr,
	}, log)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("shutting down HTTP server")
		if err := app.Shutdown(); err != nil {
			log.Error("shutdown failed", "error", err.Error())
		}
	}()

	log.Info("HTTP server starting", "addr", cfg.HTTP.Addr)
	return app.Listen(cfg.HTTP.Addr)
}

type scanLine struct {
	File      string `json:"file"`
	CardID    string `json:"card_id,omitempty"`
	Distance  int    `json:"distance"`
	Ambiguous bool   `json:"ambiguous,omitempty"`
	Error     string `json:"error,omitempty"`
	Stage     string `json:"stage,omitempty"`
}

// runScan writes one JSON line per file to stdout.
func runScan(cfg *config.Config, log logging.Logger, files []string) error {
	if len(files) == 0 {
		return errors.New("scan needs at least one image")
	}
	sc, err := newScanner(cfg, log)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	failed := 0
	for _, f := range files {
		line := scanLine{File: f}
		res, err := scanFile(sc, f)
		if err != nil {
			failed++
			line.Error = err.Error()
			var se *scanner.Error
			if errors.As(err, &se) {
				line.Stage = se.Stage.String()
			}
		} else {
			line.CardID, line.Distance, line.Ambiguous = res.CardID, res.Distance, res.Ambiguous
		}
		if err := enc.Encode(line); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d scans failed", failed, len(files))
	}
	return nil
}

func scanFile(sc *scanner.Scanner, path string) (*scanner.Result, error) {
	img, err := photo.Open(path)
	if err != nil {
		return nil, err
	}
	return sc.Scan(img)
}

// runFingerprint hashes a reference directory into a store.
func runFingerprint(cfg *config.Config, log logging.Logger, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: card-scan fingerprint <dir> <out>")
	}
	dir, out := args[0], args[1]

	fp := refstore.Fingerprinter(refstore.HashImage)
	if cfg.Scan.DetectReferences {
		sc, err := scanner.New(index.NewShared(nil), cfg.ScannerOptions(), log)
		if err != nil {
			return err
		}
		fp = sc.Fingerprint
	}

	entries, stats, err := refstore.Ingest(dir, fp, log)
	if err != nil {
		return err
	}
	if err := refstore.Save(out, entries); err != nil {
		return err
	}
	log.Info("wrote reference store", "path", out, "format", refstore.FormatOf(out).String(),
		"entries", stats.Entries, "skipped", stats.Skipped)
	return nil
}
