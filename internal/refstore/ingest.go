package refstore

import (
	"fmt"
	"image"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/ausocean/utils/logging"

	"github.com/ironsheep/card-scanner/internal/index"
	"github.com/ironsheep/card-scanner/internal/phash"
	"github.com/ironsheep/card-scanner/internal/photo"
)

// Fingerprinter hashes one reference image.
type Fingerprinter func(img image.Image) (phash.Fingerprint, error)

// HashImage fingerprints img as it is. Reference scans are already flat and
// cropped to the card, so they need no detection.
func HashImage(img image.Image) (phash.Fingerprint, error) {
	return phash.Hash(img), nil
}

// IngestStats summarises a directory ingestion.
type IngestStats struct {
	Files   int `json:"files"`
	Entries int `json:"entries"`
	Skipped int `json:"skipped"`
}

// Ingest fingerprints every image under dir. An image directly inside dir is
// a card whose id is the file name without its extension. Images inside a
// subdirectory are the faces of one card whose id is the subdirectory name.
//
// Images that cannot be decoded or fingerprinted are logged and skipped.
// Entries come out in lexical path order.
func Ingest(dir string, fp Fingerprinter, log logging.Logger) ([]index.Entry, IngestStats, error) {
	var (
		entries []index.Entry
		stats   IngestStats
	)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !photo.IsImageFile(path) {
			return nil
		}
		stats.Files++

		id, err := cardID(dir, path)
		if err != nil {
			return err
		}
		img, err := photo.Open(path)
		if err != nil {
			log.Warning("skipping reference image", "path", path, "error", err.Error())
			stats.Skipped++
			return nil
		}
		f, err := fp(img)
		if err != nil {
			log.Warning("skipping reference image", "path", path, "error", err.Error())
			stats.Skipped++
			return nil
		}
		log.Debug("fingerprinted reference", "id", id, "path", path)
		entries = append(entries, index.Entry{CardID: id, Fingerprint: f})
		return nil
	})
	if err != nil {
		return nil, stats, fmt.Errorf("failed to walk %s: %w", dir, err)
	}

	stats.Entries = len(entries)
	log.Info("ingested references", "dir", dir, "files", stats.Files, "entries", stats.Entries, "skipped", stats.Skipped)
	return entries, stats, nil
}

func cardID(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", err
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) > 1 {
		return parts[0], nil
	}
	return strings.TrimSuffix(parts[0], filepath.Ext(parts[0])), nil
}
