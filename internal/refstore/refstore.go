// Package refstore persists reference fingerprints and builds them from
// directories of card images.
//
// A store is a flat list of {id, phash} records. JSON stores hold the phash
// as 256 hex digits; CBOR stores hold it as a 128-byte string. The format is
// chosen by file extension.
package refstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"github.com/ironsheep/card-scanner/internal/index"
)

// Format is a store encoding.
type Format int

const (
	JSON Format = iota
	CBOR
)

func (f Format) String() string {
	switch f {
	case JSON:
		return "json"
	case CBOR:
		return "cbor"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// FormatOf picks the encoding for path from its extension. Anything other
// than .cbor is JSON.
func FormatOf(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".cbor") {
		return CBOR
	}
	return JSON
}

// Decode reads a store from r.
func Decode(r io.Reader, f Format) ([]index.Entry, error) {
	var entries []index.Entry
	switch f {
	case JSON:
		if err := json.NewDecoder(r).Decode(&entries); err != nil {
			return nil, fmt.Errorf("failed to decode json store: %w", err)
		}
	case CBOR:
		if err := cbor.NewDecoder(r).Decode(&entries); err != nil {
			return nil, fmt.Errorf("failed to decode cbor store: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown store format %v", f)
	}
	for i, e := range entries {
		if e.CardID == "" {
			return nil, fmt.Errorf("entry %d has no card id", i)
		}
	}
	return entries, nil
}

// Encode writes entries to w.
func Encode(w io.Writer, f Format, entries []index.Entry) error {
	if entries == nil {
		entries = []index.Entry{}
	}
	switch f {
	case JSON:
		return json.NewEncoder(w).Encode(entries)
	case CBOR:
		return cbor.NewEncoder(w).Encode(entries)
	}
	return fmt.Errorf("unknown store format %v", f)
}

// Load reads the store at path.
func Load(path string) ([]index.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open reference store: %w", err)
	}
	defer f.Close()

	entries, err := Decode(f, FormatOf(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entries, nil
}

// Save writes entries to path, creating parent directories as needed. The
// file is written to a temporary name and renamed into place so readers
// never see a partial store.
func Save(path string, entries []index.Entry) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".refstore-*")
	if err != nil {
		return fmt.Errorf("failed to create reference store: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Encode(tmp, FormatOf(path), entries); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode reference store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write reference store: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write reference store: %w", err)
	}
	return nil
}

// LoadTree reads the store at path and builds a search tree over it. A
// missing store gives an empty tree and an error matching os.ErrNotExist.
func LoadTree(path string, bucketSize int) (*index.Tree, error) {
	entries, err := Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return index.Build(nil, bucketSize), err
		}
		return nil, err
	}
	return index.Build(entries, bucketSize), nil
}

// Reload builds a tree from the store at path and installs it in idx. On
// error idx is left untouched.
func Reload(idx *index.Shared, path string, bucketSize int) (index.Stats, error) {
	entries, err := Load(path)
	if err != nil {
		return index.Stats{}, err
	}
	tree := index.Build(entries, bucketSize)
	idx.Replace(tree)
	return tree.Stats(), nil
}
