package refstore

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ausocean/utils/logging"

	"github.com/ironsheep/card-scanner/internal/index"
	"github.com/ironsheep/card-scanner/internal/phash"
)

func randomEntries(n int) []index.Entry {
	r := rand.New(rand.NewSource(3))
	entries := make([]index.Entry, n)
	for i := range entries {
		var f phash.Fingerprint
		for j := range f {
			f[j] = r.Uint64()
		}
		entries[i] = index.Entry{CardID: fmt.Sprintf("card-%d", i), Fingerprint: f}
	}
	return entries
}

func TestSaveLoad(t *testing.T) {
	entries := randomEntries(25)
	entries = append(entries, index.Entry{CardID: entries[0].CardID, Fingerprint: entries[1].Fingerprint})

	for _, name := range []string{"phash.json", "phash.cbor", "nested/dir/phash.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			if err := Save(path, entries); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
			got, err := Load(path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if len(got) != len(entries) {
				t.Fatalf("entries: got %d, want %d", len(got), len(entries))
			}
			for i := range got {
				if got[i] != entries[i] {
					t.Errorf("entry %d: got %v, want %v", i, got[i].CardID, entries[i].CardID)
				}
			}
		})
	}
}

func TestJSONLayout(t *testing.T) {
	var f phash.Fingerprint
	f[0] = 0x8000000000000001
	var buf bytes.Buffer
	if err := Encode(&buf, JSON, []index.Entry{{CardID: "abc", Fingerprint: f}}); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	want := `[{"id":"abc","phash":"` + "8000000000000001" + strings.Repeat("0", 240) + `"}]` + "\n"
	if buf.String() != want {
		t.Errorf("json: got %s, want %s", buf.String(), want)
	}
}

func TestCBORIsCompact(t *testing.T) {
	entries := randomEntries(10)
	var js, cb bytes.Buffer
	if err := Encode(&js, JSON, entries); err != nil {
		t.Fatalf("Encode json failed: %v", err)
	}
	if err := Encode(&cb, CBOR, entries); err != nil {
		t.Fatalf("Encode cbor failed: %v", err)
	}
	if cb.Len() >= js.Len() {
		t.Errorf("cbor store (%d bytes) not smaller than json (%d bytes)", cb.Len(), js.Len())
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		f     Format
	}{
		{"not json", "{", JSON},
		{"bad phash", `[{"id":"a","phash":"zz"}]`, JSON},
		{"missing id", `[{"phash":"` + strings.Repeat("0", 256) + `"}]`, JSON},
		{"not cbor", "\xff\xff", CBOR},
		{"unknown format", "[]", Format(7)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(strings.NewReader(tt.input), tt.f); err == nil {
				t.Error("Decode should fail")
			}
		})
	}
}

func TestFormatOf(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"data/phash.json", JSON},
		{"data/phash.CBOR", CBOR},
		{"data/phash", JSON},
	}
	for _, tt := range tests {
		if got := FormatOf(tt.path); got != tt.want {
			t.Errorf("FormatOf(%q): got %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestLoadTree(t *testing.T) {
	dir := t.TempDir()
	entries := randomEntries(40)
	path := filepath.Join(dir, "phash.cbor")
	if err := Save(path, entries); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	tree, err := LoadTree(path, 4)
	if err != nil {
		t.Fatalf("LoadTree failed: %v", err)
	}
	m, err := tree.Nearest(entries[17].Fingerprint)
	if err != nil {
		t.Fatalf("Nearest failed: %v", err)
	}
	if m.CardID != "card-17" || m.Distance != 0 {
		t.Errorf("match: got %q at %d, want card-17 at 0", m.CardID, m.Distance)
	}

	tree, err = LoadTree(filepath.Join(dir, "missing.json"), 1)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err: got %v, want os.ErrNotExist", err)
	}
	if tree == nil || tree.Len() != 0 {
		t.Errorf("missing store should give an empty tree")
	}
	if _, err := tree.Nearest(entries[0].Fingerprint); !errors.Is(err, index.ErrEmptyIndex) {
		t.Errorf("Nearest on empty tree: got %v, want ErrEmptyIndex", err)
	}
}

func writePNG(t *testing.T, path string, shade uint8, stripe int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	img := image.NewGray(image.Rect(0, 0, 63, 88))
	for y := 0; y < 88; y++ {
		for x := 0; x < 63; x++ {
			v := shade
			if (x/stripe)%2 == 0 {
				v = 255 - shade
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("png.Encode failed: %v", err)
	}
}

func TestIngest(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "bolt.png"), 20, 5)
	writePNG(t, filepath.Join(dir, "delver", "front.png"), 40, 9)
	writePNG(t, filepath.Join(dir, "delver", "back.png"), 60, 13)
	if err := os.WriteFile(filepath.Join(dir, "broken.png"), []byte("nope"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "README.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	entries, stats, err := Ingest(dir, HashImage, (*logging.TestLogger)(t))
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if stats.Files != 4 || stats.Entries != 3 || stats.Skipped != 1 {
		t.Errorf("stats: got %+v, want 4 files, 3 entries, 1 skipped", stats)
	}

	wantIDs := []string{"bolt", "delver", "delver"}
	if len(entries) != len(wantIDs) {
		t.Fatalf("entries: got %d, want %d", len(entries), len(wantIDs))
	}
	for i, id := range wantIDs {
		if entries[i].CardID != id {
			t.Errorf("entry %d: got %q, want %q", i, entries[i].CardID, id)
		}
	}
	if entries[1].Fingerprint == entries[2].Fingerprint {
		t.Error("card faces have identical fingerprints")
	}
}

func TestIngestFingerprinterError(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), 10, 4)

	fail := func(image.Image) (phash.Fingerprint, error) { return phash.Fingerprint{}, errors.New("no card") }
	entries, stats, err := Ingest(dir, fail, (*logging.TestLogger)(t))
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if len(entries) != 0 || stats.Skipped != 1 {
		t.Errorf("got %d entries and %d skipped, want 0 and 1", len(entries), stats.Skipped)
	}

	if _, _, err := Ingest(filepath.Join(dir, "missing"), HashImage, (*logging.TestLogger)(t)); err == nil {
		t.Error("Ingest of missing directory should fail")
	}
}

func TestReload(t *testing.T) {
	dir := t.TempDir()
	entries := randomEntries(9)
	path := filepath.Join(dir, "phash.json")
	if err := Save(path, entries); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	idx := index.NewShared(nil)
	stats, err := Reload(idx, path, 2)
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if stats.Entries != 9 || idx.Load().Len() != 9 {
		t.Errorf("stats: got %+v, tree has %d", stats, idx.Load().Len())
	}

	if _, err := Reload(idx, filepath.Join(dir, "missing.json"), 2); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err: got %v, want os.ErrNotExist", err)
	}
	if idx.Load().Len() != 9 {
		t.Error("failed Reload replaced the tree")
	}
}
