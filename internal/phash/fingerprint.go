package phash

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/bits"
	"strings"
)

// Bits is the fingerprint length.
const Bits = Size * Size

const words = Bits / 64

// Fingerprint is a 1024-bit perceptual hash. Bit i of the 32×32 grid (row
// major) is the (i%64)-th most significant bit of word i/64, which makes the
// hex form identical to the string form of an imagehash phash.
type Fingerprint [words]uint64

// ErrInvalidFingerprint is returned when parsing malformed fingerprint text.
var ErrInvalidFingerprint = errors.New("invalid fingerprint")

// Distance returns the Hamming distance between a and b.
func Distance(a, b Fingerprint) int {
	d := 0
	for i := range a {
		d += bits.OnesCount64(a[i] ^ b[i])
	}
	return d
}

// Bit reports bit i, counting from the top-left DCT coefficient.
func (f Fingerprint) Bit(i int) bool {
	return f[i/64]&(1<<(63-uint(i%64))) != 0
}

func (f *Fingerprint) set(i int) {
	f[i/64] |= 1 << (63 - uint(i%64))
}

// String returns 256 lowercase hex digits.
func (f Fingerprint) String() string {
	var sb strings.Builder
	sb.Grow(Bits / 4)
	for _, w := range f {
		fmt.Fprintf(&sb, "%016x", w)
	}
	return sb.String()
}

// Parse decodes the 256-digit hex form produced by String.
func Parse(s string) (Fingerprint, error) {
	var f Fingerprint
	if len(s) != Bits/4 {
		return f, fmt.Errorf("%w: %d hex digits, want %d", ErrInvalidFingerprint, len(s), Bits/4)
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return f, fmt.Errorf("%w: %v", ErrInvalidFingerprint, err)
	}
	return fromBytes(raw), nil
}

func fromBytes(raw []byte) Fingerprint {
	var f Fingerprint
	for i, b := range raw {
		f[i/8] |= uint64(b) << (56 - 8*uint(i%8))
	}
	return f
}

// MarshalText implements encoding.TextMarshaler using the hex form.
func (f Fingerprint) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Fingerprint) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// MarshalBinary returns the 128 big-endian bytes of the fingerprint.
func (f Fingerprint) MarshalBinary() ([]byte, error) {
	raw := make([]byte, Bits/8)
	for i := range raw {
		raw[i] = byte(f[i/8] >> (56 - 8*uint(i%8)))
	}
	return raw, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (f *Fingerprint) UnmarshalBinary(raw []byte) error {
	if len(raw) != Bits/8 {
		return fmt.Errorf("%w: %d bytes, want %d", ErrInvalidFingerprint, len(raw), Bits/8)
	}
	*f = fromBytes(raw)
	return nil
}
