// Package phash computes 1024-bit DCT perceptual hashes of card images.
//
// The hash follows the widely used pHash construction: the image is reduced
// to grayscale, resampled to 128×128 with a Lanczos filter, transformed with a
// two-dimensional DCT-II, and the top-left 32×32 block of coefficients is
// thresholded at its median. Hashes are compared with Hamming distance only.
package phash

import (
	"image"
	"math"
	"sort"

	"github.com/disintegration/imaging"
)

const (
	// Size is the side of the retained low-frequency coefficient block.
	Size = 32

	// HighFreqFactor scales Size to the resampled image side.
	HighFreqFactor = 4

	sample = Size * HighFreqFactor
)

// cosTable[k][n] = cos(π k (2n+1) / 2N) for the retained frequencies.
var cosTable = func() [Size][sample]float64 {
	var t [Size][sample]float64
	for k := 0; k < Size; k++ {
		for n := 0; n < sample; n++ {
			t[k][n] = math.Cos(math.Pi * float64(k) * float64(2*n+1) / (2 * sample))
		}
	}
	return t
}()

// Hash returns the fingerprint of img. It is deterministic for identical
// pixel input. An image with no pixels hashes to the zero fingerprint.
func Hash(img image.Image) Fingerprint {
	if img.Bounds().Empty() {
		return Fingerprint{}
	}
	gray := imaging.Grayscale(img)
	small := imaging.Resize(gray, sample, sample, imaging.Lanczos)

	var pixels [sample][sample]float64
	for y := 0; y < sample; y++ {
		row := small.Pix[y*small.Stride:]
		for x := 0; x < sample; x++ {
			pixels[y][x] = float64(row[4*x])
		}
	}

	coefs := lowFrequencyDCT(&pixels)
	median := medianOf(coefs[:])

	var f Fingerprint
	for i, c := range coefs {
		if c > median {
			f.set(i)
		}
	}
	return f
}

// lowFrequencyDCT applies an unnormalised DCT-II down the columns and then
// along the rows, keeping the first Size frequencies of each. Scaling does
// not affect the median threshold.
func lowFrequencyDCT(pixels *[sample][sample]float64) [Size * Size]float64 {
	var cols [Size][sample]float64
	for k := 0; k < Size; k++ {
		for x := 0; x < sample; x++ {
			var s float64
			for y := 0; y < sample; y++ {
				s += pixels[y][x] * cosTable[k][y]
			}
			cols[k][x] = s
		}
	}

	var out [Size * Size]float64
	for k := 0; k < Size; k++ {
		for l := 0; l < Size; l++ {
			var s float64
			for x := 0; x < sample; x++ {
				s += cols[k][x] * cosTable[l][x]
			}
			out[k*Size+l] = s
		}
	}
	return out
}

func medianOf(v []float64) float64 {
	sorted := make([]float64, len(v))
	copy(sorted, v)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
