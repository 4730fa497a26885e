// Package distance provides the distance kernels used by the matching backends.
//
// Scalar descriptors are compared with squared L2 (the square root is never
// needed for ranking), binary descriptors with Hamming distance. All functions
// assume both arguments have the same length (caller's responsibility).
package distance

import (
	"encoding/binary"
	"math"
	"math/bits"
)

// SquaredL2 calculates the squared L2 (Euclidean) distance between two vectors.
func SquaredL2(a, b []float32) float32 {
	var d float32
	for i := range a {
		diff := a[i] - b[i]
		d += diff * diff
	}

	return d
}

// L2 calculates the L2 (Euclidean) distance between two vectors.
func L2(a, b []float32) float32 {
	return float32(math.Sqrt(float64(SquaredL2(a, b))))
}

// Hamming calculates the Hamming distance between two byte slices,
// returned as a float32 so binary and scalar backends share result types.
func Hamming(a, b []byte) float32 {
	var d int

	i := 0
	for ; i+8 <= len(a); i += 8 {
		x := binary.LittleEndian.Uint64(a[i:]) ^ binary.LittleEndian.Uint64(b[i:])
		d += bits.OnesCount64(x)
	}

	for ; i < len(a); i++ {
		d += bits.OnesCount8(a[i] ^ b[i])
	}

	return float32(d)
}

// Hamming64 calculates the Hamming distance between two uint64 code words.
// Used for ranking hash codes, where descriptors are packed 64 bits per word.
func Hamming64(a, b []uint64) int {
	var d int
	for i := range a {
		d += bits.OnesCount64(a[i] ^ b[i])
	}

	return d
}
