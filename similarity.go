package ecoguard

import (
	"math"
	"strconv"

	"github.com/corona10/goimagehash"
)

// MaxDistance is the Hamming distance reported for malformed hashes.
const MaxDistance = 64

// Distance returns the Hamming distance between two 16-digit hex hashes.
// Malformed or mismatched input yields MaxDistance: unparseable history is
// never a match.
func Distance(a, b string) int {
	ha, ok := parseHash(a)
	if !ok {
		return MaxDistance
	}
	hb, ok := parseHash(b)
	if !ok {
		return MaxDistance
	}
	d, err := ha.Distance(hb)
	if err != nil {
		return MaxDistance
	}
	return d
}

func parseHash(s string) (*goimagehash.ImageHash, bool) {
	if len(s) != hashHexLen {
		return nil, false
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return nil, false
	}
	return goimagehash.NewImageHash(v, goimagehash.Unknown), true
}

// HistogramCorrelation returns |Pearson r| of two color signatures in [0,1].
// Mismatched lengths, empty input and zero-variance input yield 0.
func HistogramCorrelation(a, b []float64) float64 {
	n := len(a)
	if n == 0 || n != len(b) {
		return 0
	}

	var meanA, meanB float64
	for i := range n {
		meanA += a[i]
		meanB += b[i]
	}
	meanA /= float64(n)
	meanB /= float64(n)

	var num, denA, denB float64
	for i := range n {
		da := a[i] - meanA
		db := b[i] - meanB
		num += da * db
		denA += da * da
		denB += db * db
	}

	r := num / math.Sqrt(denA*denB)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return clamp01(math.Abs(r))
}

// HistogramDistance returns the root-mean-square difference of two color
// signatures in [0,1], or -1 when the signatures cannot be compared.
func HistogramDistance(a, b []float64) float64 {
	n := len(a)
	if n == 0 || n != len(b) {
		return -1
	}
	var sum float64
	for i := range n {
		d := a[i] - b[i]
		sum += d * d
	}
	return clamp01(math.Sqrt(sum / float64(n)))
}
