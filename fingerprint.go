package ecoguard

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/corona10/goimagehash"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	hashHexLen = 16
	zeroHash   = "0000000000000000"

	histogramGrid      = 8
	histogramPrecision = 1e4

	frequencyGrid = 32
	frequencyStep = frequencyGrid / 8

	qualityReferencePixels = 640 * 480
	qualityEdgeGrid        = 100
	qualityEdgeNorm        = 20.0
	minAspectRatio         = 0.5
	maxAspectRatio         = 2.0

	// maxDecodePixels rejects decompression bombs before a full decode.
	maxDecodePixels = 100_000_000
)

var errEmptyImage = errors.New("empty image data")

// Fingerprint is the comparable signature of one submitted image.
// It is computed once per submission attempt and never mutated.
type Fingerprint struct {
	PerceptualHash string           `json:"perceptualHash"` // gradient (difference) hash, 16 hex chars
	SecondaryHash  string           `json:"secondaryHash"`  // average-intensity hash
	FrequencyHash  string           `json:"frequencyHash"`  // coarse DCT-approximation hash
	ColorHistogram []float64        `json:"colorHistogram"` // 8x8 RGB samples in [0,1]
	Quality        float64          `json:"quality"`
	Width          int              `json:"width"`
	Height         int              `json:"height"`
	Capture        *CaptureMetadata `json:"capture,omitempty"`
}

// Clone returns a deep copy of fp.
func (fp Fingerprint) Clone() Fingerprint {
	fp.ColorHistogram = slices.Clone(fp.ColorHistogram)
	if fp.Capture != nil {
		capture := *fp.Capture
		fp.Capture = &capture
	}
	return fp
}

// SentinelFingerprint is returned for images that cannot be decoded.
// It never matches anything and always fails the quality gate.
func SentinelFingerprint() Fingerprint {
	return Fingerprint{
		PerceptualHash: zeroHash,
		SecondaryHash:  zeroHash,
		FrequencyHash:  zeroHash,
		ColorHistogram: []float64{},
	}
}

// IsSentinel reports whether f carries no usable primary hash.
func (f Fingerprint) IsSentinel() bool {
	return !usableHash(f.PerceptualHash)
}

// ComputeFingerprint derives the hashes, color signature and quality score of
// an encoded image. It never fails: undecodable input yields SentinelFingerprint
// so callers can reject on quality instead of erroring out.
func ComputeFingerprint(data []byte) Fingerprint {
	fp, err := computeFingerprint(data)
	if err != nil {
		slog.Debug("ecoguard: fingerprint fell back to sentinel", "bytes", len(data), "error", err.Error())
		return SentinelFingerprint()
	}
	return fp
}

func computeFingerprint(data []byte) (fp Fingerprint, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decoder panic: %v", r)
		}
	}()

	if len(data) == 0 {
		return Fingerprint{}, errEmptyImage
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Fingerprint{}, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > maxDecodePixels {
		return Fingerprint{}, fmt.Errorf("unsupported dimensions %dx%d", cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Fingerprint{}, fmt.Errorf("decode: %w", err)
	}

	avg, err := goimagehash.AverageHash(img)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("average hash: %w", err)
	}

	b := img.Bounds()
	return Fingerprint{
		PerceptualHash: formatHash(differenceHash(img)),
		SecondaryHash:  formatHash(avg.GetHash()),
		FrequencyHash:  formatHash(frequencyHash(img)),
		ColorHistogram: colorSignature(img),
		Quality:        assessQuality(img),
		Width:          b.Dx(),
		Height:         b.Dy(),
		Capture:        ExtractCaptureMetadata(data),
	}, nil
}

// Fingerprint computes the fingerprint of data, consulting cfg.Cache first.
// Byte-identical input always yields the identical fingerprint, so the cache
// is keyed by content hash.
func (cfg *Config) Fingerprint(ctx context.Context, data []byte) Fingerprint {
	cfg = cfg.withDefaults()

	var cacheKey string
	if cfg.Cache != nil && len(data) > 0 {
		sum := sha256.Sum256(data)
		cacheKey = cfg.Cache.Key("fingerprint", hex.EncodeToString(sum[:]))
		var cached Fingerprint
		if cfg.Cache.Get(ctx, cacheKey, &cached) {
			cfg.Metrics.observeFingerprint(fingerprintCached, 0)
			return cached.Clone()
		}
	}

	start := time.Now()
	fp, err := computeFingerprint(data)
	if err != nil {
		cfg.Logger.Debug("ecoguard: fingerprint fell back to sentinel", "bytes", len(data), "error", err.Error())
		cfg.Metrics.observeFingerprint(fingerprintDecodeError, time.Since(start))
		return SentinelFingerprint()
	}
	cfg.Metrics.observeFingerprint(fingerprintComputed, time.Since(start))

	if cacheKey != "" {
		cfg.Cache.Set(ctx, cacheKey, fp.Clone())
	}
	return fp
}

// differenceHash compares horizontally adjacent pixels of a 9x8 grayscale
// thumbnail; a bit is set when the left pixel is brighter.
func differenceHash(img image.Image) uint64 {
	g := resizeGray(img, 9, 8)
	var bits uint64
	for y := range 8 {
		for x := range 8 {
			bits <<= 1
			if g.GrayAt(x, y).Y > g.GrayAt(x+1, y).Y {
				bits |= 1
			}
		}
	}
	return bits
}

// frequencyHash samples an 8x8 grid of a 32x32 grayscale thumbnail against the
// thumbnail mean. It is weaker than the other two hashes and only corroborates.
func frequencyHash(img image.Image) uint64 {
	g := resizeGray(img, frequencyGrid, frequencyGrid)

	var sum float64
	for _, p := range g.Pix {
		sum += float64(p)
	}
	mean := sum / float64(len(g.Pix))

	var bits uint64
	for i := range 8 {
		for j := range 8 {
			bits <<= 1
			if float64(g.GrayAt(j*frequencyStep, i*frequencyStep).Y) > mean {
				bits |= 1
			}
		}
	}
	return bits
}

// colorSignature is a downsampled raw RGB vector, not a true histogram.
func colorSignature(img image.Image) []float64 {
	dst := image.NewNRGBA(image.Rect(0, 0, histogramGrid, histogramGrid))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	out := make([]float64, 0, histogramGrid*histogramGrid*3)
	for y := range histogramGrid {
		for x := range histogramGrid {
			c := dst.NRGBAAt(x, y)
			out = append(out, normalizeSample(c.R), normalizeSample(c.G), normalizeSample(c.B))
		}
	}
	return out
}

func normalizeSample(v uint8) float64 {
	return math.Round(float64(v)/255*histogramPrecision) / histogramPrecision
}

// assessQuality combines resolution adequacy, aspect-ratio sanity and edge
// energy (a blur proxy) into a score in [0,1].
func assessQuality(img image.Image) float64 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return 0
	}

	q := math.Min(float64(w*h)/qualityReferencePixels, 1)
	aspect := float64(w) / float64(h)
	if aspect < minAspectRatio || aspect > maxAspectRatio {
		q *= 0.5
	}
	q *= math.Min(edgeEnergy(img)/qualityEdgeNorm, 1)

	return clamp01(q)
}

// edgeEnergy is the mean absolute 4-neighbour Laplacian response of a
// 100x100 grayscale thumbnail.
func edgeEnergy(img image.Image) float64 {
	g := resizeGray(img, qualityEdgeGrid, qualityEdgeGrid)
	px := func(x, y int) float64 { return float64(g.GrayAt(x, y).Y) }

	var sum float64
	var n int
	for y := 1; y < qualityEdgeGrid-1; y++ {
		for x := 1; x < qualityEdgeGrid-1; x++ {
			lap := 4*px(x, y) - px(x-1, y) - px(x+1, y) - px(x, y-1) - px(x, y+1)
			sum += math.Abs(lap)
			n++
		}
	}
	return sum / float64(n)
}

func resizeGray(img image.Image, w, h int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

func formatHash(bits uint64) string {
	return fmt.Sprintf("%016x", bits)
}

// usableHash reports whether h can take part in a comparison. Empty and
// all-zero hashes are sentinels and never match.
func usableHash(h string) bool {
	return h != "" && h != zeroHash
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
