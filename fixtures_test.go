package ecoguard

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand/v2"
	"slices"
	"sync"
	"testing"
	"time"
)

// texturedImage paints random 10x10 colour blocks. Block edges give it enough
// edge energy to clear the quality gate at 640x480.
func texturedImage(seed uint64, w, h int) *image.NRGBA {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	const block = 10
	for by := 0; by < h; by += block {
		for bx := 0; bx < w; bx += block {
			c := color.NRGBA{R: uint8(rng.IntN(256)), G: uint8(rng.IntN(256)), B: uint8(rng.IntN(256)), A: 255}
			for y := by; y < min(by+block, h); y++ {
				for x := bx; x < min(bx+block, w); x++ {
					img.SetNRGBA(x, y, c)
				}
			}
		}
	}
	return img
}

func solidImage(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image, quality int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		t.Fatalf("jpeg encode: %v", err)
	}
	return buf.Bytes()
}

// candidateOf turns a fingerprint into a stored candidate.
func candidateOf(id, userID string, fp Fingerprint, at time.Time) Candidate {
	return Candidate{
		ID:             id,
		UserID:         userID,
		PerceptualHash: fp.PerceptualHash,
		SecondaryHash:  fp.SecondaryHash,
		FrequencyHash:  fp.FrequencyHash,
		ColorHistogram: fp.ColorHistogram,
		Quality:        fp.Quality,
		CreatedAt:      at,
	}
}

type memSubmission struct {
	userID  string
	device  string
	flagged bool
	quality float64
	at      time.Time
	cand    Candidate // zero when the submission has no fingerprint
}

var errHistoryDown = errors.New("history unavailable")

// memHistory is an in-memory History with fault injection.
type memHistory struct {
	mu        sync.Mutex
	subs      []memSubmission
	err       error  // returned by every read when set
	panicMsg  string // panics every read when set
	fetches   int    // RecentCandidates calls
	lastQuery CandidateQuery
}

func (h *memHistory) add(s ...memSubmission) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs = append(h.subs, s...)
}

func (h *memHistory) fail() error {
	if h.panicMsg != "" {
		panic(h.panicMsg)
	}
	return h.err
}

func (h *memHistory) LastSubmissionAt(_ context.Context, userID string) (time.Time, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fail(); err != nil {
		return time.Time{}, false, err
	}
	var last time.Time
	found := false
	for _, s := range h.subs {
		if s.userID == userID && (!found || s.at.After(last)) {
			last, found = s.at, true
		}
	}
	return last, found, nil
}

func (h *memHistory) CountSubmissions(_ context.Context, f SubmissionFilter) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fail(); err != nil {
		return 0, err
	}
	n := 0
	for _, s := range h.subs {
		if f.UserID != "" && s.userID != f.UserID {
			continue
		}
		if !f.Since.IsZero() && !s.at.After(f.Since) {
			continue
		}
		if f.FlaggedOnly && !s.flagged {
			continue
		}
		n++
	}
	return n, nil
}

func (h *memHistory) RecentCandidates(_ context.Context, q CandidateQuery) ([]Candidate, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fetches++
	h.lastQuery = q
	if err := h.fail(); err != nil {
		return nil, err
	}
	var out []Candidate
	for _, s := range h.subs {
		if s.cand.PerceptualHash == "" {
			continue
		}
		if s.userID == q.UserID || s.at.After(q.Since) {
			out = append(out, s.cand)
		}
	}
	slices.SortFunc(out, func(a, b Candidate) int { return b.CreatedAt.Compare(a.CreatedAt) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (h *memHistory) countBy(since time.Time, key func(memSubmission) string) (map[string]int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fail(); err != nil {
		return nil, err
	}
	out := map[string]int{}
	for _, s := range h.subs {
		if k := key(s); k != "" && s.at.After(since) {
			out[k]++
		}
	}
	return out, nil
}

func (h *memHistory) CountByDevice(_ context.Context, since time.Time) (map[string]int, error) {
	return h.countBy(since, func(s memSubmission) string { return s.device })
}

func (h *memHistory) CountByUser(_ context.Context, since time.Time) (map[string]int, error) {
	return h.countBy(since, func(s memSubmission) string { return s.userID })
}

func (h *memHistory) AverageQuality(_ context.Context, since time.Time) (float64, int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.fail(); err != nil {
		return 0, 0, err
	}
	var sum float64
	n := 0
	for _, s := range h.subs {
		if s.at.After(since) {
			sum += s.quality
			n++
		}
	}
	if n == 0 {
		return 0, 0, nil
	}
	return sum / float64(n), n, nil
}

// recordingSink collects alerts passed to SaveAlerts and Notify.
type recordingSink struct {
	mu    sync.Mutex
	saved []Alert
	err   error
}

func (r *recordingSink) SaveAlerts(_ context.Context, alerts []Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, alerts...)
	return r.err
}

func (r *recordingSink) Notify(ctx context.Context, alerts []Alert) error {
	return r.SaveAlerts(ctx, alerts)
}

func (r *recordingSink) alerts() []Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.saved)
}
