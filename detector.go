package ecoguard

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrInvalidConfig is wrapped by every configuration validation failure.
var ErrInvalidConfig = errors.New("ecoguard: invalid config")

// DetectorConfig holds the duplicate policy thresholds. The zero value stands
// for DefaultDetectorConfig; any other value is used as given, so zero is a
// real setting (HistogramBoost 0 disables the boost, MinQuality 0 compares
// every decodable image). Start from DefaultDetectorConfig to override a few
// fields. The numbers are starting points to be tuned against labelled
// duplicate pairs.
type DetectorConfig struct {
	SameUserDistance  int // max primary-hash distance against the submitter's own history
	GlobalDistance    int // max primary-hash distance against other users
	SecondaryDistance int // max average-hash distance counted as agreement
	FrequencyDistance int // max frequency-hash distance counted as agreement

	MinQuality     float64 // below this the image is not compared at all
	LowQuality     float64 // below this (either image) confidence is damped
	QualityDamping float64 // multiplicative damping factor

	HashConfidence      float64 // confidence of a primary-hash match
	MultiHashConfidence float64 // floor when two of three hashes agree

	HistogramBoostCorrelation float64 // correlation that confirms a match
	HistogramBoost            float64 // confidence added on confirmation
	HistogramVetoDistance     float64 // RMS color distance that revokes a match

	AcceptConfidence float64 // duplicate at or above this
	ReviewConfidence float64 // duplicates below this require human review

	MaxCandidates int // scan at most this many candidates
}

// DefaultDetectorConfig returns the default duplicate policy.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		SameUserDistance:          5,
		GlobalDistance:            8,
		SecondaryDistance:         10,
		FrequencyDistance:         12,
		MinQuality:                0.3,
		LowQuality:                0.5,
		QualityDamping:            0.8,
		HashConfidence:            0.9,
		MultiHashConfidence:       0.85,
		HistogramBoostCorrelation: 0.85,
		HistogramBoost:            0.1,
		HistogramVetoDistance:     0.4,
		AcceptConfidence:          0.7,
		ReviewConfidence:          0.9,
		MaxCandidates:             500,
	}
}

func (c DetectorConfig) withDefaults() DetectorConfig {
	if c == (DetectorConfig{}) {
		return DefaultDetectorConfig()
	}
	return c
}

// Validate checks ranges and the ordering between related thresholds.
func (c DetectorConfig) Validate() error {
	for name, v := range map[string]int{
		"same_user_distance": c.SameUserDistance,
		"global_distance":    c.GlobalDistance,
		"secondary_distance": c.SecondaryDistance,
		"frequency_distance": c.FrequencyDistance,
	} {
		if v < 0 || v > MaxDistance {
			return fmt.Errorf("%w: %s %d outside [0,%d]", ErrInvalidConfig, name, v, MaxDistance)
		}
	}
	if c.SameUserDistance > c.GlobalDistance {
		return fmt.Errorf("%w: same_user_distance %d exceeds global_distance %d",
			ErrInvalidConfig, c.SameUserDistance, c.GlobalDistance)
	}
	for name, v := range map[string]float64{
		"min_quality":                 c.MinQuality,
		"low_quality":                 c.LowQuality,
		"quality_damping":             c.QualityDamping,
		"hash_confidence":             c.HashConfidence,
		"multi_hash_confidence":       c.MultiHashConfidence,
		"histogram_boost_correlation": c.HistogramBoostCorrelation,
		"histogram_boost":             c.HistogramBoost,
		"histogram_veto_distance":     c.HistogramVetoDistance,
		"accept_confidence":           c.AcceptConfidence,
		"review_confidence":           c.ReviewConfidence,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: %s %.3f outside [0,1]", ErrInvalidConfig, name, v)
		}
	}
	if c.AcceptConfidence > c.ReviewConfidence {
		return fmt.Errorf("%w: accept_confidence %.2f exceeds review_confidence %.2f",
			ErrInvalidConfig, c.AcceptConfidence, c.ReviewConfidence)
	}
	if c.MaxCandidates <= 0 {
		return fmt.Errorf("%w: max_candidates must be positive", ErrInvalidConfig)
	}
	return nil
}

// Detector classifies a fingerprint against a pool of past submissions.
// It holds only configuration and is safe for concurrent use.
type Detector struct {
	cfg DetectorConfig
}

// NewDetector validates cfg and returns a Detector. A zero cfg selects
// DefaultDetectorConfig.
func NewDetector(cfg DetectorConfig) (*Detector, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{cfg: cfg}, nil
}

// Config returns the effective thresholds.
func (d *Detector) Config() DetectorConfig { return d.cfg }

// Check classifies fp submitted by userID against pool, which must be ordered
// newest first. The first candidate that clears the acceptance bar wins, so the
// most recent match is reported. Check performs no I/O.
func (d *Detector) Check(fp Fingerprint, userID string, pool []Candidate) Verdict {
	if fp.IsSentinel() || fp.Quality < d.cfg.MinQuality {
		v := notDuplicate()
		v.RequiresReview = true
		v.Reason = "Low image quality"
		v.Signals = []Signal{{
			Source: "quality",
			Detail: fmt.Sprintf("quality %.3f below minimum %.2f", fp.Quality, d.cfg.MinQuality),
			Value:  fp.Quality,
		}}
		return v
	}

	if len(pool) > d.cfg.MaxCandidates {
		pool = pool[:d.cfg.MaxCandidates]
	}
	for _, cand := range pool {
		if !usableHash(cand.PerceptualHash) {
			continue
		}
		if v, ok := d.compare(fp, userID, cand); ok {
			return v
		}
	}
	return notDuplicate()
}

// compare scores one candidate. ok is false when the candidate is not a match.
func (d *Detector) compare(fp Fingerprint, userID string, cand Candidate) (Verdict, bool) {
	threshold, scope := d.cfg.GlobalDistance, "Global"
	if cand.UserID == userID {
		threshold, scope = d.cfg.SameUserDistance, "Self"
	}

	primary := Distance(fp.PerceptualHash, cand.PerceptualHash)
	secondary := optionalDistance(fp.SecondaryHash, cand.SecondaryHash)
	frequency := optionalDistance(fp.FrequencyHash, cand.FrequencyHash)

	// The corroborating hashes only raise a primary match; they never make one.
	if primary > threshold {
		return Verdict{}, false
	}
	agreement := 1
	confidence := d.cfg.HashConfidence
	method := MethodHash
	reason := fmt.Sprintf("%s-duplicate detected (hash distance %d)", scope, primary)
	signals := make([]Signal, 0, 6) //nolint:mnd // three hashes plus veto, boost and quality
	signals = append(signals, Signal{Source: "primary_hash", Detail: fmt.Sprintf("%d <= %d bits", primary, threshold), Value: float64(primary)})

	if secondary <= d.cfg.SecondaryDistance {
		agreement++
		signals = append(signals, Signal{Source: "secondary_hash", Detail: fmt.Sprintf("%d <= %d bits", secondary, d.cfg.SecondaryDistance), Value: float64(secondary)})
	}
	if frequency <= d.cfg.FrequencyDistance {
		agreement++
		signals = append(signals, Signal{Source: "frequency_hash", Detail: fmt.Sprintf("%d <= %d bits", frequency, d.cfg.FrequencyDistance), Value: float64(frequency)})
	}
	if agreement >= 2 { //nolint:mnd // two of three hashes
		confidence = max(confidence, d.cfg.MultiHashConfidence)
		method = MethodMultiHash
		reason = fmt.Sprintf("%s-duplicate detected (multi-hash agreement %d/3)", scope, agreement)
	}

	// Structurally similar but very differently coloured images are coincidences.
	if dist := HistogramDistance(fp.ColorHistogram, cand.ColorHistogram); dist > d.cfg.HistogramVetoDistance {
		slog.Debug("ecoguard: histogram veto", "candidate", cand.ID, "distance", dist, "hash_distance", primary)
		return Verdict{}, false
	}

	if corr := HistogramCorrelation(fp.ColorHistogram, cand.ColorHistogram); d.cfg.HistogramBoost > 0 && corr >= d.cfg.HistogramBoostCorrelation {
		confidence = min(confidence+d.cfg.HistogramBoost, 1)
		method = MethodCombined
		reason += fmt.Sprintf(" + color match (%.1f%%)", corr*100) //nolint:mnd // percent
		signals = append(signals, Signal{Source: "histogram_boost", Detail: fmt.Sprintf("correlation %.3f", corr), Value: corr})
	}

	if fp.Quality < d.cfg.LowQuality || (cand.Quality > 0 && cand.Quality < d.cfg.LowQuality) {
		confidence *= d.cfg.QualityDamping
		signals = append(signals, Signal{Source: "quality", Detail: "low quality image, confidence damped", Value: d.cfg.QualityDamping})
	}

	if confidence < d.cfg.AcceptConfidence {
		return Verdict{}, false
	}

	return Verdict{
		IsDuplicate:         true,
		Confidence:          confidence,
		Reason:              reason,
		MatchedSubmissionID: cand.ID,
		Method:              method,
		RequiresReview:      confidence < d.cfg.ReviewConfidence,
		Distance:            primary,
		Signals:             signals,
	}, true
}

// optionalDistance treats a missing corroborating hash as no agreement.
func optionalDistance(a, b string) int {
	if !usableHash(a) || !usableHash(b) {
		return MaxDistance
	}
	return Distance(a, b)
}
