// Package ecoguard detects duplicate and farmed photo submissions for an
// eco-points platform: perceptual fingerprints, similarity scoring, duplicate
// classification, submission throttling and out-of-band abuse monitoring.
package ecoguard

import (
	"context"
	"log/slog"
	"time"
)

// Cache abstracts key-value caching (go-cache, Redis, sync.Map, etc.)
type Cache interface {
	Key(prefix, value string) string
	Get(ctx context.Context, key string, dest any) bool
	Set(ctx context.Context, key string, value any)
}

// Config holds all dependencies injected by the consumer. Its methods never
// modify it, so one Config may serve concurrent requests as long as nobody
// writes its fields meanwhile.
// The zero value is usable for pure fingerprinting; History is required for
// CheckDuplicate, CheckCooldown, CheckHourlyLimit, Screen and UserStatus.
type Config struct {
	History History  // submission-history collaborator
	Cache   Cache    // optional: fingerprint cache keyed by content hash (nil = no caching)
	Metrics *Metrics // optional: prometheus collectors (nil = no metrics)
	Logger  *slog.Logger

	Detector DetectorConfig // zero value selects DefaultDetectorConfig
	Throttle ThrottleConfig // zero fields take DefaultThrottleConfig values

	// GlobalWindow bounds how far back global candidates are fetched
	// (default: 7 days). Own-user candidates are not time bounded.
	GlobalWindow time.Duration

	// Now overrides the clock (default: time.Now).
	Now func() time.Time

	// Optional callbacks for auditing.
	OnVerdict func(VerdictEvent)
	OnPanic   func(tag string, r any)
}

// VerdictEvent is emitted through Config.OnVerdict for every duplicate check
// that reached the detector.
type VerdictEvent struct {
	UserID            string
	DeviceFingerprint string
	PerceptualHash    string
	Verdict           Verdict
}

const defaultGlobalWindow = 7 * 24 * time.Hour

// withDefaults returns a copy of c with zero-value fields filled in.
func (c *Config) withDefaults() *Config {
	eff := *c
	eff.Detector = eff.Detector.withDefaults()
	eff.Throttle = eff.Throttle.withDefaults()
	if eff.GlobalWindow <= 0 {
		eff.GlobalWindow = defaultGlobalWindow
	}
	if eff.Now == nil {
		eff.Now = time.Now
	}
	if eff.Logger == nil {
		eff.Logger = slog.Default()
	}
	return &eff
}
