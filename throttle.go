package ecoguard

import (
	"context"
	"fmt"
	"math"
	"time"
)

// ThrottleConfig configures the content-independent submission limits.
// Zero fields take the DefaultThrottleConfig value.
type ThrottleConfig struct {
	Cooldown    time.Duration // minimum gap between two submissions of one user
	HourlyLimit int           // max submissions per user in Window
	Window      time.Duration // rate window (default: 1h)
}

// DefaultThrottleConfig returns the default limits.
func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{
		Cooldown:    30 * time.Second,
		HourlyLimit: 30,
		Window:      time.Hour,
	}
}

func (c ThrottleConfig) withDefaults() ThrottleConfig {
	d := DefaultThrottleConfig()
	if c.Cooldown <= 0 {
		c.Cooldown = d.Cooldown
	}
	if c.HourlyLimit <= 0 {
		c.HourlyLimit = d.HourlyLimit
	}
	if c.Window <= 0 {
		c.Window = d.Window
	}
	return c
}

// CooldownResult reports whether a user may submit again.
type CooldownResult struct {
	Allowed     bool `json:"allowed"`
	WaitSeconds int  `json:"waitSeconds,omitempty"` // whole seconds, rounded up
}

// HourlyLimitResult reports the rate-window headroom of a user.
type HourlyLimitResult struct {
	Allowed   bool `json:"allowed"`
	Remaining int  `json:"remaining"`
}

// EvaluateCooldown applies the cooldown to the user's last submission time.
// A submission exactly cooldown ago is allowed.
func EvaluateCooldown(last time.Time, hasLast bool, now time.Time, cooldown time.Duration) CooldownResult {
	if !hasLast {
		return CooldownResult{Allowed: true}
	}
	elapsed := now.Sub(last)
	if elapsed >= cooldown {
		return CooldownResult{Allowed: true}
	}
	wait := int(math.Ceil((cooldown - elapsed).Seconds()))
	return CooldownResult{Allowed: false, WaitSeconds: max(wait, 1)}
}

// EvaluateHourlyLimit applies the rate cap to the user's submission count.
func EvaluateHourlyLimit(count, limit int) HourlyLimitResult {
	if count >= limit {
		return HourlyLimitResult{Allowed: false, Remaining: 0}
	}
	return HourlyLimitResult{Allowed: true, Remaining: limit - count}
}

// CheckCooldown fetches the user's latest submission and applies the cooldown.
// Two concurrent submissions of one user may both pass; the history store is
// the authority if stronger guarantees are needed.
func (cfg *Config) CheckCooldown(ctx context.Context, userID string) (CooldownResult, error) {
	cfg = cfg.withDefaults()
	if err := cfg.requireHistory(userID); err != nil {
		return CooldownResult{}, err
	}

	last, ok, err := cfg.History.LastSubmissionAt(ctx, userID)
	if err != nil {
		return CooldownResult{}, fmt.Errorf("ecoguard: last submission of %s: %w", userID, err)
	}
	res := EvaluateCooldown(last, ok, cfg.Now(), cfg.Throttle.Cooldown)
	if !res.Allowed {
		cfg.Metrics.observeThrottleDenial("cooldown")
	}
	return res, nil
}

// CheckHourlyLimit counts the user's submissions in the trailing window and
// applies the cap.
func (cfg *Config) CheckHourlyLimit(ctx context.Context, userID string) (HourlyLimitResult, error) {
	cfg = cfg.withDefaults()
	if err := cfg.requireHistory(userID); err != nil {
		return HourlyLimitResult{}, err
	}

	count, err := cfg.History.CountSubmissions(ctx, SubmissionFilter{
		UserID: userID,
		Since:  cfg.Now().Add(-cfg.Throttle.Window),
	})
	if err != nil {
		return HourlyLimitResult{}, fmt.Errorf("ecoguard: count submissions of %s: %w", userID, err)
	}
	res := EvaluateHourlyLimit(count, cfg.Throttle.HourlyLimit)
	if !res.Allowed {
		cfg.Metrics.observeThrottleDenial("hourly_limit")
	}
	return res, nil
}
