package ecoguard

import (
	"context"
	"fmt"
	"time"
)

// Reputation grades a submitter by their flag history.
type Reputation string

const (
	ReputationGood Reputation = "good"
	ReputationFair Reputation = "fair"
	ReputationPoor Reputation = "poor"
)

// ReputationOf is good without flags, poor above a 30% flag ratio, else fair.
func ReputationOf(flagged, total int) Reputation {
	switch {
	case flagged == 0 || total == 0:
		return ReputationGood
	case float64(flagged)/float64(total) > 0.3:
		return ReputationPoor
	default:
		return ReputationFair
	}
}

// UserStatus is the anti-cheat standing of one submitter.
type UserStatus struct {
	UserID             string            `json:"userId"`
	TotalSubmissions   int               `json:"totalSubmissions"`
	FlaggedSubmissions int               `json:"flaggedSubmissions"`
	RecentSubmissions  int               `json:"recentSubmissions"` // last 24h
	FlagRate           float64           `json:"flagRate"`          // percent
	Cooldown           CooldownResult    `json:"cooldown"`
	Hourly             HourlyLimitResult `json:"hourly"`
	Reputation         Reputation        `json:"reputation"`
}

// UserStatus reports the submission counts, current limits and reputation of userID.
func (cfg *Config) UserStatus(ctx context.Context, userID string) (UserStatus, error) {
	cfg = cfg.withDefaults()
	if err := cfg.requireHistory(userID); err != nil {
		return UserStatus{}, err
	}

	total, err := cfg.History.CountSubmissions(ctx, SubmissionFilter{UserID: userID})
	if err != nil {
		return UserStatus{}, fmt.Errorf("ecoguard: count submissions of %s: %w", userID, err)
	}
	flagged, err := cfg.History.CountSubmissions(ctx, SubmissionFilter{UserID: userID, FlaggedOnly: true})
	if err != nil {
		return UserStatus{}, fmt.Errorf("ecoguard: count flagged submissions of %s: %w", userID, err)
	}
	recent, err := cfg.History.CountSubmissions(ctx, SubmissionFilter{UserID: userID, Since: cfg.Now().Add(-24 * time.Hour)})
	if err != nil {
		return UserStatus{}, fmt.Errorf("ecoguard: count recent submissions of %s: %w", userID, err)
	}

	st := UserStatus{
		UserID:             userID,
		TotalSubmissions:   total,
		FlaggedSubmissions: flagged,
		RecentSubmissions:  recent,
		Reputation:         ReputationOf(flagged, total),
	}
	if total > 0 {
		st.FlagRate = float64(flagged) / float64(total) * 100 //nolint:mnd // percent
	}
	if st.Cooldown, err = cfg.CheckCooldown(ctx, userID); err != nil {
		return UserStatus{}, err
	}
	if st.Hourly, err = cfg.CheckHourlyLimit(ctx, userID); err != nil {
		return UserStatus{}, err
	}
	return st, nil
}
