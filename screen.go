package ecoguard

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNoHistory is returned when an operation needs Config.History and none is set.
	ErrNoHistory = errors.New("ecoguard: history collaborator not configured")
	// ErrEmptyUserID is returned for operations called without a submitter.
	ErrEmptyUserID = errors.New("ecoguard: empty user id")
)

// SubmissionInput is one photo submission attempt. Image holds the decoded
// bytes; transport encodings such as data URLs are the caller's concern
// (see DecodeDataURL).
type SubmissionInput struct {
	UserID            string
	DeviceFingerprint string // optional, see DeviceFingerprint
	Image             []byte
}

// Screening is the combined anti-cheat outcome for one submission.
type Screening struct {
	Fingerprint   Fingerprint       `json:"fingerprint"`
	Cooldown      CooldownResult    `json:"cooldown"`
	Hourly        HourlyLimitResult `json:"hourly"`
	Verdict       Verdict           `json:"verdict"`
	Decision      Decision          `json:"decision"`
	ReviewReasons []string          `json:"reviewReasons,omitempty"`
}

// UserMessage is a non-technical explanation of the decision for the submitter.
func (s *Screening) UserMessage() string {
	switch {
	case s.Decision == DecisionThrottled && !s.Cooldown.Allowed:
		return fmt.Sprintf("Please wait %d seconds before submitting again.", s.Cooldown.WaitSeconds)
	case s.Decision == DecisionThrottled:
		return "You have reached the hourly submission limit. Please try again later."
	case s.Decision == DecisionReview && !s.Verdict.RequiresReview:
		return "This photo will be checked by a moderator before points are awarded."
	default:
		return s.Verdict.UserMessage()
	}
}

// Screen runs the request-path checks for one submission: cooldown, hourly
// limit, fingerprinting and duplicate detection. It never persists anything;
// recording the submission is the caller's job once it decides to keep it.
func (cfg *Config) Screen(ctx context.Context, in SubmissionInput) (s *Screening, err error) {
	cfg = cfg.withDefaults()
	if err := cfg.requireHistory(in.UserID); err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			if cfg.OnPanic != nil {
				cfg.OnPanic("screen", r)
			}
			s, err = nil, fmt.Errorf("ecoguard: screening panicked: %v", r)
		}
	}()

	s = &Screening{Verdict: notDuplicate()}

	s.Cooldown, err = cfg.CheckCooldown(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	s.Hourly, err = cfg.CheckHourlyLimit(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	if !s.Cooldown.Allowed || !s.Hourly.Allowed {
		s.Decision = DecisionThrottled
		return s, nil
	}

	s.Fingerprint = cfg.Fingerprint(ctx, in.Image)
	s.Verdict, err = cfg.checkDuplicate(ctx, s.Fingerprint, in.UserID, in.DeviceFingerprint)
	if err != nil {
		return nil, err
	}

	s.Decision = s.Verdict.Decision()
	if s.Verdict.RequiresReview {
		s.ReviewReasons = append(s.ReviewReasons, s.Verdict.Reason)
	}
	if tool := EditedBySoftware(s.Fingerprint.Capture); tool != "" {
		s.ReviewReasons = append(s.ReviewReasons, "edited with "+tool)
		if s.Decision == DecisionAccept {
			s.Decision = DecisionReview
		}
	}
	return s, nil
}

// CheckDuplicate fetches the candidate window for userID and classifies fp.
// Low-quality fingerprints are classified without touching the history.
func (cfg *Config) CheckDuplicate(ctx context.Context, fp Fingerprint, userID string) (Verdict, error) {
	cfg = cfg.withDefaults()
	if err := cfg.requireHistory(userID); err != nil {
		return Verdict{}, err
	}
	return cfg.checkDuplicate(ctx, fp, userID, "")
}

func (cfg *Config) checkDuplicate(ctx context.Context, fp Fingerprint, userID, device string) (Verdict, error) {
	det, err := NewDetector(cfg.Detector)
	if err != nil {
		return Verdict{}, err
	}

	var pool []Candidate
	if !fp.IsSentinel() && fp.Quality >= det.cfg.MinQuality {
		pool, err = cfg.History.RecentCandidates(ctx, CandidateQuery{
			UserID: userID,
			Since:  cfg.Now().Add(-cfg.GlobalWindow),
			Limit:  det.cfg.MaxCandidates,
		})
		if err != nil {
			return Verdict{}, fmt.Errorf("ecoguard: fetch candidates for %s: %w", userID, err)
		}
	}

	v := det.Check(fp, userID, pool)
	cfg.Metrics.observeVerdict(v)
	if v.IsDuplicate {
		cfg.Logger.Info("ecoguard: duplicate submission",
			"user_id", userID,
			"matched", v.MatchedSubmissionID,
			"method", v.Method,
			"confidence", v.Confidence,
			"requires_review", v.RequiresReview)
	}
	if cfg.OnVerdict != nil {
		cfg.OnVerdict(VerdictEvent{
			UserID:            userID,
			DeviceFingerprint: device,
			PerceptualHash:    fp.PerceptualHash,
			Verdict:           v,
		})
	}
	return v, nil
}

func (cfg *Config) requireHistory(userID string) error {
	if cfg.History == nil {
		return ErrNoHistory
	}
	if userID == "" {
		return ErrEmptyUserID
	}
	return nil
}
