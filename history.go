package ecoguard

import (
	"context"
	"time"
)

// Candidate is a past submission as seen by the duplicate detector.
// It is owned and supplied by the history collaborator; the core only reads it.
type Candidate struct {
	ID             string
	UserID         string
	PerceptualHash string
	SecondaryHash  string
	FrequencyHash  string
	ColorHistogram []float64
	Quality        float64 // 0 = unknown
	CreatedAt      time.Time
}

// CandidateQuery selects the comparison window for a new submission:
// every submission of UserID plus global submissions newer than Since,
// newest first, at most Limit rows.
type CandidateQuery struct {
	UserID string
	Since  time.Time
	Limit  int
}

// SubmissionFilter narrows a submission count. Zero fields do not filter.
// Since is exclusive.
type SubmissionFilter struct {
	UserID      string
	Since       time.Time
	FlaggedOnly bool
}

// ThrottleSource answers the two reads the submission throttle needs.
type ThrottleSource interface {
	// LastSubmissionAt returns the newest submission time of userID.
	// ok is false when the user has never submitted.
	LastSubmissionAt(ctx context.Context, userID string) (last time.Time, ok bool, err error)
	CountSubmissions(ctx context.Context, f SubmissionFilter) (int, error)
}

// CandidateSource supplies the bounded candidate pool for duplicate detection.
type CandidateSource interface {
	RecentCandidates(ctx context.Context, q CandidateQuery) ([]Candidate, error)
}

// MonitorSource answers the aggregate reads of a monitoring pass.
// Implementations must be read-only.
type MonitorSource interface {
	CountSubmissions(ctx context.Context, f SubmissionFilter) (int, error)
	// CountByDevice groups submissions newer than since by device fingerprint,
	// ignoring submissions without one.
	CountByDevice(ctx context.Context, since time.Time) (map[string]int, error)
	CountByUser(ctx context.Context, since time.Time) (map[string]int, error)
	// AverageQuality returns the mean quality and sample count of submissions
	// newer than since. n is 0 when there is nothing to average.
	AverageQuality(ctx context.Context, since time.Time) (avg float64, n int, err error)
}

// History is the full submission-history collaborator.
type History interface {
	ThrottleSource
	CandidateSource
	MonitorSource
}

// AlertSink receives every alert raised by a monitoring pass.
type AlertSink interface {
	SaveAlerts(ctx context.Context, alerts []Alert) error
}

// Notifier escalates critical alerts to administrators.
type Notifier interface {
	Notify(ctx context.Context, alerts []Alert) error
}
