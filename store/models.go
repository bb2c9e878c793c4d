package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/anatolykoptev/go-ecoguard"
)

// ReviewStatus is the moderation state of a submission.
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
)

func (s ReviewStatus) valid() bool {
	switch s {
	case ReviewPending, ReviewApproved, ReviewRejected:
		return true
	}
	return false
}

// Submission is one stored photo submission with its fingerprint and the
// anti-cheat outcome at submission time.
type Submission struct {
	ID                string    `gorm:"primaryKey;size:36"`
	UserID            string    `gorm:"size:64;not null;index:idx_submissions_user_created,priority:1"`
	DeviceFingerprint string    `gorm:"size:16;index"`
	PerceptualHash    string    `gorm:"size:16"`
	SecondaryHash     string    `gorm:"size:16"`
	FrequencyHash     string    `gorm:"size:16"`
	ColorHistogram    []float64 `gorm:"serializer:json"`
	Quality           float64
	Flagged           bool `gorm:"index"`
	FlagReason        string
	Confidence        float64
	MatchedID         string       `gorm:"size:36"`
	Status            ReviewStatus `gorm:"size:16"`
	ReviewedAt        *time.Time
	CreatedAt         time.Time `gorm:"index;index:idx_submissions_user_created,priority:2"`
}

// TableName pins the table name.
func (Submission) TableName() string { return "submissions" }

// NewSubmission builds the row for a screened submission. Submissions the
// detector rejected or sent to review are stored flagged.
func NewSubmission(userID, device string, fp ecoguard.Fingerprint, v ecoguard.Verdict, at time.Time) *Submission {
	sub := &Submission{
		UserID:            userID,
		DeviceFingerprint: device,
		PerceptualHash:    fp.PerceptualHash,
		SecondaryHash:     fp.SecondaryHash,
		FrequencyHash:     fp.FrequencyHash,
		ColorHistogram:    fp.ColorHistogram,
		Quality:           fp.Quality,
		Confidence:        v.Confidence,
		MatchedID:         v.MatchedSubmissionID,
		CreatedAt:         at,
	}
	switch v.Decision() {
	case ecoguard.DecisionReject:
		sub.Flagged, sub.FlagReason, sub.Status = true, v.Reason, ReviewRejected
	case ecoguard.DecisionReview:
		sub.Flagged, sub.FlagReason, sub.Status = true, v.Reason, ReviewPending
	default:
		sub.Status = ReviewApproved
	}
	return sub
}

func (s *Submission) candidate() ecoguard.Candidate {
	return ecoguard.Candidate{
		ID:             s.ID,
		UserID:         s.UserID,
		PerceptualHash: s.PerceptualHash,
		SecondaryHash:  s.SecondaryHash,
		FrequencyHash:  s.FrequencyHash,
		ColorHistogram: s.ColorHistogram,
		Quality:        s.Quality,
		CreatedAt:      s.CreatedAt,
	}
}

// AlertRecord is the stored form of an ecoguard.Alert.
type AlertRecord struct {
	ID                string `gorm:"primaryKey;size:36"`
	Type              string `gorm:"size:32;index"`
	Severity          string `gorm:"size:16;index"`
	Message           string
	UserID            string         `gorm:"size:64"`
	DeviceFingerprint string         `gorm:"size:16"`
	Metadata          map[string]any `gorm:"serializer:json"`
	Resolved          bool           `gorm:"index"`
	ResolvedAt        *time.Time
	CreatedAt         time.Time `gorm:"index"`
}

// TableName pins the table name.
func (AlertRecord) TableName() string { return "alerts" }

func alertRecord(a ecoguard.Alert) AlertRecord {
	return AlertRecord{
		ID:                a.ID,
		Type:              string(a.Type),
		Severity:          string(a.Severity),
		Message:           a.Message,
		UserID:            a.UserID,
		DeviceFingerprint: a.DeviceFingerprint,
		Metadata:          a.Metadata,
		Resolved:          a.Resolved,
		CreatedAt:         a.CreatedAt.UTC(),
	}
}

func (r *AlertRecord) alert() ecoguard.Alert {
	return ecoguard.Alert{
		ID:                r.ID,
		Type:              ecoguard.AlertType(r.Type),
		Severity:          ecoguard.Severity(r.Severity),
		Message:           r.Message,
		UserID:            r.UserID,
		DeviceFingerprint: r.DeviceFingerprint,
		Metadata:          r.Metadata,
		CreatedAt:         r.CreatedAt,
		Resolved:          r.Resolved,
	}
}

func newID() string { return uuid.NewString() }
