package store

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anatolykoptev/go-ecoguard"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// setupTestStore opens a private in-memory database with a fixed clock.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(":memory:", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	s.now = func() time.Time { return testNow }
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seed(t *testing.T, s *Store, subs ...*Submission) {
	t.Helper()
	for _, sub := range subs {
		require.NoError(t, s.RecordSubmission(context.Background(), sub))
	}
}

func sub(user, device, hash string, quality float64, flagged bool, ago time.Duration) *Submission {
	return &Submission{
		UserID:            user,
		DeviceFingerprint: device,
		PerceptualHash:    hash,
		SecondaryHash:     hash,
		FrequencyHash:     hash,
		ColorHistogram:    []float64{0.1, 0.2, 0.3},
		Quality:           quality,
		Flagged:           flagged,
		CreatedAt:         testNow.Add(-ago),
	}
}

func TestRecordSubmission_AssignsDefaults(t *testing.T) {
	t.Parallel()
	s := setupTestStore(t)
	ctx := context.Background()

	in := &Submission{UserID: "u1", PerceptualHash: "00ff00ff00ff00ff"}
	require.NoError(t, s.RecordSubmission(ctx, in))

	assert.NotEmpty(t, in.ID)
	assert.Equal(t, testNow, in.CreatedAt)
	assert.Equal(t, ReviewPending, in.Status)

	err := s.RecordSubmission(ctx, &Submission{})
	require.ErrorIs(t, err, ecoguard.ErrEmptyUserID)
}

func TestLastSubmissionAt(t *testing.T) {
	t.Parallel()
	s := setupTestStore(t)
	ctx := context.Background()

	_, ok, err := s.LastSubmissionAt(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	seed(t, s,
		sub("u1", "", "00ff00ff00ff00ff", 0.8, false, 2*time.Hour),
		sub("u1", "", "00ff00ff00ff00fe", 0.8, false, 10*time.Minute),
		sub("u2", "", "00ff00ff00ff00fd", 0.8, false, time.Minute),
	)

	last, ok, err := s.LastSubmissionAt(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, last.Equal(testNow.Add(-10*time.Minute)), "got %v", last)
}

func TestCountSubmissions(t *testing.T) {
	t.Parallel()
	s := setupTestStore(t)
	seed(t, s,
		sub("u1", "d1", "00ff00ff00ff00ff", 0.8, false, 30*time.Minute),
		sub("u1", "d1", "00ff00ff00ff00fe", 0.8, true, 2*time.Hour),
		sub("u2", "d2", "00ff00ff00ff00fd", 0.8, true, 48*time.Hour),
	)

	tests := []struct {
		name   string
		filter ecoguard.SubmissionFilter
		want   int
	}{
		{"all", ecoguard.SubmissionFilter{}, 3},
		{"user", ecoguard.SubmissionFilter{UserID: "u1"}, 2},
		{"last hour", ecoguard.SubmissionFilter{Since: testNow.Add(-time.Hour)}, 1},
		{"flagged", ecoguard.SubmissionFilter{FlaggedOnly: true}, 2},
		{"flagged last day", ecoguard.SubmissionFilter{Since: testNow.Add(-24 * time.Hour), FlaggedOnly: true}, 1},
		{"user flagged", ecoguard.SubmissionFilter{UserID: "u2", FlaggedOnly: true}, 1},
		{"unknown user", ecoguard.SubmissionFilter{UserID: "nobody"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := s.CountSubmissions(context.Background(), tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestRecentCandidates_OwnHistoryPlusGlobalWindow(t *testing.T) {
	t.Parallel()
	s := setupTestStore(t)

	old := sub("u1", "", "1111111111111111", 0.7, false, 30*24*time.Hour)
	recent := sub("u2", "", "2222222222222222", 0.6, false, time.Hour)
	stale := sub("u3", "", "3333333333333333", 0.6, false, 30*24*time.Hour)
	noHash := sub("u2", "", "", 0, false, time.Minute)
	seed(t, s, old, recent, stale, noHash)

	got, err := s.RecentCandidates(context.Background(), ecoguard.CandidateQuery{
		UserID: "u1",
		Since:  testNow.Add(-7 * 24 * time.Hour),
		Limit:  10,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, recent.ID, got[0].ID, "newest first")
	assert.Equal(t, old.ID, got[1].ID, "own history is not time bounded")
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, got[0].ColorHistogram)
	assert.InDelta(t, 0.6, got[0].Quality, 1e-9)

	limited, err := s.RecentCandidates(context.Background(), ecoguard.CandidateQuery{
		UserID: "u1", Since: testNow.Add(-7 * 24 * time.Hour), Limit: 1,
	})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestCountByDeviceAndUser(t *testing.T) {
	t.Parallel()
	s := setupTestStore(t)
	seed(t, s,
		sub("u1", "d1", "00ff00ff00ff00ff", 0.8, false, time.Minute),
		sub("u2", "d1", "00ff00ff00ff00fe", 0.8, false, 2*time.Minute),
		sub("u2", "", "00ff00ff00ff00fd", 0.8, false, 3*time.Minute),
		sub("u3", "d2", "00ff00ff00ff00fc", 0.8, false, 48*time.Hour),
	)
	ctx := context.Background()
	since := testNow.Add(-24 * time.Hour)

	devices, err := s.CountByDevice(ctx, since)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"d1": 2}, devices)

	users, err := s.CountByUser(ctx, since)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"u1": 1, "u2": 2}, users)
}

func TestAverageQuality(t *testing.T) {
	t.Parallel()
	s := setupTestStore(t)
	ctx := context.Background()
	since := testNow.Add(-24 * time.Hour)

	avg, n, err := s.AverageQuality(ctx, since)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, avg)

	seed(t, s,
		sub("u1", "", "00ff00ff00ff00ff", 0.2, false, time.Minute),
		sub("u1", "", "00ff00ff00ff00fe", 0.4, false, 2*time.Minute),
		sub("u1", "", "00ff00ff00ff00fd", 1.0, false, 48*time.Hour),
	)
	avg, n, err = s.AverageQuality(ctx, since)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.InDelta(t, 0.3, avg, 1e-9)
}

func TestNewSubmission_FlagsByDecision(t *testing.T) {
	t.Parallel()

	fp := ecoguard.Fingerprint{PerceptualHash: "00ff00ff00ff00ff", Quality: 0.9}
	tests := []struct {
		name        string
		verdict     ecoguard.Verdict
		wantFlagged bool
		wantStatus  ReviewStatus
	}{
		{"accepted", ecoguard.Verdict{Method: ecoguard.MethodNone}, false, ReviewApproved},
		{"rejected", ecoguard.Verdict{IsDuplicate: true, Confidence: 1, Reason: "dup"}, true, ReviewRejected},
		{"review", ecoguard.Verdict{IsDuplicate: true, Confidence: 0.8, RequiresReview: true, Reason: "maybe"}, true, ReviewPending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := NewSubmission("u1", "d1", fp, tt.verdict, testNow)
			assert.Equal(t, tt.wantFlagged, got.Flagged)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.verdict.Reason, got.FlagReason)
		})
	}
}

func TestSetSubmissionReviewAndFlaggedQueue(t *testing.T) {
	t.Parallel()
	s := setupTestStore(t)
	ctx := context.Background()

	a := sub("u1", "", "00ff00ff00ff00ff", 0.8, true, time.Hour)
	b := sub("u2", "", "00ff00ff00ff00fe", 0.8, true, time.Minute)
	c := sub("u3", "", "00ff00ff00ff00fd", 0.8, false, time.Minute)
	seed(t, s, a, b, c)

	rows, total, err := s.FlaggedSubmissions(ctx, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, rows, 1)
	assert.Equal(t, b.ID, rows[0].ID)

	require.NoError(t, s.SetSubmissionReview(ctx, b.ID, ReviewApproved, false, "looked fine"))
	rows, total, err = s.FlaggedSubmissions(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, rows, 1)
	assert.Equal(t, a.ID, rows[0].ID)

	require.ErrorIs(t, s.SetSubmissionReview(ctx, "missing", ReviewRejected, true, ""), ErrNotFound)
	require.Error(t, s.SetSubmissionReview(ctx, a.ID, "bogus", true, ""))
}

func TestAlerts_SaveListResolve(t *testing.T) {
	t.Parallel()
	s := setupTestStore(t)
	ctx := context.Background()

	alerts := []ecoguard.Alert{
		{
			ID: "a1", Type: ecoguard.AlertHighFlagRate, Severity: ecoguard.SeverityCritical,
			Message: "High flag rate", Metadata: map[string]any{"total": 50}, CreatedAt: testNow.Add(-time.Minute),
		},
		{
			ID: "a2", Type: ecoguard.AlertSuspiciousDevice, Severity: ecoguard.SeverityMedium,
			Message: "device", DeviceFingerprint: "d1", CreatedAt: testNow,
		},
	}
	require.NoError(t, s.SaveAlerts(ctx, alerts))
	require.NoError(t, s.SaveAlerts(ctx, nil))

	got, err := s.ListAlerts(ctx, true, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a2", got[0].ID)
	assert.Equal(t, "d1", got[0].DeviceFingerprint)
	assert.Equal(t, ecoguard.SeverityCritical, got[1].Severity)
	assert.InDelta(t, 50, got[1].Metadata["total"], 0) // JSON numbers decode as float64

	require.NoError(t, s.ResolveAlert(ctx, "a1"))
	require.ErrorIs(t, s.ResolveAlert(ctx, "nope"), ErrNotFound)

	open, err := s.ListAlerts(ctx, true, 0)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "a2", open[0].ID)

	all, err := s.ListAlerts(ctx, false, 1)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
