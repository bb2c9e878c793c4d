// Package store persists submissions and alerts in SQLite through GORM and
// serves them to the ecoguard core as its history collaborator.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/anatolykoptev/go-ecoguard"
)

// ErrNotFound is returned when an update targets a row that does not exist.
var ErrNotFound = errors.New("store: record not found")

const defaultSlowQuery = 200 * time.Millisecond

// Store is the SQLite-backed submission history and alert sink.
// It implements ecoguard.History and ecoguard.AlertSink.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

var (
	_ ecoguard.History   = (*Store)(nil)
	_ ecoguard.AlertSink = (*Store)(nil)
)

// Open opens (creating if needed) the SQLite database at path and migrates
// the schema. ":memory:" gives a private in-memory database.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: newGormLogger(logger, gormlogger.Warn, defaultSlowQuery),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("store: connection pool: %w", err)
	}
	// SQLite allows a single writer; one connection also keeps ":memory:"
	// databases alive across queries.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Submission{}, &AlertRecord{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	logger.Debug("store: database ready", "path", path)
	return &Store{db: db, logger: logger, now: time.Now}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RecordSubmission inserts sub, assigning an ID and creation time when unset.
func (s *Store) RecordSubmission(ctx context.Context, sub *Submission) error {
	if sub.UserID == "" {
		return ecoguard.ErrEmptyUserID
	}
	if sub.ID == "" {
		sub.ID = newID()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = s.now()
	}
	sub.CreatedAt = sub.CreatedAt.UTC()
	if sub.Status == "" {
		sub.Status = ReviewPending
	}
	if err := s.db.WithContext(ctx).Create(sub).Error; err != nil {
		return fmt.Errorf("store: record submission: %w", err)
	}
	return nil
}

// SetSubmissionReview applies a moderator decision to a submission.
func (s *Store) SetSubmissionReview(ctx context.Context, id string, status ReviewStatus, flagged bool, reason string) error {
	if !status.valid() {
		return fmt.Errorf("store: invalid review status %q", status)
	}
	now := s.now().UTC()
	res := s.db.WithContext(ctx).Model(&Submission{}).Where("id = ?", id).Updates(map[string]any{
		"status":      status,
		"flagged":     flagged,
		"flag_reason": reason,
		"reviewed_at": &now,
	})
	if res.Error != nil {
		return fmt.Errorf("store: review submission %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: submission %s", ErrNotFound, id)
	}
	return nil
}

// FlaggedSubmissions pages through flagged submissions, newest first, and
// returns the total number of flagged rows. limit <= 0 means no limit.
func (s *Store) FlaggedSubmissions(ctx context.Context, limit, offset int) ([]Submission, int64, error) {
	if limit <= 0 {
		limit = -1
	}
	flagged := func() *gorm.DB {
		return s.db.WithContext(ctx).Model(&Submission{}).Where("flagged = ?", true)
	}

	var total int64
	if err := flagged().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("store: count flagged: %w", err)
	}
	var rows []Submission
	if err := flagged().Order("created_at DESC").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("store: list flagged: %w", err)
	}
	return rows, total, nil
}

// LastSubmissionAt implements ecoguard.ThrottleSource.
func (s *Store) LastSubmissionAt(ctx context.Context, userID string) (time.Time, bool, error) {
	var rows []Submission
	err := s.db.WithContext(ctx).
		Select("created_at").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return time.Time{}, false, fmt.Errorf("store: last submission: %w", err)
	}
	if len(rows) == 0 {
		return time.Time{}, false, nil
	}
	return rows[0].CreatedAt, true, nil
}

// CountSubmissions implements ecoguard.ThrottleSource and ecoguard.MonitorSource.
func (s *Store) CountSubmissions(ctx context.Context, f ecoguard.SubmissionFilter) (int, error) {
	q := s.db.WithContext(ctx).Model(&Submission{})
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if !f.Since.IsZero() {
		q = q.Where("created_at > ?", f.Since.UTC())
	}
	if f.FlaggedOnly {
		q = q.Where("flagged = ?", true)
	}

	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("store: count submissions: %w", err)
	}
	return int(n), nil
}

// RecentCandidates implements ecoguard.CandidateSource: every submission of
// q.UserID plus everyone's submissions newer than q.Since, newest first.
func (s *Store) RecentCandidates(ctx context.Context, q ecoguard.CandidateQuery) ([]ecoguard.Candidate, error) {
	var rows []Submission
	err := s.db.WithContext(ctx).
		Where("user_id = ? OR created_at > ?", q.UserID, q.Since.UTC()).
		Where("perceptual_hash <> ''").
		Order("created_at DESC").
		Limit(q.Limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("store: recent candidates: %w", err)
	}

	out := make([]ecoguard.Candidate, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].candidate())
	}
	return out, nil
}

type groupCount struct {
	Grp string
	N   int
}

// CountByDevice implements ecoguard.MonitorSource.
func (s *Store) CountByDevice(ctx context.Context, since time.Time) (map[string]int, error) {
	return s.countBy(ctx, "device_fingerprint", since)
}

// CountByUser implements ecoguard.MonitorSource.
func (s *Store) CountByUser(ctx context.Context, since time.Time) (map[string]int, error) {
	return s.countBy(ctx, "user_id", since)
}

// countBy groups submissions newer than since by column. column is always a
// package constant, never caller input.
func (s *Store) countBy(ctx context.Context, column string, since time.Time) (map[string]int, error) {
	var rows []groupCount
	err := s.db.WithContext(ctx).
		Model(&Submission{}).
		Select(column+" AS grp, COUNT(*) AS n").
		Where("created_at > ?", since.UTC()).
		Where(column + " <> ''").
		Group(column).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("store: count by %s: %w", column, err)
	}

	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.Grp] = r.N
	}
	return out, nil
}

// AverageQuality implements ecoguard.MonitorSource.
func (s *Store) AverageQuality(ctx context.Context, since time.Time) (float64, int, error) {
	var res struct {
		AvgQuality sql.NullFloat64
		Samples    int
	}
	err := s.db.WithContext(ctx).
		Model(&Submission{}).
		Select("AVG(quality) AS avg_quality, COUNT(*) AS samples").
		Where("created_at > ?", since.UTC()).
		Scan(&res).Error
	if err != nil {
		return 0, 0, fmt.Errorf("store: average quality: %w", err)
	}
	if res.Samples == 0 || !res.AvgQuality.Valid {
		return 0, 0, nil
	}
	return res.AvgQuality.Float64, res.Samples, nil
}
