package store

import (
	"context"
	"fmt"

	"github.com/anatolykoptev/go-ecoguard"
)

// SaveAlerts implements ecoguard.AlertSink.
func (s *Store) SaveAlerts(ctx context.Context, alerts []ecoguard.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	records := make([]AlertRecord, 0, len(alerts))
	for _, a := range alerts {
		if a.ID == "" {
			a.ID = newID()
		}
		records = append(records, alertRecord(a))
	}
	if err := s.db.WithContext(ctx).Create(&records).Error; err != nil {
		return fmt.Errorf("store: save %d alerts: %w", len(records), err)
	}
	return nil
}

// ListAlerts returns up to limit alerts, newest first. limit <= 0 means no limit.
func (s *Store) ListAlerts(ctx context.Context, unresolvedOnly bool, limit int) ([]ecoguard.Alert, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if unresolvedOnly {
		q = q.Where("resolved = ?", false)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []AlertRecord
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: list alerts: %w", err)
	}
	out := make([]ecoguard.Alert, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].alert())
	}
	return out, nil
}

// ResolveAlert marks an alert resolved. Resolving is an administrator action;
// the monitor never resolves alerts itself.
func (s *Store) ResolveAlert(ctx context.Context, id string) error {
	now := s.now().UTC()
	res := s.db.WithContext(ctx).Model(&AlertRecord{}).Where("id = ?", id).Updates(map[string]any{
		"resolved":    true,
		"resolved_at": &now,
	})
	if res.Error != nil {
		return fmt.Errorf("store: resolve alert %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: alert %s", ErrNotFound, id)
	}
	return nil
}
