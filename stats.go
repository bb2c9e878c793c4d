package ecoguard

import (
	"context"
	"fmt"
	"time"
)

// Health summarises the anti-cheat state for dashboards.
type Health string

const (
	HealthHealthy  Health = "HEALTHY"
	HealthWarning  Health = "WARNING"
	HealthCritical Health = "CRITICAL"
)

// Stats is a real-time snapshot of submission activity.
type Stats struct {
	TotalSubmissions   int       `json:"totalSubmissions"`   // last 24h
	FlaggedSubmissions int       `json:"flaggedSubmissions"` // last 24h
	RecentSubmissions  int       `json:"recentSubmissions"`  // last hour
	FlagRate           float64   `json:"flagRate"`           // percent of the 24h total
	ActiveDevices      int       `json:"activeDevices"`      // distinct devices in 24h
	AverageQuality     float64   `json:"averageQuality"`
	QualitySamples     int       `json:"qualitySamples"`
	Health             Health    `json:"health"`
	CheckedAt          time.Time `json:"checkedAt"`
}

// SystemHealth grades activity: a flag ratio above 30% or more than 100
// submissions in the last hour is critical, above 15% or 50 a warning.
func SystemHealth(flagged, total, recent int) Health {
	var ratio float64
	if total > 0 {
		ratio = float64(flagged) / float64(total)
	}
	switch {
	case ratio > 0.3 || recent > 100:
		return HealthCritical
	case ratio > 0.15 || recent > 50:
		return HealthWarning
	default:
		return HealthHealthy
	}
}

// Stats reads the activity snapshot ending at now. Unlike Run, collaborator
// errors are returned because the caller is an interactive dashboard.
func (m *Monitor) Stats(ctx context.Context, now time.Time) (Stats, error) {
	daySince := now.Add(-dailyWindow)

	total, err := m.source.CountSubmissions(ctx, SubmissionFilter{Since: daySince})
	if err != nil {
		return Stats{}, fmt.Errorf("ecoguard: stats total: %w", err)
	}
	flagged, err := m.source.CountSubmissions(ctx, SubmissionFilter{Since: daySince, FlaggedOnly: true})
	if err != nil {
		return Stats{}, fmt.Errorf("ecoguard: stats flagged: %w", err)
	}
	recent, err := m.source.CountSubmissions(ctx, SubmissionFilter{Since: now.Add(-hourlyWindow)})
	if err != nil {
		return Stats{}, fmt.Errorf("ecoguard: stats recent: %w", err)
	}
	devices, err := m.source.CountByDevice(ctx, daySince)
	if err != nil {
		return Stats{}, fmt.Errorf("ecoguard: stats devices: %w", err)
	}
	avg, n, err := m.source.AverageQuality(ctx, daySince)
	if err != nil {
		return Stats{}, fmt.Errorf("ecoguard: stats quality: %w", err)
	}

	s := Stats{
		TotalSubmissions:   total,
		FlaggedSubmissions: flagged,
		RecentSubmissions:  recent,
		ActiveDevices:      len(devices),
		AverageQuality:     avg,
		QualitySamples:     n,
		Health:             SystemHealth(flagged, total, recent),
		CheckedAt:          now,
	}
	if total > 0 {
		s.FlagRate = float64(flagged) / float64(total) * 100 //nolint:mnd // percent
	}
	return s, nil
}
