package ecoguard

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"
)

const (
	dailyWindow  = 24 * time.Hour
	hourlyWindow = time.Hour
)

// MonitorConfig is the process-wide monitoring configuration. It is a value:
// Monitor.UpdateConfig replaces it whole, never field by field.
type MonitorConfig struct {
	Enabled bool

	FlagRatePercent         float64 // alert when the 24h flag rate exceeds this
	FlagRateHighPercent     float64 // HIGH above this
	FlagRateCriticalPercent float64 // CRITICAL above this

	DeviceSubmissions int // alert when one device exceeds this many submissions in 24h
	DeviceHighCount   int // HIGH above this

	HourlySubmissions int // alert when one user exceeds this many submissions in 1h
	UserHighCount     int // HIGH above this
	UserCriticalCount int // CRITICAL above this

	MinAverageQuality float64 // alert when the 24h average quality is below this
	QualityHighBelow  float64 // HIGH below this
}

// DefaultMonitorConfig returns an enabled configuration with the default thresholds.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Enabled:                 true,
		FlagRatePercent:         15,
		FlagRateHighPercent:     20,
		FlagRateCriticalPercent: 30,
		DeviceSubmissions:       10,
		DeviceHighCount:         25,
		HourlySubmissions:       20,
		UserHighCount:           30,
		UserCriticalCount:       50,
		MinAverageQuality:       0.2,
		QualityHighBelow:        0.1,
	}
}

// Validate checks that thresholds are non-negative and severity bands ordered.
func (c MonitorConfig) Validate() error {
	switch {
	case c.FlagRatePercent < 0 || c.FlagRatePercent > 100:
		return fmt.Errorf("%w: flag_rate_percent %.1f outside [0,100]", ErrInvalidConfig, c.FlagRatePercent)
	case c.FlagRateHighPercent > c.FlagRateCriticalPercent:
		return fmt.Errorf("%w: flag rate high band %.1f above critical band %.1f",
			ErrInvalidConfig, c.FlagRateHighPercent, c.FlagRateCriticalPercent)
	case c.DeviceSubmissions < 0 || c.HourlySubmissions < 0:
		return fmt.Errorf("%w: submission thresholds must not be negative", ErrInvalidConfig)
	case c.UserHighCount > c.UserCriticalCount:
		return fmt.Errorf("%w: user high band %d above critical band %d",
			ErrInvalidConfig, c.UserHighCount, c.UserCriticalCount)
	case c.MinAverageQuality < 0 || c.MinAverageQuality > 1:
		return fmt.Errorf("%w: min_average_quality %.2f outside [0,1]", ErrInvalidConfig, c.MinAverageQuality)
	case c.QualityHighBelow > c.MinAverageQuality:
		return fmt.Errorf("%w: quality high band %.2f above min_average_quality %.2f",
			ErrInvalidConfig, c.QualityHighBelow, c.MinAverageQuality)
	}
	return nil
}

// Monitor runs periodic, read-only abuse analysis over the submission history.
// Its configuration may be read and replaced concurrently with running passes.
type Monitor struct {
	source   MonitorSource
	cfg      atomic.Pointer[MonitorConfig]
	logger   *slog.Logger
	sink     AlertSink
	notifier Notifier
	metrics  *Metrics
	now      func() time.Time
}

// MonitorOption customises a Monitor.
type MonitorOption func(*Monitor)

// WithLogger sets the monitor logger (default: slog.Default()).
func WithLogger(l *slog.Logger) MonitorOption {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithAlertSink stores every raised alert.
func WithAlertSink(s AlertSink) MonitorOption { return func(m *Monitor) { m.sink = s } }

// WithNotifier escalates critical alerts.
func WithNotifier(n Notifier) MonitorOption { return func(m *Monitor) { m.notifier = n } }

// WithMonitorMetrics records pass outcomes and alerts.
func WithMonitorMetrics(mt *Metrics) MonitorOption { return func(m *Monitor) { m.metrics = mt } }

// WithClock overrides the clock used by scheduled passes.
func WithClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMonitor returns a Monitor over source using cfg as its initial configuration.
func NewMonitor(source MonitorSource, cfg MonitorConfig, opts ...MonitorOption) (*Monitor, error) {
	if source == nil {
		return nil, errors.New("ecoguard: monitor requires a history source")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Monitor{
		source: source,
		logger: slog.Default(),
		now:    time.Now,
	}
	m.cfg.Store(&cfg)
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Config returns a copy of the current configuration.
func (m *Monitor) Config() MonitorConfig {
	return *m.cfg.Load()
}

// UpdateConfig atomically replaces the configuration. Passes already running
// keep the configuration they started with.
func (m *Monitor) UpdateConfig(cfg MonitorConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.cfg.Store(&cfg)
	m.logger.Info("ecoguard: monitor configuration updated",
		"enabled", cfg.Enabled,
		"flag_rate_percent", cfg.FlagRatePercent,
		"hourly_submissions", cfg.HourlySubmissions,
		"device_submissions", cfg.DeviceSubmissions,
		"min_average_quality", cfg.MinAverageQuality)
	return nil
}

// Run performs one monitoring pass ending at now. It never fails: collaborator
// errors and panics are logged and yield no alerts, so a skipped or retried
// pass is harmless.
func (m *Monitor) Run(ctx context.Context, now time.Time) (alerts []Alert) {
	cfg := m.Config()
	if !cfg.Enabled {
		m.logger.Info("ecoguard: monitoring disabled, pass skipped")
		return nil
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("ecoguard: monitoring pass panicked", "panic", fmt.Sprint(r))
			m.metrics.observeMonitorRun("panic")
			alerts = nil
		}
	}()

	var err error
	alerts, err = m.collect(ctx, cfg, now)
	if err != nil {
		m.logger.Error("ecoguard: monitoring pass failed", "error", err)
		m.metrics.observeMonitorRun("error")
		return nil
	}

	if len(alerts) > 0 {
		m.dispatch(ctx, alerts)
	}
	m.metrics.observeMonitorRun("ok")
	m.logger.Info("ecoguard: monitoring pass completed", "alerts", len(alerts), "duration", time.Since(start))
	return alerts
}

func (m *Monitor) collect(ctx context.Context, cfg MonitorConfig, now time.Time) ([]Alert, error) {
	daySince := now.Add(-dailyWindow)
	hourSince := now.Add(-hourlyWindow)

	var alerts []Alert

	flagRate, err := m.checkFlagRate(ctx, cfg, daySince, now)
	if err != nil {
		return nil, fmt.Errorf("flag rate check: %w", err)
	}
	if flagRate != nil {
		alerts = append(alerts, *flagRate)
	}

	devices, err := m.checkDevices(ctx, cfg, daySince, now)
	if err != nil {
		return nil, fmt.Errorf("device check: %w", err)
	}
	alerts = append(alerts, devices...)

	users, err := m.checkUsers(ctx, cfg, hourSince, now)
	if err != nil {
		return nil, fmt.Errorf("submission frequency check: %w", err)
	}
	alerts = append(alerts, users...)

	quality, err := m.checkQuality(ctx, cfg, daySince, now)
	if err != nil {
		return nil, fmt.Errorf("quality check: %w", err)
	}
	if quality != nil {
		alerts = append(alerts, *quality)
	}

	return alerts, nil
}

func (m *Monitor) checkFlagRate(ctx context.Context, cfg MonitorConfig, since, now time.Time) (*Alert, error) {
	total, err := m.source.CountSubmissions(ctx, SubmissionFilter{Since: since})
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, nil
	}
	flagged, err := m.source.CountSubmissions(ctx, SubmissionFilter{Since: since, FlaggedOnly: true})
	if err != nil {
		return nil, err
	}

	rate := float64(flagged) / float64(total) * 100 //nolint:mnd // percent
	if rate <= cfg.FlagRatePercent {
		return nil, nil
	}

	sev := SeverityMedium
	switch {
	case rate > cfg.FlagRateCriticalPercent:
		sev = SeverityCritical
	case rate > cfg.FlagRateHighPercent:
		sev = SeverityHigh
	}

	a := newAlert(AlertHighFlagRate, sev,
		fmt.Sprintf("High flag rate detected: %.1f%% (%d/%d submissions)", rate, flagged, total),
		now, map[string]any{"total": total, "flagged": flagged, "flagRate": rate, "since": since})
	return &a, nil
}

func (m *Monitor) checkDevices(ctx context.Context, cfg MonitorConfig, since, now time.Time) ([]Alert, error) {
	counts, err := m.source.CountByDevice(ctx, since)
	if err != nil {
		return nil, err
	}

	var alerts []Alert
	for _, g := range sortedGroups(counts) {
		if g.key == "" || g.count <= cfg.DeviceSubmissions {
			continue
		}
		sev := SeverityMedium
		if g.count > cfg.DeviceHighCount {
			sev = SeverityHigh
		}
		a := newAlert(AlertSuspiciousDevice, sev,
			fmt.Sprintf("Suspicious device activity: %d submissions in 24h", g.count),
			now, map[string]any{"submissionCount": g.count, "since": since})
		a.DeviceFingerprint = g.key
		alerts = append(alerts, a)
	}
	return alerts, nil
}

func (m *Monitor) checkUsers(ctx context.Context, cfg MonitorConfig, since, now time.Time) ([]Alert, error) {
	counts, err := m.source.CountByUser(ctx, since)
	if err != nil {
		return nil, err
	}

	var alerts []Alert
	for _, g := range sortedGroups(counts) {
		if g.key == "" || g.count <= cfg.HourlySubmissions {
			continue
		}
		sev := SeverityMedium
		switch {
		case g.count > cfg.UserCriticalCount:
			sev = SeverityCritical
		case g.count > cfg.UserHighCount:
			sev = SeverityHigh
		}
		a := newAlert(AlertFrequentSubmissions, sev,
			fmt.Sprintf("High submission frequency: %d submissions in 1 hour", g.count),
			now, map[string]any{"submissionCount": g.count, "since": since})
		a.UserID = g.key
		alerts = append(alerts, a)
	}
	return alerts, nil
}

func (m *Monitor) checkQuality(ctx context.Context, cfg MonitorConfig, since, now time.Time) (*Alert, error) {
	avg, n, err := m.source.AverageQuality(ctx, since)
	if err != nil {
		return nil, err
	}
	if n == 0 || avg >= cfg.MinAverageQuality {
		return nil, nil
	}

	sev := SeverityMedium
	if avg < cfg.QualityHighBelow {
		sev = SeverityHigh
	}
	a := newAlert(AlertLowQuality, sev,
		fmt.Sprintf("Low average image quality: %.3f", avg),
		now, map[string]any{"avgQuality": avg, "sampleCount": n, "since": since})
	return &a, nil
}

// dispatch logs every alert, hands them to the sink and escalates critical ones.
// Failures here are logged only; alerts are still returned to the caller.
func (m *Monitor) dispatch(ctx context.Context, alerts []Alert) {
	for _, a := range alerts {
		m.logger.Warn("ecoguard: anti-cheat alert",
			"id", a.ID,
			"type", a.Type,
			"severity", a.Severity,
			"message", a.Message,
			"user_id", a.UserID,
			"device", a.DeviceFingerprint)
		m.metrics.observeAlert(a)
	}

	if m.sink != nil {
		if err := m.sink.SaveAlerts(ctx, alerts); err != nil {
			m.logger.Error("ecoguard: storing alerts failed", "alerts", len(alerts), "error", err)
		}
	}

	critical := CriticalAlerts(alerts)
	if len(critical) == 0 {
		return
	}
	m.logger.Error("ecoguard: critical anti-cheat alerts detected", "count", len(critical))
	if m.notifier != nil {
		if err := m.notifier.Notify(ctx, critical); err != nil {
			m.logger.Error("ecoguard: critical alert notification failed", "count", len(critical), "error", err)
		}
	}
}

type group struct {
	key   string
	count int
}

// sortedGroups orders grouped counts by count descending, then key, so alert
// order is stable across passes.
func sortedGroups(counts map[string]int) []group {
	out := make([]group, 0, len(counts))
	for k, n := range counts {
		out = append(out, group{key: k, count: n})
	}
	slices.SortFunc(out, func(a, b group) int {
		if c := cmp.Compare(b.count, a.count); c != 0 {
			return c
		}
		return cmp.Compare(a.key, b.key)
	})
	return out
}
