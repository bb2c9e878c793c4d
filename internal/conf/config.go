// Package conf loads ecoguard process settings from a YAML file and
// ECOGUARD_* environment variables.
package conf

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/anatolykoptev/go-ecoguard"
)

// EnvPrefix prefixes every environment override, e.g. ECOGUARD_DATABASE_PATH.
const EnvPrefix = "ECOGUARD"

// Settings is the full process configuration.
type Settings struct {
	Log      LogSettings      `mapstructure:"log"`
	Database DatabaseSettings `mapstructure:"database"`
	Cache    CacheSettings    `mapstructure:"cache"`
	Metrics  MetricsSettings  `mapstructure:"metrics"`
	Detector DetectorSettings `mapstructure:"detector"`
	Throttle ThrottleSettings `mapstructure:"throttle"`
	Monitor  MonitorSettings  `mapstructure:"monitor"`
	Notify   NotifySettings   `mapstructure:"notify"`
}

type LogSettings struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text or json
}

type DatabaseSettings struct {
	Path string `mapstructure:"path"`
}

type CacheSettings struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
	Cleanup time.Duration `mapstructure:"cleanup"`
}

type MetricsSettings struct {
	Listen string `mapstructure:"listen"` // empty disables the /metrics endpoint
}

// DetectorSettings default to ecoguard.DefaultDetectorConfig key by key. An
// explicit 0 is kept: histogram_boost: 0 turns the color boost off.
type DetectorSettings struct {
	SameUserDistance          int           `mapstructure:"same_user_distance"`
	GlobalDistance            int           `mapstructure:"global_distance"`
	SecondaryDistance         int           `mapstructure:"secondary_distance"`
	FrequencyDistance         int           `mapstructure:"frequency_distance"`
	MinQuality                float64       `mapstructure:"min_quality"`
	LowQuality                float64       `mapstructure:"low_quality"`
	QualityDamping            float64       `mapstructure:"quality_damping"`
	HashConfidence            float64       `mapstructure:"hash_confidence"`
	MultiHashConfidence       float64       `mapstructure:"multi_hash_confidence"`
	HistogramBoostCorrelation float64       `mapstructure:"histogram_boost_correlation"`
	HistogramBoost            float64       `mapstructure:"histogram_boost"`
	HistogramVetoDistance     float64       `mapstructure:"histogram_veto_distance"`
	AcceptConfidence          float64       `mapstructure:"accept_confidence"`
	ReviewConfidence          float64       `mapstructure:"review_confidence"`
	MaxCandidates             int           `mapstructure:"max_candidates"`
	GlobalWindow              time.Duration `mapstructure:"global_window"`
}

type ThrottleSettings struct {
	Cooldown    time.Duration `mapstructure:"cooldown"`
	HourlyLimit int           `mapstructure:"hourly_limit"`
	Window      time.Duration `mapstructure:"window"`
}

type MonitorSettings struct {
	Enabled                 bool          `mapstructure:"enabled"`
	Schedule                string        `mapstructure:"schedule"`
	Timeout                 time.Duration `mapstructure:"timeout"`
	FlagRatePercent         float64       `mapstructure:"flag_rate_percent"`
	FlagRateHighPercent     float64       `mapstructure:"flag_rate_high_percent"`
	FlagRateCriticalPercent float64       `mapstructure:"flag_rate_critical_percent"`
	DeviceSubmissions       int           `mapstructure:"device_submissions"`
	DeviceHighCount         int           `mapstructure:"device_high_count"`
	HourlySubmissions       int           `mapstructure:"hourly_submissions"`
	UserHighCount           int           `mapstructure:"user_high_count"`
	UserCriticalCount       int           `mapstructure:"user_critical_count"`
	MinAverageQuality       float64       `mapstructure:"min_average_quality"`
	QualityHighBelow        float64       `mapstructure:"quality_high_below"`
}

type NotifySettings struct {
	URLs    []string      `mapstructure:"urls"` // shoutrrr service URLs; empty disables notification
	Timeout time.Duration `mapstructure:"timeout"`
}

// Load reads settings into v (a fresh instance when nil). path names the
// config file; when empty, ecoguard.yaml is looked up in the working directory
// and $HOME/.config/ecoguard, and a missing file is not an error.
// Environment variables override the file, flags bound to v override both.
func Load(v *viper.Viper, path string) (*Settings, error) {
	if v == nil {
		v = viper.New()
	}
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("ecoguard")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/ecoguard")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("conf: read config: %w", err)
		}
	}

	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, fmt.Errorf("conf: decode config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks every section, reporting the first problem.
func (s *Settings) Validate() error {
	if _, err := parseLevel(s.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(s.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log format %q", ecoguard.ErrInvalidConfig, s.Log.Format)
	}
	if s.Database.Path == "" {
		return fmt.Errorf("%w: database path is empty", ecoguard.ErrInvalidConfig)
	}
	if s.Throttle.Cooldown < 0 || s.Throttle.HourlyLimit < 0 || s.Throttle.Window < 0 {
		return fmt.Errorf("%w: throttle values must not be negative", ecoguard.ErrInvalidConfig)
	}
	if err := s.DetectorConfig().Validate(); err != nil {
		return err
	}
	return s.MonitorConfig().Validate()
}

// DetectorConfig maps the detector section onto the core type.
func (s *Settings) DetectorConfig() ecoguard.DetectorConfig {
	d := s.Detector
	return ecoguard.DetectorConfig{
		SameUserDistance:          d.SameUserDistance,
		GlobalDistance:            d.GlobalDistance,
		SecondaryDistance:         d.SecondaryDistance,
		FrequencyDistance:         d.FrequencyDistance,
		MinQuality:                d.MinQuality,
		LowQuality:                d.LowQuality,
		QualityDamping:            d.QualityDamping,
		HashConfidence:            d.HashConfidence,
		MultiHashConfidence:       d.MultiHashConfidence,
		HistogramBoostCorrelation: d.HistogramBoostCorrelation,
		HistogramBoost:            d.HistogramBoost,
		HistogramVetoDistance:     d.HistogramVetoDistance,
		AcceptConfidence:          d.AcceptConfidence,
		ReviewConfidence:          d.ReviewConfidence,
		MaxCandidates:             d.MaxCandidates,
	}
}

// ThrottleConfig maps the throttle section onto the core type.
func (s *Settings) ThrottleConfig() ecoguard.ThrottleConfig {
	return ecoguard.ThrottleConfig{
		Cooldown:    s.Throttle.Cooldown,
		HourlyLimit: s.Throttle.HourlyLimit,
		Window:      s.Throttle.Window,
	}
}

// MonitorConfig maps the monitor section onto the core type.
func (s *Settings) MonitorConfig() ecoguard.MonitorConfig {
	m := s.Monitor
	return ecoguard.MonitorConfig{
		Enabled:                 m.Enabled,
		FlagRatePercent:         m.FlagRatePercent,
		FlagRateHighPercent:     m.FlagRateHighPercent,
		FlagRateCriticalPercent: m.FlagRateCriticalPercent,
		DeviceSubmissions:       m.DeviceSubmissions,
		DeviceHighCount:         m.DeviceHighCount,
		HourlySubmissions:       m.HourlySubmissions,
		UserHighCount:           m.UserHighCount,
		UserCriticalCount:       m.UserCriticalCount,
		MinAverageQuality:       m.MinAverageQuality,
		QualityHighBelow:        m.QualityHighBelow,
	}
}

// NewLogger builds the process logger described by the log section.
func (s *Settings) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(s.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(s.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("%w: log level %q", ecoguard.ErrInvalidConfig, s)
	}
	return level, nil
}
