package conf

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anatolykoptev/go-ecoguard"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ecoguard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir()) // no ecoguard.yaml in the working directory

	s, err := Load(nil, "")
	require.NoError(t, err)

	assert.Equal(t, "info", s.Log.Level)
	assert.Equal(t, "ecoguard.db", s.Database.Path)
	assert.Equal(t, ecoguard.DefaultDetectorConfig(), s.DetectorConfig())
	assert.Equal(t, ecoguard.DefaultThrottleConfig(), s.ThrottleConfig())
	assert.Equal(t, ecoguard.DefaultMonitorConfig(), s.MonitorConfig())
	assert.Equal(t, ecoguard.DefaultMonitorSchedule, s.Monitor.Schedule)
	assert.Equal(t, 7*24*time.Hour, s.Detector.GlobalWindow)
	assert.Empty(t, s.Notify.URLs)
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
  format: json
detector:
  same_user_distance: 4
  global_distance: 10
throttle:
  cooldown: 45s
  hourly_limit: 12
monitor:
  flag_rate_percent: 25
notify:
  urls:
    - "logger://"
`)
	t.Setenv("ECOGUARD_THROTTLE_HOURLY_LIMIT", "7")
	t.Setenv("ECOGUARD_DATABASE_PATH", "/tmp/eco.db")

	s, err := Load(nil, path)
	require.NoError(t, err)

	assert.Equal(t, "debug", s.Log.Level)
	assert.Equal(t, 4, s.DetectorConfig().SameUserDistance)
	assert.Equal(t, 10, s.DetectorConfig().GlobalDistance)
	assert.Equal(t, 45*time.Second, s.ThrottleConfig().Cooldown)
	assert.Equal(t, 7, s.ThrottleConfig().HourlyLimit, "env wins over file")
	assert.Equal(t, "/tmp/eco.db", s.Database.Path)
	assert.InDelta(t, 25, s.MonitorConfig().FlagRatePercent, 0)
	assert.Equal(t, []string{"logger://"}, s.Notify.URLs)
}

func TestLoad_DetectorZerosAreKept(t *testing.T) {
	path := writeConfig(t, `
detector:
  histogram_boost: 0
  min_quality: 0
`)

	s, err := Load(nil, path)
	require.NoError(t, err)

	det, err := ecoguard.NewDetector(s.DetectorConfig())
	require.NoError(t, err)
	assert.Zero(t, det.Config().HistogramBoost)
	assert.Zero(t, det.Config().MinQuality)
	assert.Equal(t, ecoguard.DefaultDetectorConfig().GlobalDistance, det.Config().GlobalDistance)
}

func TestLoad_ExplicitViperOverride(t *testing.T) {
	t.Chdir(t.TempDir())

	v := viper.New()
	v.Set("database.path", "flag.db")

	s, err := Load(v, "")
	require.NoError(t, err)
	assert.Equal(t, "flag.db", s.Database.Path)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad level", "log:\n  level: loud\n"},
		{"bad format", "log:\n  format: xml\n"},
		{"same user above global", "detector:\n  same_user_distance: 12\n  global_distance: 8\n"},
		{"confidence out of range", "detector:\n  accept_confidence: 1.5\n"},
		{"monitor bands inverted", "monitor:\n  user_high_count: 80\n"},
		{"negative throttle", "throttle:\n  cooldown: -5s\n"},
		{"malformed yaml", "log: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(nil, writeConfig(t, tt.body))
			require.Error(t, err)
		})
	}

	_, err := Load(nil, filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err, "an explicit path must exist")
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	s := &Settings{Log: LogSettings{Level: "warn", Format: "json"}}
	l := s.NewLogger(&buf)

	l.Info("dropped")
	l.Warn("kept", "k", "v")
	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, `"msg":"kept"`)
}
