package ecoguard

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_Registration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)

	_, err = NewMetrics(reg)
	require.Error(t, err, "second registration collides")

	unregistered, err := NewMetrics(nil)
	require.NoError(t, err)
	assert.NotNil(t, unregistered.Verdicts)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	assert.NotPanics(t, func() {
		m.observeFingerprint(fingerprintComputed, time.Millisecond)
		m.observeVerdict(notDuplicate())
		m.observeThrottleDenial("cooldown")
		m.observeMonitorRun("ok")
		m.observeAlert(Alert{Type: AlertLowQuality, Severity: SeverityHigh})
	})
}

func TestMetrics_Labels(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.observeVerdict(Verdict{IsDuplicate: true, Confidence: 1, Method: MethodCombined})
	m.observeVerdict(Verdict{IsDuplicate: true, Confidence: 0.8, Method: MethodHash, RequiresReview: true})
	m.observeVerdict(notDuplicate())
	m.observeAlert(Alert{Type: AlertSuspiciousDevice, Severity: SeverityMedium})
	m.observeFingerprint(fingerprintCached, time.Second)
	m.observeFingerprint(fingerprintComputed, 5*time.Millisecond)

	assert.InDelta(t, 1, testutil.ToFloat64(m.Verdicts.WithLabelValues("combined", "reject")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Verdicts.WithLabelValues("hash", "review")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Verdicts.WithLabelValues("none", "accept")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Alerts.WithLabelValues("SUSPICIOUS_DEVICE", "MEDIUM")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Fingerprints.WithLabelValues(fingerprintCached)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Fingerprints.WithLabelValues(fingerprintComputed)), 0)
}
