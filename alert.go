package ecoguard

import (
	"time"

	"github.com/google/uuid"
)

// AlertType classifies an abuse alert.
type AlertType string

const (
	AlertHighFlagRate        AlertType = "HIGH_FLAG_RATE"
	AlertSuspiciousDevice    AlertType = "SUSPICIOUS_DEVICE"
	AlertLowQuality          AlertType = "LOW_QUALITY"
	AlertFrequentSubmissions AlertType = "FREQUENT_SUBMISSIONS"
)

// Severity orders alerts by urgency.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Alert is raised by a monitoring pass. The core never mutates it; resolution
// is an admin action on the alert store.
type Alert struct {
	ID                string         `json:"id"`
	Type              AlertType      `json:"type"`
	Severity          Severity       `json:"severity"`
	Message           string         `json:"message"`
	UserID            string         `json:"userId,omitempty"`
	DeviceFingerprint string         `json:"deviceFingerprint,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
	Resolved          bool           `json:"resolved"`
}

func newAlert(typ AlertType, sev Severity, msg string, now time.Time, meta map[string]any) Alert {
	return Alert{
		ID:        uuid.NewString(),
		Type:      typ,
		Severity:  sev,
		Message:   msg,
		Metadata:  meta,
		CreatedAt: now,
	}
}

// CriticalAlerts returns the alerts with CRITICAL severity.
func CriticalAlerts(alerts []Alert) []Alert {
	var out []Alert
	for _, a := range alerts {
		if a.Severity == SeverityCritical {
			out = append(out, a)
		}
	}
	return out
}
