package ecoguard

import (
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeviceFingerprintOf(t *testing.T) {
	t.Parallel()

	base := DeviceSignals{
		UserAgent:      "Mozilla/5.0 (Linux; Android 14)",
		AcceptLanguage: "en-GB,en;q=0.9",
		AcceptEncoding: "gzip, br",
		IP:             "203.0.113.7",
	}
	fp := DeviceFingerprintOf(base)

	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{16}$`), fp)
	assert.Equal(t, fp, DeviceFingerprintOf(base), "stable for equal signals")

	otherIP := base
	otherIP.IP = "203.0.113.8"
	assert.NotEqual(t, fp, DeviceFingerprintOf(otherIP))

	// Field boundaries are part of the input.
	shifted := base
	shifted.UserAgent, shifted.AcceptLanguage = base.UserAgent+"en-GB,en;q=0.9", ""
	assert.NotEqual(t, fp, DeviceFingerprintOf(shifted))
}

func TestDeviceFingerprint_Request(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest("POST", "/submissions", nil)
	r.Header.Set("User-Agent", "EcoApp/3.1 (iPhone)")
	r.Header.Set("Accept-Language", "de-DE")
	r.Header.Set("Sec-CH-UA-Platform", `"iOS"`)

	signals := DeviceSignalsFromRequest(r)
	assert.Equal(t, "192.0.2.1", signals.IP, "port is stripped from the peer address")
	assert.Equal(t, "EcoApp/3.1 (iPhone)", signals.UserAgent)
	assert.Equal(t, `"iOS"`, signals.ClientPlatform)
	assert.Equal(t, DeviceFingerprintOf(signals), DeviceFingerprint(r))

	r.RemoteAddr = "198.51.100.4"
	assert.Equal(t, "198.51.100.4", DeviceSignalsFromRequest(r).IP, "address without port is kept")

	r.Header.Set("X-Forwarded-For", "10.0.0.1")
	assert.Equal(t, "198.51.100.4", DeviceSignalsFromRequest(r).IP, "forwarding headers are not trusted")
}
