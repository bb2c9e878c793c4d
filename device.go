package ecoguard

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
)

const deviceFingerprintLen = 16

// DeviceSignals are the client-supplied request attributes a device
// fingerprint is derived from. All of them are spoofable.
type DeviceSignals struct {
	UserAgent      string
	AcceptLanguage string
	AcceptEncoding string
	IP             string
	ClientHint     string // Sec-CH-UA
	ClientMobile   string // Sec-CH-UA-Mobile
	ClientPlatform string // Sec-CH-UA-Platform
}

// DeviceFingerprintOf hashes the signals in a fixed order into a 16-hex-digit
// clustering id. It is an abuse-monitoring signal only, never an identity.
func DeviceFingerprintOf(s DeviceSignals) string {
	joined := strings.Join([]string{
		s.UserAgent,
		s.AcceptLanguage,
		s.AcceptEncoding,
		s.IP,
		s.ClientHint,
		s.ClientMobile,
		s.ClientPlatform,
	}, "|")
	sum := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(sum[:])[:deviceFingerprintLen]
}

// DeviceFingerprint derives the device fingerprint of an HTTP request using
// the network-observed peer address.
func DeviceFingerprint(r *http.Request) string {
	return DeviceFingerprintOf(DeviceSignalsFromRequest(r))
}

// DeviceSignalsFromRequest collects the fingerprint inputs from r.
func DeviceSignalsFromRequest(r *http.Request) DeviceSignals {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}
	return DeviceSignals{
		UserAgent:      r.Header.Get("User-Agent"),
		AcceptLanguage: r.Header.Get("Accept-Language"),
		AcceptEncoding: r.Header.Get("Accept-Encoding"),
		IP:             ip,
		ClientHint:     r.Header.Get("Sec-CH-UA"),
		ClientMobile:   r.Header.Get("Sec-CH-UA-Mobile"),
		ClientPlatform: r.Header.Get("Sec-CH-UA-Platform"),
	}
}
