package telemetry

import (
	"time"
)

// Protocol identifies the transport a reading arrived over.
type Protocol string

const (
	ProtocolLoRaWAN Protocol = "lorawan"
	ProtocolNBIoT   Protocol = "nbiot"
	ProtocolHTTP    Protocol = "http"
)

// IsValid checks if the protocol is one of the supported values.
func (p Protocol) IsValid() bool {
	switch p {
	case ProtocolLoRaWAN, ProtocolNBIoT, ProtocolHTTP:
		return true
	default:
		return false
	}
}

// AuthHintKind classifies how a device identified itself.
type AuthHintKind string

const (
	AuthHintNone        AuthHintKind = "none"
	AuthHintCertificate AuthHintKind = "certificate"
	AuthHintAPIKey      AuthHintKind = "api_key"
)

// AuthHint carries the device credential observed at the gateway.
// Enforcement happens downstream; the hint is recorded as-is.
type AuthHint struct {
	Kind  AuthHintKind
	Value string
}

// NoAuthHint returns the empty hint.
func NoAuthHint() AuthHint {
	return AuthHint{Kind: AuthHintNone}
}

// CertificateHint builds a certificate-fingerprint hint.
func CertificateHint(fingerprint string) AuthHint {
	if fingerprint == "" {
		return NoAuthHint()
	}
	return AuthHint{Kind: AuthHintCertificate, Value: fingerprint}
}

// APIKeyHint builds an API-key hint.
func APIKeyHint(key string) AuthHint {
	if key == "" {
		return NoAuthHint()
	}
	return AuthHint{Kind: AuthHintAPIKey, Value: key}
}

// Reading is the canonical, protocol-independent sensor observation.
// Invariants:
// 1) Value is always present and numeric; a decode without a numeric
//    channel never becomes a zero reading.
// 2) QualityScore is within [0,1].
// 3) Once built, a reading is not mutated.
type Reading struct {
	DeviceID     string
	Protocol     Protocol
	Value        float64
	Channels     map[string]float64
	Timestamp    time.Time
	QualityScore float64
	AuthHint     AuthHint
	Metadata     Metadata
}

// NewReading validates and builds a canonical reading.
func NewReading(deviceID string, protocol Protocol, value float64, channels map[string]float64, ts time.Time, quality float64, hint AuthHint, meta Metadata) (*Reading, error) {
	if deviceID == "" {
		return nil, ErrEmptyDeviceID
	}
	if !protocol.IsValid() {
		return nil, ErrInvalidProtocol
	}
	if ts.IsZero() {
		return nil, ErrInvalidTimestamp
	}
	if quality < 0 || quality > 1 {
		return nil, ErrInvalidQuality
	}
	return &Reading{
		DeviceID:     deviceID,
		Protocol:     protocol,
		Value:        value,
		Channels:     channels,
		Timestamp:    ts.UTC(),
		QualityScore: quality,
		AuthHint:     hint,
		Metadata:     meta,
	}, nil
}
