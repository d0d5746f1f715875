package telemetry

import "errors"

var (
	// ErrUnsupportedCodec is returned when the payload codec is unknown.
	ErrUnsupportedCodec = errors.New("telemetry: unsupported codec")
	// ErrEmptyReading is returned when a structurally valid decode yields no numeric value.
	ErrEmptyReading = errors.New("telemetry: no numeric reading")
	// ErrMissingValue is returned when a required value field is absent.
	ErrMissingValue = errors.New("telemetry: missing value")
	// ErrEmptyDeviceID is returned when the device identifier is empty.
	ErrEmptyDeviceID = errors.New("telemetry: empty device id")
	// ErrInvalidProtocol is returned when the protocol is unsupported.
	ErrInvalidProtocol = errors.New("telemetry: invalid protocol")
	// ErrInvalidTimestamp is returned when the reading timestamp is zero.
	ErrInvalidTimestamp = errors.New("telemetry: invalid timestamp")
	// ErrInvalidQuality is returned when the quality score is outside [0,1].
	ErrInvalidQuality = errors.New("telemetry: quality score out of range")
	// ErrUnknownDevice is returned when no registered sensor matches the device identifier.
	ErrUnknownDevice = errors.New("telemetry: unknown device")
	// ErrUnauthorizedDevice is returned when device credentials are enforced and do not match.
	ErrUnauthorizedDevice = errors.New("telemetry: unauthorized device")
)

// IngestionFailure wraps a downstream ingestion service failure. The
// original error stays reachable through Unwrap for errors.Is checks.
type IngestionFailure struct {
	Err error
}

// Error implements error.
func (e *IngestionFailure) Error() string {
	if e == nil || e.Err == nil {
		return "telemetry: ingestion failed"
	}
	return "telemetry: ingestion failed: " + e.Err.Error()
}

// Unwrap exposes the wrapped error.
func (e *IngestionFailure) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsClientError tells whether the error is caused by the inbound message
// rather than by this service. Gateways map it to a 4xx class.
func IsClientError(err error) bool {
	switch {
	case errors.Is(err, ErrUnsupportedCodec),
		errors.Is(err, ErrEmptyReading),
		errors.Is(err, ErrMissingValue),
		errors.Is(err, ErrEmptyDeviceID),
		errors.Is(err, ErrInvalidProtocol),
		errors.Is(err, ErrUnknownDevice),
		errors.Is(err, ErrUnauthorizedDevice):
		return true
	}
	return false
}
