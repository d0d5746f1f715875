package domain

import "errors"

var (
	// ErrUnknownGranularity indicates an unsupported bucket granularity.
	ErrUnknownGranularity = errors.New("dashboard: unknown granularity")
	// ErrEmptyTenant indicates a missing tenant id.
	ErrEmptyTenant = errors.New("dashboard: empty tenant id")
	// ErrEmptySensor indicates a missing sensor id.
	ErrEmptySensor = errors.New("dashboard: empty sensor id")
	// ErrInvalidWindow indicates a non-positive or inverted time window.
	ErrInvalidWindow = errors.New("dashboard: invalid time window")
)
