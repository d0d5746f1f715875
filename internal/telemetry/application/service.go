package application

import (
	"context"
	"errors"
	"log"
	"sort"
	"time"

	"citysense-cloud/internal/observability/metrics"
	"citysense-cloud/internal/telemetry/codec"
	telemetry "citysense-cloud/internal/telemetry/domain"
	"citysense-cloud/internal/telemetry/quality"
)

// ProcessOptions tunes a single ingestion call.
type ProcessOptions struct {
	EnforceAPIKey bool
}

// Result is returned by the ingestion service after a reading is accepted.
type Result struct {
	ReadingID string    `json:"reading_id"`
	TenantID  string    `json:"tenant_id"`
	SensorID  string    `json:"sensor_id"`
	StoredAt  time.Time `json:"stored_at"`
}

// IngestionService persists canonical readings and resolves device ownership.
type IngestionService interface {
	ProcessReading(ctx context.Context, reading *telemetry.Reading, opts ProcessOptions) (Result, error)
}

// EventPublisher pushes real-time events to a tenant's stream. Failures are
// best-effort from the ingestion path's point of view.
type EventPublisher interface {
	Publish(tenantID, eventType string, payload map[string]any) error
}

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// AuthPolicy decides whether the ingestion service must verify device API
// keys per protocol. The permissive default defers enforcement downstream.
type AuthPolicy struct {
	EnforceLoRaWANAPIKey bool
	EnforceNBIoTAPIKey   bool
}

// Service is the protocol-agnostic ingestion adapter: it decodes, scores,
// builds the canonical reading, persists through the ingestion service and
// publishes the resulting event.
type Service struct {
	ingestion IngestionService
	events    EventPublisher
	policy    AuthPolicy
	clock     Clock
	logger    *log.Logger
}

// Option configures the service.
type Option func(*Service)

// WithAuthPolicy overrides API-key enforcement flags.
func WithAuthPolicy(policy AuthPolicy) Option {
	return func(s *Service) { s.policy = policy }
}

// WithClock overrides the clock.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithEventPublisher attaches the real-time distributor.
func WithEventPublisher(events EventPublisher) Option {
	return func(s *Service) { s.events = events }
}

// NewService constructs the ingestion adapter.
func NewService(ingestion IngestionService, logger *log.Logger, opts ...Option) (*Service, error) {
	if ingestion == nil {
		return nil, errors.New("ingest: nil ingestion service")
	}
	if logger == nil {
		logger = log.Default()
	}
	s := &Service{
		ingestion: ingestion,
		clock:     systemClock{},
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// LoRaWANUplink is one uplink relayed by the LoRaWAN network server.
type LoRaWANUplink struct {
	DeviceEUI              string
	Payload                []byte
	Codec                  codec.Codec
	RSSI                   *float64
	SNR                    *float64
	Frequency              *float64
	Timestamp              *time.Time
	CertificateFingerprint string
}

// NBIoTMessage is one flat NB-IoT telemetry record.
type NBIoTMessage struct {
	IMEI           string
	Value          *float64
	SignalStrength *float64
	BatteryLevel   *float64
	Timestamp      *time.Time
	APIKey         string
}

// IngestLoRaWAN decodes, scores and persists one LoRaWAN uplink.
func (s *Service) IngestLoRaWAN(ctx context.Context, uplink LoRaWANUplink) (Result, error) {
	started := s.clock.Now()
	result, err := s.ingestLoRaWAN(ctx, uplink)
	s.observe(telemetry.ProtocolLoRaWAN, started, err)
	return result, err
}

func (s *Service) ingestLoRaWAN(ctx context.Context, uplink LoRaWANUplink) (Result, error) {
	if uplink.DeviceEUI == "" {
		return Result{}, telemetry.ErrEmptyDeviceID
	}
	channels, err := codec.Decode(uplink.Payload, uplink.Codec)
	if err != nil {
		return Result{}, err
	}
	value, ok := primaryValue(channels)
	if !ok {
		return Result{}, telemetry.ErrEmptyReading
	}

	score := quality.LoRaWAN(uplink.RSSI, uplink.SNR)
	reading, err := telemetry.NewReading(
		uplink.DeviceEUI,
		telemetry.ProtocolLoRaWAN,
		value,
		channels,
		s.timestampOr(uplink.Timestamp),
		score,
		telemetry.CertificateHint(uplink.CertificateFingerprint),
		telemetry.LoRaWANMetadata{RSSI: uplink.RSSI, SNR: uplink.SNR, Frequency: uplink.Frequency},
	)
	if err != nil {
		return Result{}, err
	}
	return s.process(ctx, reading, ProcessOptions{EnforceAPIKey: s.policy.EnforceLoRaWANAPIKey})
}

// IngestNBIoT validates, scores and persists one NB-IoT record.
func (s *Service) IngestNBIoT(ctx context.Context, msg NBIoTMessage) (Result, error) {
	started := s.clock.Now()
	result, err := s.ingestNBIoT(ctx, msg)
	s.observe(telemetry.ProtocolNBIoT, started, err)
	return result, err
}

func (s *Service) ingestNBIoT(ctx context.Context, msg NBIoTMessage) (Result, error) {
	if msg.IMEI == "" {
		return Result{}, telemetry.ErrEmptyDeviceID
	}
	if msg.Value == nil {
		return Result{}, telemetry.ErrMissingValue
	}

	score := quality.NBIoT(msg.SignalStrength, msg.BatteryLevel)
	reading, err := telemetry.NewReading(
		msg.IMEI,
		telemetry.ProtocolNBIoT,
		*msg.Value,
		map[string]float64{"value": *msg.Value},
		s.timestampOr(msg.Timestamp),
		score,
		telemetry.APIKeyHint(msg.APIKey),
		telemetry.NBIoTMetadata{SignalStrength: msg.SignalStrength, BatteryLevel: msg.BatteryLevel},
	)
	if err != nil {
		return Result{}, err
	}
	return s.process(ctx, reading, ProcessOptions{EnforceAPIKey: s.policy.EnforceNBIoTAPIKey})
}

// process makes exactly one ingestion call per inbound message and raises
// the sensor_reading event on success.
func (s *Service) process(ctx context.Context, reading *telemetry.Reading, opts ProcessOptions) (Result, error) {
	result, err := s.ingestion.ProcessReading(ctx, reading, opts)
	if err != nil {
		if telemetry.IsClientError(err) {
			return Result{}, err
		}
		return Result{}, &telemetry.IngestionFailure{Err: err}
	}

	// Publishing is a side effect of a successful ingestion, never a
	// precondition for it.
	if s.events != nil {
		event := NewReadingIngested(result, reading)
		if err := s.events.Publish(result.TenantID, EventTypeSensorReading, event.Payload()); err != nil {
			s.logger.Printf("ingest: publish %s event failed: tenant=%s device=%s err=%v",
				EventTypeSensorReading, result.TenantID, reading.DeviceID, err)
		}
	}
	return result, nil
}

func (s *Service) timestampOr(ts *time.Time) time.Time {
	if ts != nil && !ts.IsZero() {
		return ts.UTC()
	}
	return s.clock.Now()
}

func (s *Service) observe(protocol telemetry.Protocol, started time.Time, err error) {
	elapsed := s.clock.Now().Sub(started)
	switch {
	case err == nil:
		metrics.ObserveIngest(string(protocol), metrics.ResultSuccess, elapsed)
	case telemetry.IsClientError(err):
		metrics.ObserveIngest(string(protocol), metrics.ResultRejected, elapsed)
		metrics.IncIngestError("client")
	default:
		metrics.ObserveIngest(string(protocol), metrics.ResultError, elapsed)
		metrics.IncIngestError("ingestion")
	}
}

// primaryValue picks the reading's primary numeric channel. The "value"
// channel wins when present; otherwise the lexicographically smallest
// channel name keeps the pick deterministic across messages.
func primaryValue(channels map[string]float64) (float64, bool) {
	if len(channels) == 0 {
		return 0, false
	}
	if v, ok := channels["value"]; ok {
		return v, true
	}
	keys := make([]string, 0, len(channels))
	for key := range channels {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return channels[keys[0]], true
}
