package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"citysense-cloud/internal/telemetry/codec"
	telemetry "citysense-cloud/internal/telemetry/domain"
)

type stubIngestionCall struct {
	reading *telemetry.Reading
	opts    ProcessOptions
}

type stubIngestion struct {
	calls  []stubIngestionCall
	result Result
	err    error
}

func (s *stubIngestion) ProcessReading(_ context.Context, reading *telemetry.Reading, opts ProcessOptions) (Result, error) {
	s.calls = append(s.calls, stubIngestionCall{reading: reading, opts: opts})
	if s.err != nil {
		return Result{}, s.err
	}
	return s.result, nil
}

type stubPublisher struct {
	tenants []string
	types   []string
	payload map[string]any
	err     error
}

func (s *stubPublisher) Publish(tenantID, eventType string, payload map[string]any) error {
	s.tenants = append(s.tenants, tenantID)
	s.types = append(s.types, eventType)
	s.payload = payload
	return s.err
}

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

func newTestService(t *testing.T, ingestion *stubIngestion, events *stubPublisher, opts ...Option) *Service {
	t.Helper()
	all := append([]Option{
		WithClock(fixedClock{at: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)}),
	}, opts...)
	if events != nil {
		all = append(all, WithEventPublisher(events))
	}
	service, err := NewService(ingestion, nil, all...)
	require.NoError(t, err)
	return service
}

func floatPtr(v float64) *float64 { return &v }

func TestIngestLoRaWANBuildsCanonicalReading(t *testing.T) {
	ingestion := &stubIngestion{result: Result{ReadingID: "r-1", TenantID: "tenant-1", SensorID: "s-1"}}
	events := &stubPublisher{}
	service := newTestService(t, ingestion, events)

	result, err := service.IngestLoRaWAN(context.Background(), LoRaWANUplink{
		DeviceEUI:              "0004A30B001C0530",
		Payload:                []byte{0x01, 0x02, 0x01, 0x10},
		Codec:                  codec.CodecCayenne,
		RSSI:                   floatPtr(-90),
		SNR:                    floatPtr(5),
		CertificateFingerprint: "ab:cd:ef",
	})
	require.NoError(t, err)
	assert.Equal(t, "r-1", result.ReadingID)

	require.Len(t, ingestion.calls, 1)
	reading := ingestion.calls[0].reading
	assert.Equal(t, telemetry.ProtocolLoRaWAN, reading.Protocol)
	assert.InDelta(t, 2.72, reading.Value, 1e-9)
	assert.Equal(t, 0.6667, reading.QualityScore)
	assert.Equal(t, telemetry.AuthHintCertificate, reading.AuthHint.Kind)
	assert.False(t, ingestion.calls[0].opts.EnforceAPIKey)

	require.Equal(t, []string{"tenant-1"}, events.tenants)
	require.Equal(t, []string{EventTypeSensorReading}, events.types)
	assert.Equal(t, "0004A30B001C0530", events.payload["device_id"])
}

func TestIngestLoRaWANEmptyReading(t *testing.T) {
	ingestion := &stubIngestion{}
	service := newTestService(t, ingestion, nil)

	_, err := service.IngestLoRaWAN(context.Background(), LoRaWANUplink{
		DeviceEUI: "dev-1",
		Payload:   []byte{},
		Codec:     codec.CodecRaw,
	})
	require.ErrorIs(t, err, telemetry.ErrEmptyReading)
	assert.Empty(t, ingestion.calls, "empty readings must not reach the ingestion service")
}

func TestIngestLoRaWANUnsupportedCodec(t *testing.T) {
	ingestion := &stubIngestion{}
	service := newTestService(t, ingestion, nil)

	_, err := service.IngestLoRaWAN(context.Background(), LoRaWANUplink{
		DeviceEUI: "dev-1",
		Payload:   []byte{0x01},
		Codec:     codec.Codec("mystery"),
	})
	require.ErrorIs(t, err, telemetry.ErrUnsupportedCodec)
	assert.True(t, telemetry.IsClientError(err))
	assert.Empty(t, ingestion.calls)
}

func TestIngestNBIoTMissingValue(t *testing.T) {
	ingestion := &stubIngestion{}
	service := newTestService(t, ingestion, nil)

	_, err := service.IngestNBIoT(context.Background(), NBIoTMessage{IMEI: "867962041234567"})
	require.ErrorIs(t, err, telemetry.ErrMissingValue)
	assert.Empty(t, ingestion.calls)
}

func TestIngestNBIoTSuccess(t *testing.T) {
	ingestion := &stubIngestion{result: Result{ReadingID: "r-2", TenantID: "tenant-2"}}
	events := &stubPublisher{}
	service := newTestService(t, ingestion, events)

	_, err := service.IngestNBIoT(context.Background(), NBIoTMessage{
		IMEI:           "867962041234567",
		Value:          floatPtr(12.5),
		SignalStrength: floatPtr(80),
		BatteryLevel:   floatPtr(50),
		APIKey:         "key-1",
	})
	require.NoError(t, err)

	require.Len(t, ingestion.calls, 1)
	reading := ingestion.calls[0].reading
	assert.Equal(t, telemetry.ProtocolNBIoT, reading.Protocol)
	assert.Equal(t, 0.68, reading.QualityScore)
	assert.Equal(t, telemetry.AuthHintAPIKey, reading.AuthHint.Kind)
	assert.Equal(t, 12.5, reading.Value)
}

func TestIngestNBIoTDefaultsTimestampToIngestTime(t *testing.T) {
	ingestion := &stubIngestion{}
	service := newTestService(t, ingestion, nil)

	_, err := service.IngestNBIoT(context.Background(), NBIoTMessage{IMEI: "imei-1", Value: floatPtr(1)})
	require.NoError(t, err)
	require.Len(t, ingestion.calls, 1)
	assert.Equal(t, time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC), ingestion.calls[0].reading.Timestamp)
}

func TestIngestionFailureIsWrappedNotSwallowed(t *testing.T) {
	downstream := errors.New("insert error")
	ingestion := &stubIngestion{err: downstream}
	events := &stubPublisher{}
	service := newTestService(t, ingestion, events)

	_, err := service.IngestNBIoT(context.Background(), NBIoTMessage{IMEI: "imei-1", Value: floatPtr(1)})
	require.Error(t, err)

	var failure *telemetry.IngestionFailure
	require.ErrorAs(t, err, &failure)
	require.ErrorIs(t, err, downstream)
	assert.False(t, telemetry.IsClientError(err))
	assert.Empty(t, events.tenants, "no event may be published for a failed ingestion")
	require.Len(t, ingestion.calls, 1, "exactly one ingestion call per message")
}

func TestClientErrorFromIngestionServicePassesThrough(t *testing.T) {
	ingestion := &stubIngestion{err: telemetry.ErrUnknownDevice}
	service := newTestService(t, ingestion, nil)

	_, err := service.IngestNBIoT(context.Background(), NBIoTMessage{IMEI: "imei-1", Value: floatPtr(1)})
	require.ErrorIs(t, err, telemetry.ErrUnknownDevice)
	var failure *telemetry.IngestionFailure
	assert.False(t, errors.As(err, &failure))
}

func TestDistributionFailureDoesNotFailIngestion(t *testing.T) {
	ingestion := &stubIngestion{result: Result{ReadingID: "r-3", TenantID: "tenant-3"}}
	events := &stubPublisher{err: errors.New("channel unavailable")}
	service := newTestService(t, ingestion, events)

	result, err := service.IngestNBIoT(context.Background(), NBIoTMessage{IMEI: "imei-1", Value: floatPtr(3)})
	require.NoError(t, err)
	assert.Equal(t, "r-3", result.ReadingID)
}

func TestAuthPolicyEnforcementFlagPropagates(t *testing.T) {
	ingestion := &stubIngestion{}
	service := newTestService(t, ingestion, nil, WithAuthPolicy(AuthPolicy{EnforceNBIoTAPIKey: true}))

	_, err := service.IngestNBIoT(context.Background(), NBIoTMessage{IMEI: "imei-1", Value: floatPtr(1), APIKey: "k"})
	require.NoError(t, err)
	require.Len(t, ingestion.calls, 1)
	assert.True(t, ingestion.calls[0].opts.EnforceAPIKey)
}

func TestPrimaryValuePrefersValueChannel(t *testing.T) {
	v, ok := primaryValue(map[string]float64{"channel_2": 7, "value": 9})
	require.True(t, ok)
	assert.Equal(t, 9.0, v)
}

func TestPrimaryValueDeterministicWithoutValueChannel(t *testing.T) {
	v, ok := primaryValue(map[string]float64{"temperature_4": 21.5, "channel_1": 2.72})
	require.True(t, ok)
	assert.Equal(t, 2.72, v)
}
