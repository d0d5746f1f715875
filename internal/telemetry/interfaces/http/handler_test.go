package gatewayhttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"citysense-cloud/internal/telemetry/application"
	telemetry "citysense-cloud/internal/telemetry/domain"
)

type stubIngestor struct {
	lorawan []application.LoRaWANUplink
	nbiot   []application.NBIoTMessage
	result  application.Result
	err     error
}

func (s *stubIngestor) IngestLoRaWAN(_ context.Context, uplink application.LoRaWANUplink) (application.Result, error) {
	s.lorawan = append(s.lorawan, uplink)
	return s.result, s.err
}

func (s *stubIngestor) IngestNBIoT(_ context.Context, msg application.NBIoTMessage) (application.Result, error) {
	s.nbiot = append(s.nbiot, msg)
	return s.result, s.err
}

func TestLoRaWANUplinkSuccess(t *testing.T) {
	ingestor := &stubIngestor{result: application.Result{ReadingID: "r-1", TenantID: "tenant-1"}}
	handler, err := NewLoRaWANUplinkHandler(ingestor, nil)
	require.NoError(t, err)

	body := `{"dev_eui":"0004A30B001C0530","payload":"01020110","codec":"cayenne","rssi":-90,"snr":5}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ingest/lorawan/uplink", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"success"`)
	assert.Contains(t, rec.Body.String(), `"reading_id":"r-1"`)

	require.Len(t, ingestor.lorawan, 1)
	assert.Equal(t, []byte{0x01, 0x02, 0x01, 0x10}, ingestor.lorawan[0].Payload)
	require.NotNil(t, ingestor.lorawan[0].RSSI)
	assert.Equal(t, -90.0, *ingestor.lorawan[0].RSSI)
}

func TestLoRaWANUplinkBadHex(t *testing.T) {
	handler, err := NewLoRaWANUplinkHandler(&stubIngestor{}, nil)
	require.NoError(t, err)

	body := `{"dev_eui":"d","payload":"zzzz"}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ingest/lorawan/uplink", strings.NewReader(body)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoRaWANUplinkEmptyReadingIsClientError(t *testing.T) {
	handler, err := NewLoRaWANUplinkHandler(&stubIngestor{err: telemetry.ErrEmptyReading}, nil)
	require.NoError(t, err)

	body := `{"dev_eui":"d","payload":"","codec":"raw"}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ingest/lorawan/uplink", strings.NewReader(body)))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "no numeric reading")
}

func TestLoRaWANUplinkIngestionFailureIsServerError(t *testing.T) {
	failure := &telemetry.IngestionFailure{Err: assert.AnError}
	handler, err := NewLoRaWANUplinkHandler(&stubIngestor{err: failure}, nil)
	require.NoError(t, err)

	body := `{"dev_eui":"d","payload":"01020110"}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ingest/lorawan/uplink", strings.NewReader(body)))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	// Internal detail must not leak to the device.
	assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
}

func TestNBIoTMessageSuccess(t *testing.T) {
	ingestor := &stubIngestor{result: application.Result{ReadingID: "r-2"}}
	handler, err := NewNBIoTMessageHandler(ingestor, nil)
	require.NoError(t, err)

	body := `{"imei":"867962041234567","value":12.5,"signal_strength":80,"battery_level":50,"timestamp":1767100000}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ingest/nbiot/message", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, ingestor.nbiot, 1)
	msg := ingestor.nbiot[0]
	require.NotNil(t, msg.Value)
	assert.Equal(t, 12.5, *msg.Value)
	require.NotNil(t, msg.Timestamp)
	assert.Equal(t, int64(1767100000), msg.Timestamp.Unix())
}

func TestNBIoTMessageUnknownDevice(t *testing.T) {
	handler, err := NewNBIoTMessageHandler(&stubIngestor{err: telemetry.ErrUnknownDevice}, nil)
	require.NoError(t, err)

	body := `{"imei":"0","value":1}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ingest/nbiot/message", strings.NewReader(body)))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	handler, err := NewNBIoTMessageHandler(&stubIngestor{}, nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ingest/nbiot/message", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
