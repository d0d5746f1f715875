// Package gatewayhttp exposes the inbound protocol endpoints and the sensor
// registry API. Each ingest handler
// translates one transport envelope into an ingestion call and maps the
// error taxonomy onto HTTP failure classes: malformed input is a 400-class
// response with a clear reason, internal failures stay generic.
package gatewayhttp

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"citysense-cloud/internal/telemetry/application"
	"citysense-cloud/internal/telemetry/codec"
	telemetry "citysense-cloud/internal/telemetry/domain"
)

// Ingestor is the slice of the ingestion adapter the gateways need.
type Ingestor interface {
	IngestLoRaWAN(ctx context.Context, uplink application.LoRaWANUplink) (application.Result, error)
	IngestNBIoT(ctx context.Context, msg application.NBIoTMessage) (application.Result, error)
}

type statusEnvelope struct {
	Status string             `json:"status"`
	Result *application.Result `json:"result,omitempty"`
	Error  string             `json:"error,omitempty"`
}

// LoRaWANUplinkHandler handles POST /api/v1/ingest/lorawan/uplink.
type LoRaWANUplinkHandler struct {
	service Ingestor
	logger  *log.Logger
}

// NewLoRaWANUplinkHandler constructs the LoRaWAN gateway handler.
func NewLoRaWANUplinkHandler(service Ingestor, logger *log.Logger) (*LoRaWANUplinkHandler, error) {
	if service == nil {
		return nil, errors.New("lorawan gateway: nil service")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &LoRaWANUplinkHandler{service: service, logger: logger}, nil
}

type lorawanUplinkRequest struct {
	DeviceEUI              string   `json:"dev_eui"`
	Payload                string   `json:"payload"`
	Codec                  string   `json:"codec"`
	RSSI                   *float64 `json:"rssi"`
	SNR                    *float64 `json:"snr"`
	Frequency              *float64 `json:"frequency"`
	Timestamp              *int64   `json:"timestamp"`
	CertificateFingerprint string   `json:"certificate_fingerprint"`
}

// ServeHTTP ingests one LoRaWAN uplink.
func (h *LoRaWANUplinkHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req lorawanUplinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Printf("lorawan uplink: decode error: %v", err)
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	defer r.Body.Close()

	payload, err := hex.DecodeString(strings.TrimPrefix(req.Payload, "0x"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "payload is not valid hex")
		return
	}

	uplinkCodec := codec.Codec(req.Codec)
	if req.Codec == "" {
		uplinkCodec = codec.CodecCayenne
	}

	result, err := h.service.IngestLoRaWAN(r.Context(), application.LoRaWANUplink{
		DeviceEUI:              req.DeviceEUI,
		Payload:                payload,
		Codec:                  uplinkCodec,
		RSSI:                   req.RSSI,
		SNR:                    req.SNR,
		Frequency:              req.Frequency,
		Timestamp:              parseTimestamp(req.Timestamp),
		CertificateFingerprint: req.CertificateFingerprint,
	})
	if err != nil {
		writeIngestError(w, h.logger, "lorawan uplink", err)
		return
	}
	writeResult(w, result)
}

// NBIoTMessageHandler handles POST /api/v1/ingest/nbiot/message.
type NBIoTMessageHandler struct {
	service Ingestor
	logger  *log.Logger
}

// NewNBIoTMessageHandler constructs the NB-IoT gateway handler.
func NewNBIoTMessageHandler(service Ingestor, logger *log.Logger) (*NBIoTMessageHandler, error) {
	if service == nil {
		return nil, errors.New("nbiot gateway: nil service")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &NBIoTMessageHandler{service: service, logger: logger}, nil
}

type nbiotMessageRequest struct {
	IMEI           string   `json:"imei"`
	Value          *float64 `json:"value"`
	SignalStrength *float64 `json:"signal_strength"`
	BatteryLevel   *float64 `json:"battery_level"`
	Timestamp      *int64   `json:"timestamp"`
	APIKey         string   `json:"api_key"`
}

// ServeHTTP ingests one NB-IoT telemetry record.
func (h *NBIoTMessageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req nbiotMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Printf("nbiot message: decode error: %v", err)
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	defer r.Body.Close()

	result, err := h.service.IngestNBIoT(r.Context(), application.NBIoTMessage{
		IMEI:           req.IMEI,
		Value:          req.Value,
		SignalStrength: req.SignalStrength,
		BatteryLevel:   req.BatteryLevel,
		Timestamp:      parseTimestamp(req.Timestamp),
		APIKey:         req.APIKey,
	})
	if err != nil {
		writeIngestError(w, h.logger, "nbiot message", err)
		return
	}
	writeResult(w, result)
}

func writeIngestError(w http.ResponseWriter, logger *log.Logger, scope string, err error) {
	if telemetry.IsClientError(err) {
		status := http.StatusBadRequest
		if errors.Is(err, telemetry.ErrUnknownDevice) {
			status = http.StatusNotFound
		}
		if errors.Is(err, telemetry.ErrUnauthorizedDevice) {
			status = http.StatusUnauthorized
		}
		writeError(w, status, err.Error())
		return
	}
	logger.Printf("%s: ingestion error: %v", scope, err)
	writeError(w, http.StatusInternalServerError, "ingestion error")
}

func writeResult(w http.ResponseWriter, result application.Result) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(statusEnvelope{Status: "success", Result: &result})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(statusEnvelope{Status: "error", Error: message})
}

// parseTimestamp accepts epoch milliseconds or seconds; zero means absent.
func parseTimestamp(value *int64) *time.Time {
	if value == nil || *value <= 0 {
		return nil
	}
	var ts time.Time
	if *value > 1_000_000_000_000 {
		ts = time.UnixMilli(*value).UTC()
	} else {
		ts = time.Unix(*value, 0).UTC()
	}
	return &ts
}
