package gatewayhttp

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"citysense-cloud/internal/audit"
	"citysense-cloud/internal/auth"
	telemetry "citysense-cloud/internal/telemetry/domain"
)

// SensorRecord is one row of the sensor registry.
type SensorRecord struct {
	ID         string     `json:"id"`
	TenantID   string     `json:"tenant_id"`
	ExternalID string     `json:"external_id"`
	Protocol   string     `json:"protocol"`
	IsActive   bool       `json:"is_active"`
	LastSeen   *time.Time `json:"last_seen,omitempty"`
}

// SensorRegistry manages the sensors a tenant may ingest from.
type SensorRegistry interface {
	List(ctx context.Context, tenantID string) ([]SensorRecord, error)
	Register(ctx context.Context, record SensorRecord, apiKey string) error
	Deactivate(ctx context.Context, tenantID, sensorID string) (bool, error)
}

// RegistryHandler serves the sensor registry API under /api/v1/sensors.
type RegistryHandler struct {
	registry SensorRegistry
	auditor  audit.Logger
	logger   *log.Logger
}

// NewRegistryHandler constructs a registry handler.
func NewRegistryHandler(registry SensorRegistry, auditor audit.Logger, logger *log.Logger) (*RegistryHandler, error) {
	if registry == nil {
		return nil, errors.New("registry handler: nil registry")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &RegistryHandler{registry: registry, auditor: auditor, logger: logger}, nil
}

func (h *RegistryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && strings.TrimSuffix(r.URL.Path, "/") == "/api/v1/sensors":
		h.list(w, r)
	case r.Method == http.MethodPost && strings.TrimSuffix(r.URL.Path, "/") == "/api/v1/sensors":
		h.register(w, r)
	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/api/v1/sensors/"):
		h.deactivate(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *RegistryHandler) list(w http.ResponseWriter, r *http.Request) {
	tenantID, err := auth.ResolveTenant(r.Context(), r.URL.Query().Get("tenant"))
	if err != nil {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	records, err := h.registry.List(r.Context(), tenantID)
	if err != nil {
		h.logger.Printf("sensor registry: list error: %v", err)
		writeError(w, http.StatusInternalServerError, "registry error")
		return
	}
	if records == nil {
		records = []SensorRecord{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"tenant_id": tenantID, "sensors": records})
}

type registerRequest struct {
	TenantID   string `json:"tenant_id"`
	ExternalID string `json:"external_id"`
	Protocol   string `json:"protocol"`
	APIKey     string `json:"api_key"`
}

func (h *RegistryHandler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	tenantID, err := auth.ResolveTenant(r.Context(), req.TenantID)
	if err != nil {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	req.ExternalID = strings.TrimSpace(req.ExternalID)
	if req.ExternalID == "" {
		writeError(w, http.StatusBadRequest, "external_id is required")
		return
	}
	protocol := telemetry.Protocol(strings.ToLower(strings.TrimSpace(req.Protocol)))
	if !protocol.IsValid() {
		writeError(w, http.StatusBadRequest, "unknown protocol")
		return
	}

	record := SensorRecord{
		ID:         "sensor-" + uuid.NewString(),
		TenantID:   tenantID,
		ExternalID: req.ExternalID,
		Protocol:   string(protocol),
		IsActive:   true,
	}
	if err := h.registry.Register(r.Context(), record, req.APIKey); err != nil {
		h.logger.Printf("sensor registry: register error: %v", err)
		writeError(w, http.StatusInternalServerError, "registry error")
		return
	}
	h.logAudit(r, tenantID, "sensor.register", record.ID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(record)
}

func (h *RegistryHandler) deactivate(w http.ResponseWriter, r *http.Request) {
	sensorID := strings.TrimPrefix(r.URL.Path, "/api/v1/sensors/")
	if sensorID == "" || strings.Contains(sensorID, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	tenantID, err := auth.ResolveTenant(r.Context(), r.URL.Query().Get("tenant"))
	if err != nil {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	found, err := h.registry.Deactivate(r.Context(), tenantID, sensorID)
	if err != nil {
		h.logger.Printf("sensor registry: deactivate error: %v", err)
		writeError(w, http.StatusInternalServerError, "registry error")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "unknown sensor")
		return
	}
	h.logAudit(r, tenantID, "sensor.deactivate", sensorID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *RegistryHandler) logAudit(r *http.Request, tenantID, action, sensorID string) {
	if h.auditor == nil {
		return
	}
	_ = h.auditor.Log(r.Context(), audit.Entry{
		TenantID:     tenantID,
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: "sensor",
		ResourceID:   sensorID,
		SensorID:     sensorID,
		IP:           r.RemoteAddr,
		UserAgent:    r.UserAgent(),
	})
}
