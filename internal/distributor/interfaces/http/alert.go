package streamhttp

import (
	"encoding/json"
	"log"
	"net/http"

	"citysense-cloud/internal/audit"
	"citysense-cloud/internal/auth"
	"citysense-cloud/internal/distributor"
)

const eventTypeAlert = "alert"

var alertSeverities = map[string]struct{}{
	"info":     {},
	"warning":  {},
	"critical": {},
}

// AlertHandler lets operators inject alert events into a tenant stream
// via POST /api/v1/events/alert.
type AlertHandler struct {
	dist    *distributor.Distributor
	auditor audit.Logger
	logger  *log.Logger
}

// NewAlertHandler constructs an alert injection handler.
func NewAlertHandler(dist *distributor.Distributor, auditor audit.Logger, logger *log.Logger) *AlertHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &AlertHandler{dist: dist, auditor: auditor, logger: logger}
}

type alertRequest struct {
	Tenant   string `json:"tenant,omitempty"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	SensorID string `json:"sensor_id,omitempty"`
}

func (h *AlertHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.dist == nil {
		http.Error(w, "distributor not ready", http.StatusServiceUnavailable)
		return
	}

	var req alertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}
	if req.Severity == "" {
		req.Severity = "info"
	}
	if _, ok := alertSeverities[req.Severity]; !ok {
		http.Error(w, "severity must be info, warning or critical", http.StatusBadRequest)
		return
	}

	tenantID, err := auth.ResolveTenant(r.Context(), req.Tenant)
	if err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	payload := map[string]any{
		"severity": req.Severity,
		"message":  req.Message,
	}
	if req.SensorID != "" {
		payload["sensor_id"] = req.SensorID
	}

	event, err := h.dist.Publish(tenantID, eventTypeAlert, payload)
	if err != nil {
		http.Error(w, "publish error", http.StatusInternalServerError)
		return
	}

	if h.auditor != nil {
		metadata, _ := json.Marshal(payload)
		if err := h.auditor.Log(r.Context(), audit.Entry{
			TenantID:     tenantID,
			Actor:        auth.SubjectFromContext(r.Context()),
			Role:         string(auth.RoleFromContext(r.Context())),
			Action:       "alert.publish",
			ResourceType: "event",
			ResourceID:   event.ID,
			SensorID:     req.SensorID,
			Metadata:     metadata,
			IP:           r.RemoteAddr,
			UserAgent:    r.UserAgent(),
		}); err != nil {
			h.logger.Printf("alert handler: audit log error: %v", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":   "accepted",
		"event_id": event.ID,
		"sequence": event.Sequence,
	})
}
