package audithttp

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"citysense-cloud/internal/audit"
	"citysense-cloud/internal/auth"
)

// TrailHandler serves GET /api/v1/audit for admins.
type TrailHandler struct {
	repo *audit.Repository
}

// NewTrailHandler constructs an audit trail handler.
func NewTrailHandler(repo *audit.Repository) *TrailHandler {
	return &TrailHandler{repo: repo}
}

type entryResponse struct {
	ID           string          `json:"id"`
	TenantID     string          `json:"tenant_id"`
	Actor        string          `json:"actor"`
	Role         string          `json:"role"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id,omitempty"`
	SensorID     string          `json:"sensor_id,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

func (h *TrailHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.repo == nil {
		http.Error(w, "audit trail not configured", http.StatusServiceUnavailable)
		return
	}

	tenantID, err := auth.ResolveTenant(r.Context(), r.URL.Query().Get("tenant"))
	if err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := h.repo.ListRecent(r.Context(), tenantID, limit)
	if err != nil {
		http.Error(w, "audit query error", http.StatusInternalServerError)
		return
	}

	out := make([]entryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entryResponse{
			ID:           entry.ID,
			TenantID:     entry.TenantID,
			Actor:        entry.Actor,
			Role:         entry.Role,
			Action:       entry.Action,
			ResourceType: entry.ResourceType,
			ResourceID:   entry.ResourceID,
			SensorID:     entry.SensorID,
			Metadata:     entry.Metadata,
			CreatedAt:    entry.CreatedAt,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"entries": out})
}
