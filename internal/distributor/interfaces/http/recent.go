package streamhttp

import (
	"encoding/json"
	"net/http"
	"strconv"

	"citysense-cloud/internal/auth"
	"citysense-cloud/internal/distributor"
)

// RecentHandler serves GET /api/v1/events/recent, the poll-based view of
// the replay buffer for clients that cannot hold a stream open.
type RecentHandler struct {
	dist *distributor.Distributor
}

// NewRecentHandler constructs a recent-events handler.
func NewRecentHandler(dist *distributor.Distributor) *RecentHandler {
	return &RecentHandler{dist: dist}
}

func (h *RecentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.dist == nil {
		http.Error(w, "distributor not ready", http.StatusServiceUnavailable)
		return
	}

	tenantID, err := auth.ResolveTenant(r.Context(), r.URL.Query().Get("tenant"))
	if err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > maxReplayParam {
		limit = 50
	}

	events := h.dist.Events(tenantID, limit)
	if events == nil {
		events = []distributor.Event{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"tenant_id": tenantID,
		"events":    events,
	})
}
