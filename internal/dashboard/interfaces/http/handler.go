// Package dashhttp exposes the dashboard read API. Every endpoint is a
// pure read through the aggregation cache, tenant-scoped unless the
// caller holds the admin role.
package dashhttp

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"citysense-cloud/internal/auth"
	"citysense-cloud/internal/dashboard/application"
	"citysense-cloud/internal/dashboard/domain"
)

// Handler routes /api/v1/dashboard/* reads.
type Handler struct {
	service *application.Service
	logger  *log.Logger
}

// NewHandler constructs the dashboard read handler.
func NewHandler(service *application.Service, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{service: service, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.service == nil {
		http.Error(w, "dashboard not ready", http.StatusServiceUnavailable)
		return
	}

	switch strings.TrimPrefix(r.URL.Path, "/api/v1/dashboard/") {
	case "system":
		h.system(w, r)
	case "overview":
		h.overview(w, r)
	case "health":
		h.health(w, r)
	case "activity":
		h.activity(w, r)
	case "alerts":
		h.alerts(w, r)
	case "uptime":
		h.uptime(w, r)
	case "stats":
		h.stats(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) system(w http.ResponseWriter, r *http.Request) {
	if auth.RoleFromContext(r.Context()) != auth.RoleAdmin {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	overview, err := h.service.SystemOverview(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, overview)
}

func (h *Handler) overview(w http.ResponseWriter, r *http.Request) {
	tenantID, err := auth.ResolveTenant(r.Context(), r.URL.Query().Get("tenant"))
	if err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	overview, err := h.service.TenantDashboard(r.Context(), tenantID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, overview)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	tenantID, err := auth.ResolveTenant(r.Context(), r.URL.Query().Get("tenant"))
	if err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	health, err := h.service.SensorHealth(r.Context(), tenantID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if health == nil {
		health = []domain.SensorHealth{}
	}
	writeJSON(w, map[string]any{"tenant_id": tenantID, "sensors": health})
}

func (h *Handler) activity(w http.ResponseWriter, r *http.Request) {
	tenantID, err := auth.ResolveTenant(r.Context(), r.URL.Query().Get("tenant"))
	if err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.service.RecentActivity(r.Context(), tenantID, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if items == nil {
		items = []domain.ActivityItem{}
	}
	writeJSON(w, map[string]any{"tenant_id": tenantID, "activity": items})
}

func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	tenantID, err := auth.ResolveTenant(r.Context(), r.URL.Query().Get("tenant"))
	if err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	window := 24 * time.Hour
	if hours, err := strconv.Atoi(r.URL.Query().Get("window_hours")); err == nil && hours > 0 {
		window = time.Duration(hours) * time.Hour
	}
	summary, err := h.service.AlertSummary(r.Context(), tenantID, window)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, summary)
}

func (h *Handler) uptime(w http.ResponseWriter, r *http.Request) {
	tenantID, err := auth.ResolveTenant(r.Context(), r.URL.Query().Get("tenant"))
	if err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	sensorID := r.URL.Query().Get("sensor")
	window := 24 * time.Hour
	if hours, err := strconv.Atoi(r.URL.Query().Get("window_hours")); err == nil && hours > 0 {
		window = time.Duration(hours) * time.Hour
	}
	interval := 300 * time.Second
	if secs, err := strconv.Atoi(r.URL.Query().Get("interval_seconds")); err == nil && secs > 0 {
		interval = time.Duration(secs) * time.Second
	}
	report, err := h.service.SensorUptime(r.Context(), tenantID, sensorID, window, interval)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, report)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	tenantID, err := auth.ResolveTenant(r.Context(), r.URL.Query().Get("tenant"))
	if err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	sensorID := r.URL.Query().Get("sensor")
	granularity, err := domain.ParseGranularity(r.URL.Query().Get("granularity"))
	if err != nil {
		http.Error(w, "granularity must be hour or day", http.StatusBadRequest)
		return
	}

	to := time.Now().UTC()
	from := to.Add(-24 * time.Hour)
	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "from must be RFC3339", http.StatusBadRequest)
			return
		}
		from = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "to must be RFC3339", http.StatusBadRequest)
			return
		}
		to = parsed
	}

	stats, err := h.service.BucketedStats(r.Context(), tenantID, sensorID, granularity, from, to)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if stats == nil {
		stats = []domain.BucketStat{}
	}
	writeJSON(w, map[string]any{
		"tenant_id":   tenantID,
		"sensor_id":   sensorID,
		"granularity": granularity,
		"buckets":     stats,
	})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrEmptyTenant),
		errors.Is(err, domain.ErrEmptySensor),
		errors.Is(err, domain.ErrInvalidWindow),
		errors.Is(err, domain.ErrUnknownGranularity):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Printf("dashboard: read error: %v", err)
		http.Error(w, "dashboard query error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(value)
}
