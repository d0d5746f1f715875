package dashhttp

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"citysense-cloud/internal/audit"
	"citysense-cloud/internal/auth"
	"citysense-cloud/internal/dashboard/application"
	"citysense-cloud/internal/observability/metrics"
)

// ReportHandler serves GET /api/v1/reports/readings.{csv,xlsx,pdf}.
type ReportHandler struct {
	service *application.Service
	auditor audit.Logger
	logger  *log.Logger
}

// NewReportHandler constructs a report export handler.
func NewReportHandler(service *application.Service, auditor audit.Logger, logger *log.Logger) *ReportHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &ReportHandler{service: service, auditor: auditor, logger: logger}
}

func (h *ReportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.service == nil {
		http.Error(w, "reports not ready", http.StatusServiceUnavailable)
		return
	}

	format := strings.TrimPrefix(r.URL.Path, "/api/v1/reports/readings.")
	if format != "csv" && format != "xlsx" && format != "pdf" {
		http.NotFound(w, r)
		return
	}

	started := time.Now()
	result, err := h.export(w, r, format)
	metrics.ObserveReportExport(format, result, time.Since(started))
	if err != nil {
		h.logger.Printf("report export: %v: format=%s", err, format)
	}
}

func (h *ReportHandler) export(w http.ResponseWriter, r *http.Request, format string) (string, error) {
	tenantID, err := auth.ResolveTenant(r.Context(), r.URL.Query().Get("tenant"))
	if err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return metrics.ResultRejected, nil
	}

	overview, err := h.service.TenantDashboard(r.Context(), tenantID)
	if err != nil {
		http.Error(w, "report query error", http.StatusInternalServerError)
		return metrics.ResultError, err
	}
	sensors, err := h.service.SensorHealth(r.Context(), tenantID)
	if err != nil {
		http.Error(w, "report query error", http.StatusInternalServerError)
		return metrics.ResultError, err
	}
	report := ReadingsReport{Overview: overview, Sensors: sensors}

	var body []byte
	var contentType string
	switch format {
	case "csv":
		body, err = BuildReadingsCSV(report)
		contentType = "text/csv; charset=utf-8"
	case "xlsx":
		body, err = BuildReadingsXLSX(report)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case "pdf":
		body, err = BuildReadingsPDF(report)
		contentType = "application/pdf"
	}
	if err != nil {
		http.Error(w, "report render error", http.StatusInternalServerError)
		return metrics.ResultError, err
	}

	filename := fmt.Sprintf("readings-%s-%s-%s.%s",
		tenantID, time.Now().UTC().Format("20060102"), uuid.NewString()[:8], format)

	h.auditExport(r, tenantID, format, filename)

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	_, _ = w.Write(body)
	return metrics.ResultSuccess, nil
}

func (h *ReportHandler) auditExport(r *http.Request, tenantID, format, filename string) {
	if h.auditor == nil {
		return
	}
	metadata, _ := json.Marshal(map[string]string{"format": format, "filename": filename})
	if err := h.auditor.Log(r.Context(), audit.Entry{
		TenantID:     tenantID,
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       "report.export",
		ResourceType: "report",
		ResourceID:   filename,
		Metadata:     metadata,
		IP:           r.RemoteAddr,
		UserAgent:    r.UserAgent(),
	}); err != nil {
		h.logger.Printf("report export: audit log error: %v", err)
	}
}
