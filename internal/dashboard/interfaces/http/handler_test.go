package dashhttp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"citysense-cloud/internal/audit"
	"citysense-cloud/internal/auth"
	"citysense-cloud/internal/cache"
	"citysense-cloud/internal/dashboard/application"
	"citysense-cloud/internal/dashboard/domain"
)

type stubReader struct{}

func (stubReader) SystemOverview(context.Context) (domain.SystemOverview, error) {
	return domain.SystemOverview{TenantCount: 3, SensorCount: 12, ReadingsLast24h: 480}, nil
}

func (stubReader) TenantOverview(_ context.Context, tenantID string) (domain.TenantOverview, error) {
	return domain.TenantOverview{TenantID: tenantID, SensorCount: 4, ActiveSensors: 3}, nil
}

func (stubReader) SensorHealth(context.Context, string) ([]domain.SensorHealth, error) {
	seen := time.Date(2026, 8, 30, 11, 30, 0, 0, time.UTC)
	return []domain.SensorHealth{
		{SensorID: "s-1", ExternalID: "eui-0001", Protocol: "lorawan", Status: domain.SensorStatusActive, LastSeenAt: &seen, ReadingsLast24h: 288, AvgQuality: 0.91},
		{SensorID: "s-2", ExternalID: "imei-0002", Protocol: "nbiot", Status: domain.SensorStatusSilent},
	}, nil
}

func (stubReader) RecentActivity(_ context.Context, _ string, limit int) ([]domain.ActivityItem, error) {
	return []domain.ActivityItem{{SensorID: "s-1", Value: 2.72, QualityScore: 0.9}}, nil
}

func (stubReader) AlertSummary(_ context.Context, tenantID string, window time.Duration) (domain.AlertSummary, error) {
	return domain.AlertSummary{TenantID: tenantID, WindowHours: int(window.Hours()), Total: 1, BySeverity: map[string]int{"critical": 1}}, nil
}

func (stubReader) SensorReadings(context.Context, string, string, time.Time, time.Time) ([]domain.ReadingPoint, error) {
	return []domain.ReadingPoint{
		{Value: 1, RecordedAt: time.Date(2026, 8, 30, 10, 5, 0, 0, time.UTC)},
		{Value: 3, RecordedAt: time.Date(2026, 8, 30, 10, 35, 0, 0, time.UTC)},
	}, nil
}

func (stubReader) CountReadings(context.Context, string, string, time.Time, time.Time) (int, error) {
	return 288, nil
}

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	store := cache.New(cache.WithSweepInterval(0))
	t.Cleanup(store.Close)
	service, err := application.NewService(stubReader{}, store, nil)
	require.NoError(t, err)
	return NewHandler(service, nil)
}

func doGet(t *testing.T, handler http.Handler, target, tenantID string, role auth.Role) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), tenantID, role, "user-1"))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}

func TestSystemOverviewRequiresAdmin(t *testing.T) {
	handler := newTestHandler(t)

	resp := doGet(t, handler, "/api/v1/dashboard/system", "tenant-a", auth.RoleViewer)
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = doGet(t, handler, "/api/v1/dashboard/system", "tenant-a", auth.RoleAdmin)
	require.Equal(t, http.StatusOK, resp.Code)
	var overview domain.SystemOverview
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &overview))
	assert.Equal(t, 3, overview.TenantCount)
}

func TestTenantOverviewUsesClaimsTenant(t *testing.T) {
	handler := newTestHandler(t)

	resp := doGet(t, handler, "/api/v1/dashboard/overview", "tenant-a", auth.RoleViewer)
	require.Equal(t, http.StatusOK, resp.Code)
	var overview domain.TenantOverview
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &overview))
	assert.Equal(t, "tenant-a", overview.TenantID)
}

func TestTenantOverviewCrossTenantForbidden(t *testing.T) {
	handler := newTestHandler(t)

	resp := doGet(t, handler, "/api/v1/dashboard/overview?tenant=tenant-b", "tenant-a", auth.RoleViewer)
	assert.Equal(t, http.StatusForbidden, resp.Code)

	// Admins may read any tenant.
	resp = doGet(t, handler, "/api/v1/dashboard/overview?tenant=tenant-b", "tenant-a", auth.RoleAdmin)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestSensorHealthEndpoint(t *testing.T) {
	handler := newTestHandler(t)

	resp := doGet(t, handler, "/api/v1/dashboard/health", "tenant-a", auth.RoleViewer)
	require.Equal(t, http.StatusOK, resp.Code)
	var out struct {
		Sensors []domain.SensorHealth `json:"sensors"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	require.Len(t, out.Sensors, 2)
	assert.Equal(t, domain.SensorStatusActive, out.Sensors[0].Status)
	assert.Equal(t, domain.SensorStatusSilent, out.Sensors[1].Status)
}

func TestStatsValidation(t *testing.T) {
	handler := newTestHandler(t)

	resp := doGet(t, handler, "/api/v1/dashboard/stats?sensor=s-1&granularity=week", "tenant-a", auth.RoleViewer)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = doGet(t, handler, "/api/v1/dashboard/stats?sensor=s-1&granularity=hour&from=yesterday", "tenant-a", auth.RoleViewer)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestStatsBuckets(t *testing.T) {
	handler := newTestHandler(t)

	resp := doGet(t, handler, "/api/v1/dashboard/stats?sensor=s-1&granularity=hour&from=2026-08-30T00:00:00Z&to=2026-08-31T00:00:00Z", "tenant-a", auth.RoleViewer)
	require.Equal(t, http.StatusOK, resp.Code)
	var out struct {
		Buckets []domain.BucketStat `json:"buckets"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	require.Len(t, out.Buckets, 1)
	assert.Equal(t, 2.0, out.Buckets[0].Avg)
}

func TestUptimeEndpoint(t *testing.T) {
	handler := newTestHandler(t)

	resp := doGet(t, handler, "/api/v1/dashboard/uptime?sensor=s-1&window_hours=24&interval_seconds=300", "tenant-a", auth.RoleViewer)
	require.Equal(t, http.StatusOK, resp.Code)
	var report domain.UptimeReport
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &report))
	assert.Equal(t, 288, report.Expected)
	assert.Equal(t, 100.0, report.UptimePercent)
}

func TestUptimeMissingSensor(t *testing.T) {
	handler := newTestHandler(t)

	resp := doGet(t, handler, "/api/v1/dashboard/uptime", "tenant-a", auth.RoleViewer)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestUnknownSubpath(t *testing.T) {
	handler := newTestHandler(t)

	resp := doGet(t, handler, "/api/v1/dashboard/nope", "tenant-a", auth.RoleViewer)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

type captureAuditor struct {
	entries []audit.Entry
}

func (a *captureAuditor) Log(_ context.Context, entry audit.Entry) error {
	a.entries = append(a.entries, entry)
	return nil
}

func newTestReportHandler(t *testing.T, auditor audit.Logger) *ReportHandler {
	t.Helper()
	store := cache.New(cache.WithSweepInterval(0))
	t.Cleanup(store.Close)
	service, err := application.NewService(stubReader{}, store, nil)
	require.NoError(t, err)
	return NewReportHandler(service, auditor, nil)
}

func TestReportExportCSV(t *testing.T) {
	auditor := &captureAuditor{}
	handler := newTestReportHandler(t, auditor)

	resp := doGet(t, handler, "/api/v1/reports/readings.csv", "tenant-a", auth.RoleOperator)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "text/csv; charset=utf-8", resp.Header().Get("Content-Type"))
	assert.Contains(t, resp.Header().Get("Content-Disposition"), "attachment")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "external_id")
	assert.Contains(t, lines[1], "eui-0001")

	require.Len(t, auditor.entries, 1)
	assert.Equal(t, "report.export", auditor.entries[0].Action)
}

func TestReportExportXLSXAndPDFMagic(t *testing.T) {
	handler := newTestReportHandler(t, nil)

	resp := doGet(t, handler, "/api/v1/reports/readings.xlsx", "tenant-a", auth.RoleOperator)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, strings.HasPrefix(resp.Body.String(), "PK"), "xlsx must be a zip container")

	resp = doGet(t, handler, "/api/v1/reports/readings.pdf", "tenant-a", auth.RoleOperator)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, strings.HasPrefix(resp.Body.String(), "%PDF"), "pdf magic bytes")
}

func TestReportExportUnknownFormat(t *testing.T) {
	handler := newTestReportHandler(t, nil)

	resp := doGet(t, handler, "/api/v1/reports/readings.docx", "tenant-a", auth.RoleOperator)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}
