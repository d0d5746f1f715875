package application

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"citysense-cloud/internal/cache"
	"citysense-cloud/internal/dashboard/domain"
)

type stubReader struct {
	systemCalls   int32
	tenantCalls   int32
	countCalls    int32
	readingsCalls int32

	overview domain.SystemOverview
	points   []domain.ReadingPoint
	observed int
	err      error
}

func (r *stubReader) SystemOverview(context.Context) (domain.SystemOverview, error) {
	atomic.AddInt32(&r.systemCalls, 1)
	return r.overview, r.err
}

func (r *stubReader) TenantOverview(_ context.Context, tenantID string) (domain.TenantOverview, error) {
	atomic.AddInt32(&r.tenantCalls, 1)
	return domain.TenantOverview{TenantID: tenantID, SensorCount: 4}, r.err
}

func (r *stubReader) SensorHealth(context.Context, string) ([]domain.SensorHealth, error) {
	return []domain.SensorHealth{{SensorID: "s-1", Status: domain.SensorStatusActive}}, r.err
}

func (r *stubReader) RecentActivity(_ context.Context, _ string, limit int) ([]domain.ActivityItem, error) {
	items := make([]domain.ActivityItem, 0, limit)
	for i := 0; i < limit && i < 3; i++ {
		items = append(items, domain.ActivityItem{SensorID: "s-1", Value: float64(i)})
	}
	return items, r.err
}

func (r *stubReader) AlertSummary(_ context.Context, tenantID string, window time.Duration) (domain.AlertSummary, error) {
	return domain.AlertSummary{TenantID: tenantID, WindowHours: int(window.Hours()), Total: 2}, r.err
}

func (r *stubReader) SensorReadings(context.Context, string, string, time.Time, time.Time) ([]domain.ReadingPoint, error) {
	atomic.AddInt32(&r.readingsCalls, 1)
	return r.points, r.err
}

func (r *stubReader) CountReadings(context.Context, string, string, time.Time, time.Time) (int, error) {
	atomic.AddInt32(&r.countCalls, 1)
	return r.observed, r.err
}

func newTestService(t *testing.T, reader *stubReader) *Service {
	t.Helper()
	store := cache.New(cache.WithSweepInterval(0))
	t.Cleanup(store.Close)
	service, err := NewService(reader, store, nil)
	require.NoError(t, err)
	return service
}

func TestSystemOverviewCachedWithinTTL(t *testing.T) {
	reader := &stubReader{overview: domain.SystemOverview{SensorCount: 42}}
	service := newTestService(t, reader)

	first, err := service.SystemOverview(context.Background())
	require.NoError(t, err)
	second, err := service.SystemOverview(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&reader.systemCalls))
}

func TestTenantDashboardsCachedIndependently(t *testing.T) {
	reader := &stubReader{}
	service := newTestService(t, reader)

	a, err := service.TenantDashboard(context.Background(), "tenant-a")
	require.NoError(t, err)
	b, err := service.TenantDashboard(context.Background(), "tenant-b")
	require.NoError(t, err)
	_, err = service.TenantDashboard(context.Background(), "tenant-a")
	require.NoError(t, err)

	assert.Equal(t, "tenant-a", a.TenantID)
	assert.Equal(t, "tenant-b", b.TenantID)
	assert.Equal(t, int32(2), atomic.LoadInt32(&reader.tenantCalls))
}

func TestReaderErrorNotCached(t *testing.T) {
	reader := &stubReader{err: errors.New("db down")}
	service := newTestService(t, reader)

	_, err := service.SystemOverview(context.Background())
	require.Error(t, err)

	reader.err = nil
	_, err = service.SystemOverview(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&reader.systemCalls))
}

func TestSensorUptimeComputesFromCount(t *testing.T) {
	reader := &stubReader{observed: 288}
	service := newTestService(t, reader)

	report, err := service.SensorUptime(context.Background(), "tenant-a", "sensor-1", 24*time.Hour, 300*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 288, report.Expected)
	assert.Equal(t, 100.0, report.UptimePercent)

	_, err = service.SensorUptime(context.Background(), "tenant-a", "sensor-1", 24*time.Hour, 300*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&reader.countCalls))
}

func TestBucketedStatsValidatesWindow(t *testing.T) {
	service := newTestService(t, &stubReader{})

	now := time.Now()
	_, err := service.BucketedStats(context.Background(), "tenant-a", "sensor-1", domain.GranularityHour, now, now)
	require.ErrorIs(t, err, domain.ErrInvalidWindow)
}

func TestBucketedStatsAggregates(t *testing.T) {
	base := time.Date(2026, 8, 30, 14, 0, 0, 0, time.UTC)
	reader := &stubReader{points: []domain.ReadingPoint{
		{Value: 1, RecordedAt: base.Add(5 * time.Minute)},
		{Value: 3, RecordedAt: base.Add(25 * time.Minute)},
	}}
	service := newTestService(t, reader)

	stats, err := service.BucketedStats(context.Background(), "tenant-a", "sensor-1", domain.GranularityHour, base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 2.0, stats[0].Avg)
}

func TestEmptyTenantRejected(t *testing.T) {
	service := newTestService(t, &stubReader{})

	_, err := service.TenantDashboard(context.Background(), "")
	require.ErrorIs(t, err, domain.ErrEmptyTenant)
	_, err = service.SensorHealth(context.Background(), "")
	require.ErrorIs(t, err, domain.ErrEmptyTenant)
	_, err = service.SensorUptime(context.Background(), "", "s", time.Hour, time.Minute)
	require.ErrorIs(t, err, domain.ErrEmptyTenant)
	_, err = service.SensorUptime(context.Background(), "t", "", time.Hour, time.Minute)
	require.ErrorIs(t, err, domain.ErrEmptySensor)
}

func TestInvalidateTenantForcesRecompute(t *testing.T) {
	reader := &stubReader{}
	service := newTestService(t, reader)

	_, err := service.TenantDashboard(context.Background(), "tenant-a")
	require.NoError(t, err)
	service.InvalidateTenant("tenant-a")
	_, err = service.TenantDashboard(context.Background(), "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&reader.tenantCalls))
}

func TestRecentActivityClampsLimit(t *testing.T) {
	reader := &stubReader{}
	service := newTestService(t, reader)

	items, err := service.RecentActivity(context.Background(), "tenant-a", -5)
	require.NoError(t, err)
	assert.NotEmpty(t, items)
}
