package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"citysense-cloud/internal/cache"
	"citysense-cloud/internal/dashboard/domain"
	"citysense-cloud/internal/observability/metrics"
)

// Cache TTLs per query scope. System-wide rollups are cheaper to serve
// slightly stale; tenant views tolerate more staleness.
const (
	systemTTL = 60 * time.Second
	tenantTTL = 120 * time.Second
)

const (
	defaultActivityLimit = 20
	maxActivityLimit     = 200
	defaultAlertWindow   = 24 * time.Hour
)

// Reader is the persistent-store read surface the dashboard depends on.
type Reader interface {
	SystemOverview(ctx context.Context) (domain.SystemOverview, error)
	TenantOverview(ctx context.Context, tenantID string) (domain.TenantOverview, error)
	SensorHealth(ctx context.Context, tenantID string) ([]domain.SensorHealth, error)
	RecentActivity(ctx context.Context, tenantID string, limit int) ([]domain.ActivityItem, error)
	AlertSummary(ctx context.Context, tenantID string, window time.Duration) (domain.AlertSummary, error)
	SensorReadings(ctx context.Context, tenantID, sensorID string, from, to time.Time) ([]domain.ReadingPoint, error)
	CountReadings(ctx context.Context, tenantID, sensorID string, from, to time.Time) (int, error)
}

// Service serves dashboard reads through the TTL cache.
type Service struct {
	reader Reader
	cache  *cache.Cache
	clock  func() time.Time
	logger *log.Logger
}

// Option configures the service.
type Option func(*Service)

// WithClock overrides the clock.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewService constructs the dashboard service.
func NewService(reader Reader, store *cache.Cache, logger *log.Logger, opts ...Option) (*Service, error) {
	if reader == nil {
		return nil, errors.New("dashboard: nil reader")
	}
	if logger == nil {
		logger = log.Default()
	}
	s := &Service{
		reader: reader,
		cache:  store,
		clock:  func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// cached wraps cache.GetOrCompute with hit/miss accounting per query
// label.
func cached[T any](ctx context.Context, s *Service, query, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	computed := false
	value, err := cache.GetOrCompute(ctx, s.cache, key, ttl, func(ctx context.Context) (T, error) {
		computed = true
		return compute(ctx)
	})
	if err != nil {
		return value, err
	}
	if computed {
		metrics.IncCacheMiss(query)
	} else {
		metrics.IncCacheHit(query)
	}
	return value, nil
}

// SystemOverview returns the fleet-wide summary. Caller must hold system
// privilege; enforcement happens at the HTTP layer.
func (s *Service) SystemOverview(ctx context.Context) (domain.SystemOverview, error) {
	return cached(ctx, s, "system_overview", "dashboard:system", systemTTL, s.reader.SystemOverview)
}

// TenantDashboard returns a single tenant's summary.
func (s *Service) TenantDashboard(ctx context.Context, tenantID string) (domain.TenantOverview, error) {
	if tenantID == "" {
		return domain.TenantOverview{}, domain.ErrEmptyTenant
	}
	key := "dashboard:tenant:" + tenantID
	return cached(ctx, s, "tenant_overview", key, tenantTTL, func(ctx context.Context) (domain.TenantOverview, error) {
		return s.reader.TenantOverview(ctx, tenantID)
	})
}

// SensorHealth returns the per-sensor health table for a tenant.
func (s *Service) SensorHealth(ctx context.Context, tenantID string) ([]domain.SensorHealth, error) {
	if tenantID == "" {
		return nil, domain.ErrEmptyTenant
	}
	key := "dashboard:health:" + tenantID
	return cached(ctx, s, "sensor_health", key, tenantTTL, func(ctx context.Context) ([]domain.SensorHealth, error) {
		return s.reader.SensorHealth(ctx, tenantID)
	})
}

// RecentActivity returns the newest readings for a tenant.
func (s *Service) RecentActivity(ctx context.Context, tenantID string, limit int) ([]domain.ActivityItem, error) {
	if tenantID == "" {
		return nil, domain.ErrEmptyTenant
	}
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	if limit > maxActivityLimit {
		limit = maxActivityLimit
	}
	key := "dashboard:activity:" + tenantID + ":" + strconv.Itoa(limit)
	return cached(ctx, s, "recent_activity", key, tenantTTL, func(ctx context.Context) ([]domain.ActivityItem, error) {
		return s.reader.RecentActivity(ctx, tenantID, limit)
	})
}

// AlertSummary aggregates persisted alerts for a tenant over a window.
func (s *Service) AlertSummary(ctx context.Context, tenantID string, window time.Duration) (domain.AlertSummary, error) {
	if tenantID == "" {
		return domain.AlertSummary{}, domain.ErrEmptyTenant
	}
	if window <= 0 {
		window = defaultAlertWindow
	}
	key := fmt.Sprintf("dashboard:alerts:%s:%d", tenantID, int64(window.Seconds()))
	return cached(ctx, s, "alert_summary", key, tenantTTL, func(ctx context.Context) (domain.AlertSummary, error) {
		return s.reader.AlertSummary(ctx, tenantID, window)
	})
}

// SensorUptime computes delivery completeness for one sensor.
func (s *Service) SensorUptime(ctx context.Context, tenantID, sensorID string, window, interval time.Duration) (domain.UptimeReport, error) {
	if tenantID == "" {
		return domain.UptimeReport{}, domain.ErrEmptyTenant
	}
	if sensorID == "" {
		return domain.UptimeReport{}, domain.ErrEmptySensor
	}
	if window <= 0 || interval <= 0 {
		return domain.UptimeReport{}, domain.ErrInvalidWindow
	}
	key := fmt.Sprintf("dashboard:uptime:%s:%s:%d:%d", tenantID, sensorID, int64(window.Seconds()), int64(interval.Seconds()))
	return cached(ctx, s, "sensor_uptime", key, tenantTTL, func(ctx context.Context) (domain.UptimeReport, error) {
		to := s.clock()
		observed, err := s.reader.CountReadings(ctx, tenantID, sensorID, to.Add(-window), to)
		if err != nil {
			return domain.UptimeReport{}, err
		}
		return domain.Uptime(sensorID, window, interval, observed), nil
	})
}

// BucketedStats returns hourly or daily rollups for one sensor.
func (s *Service) BucketedStats(ctx context.Context, tenantID, sensorID string, granularity domain.Granularity, from, to time.Time) ([]domain.BucketStat, error) {
	if tenantID == "" {
		return nil, domain.ErrEmptyTenant
	}
	if sensorID == "" {
		return nil, domain.ErrEmptySensor
	}
	if !to.After(from) {
		return nil, domain.ErrInvalidWindow
	}
	key := fmt.Sprintf("dashboard:stats:%s:%s:%s:%d:%d", tenantID, sensorID, granularity, from.Unix(), to.Unix())
	return cached(ctx, s, "bucketed_stats", key, tenantTTL, func(ctx context.Context) ([]domain.BucketStat, error) {
		points, err := s.reader.SensorReadings(ctx, tenantID, sensorID, from, to)
		if err != nil {
			return nil, err
		}
		return domain.BucketReadings(points, granularity)
	})
}

// InvalidateTenant drops every cached view for a tenant.
func (s *Service) InvalidateTenant(tenantID string) {
	if s.cache == nil || tenantID == "" {
		return
	}
	removed := 0
	for _, prefix := range []string{
		"dashboard:tenant:" + tenantID,
		"dashboard:health:" + tenantID,
		"dashboard:activity:" + tenantID + ":",
		"dashboard:alerts:" + tenantID + ":",
		"dashboard:uptime:" + tenantID + ":",
		"dashboard:stats:" + tenantID + ":",
	} {
		removed += s.cache.InvalidatePrefix(prefix)
	}
	if removed > 0 {
		s.logger.Printf("dashboard: invalidated %d cached views: tenant=%s", removed, tenantID)
	}
}
