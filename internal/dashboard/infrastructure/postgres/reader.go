// Package postgres implements the dashboard read surface on the shared
// telemetry schema.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"citysense-cloud/internal/dashboard/domain"
)

// Sensors reporting within activeWindow count as active; within
// staleWindow as stale; anything older is silent.
const (
	activeWindow = time.Hour
	staleWindow  = 24 * time.Hour
)

// Reader is the Postgres implementation of application.Reader.
type Reader struct {
	db    *sql.DB
	clock func() time.Time
}

// ReaderOption configures the reader.
type ReaderOption func(*Reader)

// WithClock overrides the clock.
func WithClock(clock func() time.Time) ReaderOption {
	return func(r *Reader) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// NewReader constructs a dashboard reader.
func NewReader(db *sql.DB, opts ...ReaderOption) *Reader {
	r := &Reader{
		db:    db,
		clock: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SystemOverview aggregates across every tenant.
func (r *Reader) SystemOverview(ctx context.Context) (domain.SystemOverview, error) {
	if r == nil || r.db == nil {
		return domain.SystemOverview{}, errors.New("dashboard reader: nil db")
	}
	now := r.clock()
	since := now.Add(-24 * time.Hour)

	var overview domain.SystemOverview
	overview.GeneratedAt = now

	err := r.db.QueryRowContext(ctx, `
SELECT
	COUNT(DISTINCT tenant_id),
	COUNT(*),
	COUNT(*) FILTER (WHERE is_active AND last_seen >= $1)
FROM sensors`, now.Add(-activeWindow)).
		Scan(&overview.TenantCount, &overview.SensorCount, &overview.ActiveSensors)
	if err != nil {
		return domain.SystemOverview{}, err
	}

	err = r.db.QueryRowContext(ctx, `
SELECT COUNT(*), COALESCE(AVG(quality_score), 0)
FROM sensor_readings
WHERE ts >= $1`, since).
		Scan(&overview.ReadingsLast24h, &overview.AvgQuality)
	if err != nil {
		return domain.SystemOverview{}, err
	}

	err = r.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM alerts WHERE created_at >= $1`, since).
		Scan(&overview.AlertsLast24h)
	if err != nil {
		return domain.SystemOverview{}, err
	}
	return overview, nil
}

// TenantOverview aggregates one tenant's fleet.
func (r *Reader) TenantOverview(ctx context.Context, tenantID string) (domain.TenantOverview, error) {
	if r == nil || r.db == nil {
		return domain.TenantOverview{}, errors.New("dashboard reader: nil db")
	}
	now := r.clock()
	overview := domain.TenantOverview{TenantID: tenantID, GeneratedAt: now}

	err := r.db.QueryRowContext(ctx, `
SELECT
	COUNT(*),
	COUNT(*) FILTER (WHERE is_active AND last_seen >= $2)
FROM sensors
WHERE tenant_id = $1`, tenantID, now.Add(-activeWindow)).
		Scan(&overview.SensorCount, &overview.ActiveSensors)
	if err != nil {
		return domain.TenantOverview{}, err
	}

	var lastReading sql.NullTime
	err = r.db.QueryRowContext(ctx, `
SELECT COUNT(*), COALESCE(AVG(quality_score), 0), MAX(ts)
FROM sensor_readings
WHERE tenant_id = $1 AND ts >= $2`, tenantID, now.Add(-24*time.Hour)).
		Scan(&overview.ReadingsLast24h, &overview.AvgQuality, &lastReading)
	if err != nil {
		return domain.TenantOverview{}, err
	}
	if lastReading.Valid {
		t := lastReading.Time
		overview.LastReadingAt = &t
	}
	return overview, nil
}

// SensorHealth lists every sensor of a tenant with its recency class.
func (r *Reader) SensorHealth(ctx context.Context, tenantID string) ([]domain.SensorHealth, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("dashboard reader: nil db")
	}
	now := r.clock()
	rows, err := r.db.QueryContext(ctx, `
SELECT
	s.id, s.external_id, s.protocol, s.last_seen,
	COUNT(sr.id) FILTER (WHERE sr.ts >= $2),
	COALESCE(AVG(sr.quality_score) FILTER (WHERE sr.ts >= $2), 0)
FROM sensors s
LEFT JOIN sensor_readings sr ON sr.sensor_id = s.id
WHERE s.tenant_id = $1
GROUP BY s.id, s.external_id, s.protocol, s.last_seen
ORDER BY s.external_id`, tenantID, now.Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var health []domain.SensorHealth
	for rows.Next() {
		var h domain.SensorHealth
		var lastSeen sql.NullTime
		if err := rows.Scan(&h.SensorID, &h.ExternalID, &h.Protocol, &lastSeen, &h.ReadingsLast24h, &h.AvgQuality); err != nil {
			return nil, err
		}
		if lastSeen.Valid {
			t := lastSeen.Time
			h.LastSeenAt = &t
		}
		h.Status = classify(now, lastSeen)
		health = append(health, h)
	}
	return health, rows.Err()
}

func classify(now time.Time, lastSeen sql.NullTime) domain.SensorStatus {
	if !lastSeen.Valid {
		return domain.SensorStatusSilent
	}
	age := now.Sub(lastSeen.Time)
	switch {
	case age <= activeWindow:
		return domain.SensorStatusActive
	case age <= staleWindow:
		return domain.SensorStatusStale
	default:
		return domain.SensorStatusSilent
	}
}

// RecentActivity returns the newest readings for a tenant.
func (r *Reader) RecentActivity(ctx context.Context, tenantID string, limit int) ([]domain.ActivityItem, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("dashboard reader: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT sr.sensor_id, sr.device_id, sr.value, sr.quality_score, sr.ts
FROM sensor_readings sr
WHERE sr.tenant_id = $1
ORDER BY sr.ts DESC
LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.ActivityItem
	for rows.Next() {
		var item domain.ActivityItem
		if err := rows.Scan(&item.SensorID, &item.ExternalID, &item.Value, &item.QualityScore, &item.RecordedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// AlertSummary aggregates persisted alerts over a window.
func (r *Reader) AlertSummary(ctx context.Context, tenantID string, window time.Duration) (domain.AlertSummary, error) {
	if r == nil || r.db == nil {
		return domain.AlertSummary{}, errors.New("dashboard reader: nil db")
	}
	since := r.clock().Add(-window)
	summary := domain.AlertSummary{
		TenantID:    tenantID,
		WindowHours: int(window.Hours()),
		BySeverity:  make(map[string]int),
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT severity, COUNT(*), MAX(created_at)
FROM alerts
WHERE tenant_id = $1 AND created_at >= $2
GROUP BY severity`, tenantID, since)
	if err != nil {
		return domain.AlertSummary{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var severity string
		var count int
		var last sql.NullTime
		if err := rows.Scan(&severity, &count, &last); err != nil {
			return domain.AlertSummary{}, err
		}
		summary.BySeverity[severity] = count
		summary.Total += count
		if last.Valid && (summary.LastAlertAt == nil || last.Time.After(*summary.LastAlertAt)) {
			t := last.Time
			summary.LastAlertAt = &t
		}
	}
	return summary, rows.Err()
}

// SensorReadings returns raw points for bucketing, ascending by time.
func (r *Reader) SensorReadings(ctx context.Context, tenantID, sensorID string, from, to time.Time) ([]domain.ReadingPoint, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("dashboard reader: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT value, ts
FROM sensor_readings
WHERE tenant_id = $1 AND sensor_id = $2 AND ts >= $3 AND ts < $4
ORDER BY ts`, tenantID, sensorID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []domain.ReadingPoint
	for rows.Next() {
		var point domain.ReadingPoint
		if err := rows.Scan(&point.Value, &point.RecordedAt); err != nil {
			return nil, err
		}
		points = append(points, point)
	}
	return points, rows.Err()
}

// CountReadings counts one sensor's readings in a window.
func (r *Reader) CountReadings(ctx context.Context, tenantID, sensorID string, from, to time.Time) (int, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("dashboard reader: nil db")
	}
	var count int
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM sensor_readings
WHERE tenant_id = $1 AND sensor_id = $2 AND ts >= $3 AND ts < $4`,
		tenantID, sensorID, from, to).Scan(&count)
	return count, err
}
