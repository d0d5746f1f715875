package domain

import "time"

// SystemOverview is the fleet-wide summary shown on the operator landing
// page. Computed across all tenants, so it requires system privilege.
type SystemOverview struct {
	TenantCount     int       `json:"tenant_count"`
	SensorCount     int       `json:"sensor_count"`
	ActiveSensors   int       `json:"active_sensors"`
	ReadingsLast24h int       `json:"readings_last_24h"`
	AlertsLast24h   int       `json:"alerts_last_24h"`
	AvgQuality      float64   `json:"avg_quality"`
	GeneratedAt     time.Time `json:"generated_at"`
}

// TenantOverview summarizes a single municipality's fleet.
type TenantOverview struct {
	TenantID        string     `json:"tenant_id"`
	SensorCount     int        `json:"sensor_count"`
	ActiveSensors   int        `json:"active_sensors"`
	ReadingsLast24h int        `json:"readings_last_24h"`
	AvgQuality      float64    `json:"avg_quality"`
	LastReadingAt   *time.Time `json:"last_reading_at,omitempty"`
	GeneratedAt     time.Time  `json:"generated_at"`
}

// SensorStatus classifies how recently a sensor reported.
type SensorStatus string

const (
	SensorStatusActive SensorStatus = "active"
	SensorStatusStale  SensorStatus = "stale"
	SensorStatusSilent SensorStatus = "silent"
)

// SensorHealth is one row of the per-tenant health table.
type SensorHealth struct {
	SensorID        string       `json:"sensor_id"`
	ExternalID      string       `json:"external_id"`
	Protocol        string       `json:"protocol"`
	Status          SensorStatus `json:"status"`
	LastSeenAt      *time.Time   `json:"last_seen_at,omitempty"`
	ReadingsLast24h int          `json:"readings_last_24h"`
	AvgQuality      float64      `json:"avg_quality"`
}

// ActivityItem is one recent reading in the tenant activity feed.
type ActivityItem struct {
	SensorID     string    `json:"sensor_id"`
	ExternalID   string    `json:"external_id"`
	Value        float64   `json:"value"`
	QualityScore float64   `json:"quality_score"`
	RecordedAt   time.Time `json:"recorded_at"`
}

// AlertSummary aggregates persisted alerts over a window.
type AlertSummary struct {
	TenantID    string         `json:"tenant_id"`
	WindowHours int            `json:"window_hours"`
	Total       int            `json:"total"`
	BySeverity  map[string]int `json:"by_severity"`
	LastAlertAt *time.Time     `json:"last_alert_at,omitempty"`
}

// ReadingPoint is the raw input to bucketing and uptime computations.
type ReadingPoint struct {
	Value      float64
	RecordedAt time.Time
}

// UptimeReport reports delivery completeness for one sensor.
type UptimeReport struct {
	SensorID        string  `json:"sensor_id"`
	WindowSeconds   int64   `json:"window_seconds"`
	IntervalSeconds int64   `json:"interval_seconds"`
	Expected        int     `json:"expected_readings"`
	Observed        int     `json:"observed_readings"`
	UptimePercent   float64 `json:"uptime_percent"`
}
