package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	gatewayhttp "citysense-cloud/internal/telemetry/interfaces/http"
)

// SensorRegistry is the Postgres-backed sensor registry.
type SensorRegistry struct {
	db      *sql.DB
	sensors string
}

// NewSensorRegistry constructs a sensor registry over the default table.
func NewSensorRegistry(db *sql.DB) *SensorRegistry {
	return &SensorRegistry{db: db, sensors: defaultSensorsTable}
}

// List returns the tenant's sensors, newest registrations first.
func (r *SensorRegistry) List(ctx context.Context, tenantID string) ([]gatewayhttp.SensorRecord, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("sensor registry: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, tenant_id, external_id, protocol, is_active, last_seen
FROM %s
WHERE tenant_id = $1
ORDER BY id`, r.sensors)

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []gatewayhttp.SensorRecord
	for rows.Next() {
		var record gatewayhttp.SensorRecord
		var lastSeen sql.NullTime
		if err := rows.Scan(&record.ID, &record.TenantID, &record.ExternalID, &record.Protocol, &record.IsActive, &lastSeen); err != nil {
			return nil, err
		}
		if lastSeen.Valid {
			seen := lastSeen.Time.UTC()
			record.LastSeen = &seen
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Register inserts a sensor. Re-registering an external id for the same
// protocol reactivates it and rotates the key.
func (r *SensorRegistry) Register(ctx context.Context, record gatewayhttp.SensorRecord, apiKey string) error {
	if r == nil || r.db == nil {
		return errors.New("sensor registry: nil db")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (id, tenant_id, external_id, protocol, api_key, is_active, last_seen)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, NULL)
ON CONFLICT (tenant_id, external_id, protocol) DO UPDATE
SET api_key = EXCLUDED.api_key, is_active = true`, r.sensors)

	_, err := r.db.ExecContext(ctx, query,
		record.ID, record.TenantID, record.ExternalID, record.Protocol, apiKey, record.IsActive)
	return err
}

// Deactivate flips is_active off. It reports whether the sensor existed.
func (r *SensorRegistry) Deactivate(ctx context.Context, tenantID, sensorID string) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("sensor registry: nil db")
	}
	query := fmt.Sprintf(`
UPDATE %s SET is_active = false
WHERE tenant_id = $1 AND id = $2`, r.sensors)

	result, err := r.db.ExecContext(ctx, query, tenantID, sensorID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
