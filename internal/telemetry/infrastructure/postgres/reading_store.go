package postgres

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"citysense-cloud/internal/telemetry/application"
	telemetry "citysense-cloud/internal/telemetry/domain"
)

const (
	defaultReadingsTable = "sensor_readings"
	defaultSensorsTable  = "sensors"
)

// ReadingStore is the Postgres-backed ingestion service: it resolves the
// owning tenant from the sensor registry, optionally checks the device API
// key, and persists the canonical reading.
type ReadingStore struct {
	db       *sql.DB
	readings string
	sensors  string
}

// StoreOption configures the reading store.
type StoreOption func(*ReadingStore)

// WithReadingsTable overrides the readings table name.
func WithReadingsTable(table string) StoreOption {
	return func(store *ReadingStore) {
		if table != "" {
			store.readings = table
		}
	}
}

// WithSensorsTable overrides the sensor registry table name.
func WithSensorsTable(table string) StoreOption {
	return func(store *ReadingStore) {
		if table != "" {
			store.sensors = table
		}
	}
}

// NewReadingStore constructs a reading store with default table names.
func NewReadingStore(db *sql.DB, opts ...StoreOption) *ReadingStore {
	store := &ReadingStore{db: db, readings: defaultReadingsTable, sensors: defaultSensorsTable}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// ProcessReading implements application.IngestionService.
func (s *ReadingStore) ProcessReading(ctx context.Context, reading *telemetry.Reading, opts application.ProcessOptions) (application.Result, error) {
	if s == nil || s.db == nil {
		return application.Result{}, errors.New("reading store: nil db")
	}
	if reading == nil {
		return application.Result{}, errors.New("reading store: nil reading")
	}

	query := fmt.Sprintf(`
SELECT id, tenant_id, api_key
FROM %s
WHERE external_id = $1 AND protocol = $2 AND is_active = true`, s.sensors)

	var sensorID, tenantID string
	var apiKey sql.NullString
	err := s.db.QueryRowContext(ctx, query, reading.DeviceID, string(reading.Protocol)).
		Scan(&sensorID, &tenantID, &apiKey)
	if errors.Is(err, sql.ErrNoRows) {
		return application.Result{}, telemetry.ErrUnknownDevice
	}
	if err != nil {
		return application.Result{}, err
	}

	if opts.EnforceAPIKey {
		if !apiKey.Valid || apiKey.String == "" {
			return application.Result{}, telemetry.ErrUnauthorizedDevice
		}
		if reading.AuthHint.Kind != telemetry.AuthHintAPIKey ||
			subtle.ConstantTimeCompare([]byte(reading.AuthHint.Value), []byte(apiKey.String)) != 1 {
			return application.Result{}, telemetry.ErrUnauthorizedDevice
		}
	}

	channels, err := json.Marshal(reading.Channels)
	if err != nil {
		return application.Result{}, err
	}
	metadata, err := json.Marshal(reading.Metadata)
	if err != nil {
		return application.Result{}, err
	}

	readingID := uuid.NewString()
	insert := fmt.Sprintf(`
INSERT INTO %s (
	id, tenant_id, sensor_id, device_id, protocol,
	value, quality_score, channels, metadata, auth_hint, ts
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
)`, s.readings)

	if _, err := s.db.ExecContext(
		ctx,
		insert,
		readingID,
		tenantID,
		sensorID,
		reading.DeviceID,
		string(reading.Protocol),
		reading.Value,
		reading.QualityScore,
		channels,
		metadata,
		string(reading.AuthHint.Kind),
		reading.Timestamp,
	); err != nil {
		return application.Result{}, err
	}

	touch := fmt.Sprintf(`UPDATE %s SET last_seen = GREATEST(COALESCE(last_seen, $2), $2) WHERE id = $1`, s.sensors)
	if _, err := s.db.ExecContext(ctx, touch, sensorID, reading.Timestamp); err != nil {
		return application.Result{}, err
	}

	return application.Result{
		ReadingID: readingID,
		TenantID:  tenantID,
		SensorID:  sensorID,
		StoredAt:  reading.Timestamp,
	}, nil
}
