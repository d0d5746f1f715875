package application

import (
	"time"

	telemetry "citysense-cloud/internal/telemetry/domain"
)

// Event types carried on tenant streams.
const (
	EventTypeSensorReading = "sensor_reading"
	EventTypeAlert         = "alert"
)

// ReadingIngested is raised after a reading is accepted.
type ReadingIngested struct {
	ReadingID    string             `json:"reading_id"`
	TenantID     string             `json:"tenant_id"`
	SensorID     string             `json:"sensor_id"`
	DeviceID     string             `json:"device_id"`
	Protocol     telemetry.Protocol `json:"protocol"`
	Value        float64            `json:"value"`
	QualityScore float64            `json:"quality_score"`
	Timestamp    time.Time          `json:"timestamp"`
}

// NewReadingIngested builds the event from an ingestion result.
func NewReadingIngested(result Result, reading *telemetry.Reading) ReadingIngested {
	return ReadingIngested{
		ReadingID:    result.ReadingID,
		TenantID:     result.TenantID,
		SensorID:     result.SensorID,
		DeviceID:     reading.DeviceID,
		Protocol:     reading.Protocol,
		Value:        reading.Value,
		QualityScore: reading.QualityScore,
		Timestamp:    reading.Timestamp,
	}
}

// Payload renders the event as a distribution payload.
func (e ReadingIngested) Payload() map[string]any {
	return map[string]any{
		"reading_id":    e.ReadingID,
		"sensor_id":     e.SensorID,
		"device_id":     e.DeviceID,
		"protocol":      string(e.Protocol),
		"value":         e.Value,
		"quality_score": e.QualityScore,
		"timestamp":     e.Timestamp.Format(time.RFC3339Nano),
	}
}
