package domain

import (
	"math"
	"time"
)

// Uptime computes delivery completeness for one sensor over a window.
// Expected readings are floor(window/interval); the percentage is capped
// at 100 so devices reporting faster than their nominal interval do not
// exceed full uptime. Zero expected readings yield zero uptime.
func Uptime(sensorID string, window, interval time.Duration, observed int) UptimeReport {
	report := UptimeReport{
		SensorID:        sensorID,
		WindowSeconds:   int64(window.Seconds()),
		IntervalSeconds: int64(interval.Seconds()),
		Observed:        observed,
	}
	if window <= 0 || interval <= 0 {
		return report
	}
	expected := int(math.Floor(window.Seconds() / interval.Seconds()))
	report.Expected = expected
	if expected == 0 {
		return report
	}
	percent := 100 * float64(observed) / float64(expected)
	if percent > 100 {
		percent = 100
	}
	report.UptimePercent = math.Round(percent*100) / 100
	return report
}
