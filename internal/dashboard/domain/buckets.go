package domain

import (
	"math"
	"sort"
	"time"
)

// Granularity selects the bucket width for time-series rollups.
type Granularity string

const (
	GranularityHour Granularity = "hour"
	GranularityDay  Granularity = "day"
)

// ParseGranularity validates a granularity string.
func ParseGranularity(value string) (Granularity, error) {
	switch Granularity(value) {
	case GranularityHour, GranularityDay:
		return Granularity(value), nil
	default:
		return "", ErrUnknownGranularity
	}
}

// BucketStat is one aggregated time bucket. StdDev is populated for
// daily buckets only.
type BucketStat struct {
	BucketStart time.Time `json:"bucket_start"`
	Count       int       `json:"count"`
	Avg         float64   `json:"avg"`
	Min         float64   `json:"min"`
	Max         float64   `json:"max"`
	StdDev      *float64  `json:"stddev,omitempty"`
}

// BucketReadings groups readings into UTC-truncated buckets and computes
// avg/min/max/count per bucket, plus population standard deviation for
// daily buckets. Buckets are returned ascending by start; empty buckets
// are omitted.
func BucketReadings(points []ReadingPoint, granularity Granularity) ([]BucketStat, error) {
	if granularity != GranularityHour && granularity != GranularityDay {
		return nil, ErrUnknownGranularity
	}

	grouped := make(map[time.Time][]float64)
	for _, point := range points {
		start := truncateUTC(point.RecordedAt, granularity)
		grouped[start] = append(grouped[start], point.Value)
	}

	stats := make([]BucketStat, 0, len(grouped))
	for start, values := range grouped {
		stat := BucketStat{
			BucketStart: start,
			Count:       len(values),
			Min:         values[0],
			Max:         values[0],
		}
		sum := 0.0
		for _, v := range values {
			sum += v
			if v < stat.Min {
				stat.Min = v
			}
			if v > stat.Max {
				stat.Max = v
			}
		}
		stat.Avg = sum / float64(len(values))
		if granularity == GranularityDay {
			stddev := populationStdDev(values, stat.Avg)
			stat.StdDev = &stddev
		}
		stats = append(stats, stat)
	}

	sort.Slice(stats, func(i, j int) bool {
		return stats[i].BucketStart.Before(stats[j].BucketStart)
	})
	return stats, nil
}

func truncateUTC(ts time.Time, granularity Granularity) time.Time {
	utc := ts.UTC()
	if granularity == GranularityHour {
		return utc.Truncate(time.Hour)
	}
	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
}

func populationStdDev(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}
