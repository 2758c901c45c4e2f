package services

import (
	"time"

	"github.com/zentinel/zentinel/internal/models"
)

// TrendBucket is one hourly bar of the trend chart
type TrendBucket struct {
	Start   time.Time `json:"start"`
	Label   string    `json:"label"`
	Count   int       `json:"count"`
	Percent int       `json:"percent"`
}

// Stats holds the KPI counters of a problem list
type Stats struct {
	Total              int           `json:"total"`
	Acknowledged       int           `json:"acknowledged"`
	HighCount          int           `json:"high_count"`
	AvgDuration        time.Duration `json:"-"`
	AvgDurationSeconds int64         `json:"avg_duration_seconds"`
	ProductionCount    int           `json:"production_count"`
	NonProductionCount int           `json:"non_production_count"`
	Trend              []TrendBucket `json:"trend"`
}

// ComputeStats aggregates problems in a single pass. Problems at or above
// high count as High/Disaster. The trend has one bucket per trailing hour,
// oldest first.
func ComputeStats(problems []EnrichedProblem, now time.Time, high models.Severity, hours int) Stats {
	stats := Stats{Trend: trendBuckets(now, hours)}

	var total time.Duration
	for _, p := range problems {
		stats.Total++
		if p.Acknowledged {
			stats.Acknowledged++
		}
		if p.Severity >= high {
			stats.HighCount++
		}
		if p.IsProduction {
			stats.ProductionCount++
		} else {
			stats.NonProductionCount++
		}
		total += now.Sub(p.Clock)

		if i, ok := BucketIndex(p.Clock, now, hours); ok {
			stats.Trend[i].Count++
		}
	}

	if stats.Total > 0 {
		stats.AvgDuration = total / time.Duration(stats.Total)
		stats.AvgDurationSeconds = int64(stats.AvgDuration / time.Second)
	}

	peak := 0
	for _, b := range stats.Trend {
		if b.Count > peak {
			peak = b.Count
		}
	}
	if peak > 0 {
		for i := range stats.Trend {
			stats.Trend[i].Percent = stats.Trend[i].Count * 100 / peak
		}
	}

	return stats
}

// BucketIndex returns the trend bucket of a problem created at clock.
// Bucket i covers [now-(hours-i)h, now-(hours-1-i)h). Future problems and
// problems older than the window are not bucketed.
func BucketIndex(clock, now time.Time, hours int) (int, bool) {
	age := now.Sub(clock)
	if age < 0 || age >= time.Duration(hours)*time.Hour {
		return 0, false
	}
	return hours - 1 - int(age/time.Hour), true
}

func trendBuckets(now time.Time, hours int) []TrendBucket {
	buckets := make([]TrendBucket, hours)
	for i := range buckets {
		start := now.Add(-time.Duration(hours-i) * time.Hour)
		buckets[i] = TrendBucket{
			Start: start,
			Label: start.Format("15:04"),
		}
	}
	return buckets
}
