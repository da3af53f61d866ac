// Package slots derives bookable start times from free intervals.
package slots

import (
	"time"

	"github.com/danieloza/salonos/internal/availability"
)

// Recommend generates candidate start times at stepMin granularity inside
// each free interval, keeping only starts where the whole duration fits.
// Candidates come out interval by interval, earliest first; chronological
// order is authoritative. An empty result is a valid outcome, not an error.
func Recommend(free []availability.Interval, durationMin, stepMin, limit int) []time.Time {
	if durationMin <= 0 || stepMin <= 0 || limit <= 0 {
		return []time.Time{}
	}

	duration := time.Duration(durationMin) * time.Minute
	step := time.Duration(stepMin) * time.Minute

	out := make([]time.Time, 0, limit)
	for _, iv := range free {
		for start := iv.Start; !start.Add(duration).After(iv.End); start = start.Add(step) {
			out = append(out, start)
			if len(out) == limit {
				return out
			}
		}
	}
	return out
}
