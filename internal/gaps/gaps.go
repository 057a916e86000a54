// Package gaps reports missing buckets in a held candle series.
package gaps

import (
	"fmt"
	"time"

	"github.com/johnayoung/go-btc-chart/internal/models"
)

// Priority ranks a gap by how many buckets it spans.
type Priority int

const (
	PriorityLow      Priority = iota // a single missing bucket
	PriorityMedium                   // a handful of buckets
	PriorityHigh                     // a day or more of intraday data
	PriorityCritical                 // a week or more of data
)

// String returns the priority name used in logs and the API.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// MarshalText renders the priority by name.
func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Gap is a run of consecutive missing buckets. Start is the open time of the
// first missing bucket and End the open time of the bucket that follows the
// run, so End is also the open time of the next held point.
type Gap struct {
	ID        string           `json:"id"`
	Timeframe models.Timeframe `json:"timeframe"`
	Start     time.Time        `json:"start"`
	End       time.Time        `json:"end"`
	Missing   int              `json:"missing"`
	Priority  Priority         `json:"priority"`
}

// maxMonthSteps bounds the calendar walk between two monthly points.
const maxMonthSteps = 12 * 100

// Detect walks points, which must be sorted ascending by time, and returns
// every run of missing buckets between adjacent points. Monthly series are
// walked by calendar month; every other timeframe uses its fixed duration.
func Detect(points []models.Point, tf models.Timeframe) []Gap {
	if len(points) < 2 || !tf.IsValid() {
		return nil
	}

	var gaps []Gap
	for i := 1; i < len(points); i++ {
		prev := points[i-1].OpenTime()
		cur := points[i].OpenTime()

		missing := missingBuckets(prev, cur, tf)
		if missing <= 0 {
			continue
		}

		start := tf.Next(prev)
		gaps = append(gaps, Gap{
			ID:        gapID(tf, start, cur),
			Timeframe: tf,
			Start:     start,
			End:       cur,
			Missing:   missing,
			Priority:  priorityFor(tf, missing),
		})
	}
	return gaps
}

// Summary totals the missing buckets of gaps.
func Summary(gaps []Gap) (count, missing int) {
	for _, g := range gaps {
		missing += g.Missing
	}
	return len(gaps), missing
}

func missingBuckets(prev, cur time.Time, tf models.Timeframe) int {
	if d := tf.Duration(); d > 0 {
		steps := int(cur.Sub(prev) / d)
		return steps - 1
	}

	missing := 0
	next := tf.Next(prev)
	for step := 0; next.Before(cur) && step < maxMonthSteps; step++ {
		missing++
		next = tf.Next(next)
	}
	return missing
}

func priorityFor(tf models.Timeframe, missing int) Priority {
	span := time.Duration(missing) * tf.Duration()
	if tf == models.Timeframe1M {
		span = time.Duration(missing) * 30 * 24 * time.Hour
	}

	switch {
	case span >= 7*24*time.Hour:
		return PriorityCritical
	case span >= 24*time.Hour:
		return PriorityHigh
	case missing > 1:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

func gapID(tf models.Timeframe, start, end time.Time) string {
	return fmt.Sprintf("%s_%d_%d", tf, start.Unix(), end.Unix())
}
