// Package models provides the data structures shared by the chart feed:
// timeframes, candles, volume bars and the price summary shown above the chart.
package models

import (
	"fmt"
	"time"
)

// Timeframe is the bucket duration of a single candle, spelled the way the
// exchange spells its kline intervals.
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe30m Timeframe = "30m"
	Timeframe1h  Timeframe = "1h"
	Timeframe2h  Timeframe = "2h"
	Timeframe4h  Timeframe = "4h"
	Timeframe6h  Timeframe = "6h"
	Timeframe8h  Timeframe = "8h"
	Timeframe12h Timeframe = "12h"
	Timeframe1d  Timeframe = "1d"
	Timeframe3d  Timeframe = "3d"
	Timeframe1w  Timeframe = "1w"
	Timeframe1M  Timeframe = "1M" // calendar month
)

// DefaultTimeframe is selected when the chart first opens.
const DefaultTimeframe = Timeframe1h

var timeframeDurations = map[Timeframe]time.Duration{
	Timeframe1m:  time.Minute,
	Timeframe5m:  5 * time.Minute,
	Timeframe15m: 15 * time.Minute,
	Timeframe30m: 30 * time.Minute,
	Timeframe1h:  time.Hour,
	Timeframe2h:  2 * time.Hour,
	Timeframe4h:  4 * time.Hour,
	Timeframe6h:  6 * time.Hour,
	Timeframe8h:  8 * time.Hour,
	Timeframe12h: 12 * time.Hour,
	Timeframe1d:  24 * time.Hour,
	Timeframe3d:  3 * 24 * time.Hour,
	Timeframe1w:  7 * 24 * time.Hour,
	Timeframe1M:  0,
}

// AllTimeframes returns every supported timeframe in ascending order.
func AllTimeframes() []Timeframe {
	return []Timeframe{
		Timeframe1m, Timeframe5m, Timeframe15m, Timeframe30m,
		Timeframe1h, Timeframe2h, Timeframe4h, Timeframe6h, Timeframe8h, Timeframe12h,
		Timeframe1d, Timeframe3d, Timeframe1w, Timeframe1M,
	}
}

// ParseTimeframe validates s and returns it as a Timeframe.
// Matching is case sensitive since "1m" and "1M" are different intervals.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if !tf.IsValid() {
		return "", &ValidationError{Field: "timeframe", Message: fmt.Sprintf("unsupported timeframe %q", s)}
	}
	return tf, nil
}

// IsValid reports whether tf is one of the supported intervals.
func (tf Timeframe) IsValid() bool {
	_, ok := timeframeDurations[tf]
	return ok
}

// String returns the exchange spelling of the timeframe.
func (tf Timeframe) String() string {
	return string(tf)
}

// Duration returns the fixed bucket length. The calendar month has no fixed
// length and reports zero; use Next to step through monthly buckets.
func (tf Timeframe) Duration() time.Duration {
	return timeframeDurations[tf]
}

// Next returns the start of the bucket following the one starting at t.
func (tf Timeframe) Next(t time.Time) time.Time {
	if tf == Timeframe1M {
		return t.UTC().AddDate(0, 1, 0)
	}
	return t.Add(tf.Duration())
}

// ValidationError reports a field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field %s: %s", e.Field, e.Message)
}
