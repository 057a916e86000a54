package models

import (
	"math"
	"time"
)

// RawKline is one kline record exactly as the exchange returns it:
// [openTimeMs, open, high, low, close, volume, closeTimeMs, ...].
// Numeric fields may arrive as JSON numbers or as decimal strings.
type RawKline []any

// Candle is a normalized OHLC bar. Time is the bucket open in epoch seconds.
type Candle struct {
	Time  int64   `json:"time"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// ColorHint tells the renderer which palette entry a volume bar uses.
type ColorHint string

const (
	ColorUp   ColorHint = "UP"
	ColorDown ColorHint = "DOWN"
)

// VolumeBar is the traded volume of one bucket, aligned with a Candle by Time.
type VolumeBar struct {
	Time  int64     `json:"time"`
	Value float64   `json:"value"`
	Color ColorHint `json:"color"`
}

// Point pairs the candle and volume bar derived from one raw record.
type Point struct {
	Candle Candle    `json:"candle"`
	Volume VolumeBar `json:"volume"`
}

// NewPoint builds a point from normalized values. The volume colour is UP
// when the bar closed at or above its open.
func NewPoint(timeSec int64, open, high, low, closePrice, volume float64) Point {
	color := ColorDown
	if closePrice >= open {
		color = ColorUp
	}
	return Point{
		Candle: Candle{Time: timeSec, Open: open, High: high, Low: low, Close: closePrice},
		Volume: VolumeBar{Time: timeSec, Value: volume, Color: color},
	}
}

// Valid reports whether every numeric field is finite, the volume is
// non-negative and both halves share the same time.
func (p Point) Valid() bool {
	for _, v := range []float64{p.Candle.Open, p.Candle.High, p.Candle.Low, p.Candle.Close, p.Volume.Value} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return p.Volume.Value >= 0 && p.Candle.Time == p.Volume.Time
}

// OpenTime returns the bucket open as a UTC time.
func (p Point) OpenTime() time.Time {
	return time.Unix(p.Candle.Time, 0).UTC()
}

// PriceInfo is the summary shown above the chart. A nil field means the
// value is unknown.
type PriceInfo struct {
	Current  *float64 `json:"current"`
	Previous *float64 `json:"previous"`
}

// Change returns Current-Previous and the percentage change. ok is false when
// either side is unknown or the previous value is zero.
func (p PriceInfo) Change() (abs, pct float64, ok bool) {
	if p.Current == nil || p.Previous == nil || *p.Previous == 0 {
		return 0, 0, false
	}
	abs = *p.Current - *p.Previous
	return abs, abs / *p.Previous * 100, true
}

// Palette maps colour hints to concrete colours for one theme.
type Palette struct {
	Name string `json:"name" yaml:"name"`
	Up   string `json:"up" yaml:"up"`
	Down string `json:"down" yaml:"down"`
}

// DefaultPalettes returns the light and dark themes.
func DefaultPalettes() map[string]Palette {
	return map[string]Palette{
		"light": {Name: "light", Up: "#26a69a", Down: "#ef5350"},
		"dark":  {Name: "dark", Up: "#26a69a80", Down: "#ef535080"},
	}
}

// Resolve returns the colour for hint.
func (p Palette) Resolve(hint ColorHint) string {
	if hint == ColorUp {
		return p.Up
	}
	return p.Down
}
