// Package normalizer converts raw exchange kline records into typed chart points.
package normalizer

import (
	"encoding/json"
	"math"

	"github.com/johnayoung/go-btc-chart/internal/models"
	"github.com/shopspring/decimal"
)

// minFields is open time, open, high, low, close and volume.
const minFields = 6

var (
	thousand   = decimal.NewFromInt(1000)
	maxSeconds = decimal.NewFromInt(math.MaxInt64 / 1000)
)

// Normalize converts one raw record into a point. It returns false when the
// record is too short, any of the first six fields is not a finite number,
// or the volume is negative. Open time is converted from milliseconds to
// seconds by flooring.
func Normalize(raw models.RawKline) (models.Point, bool) {
	if len(raw) < minFields {
		return models.Point{}, false
	}

	openMs, ok := toDecimal(raw[0])
	if !ok {
		return models.Point{}, false
	}
	timeSec := openMs.Div(thousand).Floor()
	if timeSec.Abs().GreaterThan(maxSeconds) {
		return models.Point{}, false
	}

	var values [5]float64
	for i := range values {
		d, ok := toDecimal(raw[i+1])
		if !ok {
			return models.Point{}, false
		}
		f := d.InexactFloat64()
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return models.Point{}, false
		}
		values[i] = f
	}

	if values[4] < 0 {
		return models.Point{}, false
	}

	return models.NewPoint(timeSec.IntPart(), values[0], values[1], values[2], values[3], values[4]), true
}

// NormalizePage normalizes every record of a page, preserving order and
// dropping the records Normalize rejects. It returns the accepted points and
// the number of dropped records.
func NormalizePage(raws []models.RawKline) ([]models.Point, int) {
	points := make([]models.Point, 0, len(raws))
	dropped := 0
	for _, raw := range raws {
		p, ok := Normalize(raw)
		if !ok {
			dropped++
			continue
		}
		points = append(points, p)
	}
	return points, dropped
}

// toDecimal accepts the representations a decoded JSON kline field can take.
// decimal.NewFromString rejects NaN and Inf spellings.
func toDecimal(v any) (decimal.Decimal, bool) {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return decimal.Decimal{}, false
		}
		return decimal.NewFromFloat(x), true
	case float32:
		return toDecimal(float64(x))
	case int:
		return decimal.NewFromInt(int64(x)), true
	case int64:
		return decimal.NewFromInt(x), true
	case int32:
		return decimal.NewFromInt(int64(x)), true
	case json.Number:
		return parseString(string(x))
	case string:
		return parseString(x)
	default:
		return decimal.Decimal{}, false
	}
}

func parseString(s string) (decimal.Decimal, bool) {
	if s == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}
