package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/johnayoung/go-btc-chart/internal/models"
)

type seriesKey struct {
	symbol    string
	timeframe models.Timeframe
}

// MemoryArchive keeps the archive in process memory.
type MemoryArchive struct {
	mu     sync.RWMutex
	series map[seriesKey]map[int64]models.Point
	closed bool
}

// NewMemoryArchive creates an empty in-memory archive.
func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{series: make(map[seriesKey]map[int64]models.Point)}
}

func (m *MemoryArchive) Initialize(ctx context.Context) error { return nil }

func (m *MemoryArchive) Name() string { return "memory" }

func (m *MemoryArchive) Store(ctx context.Context, symbol string, tf models.Timeframe, points []models.Point) error {
	if err := ctx.Err(); err != nil {
		return NewInsertError("candles", err)
	}
	if len(points) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return NewInsertError("candles", errors.New("storage is closed"))
	}

	key := seriesKey{symbol: symbol, timeframe: tf}
	byTime, ok := m.series[key]
	if !ok {
		byTime = make(map[int64]models.Point, len(points))
		m.series[key] = byTime
	}
	for _, p := range points {
		byTime[p.Candle.Time] = p
	}
	return nil
}

func (m *MemoryArchive) Query(ctx context.Context, req QueryRequest) ([]models.Point, error) {
	if err := req.Validate(); err != nil {
		return nil, NewQueryError("candles", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, NewQueryError("candles", errors.New("storage is closed"))
	}

	lo, hi := req.bounds()
	var out []models.Point
	for t, p := range m.series[seriesKey{symbol: req.Symbol, timeframe: req.Timeframe}] {
		if t >= lo && t <= hi {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Candle.Time < out[j].Candle.Time })
	if req.Limit > 0 && len(out) > req.Limit {
		out = out[:req.Limit]
	}
	return out, nil
}

func (m *MemoryArchive) Stats(ctx context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &Stats{Series: len(m.series)}
	first := true
	for _, byTime := range m.series {
		for t := range byTime {
			stats.TotalPoints++
			ts := time.Unix(t, 0).UTC()
			if first || ts.Before(stats.Earliest) {
				stats.Earliest = ts
			}
			if first || ts.After(stats.Latest) {
				stats.Latest = ts
			}
			first = false
		}
	}
	return stats, nil
}

func (m *MemoryArchive) HealthCheck(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return errors.New("storage is closed")
	}
	return nil
}

func (m *MemoryArchive) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.series = nil
	return nil
}
