// Package series holds the ordered, deduplicated candle series of one chart view.
package series

import (
	"sort"
	"sync"

	"github.com/johnayoung/go-btc-chart/internal/models"
)

// MergeMode selects how an incoming page is combined with the held series.
type MergeMode int

const (
	// Replace discards the held series and adopts the incoming page.
	Replace MergeMode = iota
	// Prepend combines an older page with the held series.
	Prepend
)

// String returns the mode name used in logs.
func (m MergeMode) String() string {
	switch m {
	case Replace:
		return "replace"
	case Prepend:
		return "prepend"
	default:
		return "unknown"
	}
}

// Store keeps points strictly increasing by time with no duplicate times.
//
// When two points share a time the most recently fetched one wins: an
// incoming page overrides held points, and within one page a later element
// overrides an earlier one. Every mutation builds a new slice and swaps it in
// under the lock, so readers never observe a partial merge.
type Store struct {
	mu     sync.RWMutex
	points []models.Point
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Merge combines points with the held series according to mode and returns
// the resulting length.
func (s *Store) Merge(points []models.Point, mode MergeMode) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var held []models.Point
	if mode == Prepend {
		held = s.points
	}
	s.points = mergePoints(held, points)
	return len(s.points)
}

// Upsert inserts p or replaces the point with the same time.
func (s *Store) Upsert(p models.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.points)
	// Live updates almost always touch the newest bar.
	if n > 0 && s.points[n-1].Candle.Time == p.Candle.Time {
		next := make([]models.Point, n)
		copy(next, s.points)
		next[n-1] = p
		s.points = next
		return
	}
	s.points = mergePoints(s.points, []models.Point{p})
}

// Reset empties the store.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = nil
}

// Snapshot returns index-aligned copies of the candles and volume bars.
func (s *Store) Snapshot() ([]models.Candle, []models.VolumeBar) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	candles := make([]models.Candle, len(s.points))
	volumes := make([]models.VolumeBar, len(s.points))
	for i, p := range s.points {
		candles[i] = p.Candle
		volumes[i] = p.Volume
	}
	return candles, volumes
}

// Points returns a copy of the held points.
func (s *Store) Points() []models.Point {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Point, len(s.points))
	copy(out, s.points)
	return out
}

// Len returns the number of held points.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.points)
}

// OldestBoundaryMs returns the open time of the earliest point in
// milliseconds. ok is false when the store is empty.
func (s *Store) OldestBoundaryMs() (ms int64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.points) == 0 {
		return 0, false
	}
	return s.points[0].Candle.Time * 1000, true
}

// NewestTime returns the open time in seconds of the latest point.
func (s *Store) NewestTime() (sec int64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.points) == 0 {
		return 0, false
	}
	return s.points[len(s.points)-1].Candle.Time, true
}

// mergePoints overlays incoming on held keyed by time and returns the result
// sorted ascending. Neither input is modified.
func mergePoints(held, incoming []models.Point) []models.Point {
	byTime := make(map[int64]models.Point, len(held)+len(incoming))
	for _, p := range held {
		byTime[p.Candle.Time] = p
	}
	for _, p := range incoming {
		byTime[p.Candle.Time] = p
	}

	out := make([]models.Point, 0, len(byTime))
	for _, p := range byTime {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Candle.Time < out[j].Candle.Time
	})
	return out
}
