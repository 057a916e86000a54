// Package viewport turns the renderer's visible-range notifications into
// throttled requests for older data.
package viewport

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultThreshold is how close, in bars, the left edge may get to the
	// oldest held bar before older data is requested.
	DefaultThreshold = 20
	// DefaultMinInterval is the minimum time between two requests.
	DefaultMinInterval = 300 * time.Millisecond
)

// LoadFunc requests older data and reports whether a request was issued.
// pager.Controller.OnScrollNearOldest satisfies it.
type LoadFunc func(ctx context.Context) bool

// Trigger forwards near-edge range changes to a LoadFunc at most once per
// minimum interval. Changes inside the interval collapse into one trailing
// call that re-checks the latest range when it fires.
type Trigger struct {
	load      LoadFunc
	threshold float64
	limiter   *rate.Limiter
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	lastFrom float64
	timer    *time.Timer
	closed   bool
}

// NewTrigger creates a trigger. Non-positive threshold or minInterval take
// the defaults.
func NewTrigger(load LoadFunc, threshold int, minInterval time.Duration, logger *slog.Logger) *Trigger {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Trigger{
		load:      load,
		threshold: float64(threshold),
		limiter:   rate.NewLimiter(rate.Every(minInterval), 1),
		logger:    logger.With("component", "viewport"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// OnVisibleRangeChange receives the logical index range of the visible bars,
// where index 0 is the oldest held bar. It returns true when a request was
// made immediately.
func (t *Trigger) OnVisibleRangeChange(from, to float64) bool {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return false
	}
	t.lastFrom = from
	if from > t.threshold || t.timer != nil {
		t.mu.Unlock()
		return false
	}

	r := t.limiter.Reserve()
	delay := r.Delay()
	if delay > 0 {
		t.timer = time.AfterFunc(delay, t.fireTrailing)
		t.mu.Unlock()
		return false
	}
	t.mu.Unlock()

	t.logger.Debug("visible range near oldest bar", "from", from, "to", to)
	return t.load(t.ctx)
}

func (t *Trigger) fireTrailing() {
	t.mu.Lock()
	t.timer = nil
	if t.closed || t.lastFrom > t.threshold {
		t.mu.Unlock()
		return
	}
	from := t.lastFrom
	t.mu.Unlock()

	t.logger.Debug("trailing range change near oldest bar", "from", from)
	t.load(t.ctx)
}

// Close cancels any pending trailing call. Further range changes are ignored.
func (t *Trigger) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.cancel()
	return nil
}
