// Package price polls the current price and the previous minute's close shown
// above the chart.
package price

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/johnayoung/go-btc-chart/internal/exchange"
	"github.com/johnayoung/go-btc-chart/internal/metrics"
	"github.com/johnayoung/go-btc-chart/internal/models"
)

// DefaultInterval is the auto-refresh period.
const DefaultInterval = 10 * time.Second

// Snapshot is the poller's last result.
type Snapshot struct {
	Prices    models.PriceInfo `json:"prices"`
	Error     string           `json:"error,omitempty"`
	UpdatedAt time.Time        `json:"updated_at"`
	Auto      bool             `json:"auto"`
	Interval  time.Duration    `json:"interval"`
}

// Poller fetches prices on demand or on a fixed interval.
type Poller struct {
	source   exchange.PriceSource
	logger   *slog.Logger
	recorder metrics.Recorder
	timeout  time.Duration

	mu        sync.Mutex
	prices    models.PriceInfo
	errMsg    string
	updatedAt time.Time

	// autoMu serialises EnableAuto, DisableAuto and Close.
	autoMu     sync.Mutex
	scheduler  *cron.Cron
	autoCancel context.CancelFunc
	interval   time.Duration
}

// NewPoller creates a poller reading from source. timeout bounds each
// scheduled fetch; zero uses the interval.
func NewPoller(source exchange.PriceSource, timeout time.Duration, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		source:   source,
		logger:   logger.With("component", "price_poller"),
		recorder: metrics.NoopRecorder{},
		timeout:  timeout,
	}
}

// SetRecorder replaces the metrics recorder.
func (p *Poller) SetRecorder(r metrics.Recorder) {
	if r == nil {
		r = metrics.NoopRecorder{}
	}
	p.recorder = r
}

// FetchPrices requests the current price and the previous minute's close
// concurrently. A failed previous close degrades to nil. A failed current
// price resets both values and is returned.
func (p *Poller) FetchPrices(ctx context.Context) (models.PriceInfo, error) {
	var (
		current, previous float64
		prevErr           error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		raw, err := p.source.TickerPrice(gctx)
		if err != nil {
			return fmt.Errorf("failed to fetch current price: %w", err)
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("invalid current price %q: %w", raw, err)
		}
		current = d.InexactFloat64()
		return nil
	})
	g.Go(func() error {
		// never fails the group
		previous, prevErr = p.source.PreviousMinuteClose(gctx)
		return nil
	})

	err := g.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()

	p.updatedAt = time.Now()
	if err != nil {
		p.prices = models.PriceInfo{}
		p.errMsg = err.Error()
		p.recorder.RecordPoll("error")
		p.logger.Error("price fetch failed", "error", err)
		return models.PriceInfo{}, err
	}

	info := models.PriceInfo{Current: &current}
	if prevErr != nil {
		p.recorder.RecordPoll("partial")
		p.logger.Warn("previous close unavailable", "error", prevErr)
	} else {
		info.Previous = &previous
		p.recorder.RecordPoll("ok")
	}

	p.prices = info
	p.errMsg = ""
	return info, nil
}

// Snapshot returns the last fetched prices and the auto-refresh mode.
func (p *Poller) Snapshot() Snapshot {
	p.autoMu.Lock()
	auto, interval := p.scheduler != nil, p.interval
	p.autoMu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{
		Prices:    p.prices,
		Error:     p.errMsg,
		UpdatedAt: p.updatedAt,
		Auto:      auto,
		Interval:  interval,
	}
}

// EnableAuto refreshes prices every interval until DisableAuto or Close. A
// running schedule is replaced. Intervals under a second run every second.
func (p *Poller) EnableAuto(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	p.autoMu.Lock()
	defer p.autoMu.Unlock()

	p.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	timeout := p.timeout
	if timeout <= 0 {
		timeout = interval
	}

	scheduler := cron.New(cron.WithChain(
		cron.Recover(cronLogger{p.logger}),
		cron.SkipIfStillRunning(cronLogger{p.logger}),
	))
	scheduler.Schedule(cron.Every(interval), cron.FuncJob(func() {
		fetchCtx, fetchCancel := context.WithTimeout(ctx, timeout)
		defer fetchCancel()
		p.FetchPrices(fetchCtx)
	}))
	scheduler.Start()

	p.scheduler = scheduler
	p.autoCancel = cancel
	p.interval = interval
	p.logger.Info("auto refresh enabled", "interval", interval)
}

// DisableAuto stops auto refresh. It returns once no scheduled fetch is
// running.
func (p *Poller) DisableAuto() {
	p.autoMu.Lock()
	defer p.autoMu.Unlock()

	if p.stopLocked() {
		p.logger.Info("auto refresh disabled")
	}
}

// Close stops auto refresh.
func (p *Poller) Close() error {
	p.DisableAuto()
	return nil
}

func (p *Poller) stopLocked() bool {
	if p.scheduler == nil {
		return false
	}
	p.autoCancel()
	<-p.scheduler.Stop().Done()
	p.scheduler = nil
	p.autoCancel = nil
	p.interval = 0
	return true
}

// cronLogger routes cron's logs to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
