// Package pager drives the historical pagination of one chart view: it loads
// the newest page for a timeframe, prepends older pages as the user scrolls
// back, detects the start of history and discards results of requests that a
// later timeframe switch has superseded.
package pager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	chartErrors "github.com/johnayoung/go-btc-chart/internal/errors"
	"github.com/johnayoung/go-btc-chart/internal/exchange"
	"github.com/johnayoung/go-btc-chart/internal/gaps"
	"github.com/johnayoung/go-btc-chart/internal/logger"
	"github.com/johnayoung/go-btc-chart/internal/metrics"
	"github.com/johnayoung/go-btc-chart/internal/models"
	"github.com/johnayoung/go-btc-chart/internal/normalizer"
	"github.com/johnayoung/go-btc-chart/internal/series"
)

const (
	// InitialLimit is the page size of the newest page.
	InitialLimit = 500
	// LoadMoreLimit is the page size of every older page.
	LoadMoreLimit = 500

	// NoOlderDataNotice is shown when the exchange rejects an older page's
	// time bound, which it does once the start of history is reached.
	NoOlderDataNotice = "no older data available"
)

// ErrClosed is returned for requests made after Close.
var ErrClosed = errors.New("pager: controller closed")

const (
	kindInitial = "initial"
	kindOlder   = "older"
)

// Sink receives every page merged into the series. storage.Archive
// satisfies it.
type Sink interface {
	Store(ctx context.Context, symbol string, tf models.Timeframe, points []models.Point) error
	Name() string
}

// State is a consistent snapshot of the controller. Candles and Volumes are
// index-aligned and strictly increasing by time.
type State struct {
	Candles          []models.Candle    `json:"candles"`
	Volumes          []models.VolumeBar `json:"volumes"`
	OldestBoundaryMs *int64             `json:"oldest_boundary_ms"`
	HasMoreOlder     bool               `json:"has_more_older"`
	LoadingInitial   bool               `json:"loading_initial"`
	LoadingOlder     bool               `json:"loading_older"`
	Error            string             `json:"error,omitempty"`
	Notice           string             `json:"notice,omitempty"`
	ActiveTimeframe  models.Timeframe   `json:"active_timeframe"`
}

// Config configures a Controller.
type Config struct {
	InitialLimit     int
	LoadMoreLimit    int
	DefaultTimeframe models.Timeframe
	// RequestTimeout bounds each page request; zero leaves it to the caller.
	RequestTimeout time.Duration
	// Symbol labels archived pages.
	Symbol string
	Logger *slog.Logger
}

// DefaultConfig returns the page sizes the chart uses.
func DefaultConfig() Config {
	return Config{
		InitialLimit:     InitialLimit,
		LoadMoreLimit:    LoadMoreLimit,
		DefaultTimeframe: models.DefaultTimeframe,
		RequestTimeout:   30 * time.Second,
		Symbol:           "BTCUSDT",
		Logger:           slog.Default(),
	}
}

// Controller owns the pagination state of one chart view. All state lives
// behind mu; page requests run without it and re-check the generation when
// they resume.
type Controller struct {
	fetcher  exchange.PageFetcher
	store    *series.Store
	config   Config
	logger   *slog.Logger
	recorder metrics.Recorder
	sink     Sink

	mu             sync.Mutex
	generation     uint64
	active         models.Timeframe
	hasMoreOlder   bool
	loadingInitial bool
	loadingOlder   bool
	errMsg         string
	notice         string
	closed         bool

	// background tracks requests started by SetTimeframe and OnScrollNearOldest.
	background sync.WaitGroup
}

// New creates a controller for fetcher. Zero config fields take the defaults.
func New(fetcher exchange.PageFetcher, config Config) *Controller {
	defaults := DefaultConfig()
	if config.InitialLimit <= 0 {
		config.InitialLimit = defaults.InitialLimit
	}
	if config.LoadMoreLimit <= 0 {
		config.LoadMoreLimit = defaults.LoadMoreLimit
	}
	if !config.DefaultTimeframe.IsValid() {
		config.DefaultTimeframe = defaults.DefaultTimeframe
	}
	if config.Symbol == "" {
		config.Symbol = defaults.Symbol
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &Controller{
		fetcher:      fetcher,
		store:        series.NewStore(),
		config:       config,
		logger:       config.Logger.With("component", "pager"),
		recorder:     metrics.NoopRecorder{},
		active:       config.DefaultTimeframe,
		hasMoreOlder: true,
	}
}

// SetRecorder replaces the metrics recorder.
func (c *Controller) SetRecorder(r metrics.Recorder) {
	if r == nil {
		r = metrics.NoopRecorder{}
	}
	c.recorder = r
}

// SetSink archives merged pages to s. A nil sink disables archiving.
func (c *Controller) SetSink(s Sink) {
	c.sink = s
}

// State returns a snapshot of the pagination state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	candles, volumes := c.store.Snapshot()
	st := State{
		Candles:         candles,
		Volumes:         volumes,
		HasMoreOlder:    c.hasMoreOlder,
		LoadingInitial:  c.loadingInitial,
		LoadingOlder:    c.loadingOlder,
		Error:           c.errMsg,
		Notice:          c.notice,
		ActiveTimeframe: c.active,
	}
	if ms, ok := c.store.OldestBoundaryMs(); ok {
		st.OldestBoundaryMs = &ms
	}
	return st
}

// Points returns a copy of the held series.
func (c *Controller) Points() []models.Point {
	return c.store.Points()
}

// ActiveTimeframe returns the timeframe the state reflects.
func (c *Controller) ActiveTimeframe() models.Timeframe {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// DismissError clears the error and notice messages.
func (c *Controller) DismissError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errMsg = ""
	c.notice = ""
}

// LoadInitial resets the state for tf and loads its newest page. Requests
// issued before this call are superseded. Fetch failures are recorded in the
// state; the returned error only reports an invalid timeframe or ErrClosed.
func (c *Controller) LoadInitial(ctx context.Context, tf models.Timeframe) error {
	gen, err := c.beginInitial(tf, false)
	if err != nil {
		return err
	}
	c.runInitial(ctx, gen, tf)
	return nil
}

// SetTimeframe switches the view to tf and loads its newest page in the
// background. The state reflects the new timeframe, empty and loading, as
// soon as SetTimeframe returns.
func (c *Controller) SetTimeframe(ctx context.Context, tf models.Timeframe) error {
	gen, err := c.beginInitial(tf, true)
	if err != nil {
		return err
	}

	go func() {
		defer c.background.Done()
		c.runInitial(context.WithoutCancel(ctx), gen, tf)
	}()
	return nil
}

// LoadOlder prepends the page preceding the oldest held point. It is a no-op
// returning false when a request is already in flight, history is exhausted
// or the series is empty; otherwise it returns true once the request settles.
func (c *Controller) LoadOlder(ctx context.Context) bool {
	req, ok := c.beginOlder(false)
	if !ok {
		return false
	}
	c.runOlder(ctx, req)
	return true
}

// OnScrollNearOldest is called by the renderer when the visible range nears
// the oldest held point. It starts an older-page request in the background
// when one is allowed and reports whether it did.
func (c *Controller) OnScrollNearOldest(ctx context.Context) bool {
	req, ok := c.beginOlder(true)
	if !ok {
		return false
	}

	go func() {
		defer c.background.Done()
		c.runOlder(context.WithoutCancel(ctx), req)
	}()
	return true
}

// ApplyLive upserts a live update of the newest bar. Updates for another
// timeframe, or arriving before the initial page settled, are dropped and
// reported as false. Final bars are also archived.
func (c *Controller) ApplyLive(ctx context.Context, tf models.Timeframe, p models.Point, final bool) bool {
	if !p.Valid() {
		return false
	}

	c.mu.Lock()
	if tf != c.active || c.loadingInitial || c.store.Len() == 0 {
		c.mu.Unlock()
		return false
	}
	c.store.Upsert(p)
	c.mu.Unlock()

	if final {
		c.archive(ctx, tf, []models.Point{p})
	}
	return true
}

// Close stops accepting requests and waits for background requests to
// settle or ctx to be done. Requests made after Close fail with ErrClosed or
// report false.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.Wait(ctx)
}

// Wait blocks until background requests have settled or ctx is done. It must
// not race with new requests; use Close at shutdown.
func (c *Controller) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.background.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// beginInitial resets the state for tf. When background is set the request
// is counted in c.background under the same lock that Close takes.
func (c *Controller) beginInitial(tf models.Timeframe, background bool) (uint64, error) {
	if !tf.IsValid() {
		return 0, &models.ValidationError{Field: "timeframe", Message: fmt.Sprintf("unsupported timeframe %q", tf)}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, ErrClosed
	}
	if background {
		c.background.Add(1)
	}

	c.generation++
	c.active = tf
	c.store.Reset()
	c.hasMoreOlder = true
	c.loadingInitial = true
	c.loadingOlder = false
	c.errMsg = ""
	c.notice = ""
	return c.generation, nil
}

func (c *Controller) runInitial(ctx context.Context, gen uint64, tf models.Timeframe) {
	ctx = logger.WithOperation(logger.WithTimeframe(ctx, tf.String()), "load_initial")
	log := logger.FromContext(ctx, c.logger)
	start := time.Now()

	raws, err := c.fetch(ctx, tf, c.config.InitialLimit, nil)

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		c.recorder.RecordSuperseded(kindInitial)
		log.Debug("discarding superseded initial page", "error", err)
		return
	}

	if err != nil {
		c.store.Reset()
		c.errMsg = err.Error()
		c.loadingInitial = false
		c.mu.Unlock()

		c.recorder.RecordFetchError(kindInitial, string(chartErrors.GetErrorType(err)))
		log.Error("initial page failed", "error", err)
		return
	}

	points, dropped := normalizer.NormalizePage(raws)
	if len(raws) < c.config.InitialLimit {
		c.hasMoreOlder = false
	}
	length := c.merge(points, series.Replace)
	c.loadingInitial = false
	hasMore := c.hasMoreOlder
	held := c.store.Points()
	c.mu.Unlock()

	c.recorder.RecordPage(kindInitial, tf.String(), len(raws), dropped)
	logger.LogDuration(ctx, log, slog.LevelInfo, "initial page loaded", start,
		"records", len(raws), "dropped", dropped, "length", length, "has_more_older", hasMore)

	c.afterMerge(ctx, tf, held, points)
}

// olderRequest captures what a pending older-page request was issued for.
type olderRequest struct {
	gen        uint64
	tf         models.Timeframe
	boundaryMs int64
}

func (c *Controller) beginOlder(background bool) (olderRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.loadingOlder || !c.hasMoreOlder {
		return olderRequest{}, false
	}
	boundary, ok := c.store.OldestBoundaryMs()
	if !ok {
		return olderRequest{}, false
	}

	c.loadingOlder = true
	c.errMsg = ""
	if background {
		c.background.Add(1)
	}
	return olderRequest{gen: c.generation, tf: c.active, boundaryMs: boundary}, true
}

func (c *Controller) runOlder(ctx context.Context, req olderRequest) {
	ctx = logger.WithOperation(logger.WithTimeframe(ctx, req.tf.String()), "load_older")
	log := logger.FromContext(ctx, c.logger)
	start := time.Now()

	endTime := req.boundaryMs - 1
	raws, err := c.fetch(ctx, req.tf, c.config.LoadMoreLimit, &endTime)

	c.mu.Lock()
	if req.gen != c.generation {
		// loadingOlder now belongs to the newer generation.
		c.mu.Unlock()
		c.recorder.RecordSuperseded(kindOlder)
		log.Debug("discarding superseded older page", "error", err)
		return
	}
	c.loadingOlder = false

	if err != nil {
		// only a rejected time bound means the start of history
		if chartErrors.HTTPStatus(err) == http.StatusBadRequest {
			c.hasMoreOlder = false
			c.notice = NoOlderDataNotice
			c.mu.Unlock()
			log.Info("exchange rejected older time bound, history exhausted", "end_time_ms", endTime, "error", err)
			return
		}
		c.errMsg = err.Error()
		c.mu.Unlock()

		c.recorder.RecordFetchError(kindOlder, string(chartErrors.GetErrorType(err)))
		log.Error("older page failed", "end_time_ms", endTime, "error", err)
		return
	}

	if len(raws) == 0 {
		c.hasMoreOlder = false
		c.mu.Unlock()
		c.recorder.RecordPage(kindOlder, req.tf.String(), 0, 0)
		log.Info("reached start of history", "end_time_ms", endTime)
		return
	}

	points, dropped := normalizer.NormalizePage(raws)
	length := c.merge(points, series.Prepend)
	if len(raws) < c.config.LoadMoreLimit {
		c.hasMoreOlder = false
	}
	// A page that does not move the boundary would be requested again forever.
	if boundary, ok := c.store.OldestBoundaryMs(); !ok || boundary >= req.boundaryMs {
		c.hasMoreOlder = false
	}
	hasMore := c.hasMoreOlder
	held := c.store.Points()
	c.mu.Unlock()

	c.recorder.RecordPage(kindOlder, req.tf.String(), len(raws), dropped)
	logger.LogDuration(ctx, log, slog.LevelInfo, "older page loaded", start,
		"records", len(raws), "dropped", dropped, "length", length, "has_more_older", hasMore)

	c.afterMerge(ctx, req.tf, held, points)
}

func (c *Controller) fetch(ctx context.Context, tf models.Timeframe, limit int, endTimeMs *int64) ([]models.RawKline, error) {
	if c.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.RequestTimeout)
		defer cancel()
	}
	return c.fetcher.FetchPage(ctx, tf, limit, endTimeMs)
}

// merge must be called with mu held.
func (c *Controller) merge(points []models.Point, mode series.MergeMode) int {
	start := time.Now()
	length := c.store.Merge(points, mode)
	c.recorder.RecordMerge(mode.String(), time.Since(start), length)
	return length
}

// afterMerge reports gaps in held and archives the merged page.
func (c *Controller) afterMerge(ctx context.Context, tf models.Timeframe, held, points []models.Point) {
	if found := gaps.Detect(held, tf); len(found) > 0 {
		count, missing := gaps.Summary(found)
		logger.FromContext(ctx, c.logger).Warn("series has gaps", "gaps", count, "missing_buckets", missing)
	}
	c.archive(ctx, tf, points)
}

func (c *Controller) archive(ctx context.Context, tf models.Timeframe, points []models.Point) {
	if c.sink == nil || len(points) == 0 {
		return
	}
	err := c.sink.Store(ctx, c.config.Symbol, tf, points)
	c.recorder.RecordArchiveWrite(c.sink.Name(), len(points), err)
	if err != nil {
		logger.FromContext(ctx, c.logger).Warn("failed to archive points", "backend", c.sink.Name(), "count", len(points), "error", err)
	}
}
