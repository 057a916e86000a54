// Package metrics exposes Prometheus metrics and health reporting for the chart feed.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "btc_chart"

// Recorder receives measurements from the feed's components.
type Recorder interface {
	RecordRequest(endpoint string, status int, duration time.Duration)
	RecordPage(kind, timeframe string, records, dropped int)
	RecordSuperseded(kind string)
	RecordFetchError(kind, errorType string)
	RecordMerge(mode string, duration time.Duration, length int)
	RecordPoll(outcome string)
	RecordStreamMessage(outcome string)
	RecordArchiveWrite(backend string, points int, err error)
}

// NoopRecorder discards every measurement.
type NoopRecorder struct{}

func (NoopRecorder) RecordRequest(string, int, time.Duration) {}
func (NoopRecorder) RecordPage(string, string, int, int)      {}
func (NoopRecorder) RecordSuperseded(string)                  {}
func (NoopRecorder) RecordFetchError(string, string)          {}
func (NoopRecorder) RecordMerge(string, time.Duration, int)   {}
func (NoopRecorder) RecordPoll(string)                        {}
func (NoopRecorder) RecordStreamMessage(string)               {}
func (NoopRecorder) RecordArchiveWrite(string, int, error)    {}

// Collector records measurements into its own Prometheus registry.
type Collector struct {
	registry *prometheus.Registry

	requests       *prometheus.HistogramVec
	apiRequests    *prometheus.HistogramVec
	pages          *prometheus.CounterVec
	records        *prometheus.CounterVec
	dropped        *prometheus.CounterVec
	superseded     *prometheus.CounterVec
	fetchErrors    *prometheus.CounterVec
	mergeDuration  *prometheus.HistogramVec
	seriesLength   prometheus.Gauge
	polls          *prometheus.CounterVec
	streamMessages *prometheus.CounterVec
	archiveWrites  *prometheus.CounterVec
	archivedPoints *prometheus.CounterVec
}

// NewCollector creates a collector with a fresh registry that also carries
// the Go runtime and process collectors.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		requests: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "exchange_request_duration_seconds",
			Help:      "Exchange REST request duration",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint", "status"}),
		apiRequests: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "HTTP API request duration",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "status"}),
		pages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_fetched_total",
			Help:      "Kline pages merged into the series",
		}, []string{"kind", "timeframe"}),
		records: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_received_total",
			Help:      "Raw kline records received",
		}, []string{"kind"}),
		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_dropped_total",
			Help:      "Raw kline records rejected by the normalizer",
		}, []string{"kind"}),
		superseded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "superseded_results_total",
			Help:      "Page results discarded because a newer load replaced them",
		}, []string{"kind"}),
		fetchErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_errors_total",
			Help:      "Failed page fetches by error type",
		}, []string{"kind", "type"}),
		mergeDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "merge_duration_seconds",
			Help:      "Series merge duration",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1},
		}, []string{"mode"}),
		seriesLength: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "series_length",
			Help:      "Points currently held by the series",
		}),
		polls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_polls_total",
			Help:      "Current price polls by outcome",
		}, []string{"outcome"}),
		streamMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_messages_total",
			Help:      "Live kline messages by outcome",
		}, []string{"outcome"}),
		archiveWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_writes_total",
			Help:      "Archive write batches by backend and result",
		}, []string{"backend", "result"}),
		archivedPoints: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archived_points_total",
			Help:      "Points written to the archive",
		}, []string{"backend"}),
	}
}

func (c *Collector) RecordRequest(endpoint string, status int, duration time.Duration) {
	c.requests.WithLabelValues(endpoint, strconv.Itoa(status)).Observe(duration.Seconds())
}

// RecordAPIRequest observes one request served by the HTTP API.
func (c *Collector) RecordAPIRequest(route string, status int, duration time.Duration) {
	c.apiRequests.WithLabelValues(route, strconv.Itoa(status)).Observe(duration.Seconds())
}

func (c *Collector) RecordPage(kind, timeframe string, records, dropped int) {
	c.pages.WithLabelValues(kind, timeframe).Inc()
	c.records.WithLabelValues(kind).Add(float64(records))
	c.dropped.WithLabelValues(kind).Add(float64(dropped))
}

func (c *Collector) RecordSuperseded(kind string) {
	c.superseded.WithLabelValues(kind).Inc()
}

func (c *Collector) RecordFetchError(kind, errorType string) {
	c.fetchErrors.WithLabelValues(kind, errorType).Inc()
}

func (c *Collector) RecordMerge(mode string, duration time.Duration, length int) {
	c.mergeDuration.WithLabelValues(mode).Observe(duration.Seconds())
	c.seriesLength.Set(float64(length))
}

func (c *Collector) RecordPoll(outcome string) {
	c.polls.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordStreamMessage(outcome string) {
	c.streamMessages.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordArchiveWrite(backend string, points int, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.archiveWrites.WithLabelValues(backend, result).Inc()
	if err == nil {
		c.archivedPoints.WithLabelValues(backend).Add(float64(points))
	}
}

// Registry returns the registry backing the collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = NoopRecorder{}
)

// HealthChecker is implemented by dependencies that can report their health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthStatus is the result of checking one dependency.
type HealthStatus struct {
	Status    string        `json:"status"`
	Error     string        `json:"error,omitempty"`
	CheckedAt time.Time     `json:"checked_at"`
	Duration  time.Duration `json:"duration"`
}

// HealthReport aggregates the status of every registered dependency.
type HealthReport struct {
	Status       string                  `json:"status"`
	Uptime       string                  `json:"uptime"`
	Dependencies map[string]HealthStatus `json:"dependencies"`
}

// Health runs registered checks on demand.
type Health struct {
	startTime time.Time
	timeout   time.Duration

	mu       sync.RWMutex
	checkers map[string]HealthChecker
}

// NewHealth creates a health registry whose checks are bounded by timeout.
func NewHealth(timeout time.Duration) *Health {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Health{
		startTime: time.Now(),
		timeout:   timeout,
		checkers:  make(map[string]HealthChecker),
	}
}

// Register adds a named dependency.
func (h *Health) Register(name string, checker HealthChecker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = checker
}

// Check runs every registered check concurrently. The overall status is
// "healthy" only when every dependency is.
func (h *Health) Check(ctx context.Context) HealthReport {
	h.mu.RLock()
	checkers := make(map[string]HealthChecker, len(h.checkers))
	for name, c := range h.checkers {
		checkers[name] = c
	}
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		out = make(map[string]HealthStatus, len(checkers))
	)
	for name, checker := range checkers {
		wg.Add(1)
		go func(name string, checker HealthChecker) {
			defer wg.Done()
			start := time.Now()
			err := checker.HealthCheck(ctx)
			status := HealthStatus{Status: "healthy", CheckedAt: start, Duration: time.Since(start)}
			if err != nil {
				status.Status = "unhealthy"
				status.Error = err.Error()
			}
			mu.Lock()
			out[name] = status
			mu.Unlock()
		}(name, checker)
	}
	wg.Wait()

	report := HealthReport{
		Status:       "healthy",
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		Dependencies: out,
	}
	for _, s := range out {
		if s.Status != "healthy" {
			report.Status = "unhealthy"
			break
		}
	}
	return report
}
