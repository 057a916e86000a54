// Package stream applies live kline updates from the exchange websocket to
// the chart series.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/johnayoung/go-btc-chart/internal/config"
	"github.com/johnayoung/go-btc-chart/internal/metrics"
	"github.com/johnayoung/go-btc-chart/internal/models"
	"github.com/johnayoung/go-btc-chart/internal/normalizer"
)

// timeframeCheckInterval is how often a session checks whether the active
// timeframe moved away from its subscription.
const timeframeCheckInterval = time.Second

// Applier receives live points. pager.Controller satisfies it.
type Applier interface {
	ApplyLive(ctx context.Context, tf models.Timeframe, p models.Point, final bool) bool
	ActiveTimeframe() models.Timeframe
}

// klineEvent is the payload of a <symbol>@kline_<interval> stream.
type klineEvent struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Kline     struct {
		OpenTime  int64  `json:"t"`
		CloseTime int64  `json:"T"`
		Interval  string `json:"i"`
		Open      string `json:"o"`
		Close     string `json:"c"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Volume    string `json:"v"`
		Closed    bool   `json:"x"`
	} `json:"k"`
}

// errTimeframeChanged ends a session so the next one subscribes to the new
// active timeframe.
var errTimeframeChanged = errors.New("active timeframe changed")

// KlineStream keeps a websocket subscription for the active timeframe of an
// Applier and forwards every kline to it.
type KlineStream struct {
	baseURL  string
	symbol   string
	applier  Applier
	dialer   *websocket.Dialer
	logger   *slog.Logger
	recorder metrics.Recorder

	initialDelay time.Duration
	maxDelay     time.Duration
}

// NewKlineStream creates a stream for symbol against cfg.URL.
func NewKlineStream(cfg config.StreamConfig, symbol string, applier Applier, logger *slog.Logger) *KlineStream {
	if logger == nil {
		logger = slog.Default()
	}
	return &KlineStream{
		baseURL:      strings.TrimRight(cfg.URL, "/"),
		symbol:       strings.ToLower(symbol),
		applier:      applier,
		dialer:       websocket.DefaultDialer,
		logger:       logger.With("component", "kline_stream"),
		recorder:     metrics.NoopRecorder{},
		initialDelay: config.DurationOr(cfg.ReconnectDelay, time.Second),
		maxDelay:     config.DurationOr(cfg.MaxReconnect, 30*time.Second),
	}
}

// SetRecorder replaces the metrics recorder.
func (s *KlineStream) SetRecorder(r metrics.Recorder) {
	if r == nil {
		r = metrics.NoopRecorder{}
	}
	s.recorder = r
}

// StreamURL returns the subscription URL for tf.
func (s *KlineStream) StreamURL(tf models.Timeframe) string {
	return fmt.Sprintf("%s/%s@kline_%s", s.baseURL, s.symbol, tf)
}

// Run subscribes until ctx is done, reconnecting with exponential backoff
// after failures. A session that delivered at least one message resets the
// backoff.
func (s *KlineStream) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.initialDelay
	b.MaxInterval = s.maxDelay
	b.MaxElapsedTime = 0

	for {
		tf := s.applier.ActiveTimeframe()
		delivered, err := s.session(ctx, tf)
		if ctx.Err() != nil {
			return nil
		}
		if delivered > 0 || errors.Is(err, errTimeframeChanged) {
			b.Reset()
		}
		if errors.Is(err, errTimeframeChanged) {
			s.logger.Info("resubscribing for new timeframe", "previous", tf, "timeframe", s.applier.ActiveTimeframe())
			continue
		}

		delay := b.NextBackOff()
		s.logger.Warn("kline stream disconnected", "timeframe", tf, "error", err, "retry_in", delay)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// session reads one subscription until it fails, ctx is done or the active
// timeframe changes. It returns the number of applied messages.
func (s *KlineStream) session(ctx context.Context, tf models.Timeframe) (int, error) {
	url := s.StreamURL(tf)
	conn, _, err := s.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	defer conn.Close()

	s.logger.Info("kline stream connected", "url", url)

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stopReason := make(chan error, 1)
	go func() {
		ticker := time.NewTicker(timeframeCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sessionCtx.Done():
				conn.Close()
				return
			case <-ticker.C:
				if s.applier.ActiveTimeframe() != tf {
					stopReason <- errTimeframeChanged
					conn.Close()
					return
				}
			}
		}
	}()

	delivered := 0
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case reason := <-stopReason:
				return delivered, reason
			default:
			}
			return delivered, fmt.Errorf("failed to read message: %w", err)
		}

		if s.handleMessage(sessionCtx, tf, message) {
			delivered++
		}
	}
}

// handleMessage decodes one kline event and applies it. It returns true when
// the update reached the series.
func (s *KlineStream) handleMessage(ctx context.Context, tf models.Timeframe, message []byte) bool {
	p, final, err := ParseKline(message)
	if err != nil {
		s.recorder.RecordStreamMessage("invalid")
		s.logger.Debug("ignoring stream message", "error", err)
		return false
	}

	if !s.applier.ApplyLive(ctx, tf, p, final) {
		s.recorder.RecordStreamMessage("dropped")
		return false
	}
	s.recorder.RecordStreamMessage("applied")
	return true
}

// ParseKline decodes a kline stream payload into a point. final reports
// whether the bar has closed.
func ParseKline(message []byte) (p models.Point, final bool, err error) {
	var event klineEvent
	if err := json.Unmarshal(message, &event); err != nil {
		return models.Point{}, false, fmt.Errorf("failed to decode kline event: %w", err)
	}
	if event.Event != "kline" {
		return models.Point{}, false, fmt.Errorf("unexpected event type %q", event.Event)
	}

	k := event.Kline
	raw := models.RawKline{float64(k.OpenTime), k.Open, k.High, k.Low, k.Close, k.Volume, float64(k.CloseTime)}
	p, ok := normalizer.Normalize(raw)
	if !ok {
		return models.Point{}, false, fmt.Errorf("invalid kline at %d", k.OpenTime)
	}
	return p, k.Closed, nil
}
