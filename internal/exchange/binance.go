package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/johnayoung/go-btc-chart/internal/config"
	"github.com/johnayoung/go-btc-chart/internal/errors"
	"github.com/johnayoung/go-btc-chart/internal/metrics"
	"github.com/johnayoung/go-btc-chart/internal/models"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	klinesEndpoint = "/api/v3/klines"
	tickerEndpoint = "/api/v3/ticker/price"
	pingEndpoint   = "/api/v3/ping"

	// Binance caps a klines page at 1000 records.
	maxKlinesPerRequest = 1000

	healthCheckTimeout = 5 * time.Second
	maxRetryAfter      = 30 * time.Second
)

// BinanceClient implements Client against the Binance spot REST API.
type BinanceClient struct {
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	baseURL     string
	symbol      string
	classifier  *errors.ErrorClassifier
	breaker     *errors.CircuitBreaker
	recorder    metrics.Recorder
	logger      *slog.Logger
	now         func() time.Time
}

// NewBinanceClient creates a client for cfg.Symbol. classifier drives retries
// and may be nil for a single attempt per call; breaker may be nil to disable
// circuit breaking.
func NewBinanceClient(cfg config.ExchangeConfig, classifier *errors.ErrorClassifier, breaker *errors.CircuitBreaker, logger *slog.Logger) *BinanceClient {
	if logger == nil {
		logger = slog.Default()
	}
	if classifier == nil {
		classifier = errors.NewErrorClassifier(config.ErrorHandlingConfig{
			GlobalRetryPolicy: config.RetryPolicyConfig{MaxAttempts: 1},
		}, logger)
	}

	rps := cfg.RateLimit
	if rps <= 0 {
		rps = 10
	}

	return &BinanceClient{
		httpClient: &http.Client{
			Timeout: config.DurationOr(cfg.Timeout, 10*time.Second),
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		rateLimiter: rate.NewLimiter(rate.Limit(rps), 1),
		baseURL:     cfg.BaseURL,
		symbol:      cfg.Symbol,
		classifier:  classifier,
		breaker:     breaker,
		recorder:    metrics.NoopRecorder{},
		logger:      logger,
		now:         time.Now,
	}
}

// SetRecorder routes request measurements to r.
func (c *BinanceClient) SetRecorder(r metrics.Recorder) {
	if r != nil {
		c.recorder = r
	}
}

// Symbol returns the traded symbol, e.g. BTCUSDT.
func (c *BinanceClient) Symbol() string {
	return c.symbol
}

// FetchPage implements PageFetcher.
func (c *BinanceClient) FetchPage(ctx context.Context, tf models.Timeframe, limit int, endTimeMs *int64) ([]models.RawKline, error) {
	if !tf.IsValid() {
		return nil, &models.ValidationError{Field: "timeframe", Message: fmt.Sprintf("unsupported timeframe %q", tf)}
	}
	if limit <= 0 || limit > maxKlinesPerRequest {
		return nil, &models.ValidationError{Field: "limit", Message: fmt.Sprintf("limit must be between 1 and %d", maxKlinesPerRequest)}
	}

	query := url.Values{}
	query.Set("symbol", c.symbol)
	query.Set("interval", tf.String())
	query.Set("limit", strconv.Itoa(limit))
	if endTimeMs != nil {
		query.Set("endTime", strconv.FormatInt(*endTimeMs, 10))
	}

	c.logger.Debug("fetching klines from Binance",
		"symbol", c.symbol,
		"interval", tf,
		"limit", limit,
		"end_time_ms", endTimeMs)

	body, err := c.get(ctx, "fetch_page", klinesEndpoint, query)
	if err != nil {
		return nil, err
	}

	klines, err := decodeKlines(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode klines: %w", err)
	}
	return klines, nil
}

// TickerPrice implements PriceSource.
func (c *BinanceClient) TickerPrice(ctx context.Context) (string, error) {
	query := url.Values{}
	query.Set("symbol", c.symbol)

	body, err := c.get(ctx, "ticker_price", tickerEndpoint, query)
	if err != nil {
		return "", err
	}

	var ticker tickerPriceResponse
	if err := json.Unmarshal(body, &ticker); err != nil {
		return "", fmt.Errorf("failed to decode ticker price: %w", err)
	}
	if _, err := decimal.NewFromString(ticker.Price); err != nil {
		return "", fmt.Errorf("invalid ticker price %q: %w", ticker.Price, err)
	}
	return ticker.Price, nil
}

// PreviousMinuteClose implements PriceSource. It requests the single 1m bar
// that ends just before the current minute started.
func (c *BinanceClient) PreviousMinuteClose(ctx context.Context) (float64, error) {
	minuteStart := c.now().UnixMilli() / 60000 * 60000
	endTime := minuteStart - 1

	klines, err := c.FetchPage(ctx, models.Timeframe1m, 1, &endTime)
	if err != nil {
		return 0, err
	}
	if len(klines) == 0 || len(klines[0]) < 5 {
		return 0, fmt.Errorf("no completed minute bar before %d", minuteStart)
	}

	closePrice, err := parseDecimalField(klines[0][4])
	if err != nil {
		return 0, fmt.Errorf("invalid previous close: %w", err)
	}
	f, _ := closePrice.Float64()
	return f, nil
}

// WaitForLimit implements RateLimitInfo.
func (c *BinanceClient) WaitForLimit(ctx context.Context) error {
	return c.rateLimiter.Wait(ctx)
}

// HealthCheck implements HealthChecker.
func (c *BinanceClient) HealthCheck(ctx context.Context) error {
	healthCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(healthCtx, http.MethodGet, c.baseURL+pingEndpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}

	c.logger.Debug("health check passed")
	return nil
}

// Private helper methods

// get performs a rate limited GET with retries and circuit breaking.
func (c *BinanceClient) get(ctx context.Context, operation, endpoint string, query url.Values) ([]byte, error) {
	requestURL := c.baseURL + endpoint
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var body []byte
	err := c.classifier.Retry(ctx, "exchange", operation, func() error {
		if err := c.WaitForLimit(ctx); err != nil {
			return fmt.Errorf("rate limit wait failed: %w", err)
		}
		attempt := func() error {
			var err error
			body, err = c.doRequest(ctx, endpoint, requestURL)
			return err
		}
		if c.breaker != nil {
			return c.breaker.Call(attempt)
		}
		return attempt()
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c *BinanceClient) doRequest(ctx context.Context, endpoint, requestURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "go-btc-chart/1.0")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recorder.RecordRequest(endpoint, 0, time.Since(start))
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	c.recorder.RecordRequest(endpoint, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Endpoint: endpoint}
		_ = json.Unmarshal(body, apiErr)
		apiErr.StatusCode = resp.StatusCode
		apiErr.Endpoint = endpoint

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusTeapot {
			if wait := parseRetryAfter(resp.Header.Get("Retry-After")); wait > 0 {
				c.logger.Warn("rate limited, waiting", "retry_after", wait)
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
		}
		return nil, apiErr
	}

	return body, nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}

	var wait time.Duration
	if seconds, err := strconv.Atoi(header); err == nil {
		wait = time.Duration(seconds) * time.Second
	} else if t, err := http.ParseTime(header); err == nil {
		wait = time.Until(t)
	}

	if wait < 0 {
		return 0
	}
	if wait > maxRetryAfter {
		return maxRetryAfter
	}
	return wait
}

func decodeKlines(body []byte) ([]models.RawKline, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var klines []models.RawKline
	if err := dec.Decode(&klines); err != nil {
		return nil, err
	}
	return klines, nil
}

func parseDecimalField(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case string:
		return decimal.NewFromString(x)
	case json.Number:
		return decimal.NewFromString(x.String())
	case float64:
		return decimal.NewFromFloat(x), nil
	default:
		return decimal.Decimal{}, fmt.Errorf("unexpected type %T", v)
	}
}

// API response structures

type tickerPriceResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

var _ Client = (*BinanceClient)(nil)
