// Package exchange defines the market data interfaces the chart feed consumes
// and provides a Binance REST implementation.
//
// The interfaces are small so that the pagination controller and the price
// poller can be tested against in-memory fakes.
package exchange

import (
	"context"
	"fmt"
	"net/http"

	"github.com/johnayoung/go-btc-chart/internal/models"
)

// PageFetcher retrieves one page of raw klines.
type PageFetcher interface {
	// FetchPage returns at most limit klines for tf, newest last. When
	// endTimeMs is non-nil only klines opening at or before it are returned.
	// An empty page with a nil error means there is no data in range.
	FetchPage(ctx context.Context, tf models.Timeframe, limit int, endTimeMs *int64) ([]models.RawKline, error)
}

// PriceSource retrieves point-in-time prices for the configured symbol.
type PriceSource interface {
	// TickerPrice returns the latest traded price as a decimal string.
	TickerPrice(ctx context.Context) (string, error)
	// PreviousMinuteClose returns the close of the most recently completed
	// one-minute bar.
	PreviousMinuteClose(ctx context.Context) (float64, error)
}

// HealthChecker reports whether the upstream API is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// RateLimitInfo lets callers wait for client-side rate limit capacity.
type RateLimitInfo interface {
	WaitForLimit(ctx context.Context) error
}

// Client is the full exchange surface used by the command line.
type Client interface {
	PageFetcher
	PriceSource
	HealthChecker
	RateLimitInfo
	Symbol() string
}

// APIError is a non-2xx response from the exchange. Code and Message are
// filled from the exchange's error body when it has one.
type APIError struct {
	StatusCode int    `json:"status"`
	Code       int    `json:"code"`
	Message    string `json:"msg"`
	Endpoint   string `json:"endpoint"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s failed with status %d: %s (code %d)", e.Endpoint, e.StatusCode, e.Message, e.Code)
	}
	return fmt.Sprintf("%s failed with status %d: %s", e.Endpoint, e.StatusCode, http.StatusText(e.StatusCode))
}

// HTTPStatus returns the response status code.
func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}
