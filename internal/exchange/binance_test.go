package exchange

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/johnayoung/go-btc-chart/internal/config"
	"github.com/johnayoung/go-btc-chart/internal/errors"
	"github.com/johnayoung/go-btc-chart/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const klinesResponse = `[
	[1700000000000, "35000.10", "35100.00", "34900.50", "35050.00", "12.5", 1700003599999, "437500.0", 100, "6.1", "213500.0", "0"],
	[1700003600000, "35050.00", "35200.00", "35000.00", "35150.00", "8.25", 1700007199999, "290000.0", 80, "4.0", "140000.0", "0"]
]`

// Test utilities
func createTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func createMockServer(responses map[string]func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, exists := responses[r.URL.Path]; exists {
			handler(w, r)
		} else {
			http.NotFound(w, r)
		}
	}))
}

func createTestClient(t *testing.T, server *httptest.Server, attempts int) *BinanceClient {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Exchange.BaseURL = server.URL
	cfg.Exchange.RateLimit = 1000

	eh := cfg.ErrorHandling
	eh.GlobalRetryPolicy = config.RetryPolicyConfig{
		MaxAttempts:     attempts,
		InitialDelay:    "1ms",
		MaxDelay:        "2ms",
		BackoffStrategy: "fixed",
	}
	classifier := errors.NewErrorClassifier(eh, createTestLogger())
	return NewBinanceClient(cfg.Exchange, classifier, nil, createTestLogger())
}

func TestBinanceClient_FetchPage(t *testing.T) {
	var lastQuery atomic.Value
	server := createMockServer(map[string]func(w http.ResponseWriter, r *http.Request){
		klinesEndpoint: func(w http.ResponseWriter, r *http.Request) {
			lastQuery.Store(r.URL.Query())
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(klinesResponse))
		},
	})
	defer server.Close()

	client := createTestClient(t, server, 1)
	ctx := context.Background()

	t.Run("initial page has no end time", func(t *testing.T) {
		klines, err := client.FetchPage(ctx, models.Timeframe1h, 500, nil)
		require.NoError(t, err)
		require.Len(t, klines, 2)

		q := lastQuery.Load().(url.Values)
		assert.Equal(t, []string{"BTCUSDT"}, q["symbol"])
		assert.Equal(t, []string{"1h"}, q["interval"])
		assert.Equal(t, []string{"500"}, q["limit"])
		assert.NotContains(t, q, "endTime")

		assert.Equal(t, json.Number("1700000000000"), klines[0][0])
		assert.Equal(t, "35000.10", klines[0][1])
	})

	t.Run("older page passes end time", func(t *testing.T) {
		end := int64(1699999999999)
		_, err := client.FetchPage(ctx, models.Timeframe1M, 500, &end)
		require.NoError(t, err)

		q := lastQuery.Load().(url.Values)
		assert.Equal(t, []string{"1699999999999"}, q["endTime"])
		assert.Equal(t, []string{"1M"}, q["interval"])
	})

	t.Run("rejects invalid arguments", func(t *testing.T) {
		_, err := client.FetchPage(ctx, models.Timeframe("2m"), 500, nil)
		assert.Error(t, err)
		_, err = client.FetchPage(ctx, models.Timeframe1h, 1001, nil)
		assert.Error(t, err)
	})
}

func TestBinanceClient_BadRequestIsNotRetried(t *testing.T) {
	var calls int32
	server := createMockServer(map[string]func(w http.ResponseWriter, r *http.Request){
		klinesEndpoint: func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":-1100,"msg":"Illegal characters found in parameter 'endTime'."}`))
		},
	})
	defer server.Close()

	client := createTestClient(t, server, 3)
	end := int64(-1)
	_, err := client.FetchPage(context.Background(), models.Timeframe1h, 500, &end)

	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.True(t, errors.IsBadRequest(err))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, -1100, apiErr.Code)
	assert.Equal(t, http.StatusBadRequest, apiErr.HTTPStatus())
	assert.Contains(t, apiErr.Error(), "Illegal characters")
}

func TestBinanceClient_ServerErrorsAreRetried(t *testing.T) {
	var calls int32
	server := createMockServer(map[string]func(w http.ResponseWriter, r *http.Request){
		klinesEndpoint: func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			_, _ = w.Write([]byte(`[]`))
		},
	})
	defer server.Close()

	client := createTestClient(t, server, 3)
	klines, err := client.FetchPage(context.Background(), models.Timeframe1h, 500, nil)

	require.NoError(t, err)
	assert.Empty(t, klines)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestBinanceClient_CircuitBreakerOpens(t *testing.T) {
	var calls int32
	server := createMockServer(map[string]func(w http.ResponseWriter, r *http.Request){
		klinesEndpoint: func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusServiceUnavailable)
		},
	})
	defer server.Close()

	client := createTestClient(t, server, 1)
	client.breaker = errors.NewCircuitBreaker("binance", config.CircuitBreakerConfig{FailureThreshold: 2, RecoveryTimeout: "1m"})

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_, err := client.FetchPage(ctx, models.Timeframe1h, 10, nil)
		require.Error(t, err)
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, errors.CircuitOpen, client.breaker.GetState())
}

func TestBinanceClient_TickerPrice(t *testing.T) {
	server := createMockServer(map[string]func(w http.ResponseWriter, r *http.Request){
		tickerEndpoint: func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
			_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","price":"64123.45000000"}`))
		},
	})
	defer server.Close()

	price, err := createTestClient(t, server, 1).TickerPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "64123.45000000", price)
}

func TestBinanceClient_TickerPriceInvalid(t *testing.T) {
	server := createMockServer(map[string]func(w http.ResponseWriter, r *http.Request){
		tickerEndpoint: func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","price":"n/a"}`))
		},
	})
	defer server.Close()

	_, err := createTestClient(t, server, 1).TickerPrice(context.Background())
	assert.Error(t, err)
}

func TestBinanceClient_PreviousMinuteClose(t *testing.T) {
	var endTime string
	server := createMockServer(map[string]func(w http.ResponseWriter, r *http.Request){
		klinesEndpoint: func(w http.ResponseWriter, r *http.Request) {
			endTime = r.URL.Query().Get("endTime")
			assert.Equal(t, "1m", r.URL.Query().Get("interval"))
			assert.Equal(t, "1", r.URL.Query().Get("limit"))
			_, _ = w.Write([]byte(`[[1700000040000,"1","1","1","64000.5","1",1700000099999]]`))
		},
	})
	defer server.Close()

	client := createTestClient(t, server, 1)
	client.now = func() time.Time { return time.UnixMilli(1700000125500) }

	closePrice, err := client.PreviousMinuteClose(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 64000.5, closePrice, 1e-9)
	assert.Equal(t, "1700000099999", endTime)
}

func TestBinanceClient_PreviousMinuteCloseEmpty(t *testing.T) {
	server := createMockServer(map[string]func(w http.ResponseWriter, r *http.Request){
		klinesEndpoint: func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`[]`))
		},
	})
	defer server.Close()

	_, err := createTestClient(t, server, 1).PreviousMinuteClose(context.Background())
	assert.Error(t, err)
}

func TestBinanceClient_HealthCheck(t *testing.T) {
	healthy := createMockServer(map[string]func(w http.ResponseWriter, r *http.Request){
		pingEndpoint: func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{}`)) },
	})
	defer healthy.Close()
	assert.NoError(t, createTestClient(t, healthy, 1).HealthCheck(context.Background()))

	down := createMockServer(nil)
	defer down.Close()
	assert.Error(t, createTestClient(t, down, 1).HealthCheck(context.Background()))
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, 2*time.Second, parseRetryAfter("2"))
	assert.Equal(t, maxRetryAfter, parseRetryAfter("3600"))
	assert.Equal(t, time.Duration(0), parseRetryAfter("garbage"))
}
