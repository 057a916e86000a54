package errors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/johnayoung/go-btc-chart/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusError int

func (s statusError) Error() string   { return fmt.Sprintf("status %d", int(s)) }
func (s statusError) HTTPStatus() int { return int(s) }

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

var _ net.Error = timeoutError{}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastPolicy(attempts int) config.ErrorHandlingConfig {
	cfg := config.DefaultConfig().ErrorHandling
	cfg.GlobalRetryPolicy = config.RetryPolicyConfig{
		MaxAttempts:     attempts,
		InitialDelay:    "1ms",
		MaxDelay:        "2ms",
		BackoffStrategy: "fixed",
	}
	return cfg
}

func TestErrorClassification(t *testing.T) {
	classifier := NewErrorClassifier(config.DefaultConfig().ErrorHandling, testLogger())

	tests := []struct {
		name              string
		err               error
		expectedType      ErrorType
		expectedRetryable bool
		expectedStatus    int
	}{
		{"bad request status", statusError(400), ErrorTypeBadRequest, false, 400},
		{"wrapped bad request", fmt.Errorf("fetch page: %w", statusError(400)), ErrorTypeBadRequest, false, 400},
		{"rate limited", statusError(429), ErrorTypeRateLimit, true, 429},
		{"ip banned", statusError(418), ErrorTypeRateLimit, true, 418},
		{"forbidden", statusError(403), ErrorTypeAuthentication, false, 403},
		{"server error", statusError(503), ErrorTypeServerError, true, 503},
		{"net timeout", timeoutError{}, ErrorTypeTimeout, true, 0},
		{"context deadline", context.DeadlineExceeded, ErrorTypeTimeout, true, 0},
		{"context canceled", context.Canceled, ErrorTypeCanceled, false, 0},
		{"connection refused", fmt.Errorf("dial tcp: connection refused"), ErrorTypeNetwork, true, 0},
		{"decode failure", fmt.Errorf("failed to decode klines"), ErrorTypeValidation, false, 0},
		{"unknown", fmt.Errorf("something went wrong"), ErrorTypeUnknown, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := classifier.Classify(tt.err, "exchange", "fetch_page")
			require.NotNil(t, classified)
			assert.Equal(t, tt.expectedType, classified.Type)
			assert.Equal(t, tt.expectedRetryable, classified.Retryable)
			assert.Equal(t, tt.expectedStatus, classified.Status)
			assert.ErrorIs(t, classified, tt.err)
		})
	}

	assert.Nil(t, classifier.Classify(nil, "exchange", "fetch_page"))
}

func TestClassifyIsIdempotent(t *testing.T) {
	classifier := NewErrorClassifier(config.DefaultConfig().ErrorHandling, testLogger())

	first := classifier.Classify(statusError(500), "exchange", "fetch_page")
	second := classifier.Classify(fmt.Errorf("outer: %w", first), "pager", "load_older")

	assert.Same(t, first, second)
	assert.Equal(t, int64(1), classifier.GetStats()[ErrorTypeServerError].Count)
}

func TestHelpers(t *testing.T) {
	assert.True(t, IsBadRequest(statusError(400)))
	assert.True(t, IsBadRequest(&ClassifiedError{Type: ErrorTypeBadRequest, Err: errors.New("x")}))
	assert.False(t, IsBadRequest(statusError(500)))
	assert.False(t, IsBadRequest(nil))

	assert.Equal(t, 400, HTTPStatus(fmt.Errorf("wrapped: %w", statusError(400))))
	assert.Equal(t, 404, HTTPStatus(&ClassifiedError{Status: 404, Err: errors.New("x")}))
	assert.Zero(t, HTTPStatus(errors.New("plain")))
	assert.Zero(t, HTTPStatus(nil))

	assert.True(t, IsRetryable(&ClassifiedError{Retryable: true, Err: errors.New("x")}))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.Equal(t, SeverityHigh, GetSeverity(&ClassifiedError{Severity: SeverityHigh, Err: errors.New("x")}))

	assert.ErrorIs(t, &ClassifiedError{Type: ErrorTypeTimeout}, &ClassifiedError{Type: ErrorTypeTimeout})
}

func TestRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds after transient failures", func(t *testing.T) {
		classifier := NewErrorClassifier(fastPolicy(3), testLogger())
		calls := 0
		err := classifier.Retry(ctx, "exchange", "fetch_page", func() error {
			calls++
			if calls < 3 {
				return statusError(502)
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("does not retry bad requests", func(t *testing.T) {
		classifier := NewErrorClassifier(fastPolicy(5), testLogger())
		calls := 0
		err := classifier.Retry(ctx, "exchange", "fetch_page", func() error {
			calls++
			return statusError(400)
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
		assert.True(t, IsBadRequest(err))
		assert.False(t, IsRetryable(err))
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		classifier := NewErrorClassifier(fastPolicy(2), testLogger())
		calls := 0
		err := classifier.Retry(ctx, "exchange", "fetch_page", func() error {
			calls++
			return statusError(503)
		})
		require.Error(t, err)
		assert.Equal(t, 2, calls)
		assert.Equal(t, ErrorTypeServerError, GetErrorType(err))

		var ce *ClassifiedError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, 2, ce.Attempts)
	})

	t.Run("stops when context is canceled", func(t *testing.T) {
		classifier := NewErrorClassifier(fastPolicy(10), testLogger())
		cctx, cancel := context.WithCancel(ctx)
		calls := 0
		err := classifier.Retry(cctx, "exchange", "fetch_page", func() error {
			calls++
			cancel()
			return statusError(503)
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("component policy overrides global", func(t *testing.T) {
		cfg := fastPolicy(5)
		cfg.ComponentPolicies = map[string]config.RetryPolicyConfig{
			"stream": {MaxAttempts: 1, InitialDelay: "1ms", MaxDelay: "1ms", BackoffStrategy: "fixed"},
		}
		classifier := NewErrorClassifier(cfg, testLogger())
		calls := 0
		_ = classifier.Retry(ctx, "stream", "dial", func() error {
			calls++
			return statusError(503)
		})
		assert.Equal(t, 1, calls)
	})
}

func TestLinearBackoff(t *testing.T) {
	lb := &LinearBackoff{interval: time.Second, max: 3 * time.Second}
	assert.Equal(t, time.Second, lb.NextBackOff())
	assert.Equal(t, 2*time.Second, lb.NextBackOff())
	assert.Equal(t, 3*time.Second, lb.NextBackOff())
	assert.Equal(t, 3*time.Second, lb.NextBackOff())
	lb.Reset()
	assert.Equal(t, time.Second, lb.NextBackOff())
}

func TestCircuitBreaker(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("binance", config.CircuitBreakerConfig{
		FailureThreshold: 2,
		RecoveryTimeout:  "10s",
		HalfOpenRequests: 1,
	})
	cb.now = func() time.Time { return now }

	failing := func() error { return statusError(503) }

	assert.Error(t, cb.Call(failing))
	assert.Equal(t, CircuitClosed, cb.GetState())
	assert.Error(t, cb.Call(failing))
	assert.Equal(t, CircuitOpen, cb.GetState())

	called := false
	err := cb.Call(func() error { called = true; return nil })
	assert.False(t, called)
	assert.Equal(t, ErrorTypeCircuitOpen, GetErrorType(err))

	now = now.Add(11 * time.Second)
	require.NoError(t, cb.Call(func() error { return nil }))
	assert.Equal(t, CircuitClosed, cb.GetState())
}

func TestCircuitBreakerIgnoresClientErrors(t *testing.T) {
	cb := NewCircuitBreaker("binance", config.CircuitBreakerConfig{FailureThreshold: 1, RecoveryTimeout: "1m"})

	for i := 0; i < 3; i++ {
		assert.Error(t, cb.Call(func() error { return statusError(400) }))
	}
	assert.Equal(t, CircuitClosed, cb.GetState())
}

func TestSeverityString(t *testing.T) {
	assert.Equal(t, "low", SeverityLow.String())
	assert.Equal(t, "critical", SeverityCritical.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
}
