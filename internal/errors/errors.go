// Package errors classifies failures from the exchange and the archive so that
// callers can decide whether to retry, surface or swallow them. It also
// provides backoff-driven retries and a circuit breaker for the REST client.
package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/johnayoung/go-btc-chart/internal/config"
)

// ErrorType represents the classification of an error
type ErrorType string

const (
	// Retryable error types
	ErrorTypeNetwork     ErrorType = "network"      // DNS, refused or reset connections
	ErrorTypeTimeout     ErrorType = "timeout"      // Request or context deadline
	ErrorTypeRateLimit   ErrorType = "rate_limit"   // HTTP 429 and 418 from the exchange
	ErrorTypeServerError ErrorType = "server_error" // HTTP 5xx
	ErrorTypeCircuitOpen ErrorType = "circuit_open" // Circuit breaker is open

	// Non-retryable error types
	ErrorTypeBadRequest     ErrorType = "bad_request"    // HTTP 4xx other than rate limits
	ErrorTypeAuthentication ErrorType = "authentication" // HTTP 401 and 403
	ErrorTypeValidation     ErrorType = "validation"     // Malformed payloads
	ErrorTypeCanceled       ErrorType = "canceled"       // Caller canceled the context
	ErrorTypeConfiguration  ErrorType = "configuration"

	ErrorTypeUnknown ErrorType = "unknown"
)

// Severity represents the severity level of an error
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns the string representation of the severity
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// StatusCoder is implemented by errors that carry an HTTP status.
type StatusCoder interface {
	HTTPStatus() int
}

// ClassifiedError represents an error with metadata for handling decisions
type ClassifiedError struct {
	Err       error     `json:"error"`
	Type      ErrorType `json:"type"`
	Severity  Severity  `json:"severity"`
	Retryable bool      `json:"retryable"`
	Component string    `json:"component"`
	Operation string    `json:"operation"`
	Status    int       `json:"status,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Attempts  int       `json:"attempts"`
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	return fmt.Sprintf("[%s/%s] %s: %v", ce.Component, ce.Type, ce.Operation, ce.Err)
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// Is matches another ClassifiedError by type
func (ce *ClassifiedError) Is(target error) bool {
	if t, ok := target.(*ClassifiedError); ok {
		return ce.Type == t.Type
	}
	return false
}

// ErrorStats tracks error statistics for monitoring
type ErrorStats struct {
	Count     int64     `json:"count"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// ErrorClassifier handles error classification and retry logic
type ErrorClassifier struct {
	config config.ErrorHandlingConfig
	logger *slog.Logger

	mu    sync.RWMutex
	stats map[ErrorType]ErrorStats
}

// NewErrorClassifier creates a new error classifier with the given configuration
func NewErrorClassifier(cfg config.ErrorHandlingConfig, logger *slog.Logger) *ErrorClassifier {
	if logger == nil {
		logger = slog.Default()
	}

	return &ErrorClassifier{
		config: cfg,
		logger: logger,
		stats:  make(map[ErrorType]ErrorStats),
	}
}

// Classify analyzes an error and returns a ClassifiedError with retry metadata.
// Errors that are already classified are returned unchanged.
func (ec *ErrorClassifier) Classify(err error, component, operation string) *ClassifiedError {
	if err == nil {
		return nil
	}

	var existing *ClassifiedError
	if errors.As(err, &existing) {
		return existing
	}

	errorType, status := classifyErrorType(err)
	classified := &ClassifiedError{
		Err:       err,
		Type:      errorType,
		Severity:  determineSeverity(errorType),
		Retryable: ec.isRetryable(errorType),
		Component: component,
		Operation: operation,
		Status:    status,
		Timestamp: time.Now(),
	}

	ec.updateStats(errorType)

	ec.logger.Debug("error classified",
		"type", errorType,
		"severity", classified.Severity.String(),
		"retryable", classified.Retryable,
		"status", status,
		"component", component,
		"operation", operation,
		"error", err.Error())

	return classified
}

// classifyErrorType determines the error type, preferring structured signals
// over message patterns.
func classifyErrorType(err error) (ErrorType, int) {
	var sc StatusCoder
	if errors.As(err, &sc) {
		status := sc.HTTPStatus()
		return typeForStatus(status), status
	}

	switch {
	case errors.Is(err, context.Canceled):
		return ErrorTypeCanceled, 0
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeTimeout, 0
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorTypeTimeout, 0
		}
		return ErrorTypeNetwork, 0
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case containsAny(errStr, "connection refused", "connection reset", "no such host", "network is unreachable", "eof"):
		return ErrorTypeNetwork, 0
	case containsAny(errStr, "timeout", "deadline exceeded"):
		return ErrorTypeTimeout, 0
	case containsAny(errStr, "rate limit", "too many requests"):
		return ErrorTypeRateLimit, 0
	case containsAny(errStr, "invalid", "malformed", "failed to decode", "parse"):
		return ErrorTypeValidation, 0
	}

	return ErrorTypeUnknown, 0
}

func typeForStatus(status int) ErrorType {
	switch {
	case status == http.StatusTooManyRequests || status == http.StatusTeapot:
		return ErrorTypeRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrorTypeAuthentication
	case status == http.StatusRequestTimeout:
		return ErrorTypeTimeout
	case status >= 500:
		return ErrorTypeServerError
	case status >= 400:
		return ErrorTypeBadRequest
	default:
		return ErrorTypeUnknown
	}
}

func containsAny(s string, patterns ...string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// determineSeverity assigns a severity level based on error type
func determineSeverity(errorType ErrorType) Severity {
	switch errorType {
	case ErrorTypeAuthentication, ErrorTypeConfiguration:
		return SeverityHigh
	case ErrorTypeValidation, ErrorTypeBadRequest, ErrorTypeServerError, ErrorTypeUnknown:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// isRetryable determines if an error type should be retried
func (ec *ErrorClassifier) isRetryable(errorType ErrorType) bool {
	for _, retryableType := range ec.config.GlobalRetryPolicy.RetryableErrors {
		if string(errorType) == retryableType {
			return true
		}
	}

	switch errorType {
	case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeRateLimit, ErrorTypeServerError:
		return true
	default:
		return false
	}
}

func (ec *ErrorClassifier) updateStats(errorType ErrorType) {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	stats := ec.stats[errorType]
	stats.Count++
	stats.LastSeen = time.Now()
	if stats.FirstSeen.IsZero() {
		stats.FirstSeen = stats.LastSeen
	}
	ec.stats[errorType] = stats
}

// GetStats returns a copy of the error statistics
func (ec *ErrorClassifier) GetStats() map[ErrorType]ErrorStats {
	ec.mu.RLock()
	defer ec.mu.RUnlock()

	stats := make(map[ErrorType]ErrorStats, len(ec.stats))
	for k, v := range ec.stats {
		stats[k] = v
	}
	return stats
}

// Retry runs fn until it succeeds, returns a non-retryable error, the policy's
// attempts are exhausted or ctx is done. The returned error is classified.
func (ec *ErrorClassifier) Retry(ctx context.Context, component, operation string, fn func() error) error {
	policy := ec.retryPolicy(component)
	strategy := backoff.WithContext(NewBackoff(policy), ctx)

	attempts := 0
	var last *ClassifiedError
	err := backoff.RetryNotify(func() error {
		attempts++
		err := fn()
		if err == nil {
			return nil
		}
		last = ec.Classify(err, component, operation)
		last.Attempts = attempts
		if !last.Retryable {
			return backoff.Permanent(last)
		}
		return last
	}, strategy, func(err error, next time.Duration) {
		ec.logger.Warn("operation failed, retrying",
			"component", component,
			"operation", operation,
			"attempt", attempts,
			"max_attempts", policy.MaxAttempts,
			"next_retry", next,
			"error", err.Error())
	})
	if err == nil {
		if attempts > 1 {
			ec.logger.Debug("operation succeeded after retry",
				"component", component,
				"operation", operation,
				"attempts", attempts)
		}
		return nil
	}

	if last != nil && (ctx.Err() == nil || !errors.Is(err, ctx.Err())) {
		return last
	}
	return ec.Classify(fmt.Errorf("%s interrupted: %w", operation, err), component, operation)
}

func (ec *ErrorClassifier) retryPolicy(component string) config.RetryPolicyConfig {
	if policy, ok := ec.config.ComponentPolicies[component]; ok {
		return policy
	}
	return ec.config.GlobalRetryPolicy
}

// NewBackoff builds the backoff strategy described by policy, bounded to
// MaxAttempts total attempts.
func NewBackoff(policy config.RetryPolicyConfig) backoff.BackOff {
	initialDelay := config.DurationOr(policy.InitialDelay, 500*time.Millisecond)
	maxDelay := config.DurationOr(policy.MaxDelay, 30*time.Second)

	var strategy backoff.BackOff
	switch policy.BackoffStrategy {
	case "fixed":
		strategy = backoff.NewConstantBackOff(initialDelay)
	case "linear":
		strategy = &LinearBackoff{interval: initialDelay, max: maxDelay}
	default:
		exponential := backoff.NewExponentialBackOff()
		exponential.InitialInterval = initialDelay
		exponential.MaxInterval = maxDelay
		exponential.MaxElapsedTime = 0
		if !policy.Jitter {
			exponential.RandomizationFactor = 0
		}
		strategy = exponential
	}

	maxRetries := policy.MaxAttempts - 1
	if maxRetries < 0 {
		maxRetries = 0
	}
	return backoff.WithMaxRetries(strategy, uint64(maxRetries))
}

// LinearBackoff grows the delay by a fixed interval per attempt
type LinearBackoff struct {
	interval time.Duration
	max      time.Duration
	current  time.Duration
}

// NextBackOff returns the next backoff interval
func (lb *LinearBackoff) NextBackOff() time.Duration {
	lb.current += lb.interval
	if lb.current > lb.max {
		lb.current = lb.max
	}
	return lb.current
}

// Reset resets the backoff to its initial state
func (lb *LinearBackoff) Reset() {
	lb.current = 0
}

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// String returns the string representation of the circuit state
func (cs CircuitState) String() string {
	switch cs {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker stops calling a failing dependency for a recovery period.
// Only failures that count against the dependency trip it: client errors
// such as a rejected time bound do not.
type CircuitBreaker struct {
	name   string
	config config.CircuitBreakerConfig
	now    func() time.Time

	mu        sync.Mutex
	state     CircuitState
	failures  int
	successes int
	inFlight  int
	nextRetry time.Time
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(name string, cfg config.CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.HalfOpenRequests <= 0 {
		cfg.HalfOpenRequests = 1
	}
	return &CircuitBreaker{
		name:   name,
		config: cfg,
		now:    time.Now,
		state:  CircuitClosed,
	}
}

// Call executes fn through the circuit breaker
func (cb *CircuitBreaker) Call(fn func() error) error {
	if !cb.allowRequest() {
		return &ClassifiedError{
			Err:       fmt.Errorf("circuit breaker is open for %s", cb.name),
			Type:      ErrorTypeCircuitOpen,
			Severity:  SeverityMedium,
			Retryable: true,
			Component: "circuit_breaker",
			Operation: cb.name,
			Timestamp: cb.now(),
		}
	}

	err := fn()
	cb.recordResult(err)
	return err
}

func (cb *CircuitBreaker) allowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if cb.now().Before(cb.nextRetry) {
			return false
		}
		cb.state = CircuitHalfOpen
		cb.successes = 0
		cb.inFlight = 1
		return true
	case CircuitHalfOpen:
		if cb.inFlight >= cb.config.HalfOpenRequests {
			return false
		}
		cb.inFlight++
		return true
	default:
		return false
	}
}

func (cb *CircuitBreaker) recordResult(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitHalfOpen && cb.inFlight > 0 {
		cb.inFlight--
	}

	if err == nil || !countsAsFailure(err) {
		cb.onSuccess()
		return
	}
	cb.onFailure()
}

func countsAsFailure(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	t, _ := classifyErrorType(err)
	return t != ErrorTypeBadRequest && t != ErrorTypeValidation && t != ErrorTypeCanceled
}

func (cb *CircuitBreaker) onSuccess() {
	switch cb.state {
	case CircuitHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.HalfOpenRequests {
			cb.state = CircuitClosed
			cb.failures = 0
		}
	case CircuitClosed:
		cb.failures = 0
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.failures++

	switch cb.state {
	case CircuitClosed:
		if cb.failures >= cb.config.FailureThreshold {
			cb.open()
		}
	case CircuitHalfOpen:
		cb.open()
	}
}

func (cb *CircuitBreaker) open() {
	cb.state = CircuitOpen
	cb.inFlight = 0
	cb.nextRetry = cb.now().Add(config.DurationOr(cb.config.RecoveryTimeout, 30*time.Second))
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Utility functions

// IsRetryable reports whether err was classified as retryable
func IsRetryable(err error) bool {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}

// GetErrorType returns the classification of err, classifying on the fly when
// err has not been through a classifier.
func GetErrorType(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Type
	}
	t, _ := classifyErrorType(err)
	return t
}

// IsBadRequest reports whether the upstream rejected the request itself with
// a 4xx status other than rate limiting or authentication.
func IsBadRequest(err error) bool {
	return GetErrorType(err) == ErrorTypeBadRequest
}

// HTTPStatus returns the HTTP status carried by err, or 0 when there is none.
func HTTPStatus(err error) int {
	if err == nil {
		return 0
	}
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatus()
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Status
	}
	return 0
}

// GetSeverity extracts the severity from a classified error
func GetSeverity(err error) Severity {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Severity
	}
	return SeverityMedium
}
