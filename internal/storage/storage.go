// Package storage archives the candle series fetched by the chart feed so that
// history survives restarts and can be exported. Backends: in-memory, DuckDB
// and SQLite.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/johnayoung/go-btc-chart/internal/config"
	"github.com/johnayoung/go-btc-chart/internal/models"
)

// Archive persists points keyed by symbol, timeframe and open time. Storing a
// point whose key already exists replaces the stored values.
type Archive interface {
	// Initialize prepares the schema. It is safe to call more than once.
	Initialize(ctx context.Context) error
	// Store upserts points for symbol and tf.
	Store(ctx context.Context, symbol string, tf models.Timeframe, points []models.Point) error
	// Query returns stored points in ascending time order.
	Query(ctx context.Context, req QueryRequest) ([]models.Point, error)
	// Stats summarizes what the archive holds.
	Stats(ctx context.Context) (*Stats, error)
	HealthCheck(ctx context.Context) error
	// Name identifies the backend in logs and metrics.
	Name() string
	Close() error
}

// QueryRequest selects points from the archive. Zero Start or End leaves
// that side unbounded; zero Limit returns everything in range.
type QueryRequest struct {
	Symbol    string
	Timeframe models.Timeframe
	Start     time.Time
	End       time.Time
	Limit     int
}

// Validate checks the request for required fields.
func (r QueryRequest) Validate() error {
	if r.Symbol == "" {
		return &models.ValidationError{Field: "symbol", Message: "symbol is required"}
	}
	if !r.Timeframe.IsValid() {
		return &models.ValidationError{Field: "timeframe", Message: fmt.Sprintf("unsupported timeframe %q", r.Timeframe)}
	}
	if !r.Start.IsZero() && !r.End.IsZero() && r.End.Before(r.Start) {
		return &models.ValidationError{Field: "end", Message: "end must not be before start"}
	}
	if r.Limit < 0 {
		return &models.ValidationError{Field: "limit", Message: "limit must not be negative"}
	}
	return nil
}

// bounds returns the inclusive open time range in seconds.
func (r QueryRequest) bounds() (int64, int64) {
	lo, hi := int64(minInt64), int64(maxInt64)
	if !r.Start.IsZero() {
		lo = r.Start.Unix()
	}
	if !r.End.IsZero() {
		hi = r.End.Unix()
	}
	return lo, hi
}

const (
	maxInt64 = 1<<63 - 1
	minInt64 = -1 << 63
)

// Stats summarizes archive contents.
type Stats struct {
	TotalPoints int64     `json:"total_points"`
	Series      int       `json:"series"`
	Earliest    time.Time `json:"earliest"`
	Latest      time.Time `json:"latest"`
}

// StorageError wraps a failed storage operation
type StorageError struct {
	Operation string
	Table     string
	Err       error
}

func (e *StorageError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("storage operation %s on table %s failed: %v", e.Operation, e.Table, e.Err)
	}
	return fmt.Sprintf("storage operation %s failed: %v", e.Operation, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError creates a StorageError
func NewStorageError(operation, table string, err error) *StorageError {
	return &StorageError{Operation: operation, Table: table, Err: err}
}

// NewQueryError creates a StorageError for a failed read
func NewQueryError(table string, err error) *StorageError {
	return NewStorageError("query", table, err)
}

// NewInsertError creates a StorageError for a failed write
func NewInsertError(table string, err error) *StorageError {
	return NewStorageError("insert", table, err)
}

// NewArchive creates and initializes the backend selected by cfg. It returns
// a nil Archive for type "none".
func NewArchive(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (Archive, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		archive Archive
		err     error
	)
	switch cfg.Type {
	case "none", "":
		return nil, nil
	case "memory":
		archive = NewMemoryArchive()
	case "duckdb":
		archive, err = NewDuckDBArchive(cfg.DatabaseURL, logger)
	case "sqlite":
		archive, err = NewSQLiteArchive(cfg.DatabaseURL, cfg.BatchSize, logger)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	if err := archive.Initialize(ctx); err != nil {
		archive.Close()
		return nil, fmt.Errorf("failed to initialize %s archive: %w", cfg.Type, err)
	}
	return archive, nil
}
