package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/marcboeker/go-duckdb/v2"

	"github.com/johnayoung/go-btc-chart/internal/models"
)

// DuckDBArchive stores the archive in a DuckDB database. Writes go through the
// Appender API into a staging table and are then merged into candles.
type DuckDBArchive struct {
	sqlReader
	dbPath string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewDuckDBArchive opens the database at dbPath. ":memory:" or an empty path
// opens an in-memory database.
func NewDuckDBArchive(dbPath string, logger *slog.Logger) (*DuckDBArchive, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dbPath == ":memory:" {
		dbPath = ""
	}

	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, NewStorageError("open", "", fmt.Errorf("failed to open DuckDB database: %w", err))
	}

	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return &DuckDBArchive{
		sqlReader: sqlReader{db: db},
		dbPath:    dbPath,
		logger:    logger.With("component", "duckdb_archive"),
	}, nil
}

func (d *DuckDBArchive) Name() string { return "duckdb" }

func (d *DuckDBArchive) Initialize(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.logger.Info("initializing DuckDB archive", "db_path", d.dbPath)

	m := &migrator{db: d.db, logger: d.logger}
	if err := m.migrateToLatest(ctx); err != nil {
		return NewStorageError("initialize", "candles", err)
	}

	if _, err := d.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS candles_staging (
			symbol    VARCHAR,
			timeframe VARCHAR,
			open_time BIGINT,
			open      DOUBLE,
			high      DOUBLE,
			low       DOUBLE,
			close     DOUBLE,
			volume    DOUBLE
		)`); err != nil {
		return NewStorageError("initialize", "candles_staging", err)
	}
	return nil
}

func (d *DuckDBArchive) Store(ctx context.Context, symbol string, tf models.Timeframe, points []models.Point) error {
	if len(points) == 0 {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// INSERT OR REPLACE rejects duplicate keys within one statement
	points = dedupeLatest(points)

	conn, err := d.db.Conn(ctx)
	if err != nil {
		return NewInsertError("candles", fmt.Errorf("failed to get connection: %w", err))
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `DELETE FROM candles_staging`); err != nil {
		return NewInsertError("candles_staging", err)
	}

	if err := d.appendStaging(conn, symbol, tf, points); err != nil {
		return err
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return NewInsertError("candles", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO candles (symbol, timeframe, open_time, open, high, low, close, volume)
		SELECT symbol, timeframe, open_time, open, high, low, close, volume FROM candles_staging`); err != nil {
		return NewInsertError("candles", fmt.Errorf("failed to merge staged rows: %w", err))
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM candles_staging`); err != nil {
		return NewInsertError("candles_staging", err)
	}
	if err := tx.Commit(); err != nil {
		return NewInsertError("candles", err)
	}

	d.logger.Debug("stored points", "symbol", symbol, "timeframe", tf, "count", len(points))
	return nil
}

func (d *DuckDBArchive) appendStaging(conn *sql.Conn, symbol string, tf models.Timeframe, points []models.Point) error {
	return conn.Raw(func(dc any) error {
		driverConn, ok := dc.(*duckdb.Conn)
		if !ok {
			return NewInsertError("candles_staging", fmt.Errorf("unexpected driver connection %T", dc))
		}

		appender, err := duckdb.NewAppenderFromConn(driverConn, "", "candles_staging")
		if err != nil {
			return NewInsertError("candles_staging", fmt.Errorf("failed to create appender: %w", err))
		}

		for _, p := range points {
			if err := appender.AppendRow(
				symbol,
				tf.String(),
				p.Candle.Time,
				p.Candle.Open,
				p.Candle.High,
				p.Candle.Low,
				p.Candle.Close,
				p.Volume.Value,
			); err != nil {
				appender.Close()
				return NewInsertError("candles_staging", fmt.Errorf("failed to append row at %d: %w", p.Candle.Time, err))
			}
		}

		if err := appender.Close(); err != nil {
			return NewInsertError("candles_staging", fmt.Errorf("failed to flush appender: %w", err))
		}
		return nil
	})
}

func (d *DuckDBArchive) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	if err != nil {
		return NewStorageError("close", "", err)
	}
	d.logger.Info("DuckDB archive closed")
	return nil
}

// dedupeLatest keeps the last point for each open time, sorted ascending.
func dedupeLatest(points []models.Point) []models.Point {
	byTime := make(map[int64]models.Point, len(points))
	for _, p := range points {
		byTime[p.Candle.Time] = p
	}
	out := make([]models.Point, 0, len(byTime))
	for _, p := range byTime {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Candle.Time < out[j].Candle.Time })
	return out
}
