package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/johnayoung/go-btc-chart/internal/models"
)

const defaultSQLiteBatchSize = 500

// SQLiteArchive stores the archive in a SQLite database in WAL mode.
type SQLiteArchive struct {
	sqlReader
	dbPath    string
	batchSize int
	logger    *slog.Logger
	mu        sync.Mutex
}

// NewSQLiteArchive opens the database at dbPath. batchSize bounds the rows
// written per transaction; non-positive values use the default.
func NewSQLiteArchive(dbPath string, batchSize int, logger *slog.Logger) (*SQLiteArchive, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dbPath == "" {
		dbPath = ":memory:"
	}
	if batchSize <= 0 {
		batchSize = defaultSQLiteBatchSize
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, NewStorageError("open", "", fmt.Errorf("failed to open SQLite database: %w", err))
	}
	db.SetMaxOpenConns(1)

	return &SQLiteArchive{
		sqlReader: sqlReader{db: db},
		dbPath:    dbPath,
		batchSize: batchSize,
		logger:    logger.With("component", "sqlite_archive"),
	}, nil
}

func (s *SQLiteArchive) Name() string { return "sqlite" }

func (s *SQLiteArchive) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("initializing SQLite archive", "db_path", s.dbPath)

	for _, pragma := range []string{
		`PRAGMA journal_mode=WAL`,
		`PRAGMA busy_timeout=5000`,
	} {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return NewStorageError("initialize", "", fmt.Errorf("%s: %w", pragma, err))
		}
	}

	m := &migrator{db: s.db, logger: s.logger}
	if err := m.migrateToLatest(ctx); err != nil {
		return NewStorageError("initialize", "candles", err)
	}
	return nil
}

func (s *SQLiteArchive) Store(ctx context.Context, symbol string, tf models.Timeframe, points []models.Point) error {
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for start := 0; start < len(points); start += s.batchSize {
		end := min(start+s.batchSize, len(points))
		if err := s.storeBatch(ctx, symbol, tf, points[start:end]); err != nil {
			return err
		}
	}

	s.logger.Debug("stored points", "symbol", symbol, "timeframe", tf, "count", len(points))
	return nil
}

func (s *SQLiteArchive) storeBatch(ctx context.Context, symbol string, tf models.Timeframe, points []models.Point) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return NewInsertError("candles", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candles (symbol, timeframe, open_time, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, timeframe, open_time) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume`)
	if err != nil {
		return NewInsertError("candles", fmt.Errorf("failed to prepare upsert: %w", err))
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx,
			symbol, tf.String(), p.Candle.Time,
			p.Candle.Open, p.Candle.High, p.Candle.Low, p.Candle.Close, p.Volume.Value,
		); err != nil {
			return NewInsertError("candles", fmt.Errorf("failed to upsert row at %d: %w", p.Candle.Time, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return NewInsertError("candles", err)
	}
	return nil
}

func (s *SQLiteArchive) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return NewStorageError("close", "", err)
	}
	return nil
}
