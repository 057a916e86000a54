package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/johnayoung/go-btc-chart/internal/models"
)

// sqlReader implements the read side shared by the SQL backends.
type sqlReader struct {
	db *sql.DB
}

func (r *sqlReader) Query(ctx context.Context, req QueryRequest) ([]models.Point, error) {
	if err := req.Validate(); err != nil {
		return nil, NewQueryError("candles", err)
	}

	lo, hi := req.bounds()
	var sb strings.Builder
	sb.WriteString(`SELECT open_time, open, high, low, close, volume FROM candles
		WHERE symbol = ? AND timeframe = ? AND open_time >= ? AND open_time <= ?
		ORDER BY open_time ASC`)
	args := []any{req.Symbol, req.Timeframe.String(), lo, hi}
	if req.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, req.Limit)
	}

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, NewQueryError("candles", err)
	}
	defer rows.Close()

	var out []models.Point
	for rows.Next() {
		var (
			t                           int64
			open, high, low, cl, volume float64
		)
		if err := rows.Scan(&t, &open, &high, &low, &cl, &volume); err != nil {
			return nil, NewQueryError("candles", fmt.Errorf("failed to scan row: %w", err))
		}
		out = append(out, models.NewPoint(t, open, high, low, cl, volume))
	}
	if err := rows.Err(); err != nil {
		return nil, NewQueryError("candles", err)
	}
	return out, nil
}

func (r *sqlReader) Stats(ctx context.Context) (*Stats, error) {
	var (
		total      int64
		series     int
		minT, maxT sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT symbol || '/' || timeframe), MIN(open_time), MAX(open_time)
		FROM candles`).Scan(&total, &series, &minT, &maxT)
	if err != nil {
		return nil, NewQueryError("candles", err)
	}

	stats := &Stats{TotalPoints: total, Series: series}
	if minT.Valid {
		stats.Earliest = time.Unix(minT.Int64, 0).UTC()
	}
	if maxT.Valid {
		stats.Latest = time.Unix(maxT.Int64, 0).UTC()
	}
	return stats, nil
}

func (r *sqlReader) HealthCheck(ctx context.Context) error {
	if r.db == nil {
		return fmt.Errorf("database connection is closed")
	}
	var one int
	if err := r.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("health check query failed: %w", err)
	}
	return nil
}
