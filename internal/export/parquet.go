// Package export writes archived candle series to parquet files.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/johnayoung/go-btc-chart/internal/models"
	"github.com/johnayoung/go-btc-chart/internal/storage"
)

// Row is one exported bar.
type Row struct {
	Symbol    string  `parquet:"symbol"`
	Timeframe string  `parquet:"timeframe"`
	OpenTime  int64   `parquet:"open_time"` // seconds
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
	Color     string  `parquet:"color"`
}

// Rows converts points into export rows.
func Rows(symbol string, tf models.Timeframe, points []models.Point) []Row {
	rows := make([]Row, len(points))
	for i, p := range points {
		rows[i] = Row{
			Symbol:    symbol,
			Timeframe: tf.String(),
			OpenTime:  p.Candle.Time,
			Open:      p.Candle.Open,
			High:      p.Candle.High,
			Low:       p.Candle.Low,
			Close:     p.Candle.Close,
			Volume:    p.Volume.Value,
			Color:     string(p.Volume.Color),
		}
	}
	return rows
}

// WriteParquet writes rows to path, creating its directory.
func WriteParquet(path string, rows []Row) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}
	if err := parquet.WriteFile(path, rows); err != nil {
		return fmt.Errorf("failed to write parquet file %s: %w", path, err)
	}
	return nil
}

// ReadParquet reads rows written by WriteParquet.
func ReadParquet(path string) ([]Row, error) {
	rows, err := parquet.ReadFile[Row](path)
	if err != nil {
		return nil, fmt.Errorf("failed to read parquet file %s: %w", path, err)
	}
	return rows, nil
}

// FileName returns the export file name for a series, stamped with at.
func FileName(dir, symbol string, tf models.Timeframe, at time.Time) string {
	name := fmt.Sprintf("%s_%s_%s.parquet", strings.ToLower(symbol), tf, at.UTC().Format("20060102T150405Z"))
	return filepath.Join(dir, name)
}

// Result describes a finished export.
type Result struct {
	Path string `json:"path"`
	Rows int    `json:"rows"`
}

// FromArchive queries req from archive and writes it to a new file in dir.
func FromArchive(ctx context.Context, archive storage.Archive, req storage.QueryRequest, dir string) (*Result, error) {
	points, err := archive.Query(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("no archived points for %s %s", req.Symbol, req.Timeframe)
	}

	path := FileName(dir, req.Symbol, req.Timeframe, time.Now())
	if err := WriteParquet(path, Rows(req.Symbol, req.Timeframe, points)); err != nil {
		return nil, err
	}
	return &Result{Path: path, Rows: len(points)}, nil
}
