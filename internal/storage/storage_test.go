package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnayoung/go-btc-chart/internal/config"
	"github.com/johnayoung/go-btc-chart/internal/models"
)

func archiveFactories(t *testing.T) map[string]func() Archive {
	return map[string]func() Archive{
		"memory": func() Archive { return NewMemoryArchive() },
		"sqlite": func() Archive {
			a, err := NewSQLiteArchive(filepath.Join(t.TempDir(), "chart.db"), 2, nil)
			require.NoError(t, err)
			return a
		},
		"duckdb": func() Archive {
			a, err := NewDuckDBArchive(":memory:", nil)
			require.NoError(t, err)
			return a
		},
	}
}

func hourlyPoints(startSec int64, n int, base float64) []models.Point {
	points := make([]models.Point, n)
	for i := range points {
		o := base + float64(i)
		points[i] = models.NewPoint(startSec+int64(i)*3600, o, o+10, o-10, o+5, float64(i))
	}
	return points
}

func TestArchive_StoreAndQuery(t *testing.T) {
	for name, factory := range archiveFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			archive := factory()
			defer archive.Close()

			require.NoError(t, archive.Initialize(ctx))
			require.NoError(t, archive.Initialize(ctx), "initialize must be repeatable")

			points := hourlyPoints(1_700_000_000, 5, 100)
			require.NoError(t, archive.Store(ctx, "BTCUSDT", models.Timeframe1h, points))
			require.NoError(t, archive.Store(ctx, "BTCUSDT", models.Timeframe1d, hourlyPoints(1_700_000_000, 2, 500)))

			got, err := archive.Query(ctx, QueryRequest{Symbol: "BTCUSDT", Timeframe: models.Timeframe1h})
			require.NoError(t, err)
			require.Len(t, got, 5)
			for i, p := range got {
				assert.Equal(t, points[i].Candle, p.Candle)
				assert.Equal(t, points[i].Volume, p.Volume)
			}

			limited, err := archive.Query(ctx, QueryRequest{
				Symbol:    "BTCUSDT",
				Timeframe: models.Timeframe1h,
				Start:     time.Unix(1_700_000_000+3600, 0),
				End:       time.Unix(1_700_000_000+3*3600, 0),
				Limit:     2,
			})
			require.NoError(t, err)
			require.Len(t, limited, 2)
			assert.Equal(t, int64(1_700_000_000+3600), limited[0].Candle.Time)
			assert.Equal(t, int64(1_700_000_000+2*3600), limited[1].Candle.Time)

			stats, err := archive.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(7), stats.TotalPoints)
			assert.Equal(t, 2, stats.Series)
			assert.Equal(t, time.Unix(1_700_000_000, 0).UTC(), stats.Earliest)

			assert.NoError(t, archive.HealthCheck(ctx))
		})
	}
}

func TestArchive_StoreReplacesExisting(t *testing.T) {
	for name, factory := range archiveFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			archive := factory()
			defer archive.Close()
			require.NoError(t, archive.Initialize(ctx))

			require.NoError(t, archive.Store(ctx, "BTCUSDT", models.Timeframe1h, hourlyPoints(1_700_000_000, 3, 100)))

			// the second store overlaps the last point and repeats a key within the batch
			updated := []models.Point{
				models.NewPoint(1_700_000_000+2*3600, 1, 2, 0.5, 1.5, 10),
				models.NewPoint(1_700_000_000+2*3600, 9, 9, 9, 8, 20),
				models.NewPoint(1_700_000_000+3*3600, 3, 4, 2, 3.5, 30),
			}
			require.NoError(t, archive.Store(ctx, "BTCUSDT", models.Timeframe1h, updated))

			got, err := archive.Query(ctx, QueryRequest{Symbol: "BTCUSDT", Timeframe: models.Timeframe1h})
			require.NoError(t, err)
			require.Len(t, got, 4)
			assert.Equal(t, 9.0, got[2].Candle.Open)
			assert.Equal(t, 20.0, got[2].Volume.Value)
			assert.Equal(t, models.ColorDown, got[2].Volume.Color)
			assert.Equal(t, 3.5, got[3].Candle.Close)
		})
	}
}

func TestArchive_QueryValidation(t *testing.T) {
	archive := NewMemoryArchive()
	ctx := context.Background()

	_, err := archive.Query(ctx, QueryRequest{Timeframe: models.Timeframe1h})
	require.Error(t, err)

	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "query", storageErr.Operation)

	var validationErr *models.ValidationError
	assert.ErrorAs(t, err, &validationErr)

	_, err = archive.Query(ctx, QueryRequest{Symbol: "BTCUSDT", Timeframe: "7m"})
	assert.Error(t, err)

	_, err = archive.Query(ctx, QueryRequest{
		Symbol:    "BTCUSDT",
		Timeframe: models.Timeframe1h,
		Start:     time.Unix(200, 0),
		End:       time.Unix(100, 0),
	})
	assert.Error(t, err)
}

func TestMemoryArchive_Closed(t *testing.T) {
	ctx := context.Background()
	archive := NewMemoryArchive()
	require.NoError(t, archive.Close())

	assert.Error(t, archive.HealthCheck(ctx))
	assert.Error(t, archive.Store(ctx, "BTCUSDT", models.Timeframe1h, hourlyPoints(0, 1, 1)))
}

func TestNewArchive(t *testing.T) {
	ctx := context.Background()

	archive, err := NewArchive(ctx, config.StorageConfig{Type: "none"}, nil)
	require.NoError(t, err)
	assert.Nil(t, archive)

	archive, err = NewArchive(ctx, config.StorageConfig{Type: "memory"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "memory", archive.Name())

	archive, err = NewArchive(ctx, config.StorageConfig{
		Type:        "sqlite",
		DatabaseURL: filepath.Join(t.TempDir(), "chart.db"),
	}, nil)
	require.NoError(t, err)
	defer archive.Close()
	assert.Equal(t, "sqlite", archive.Name())

	_, err = NewArchive(ctx, config.StorageConfig{Type: "postgres"}, nil)
	assert.Error(t, err)
}

func TestMigrations_Ordered(t *testing.T) {
	migrations := Migrations()
	require.NotEmpty(t, migrations)
	for i := 1; i < len(migrations); i++ {
		assert.Greater(t, migrations[i].Version, migrations[i-1].Version)
	}
}
