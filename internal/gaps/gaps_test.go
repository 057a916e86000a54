package gaps

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnayoung/go-btc-chart/internal/models"
)

func pointsAt(times ...time.Time) []models.Point {
	points := make([]models.Point, len(times))
	for i, ts := range times {
		points[i] = models.NewPoint(ts.Unix(), 1, 2, 0.5, 1.5, 10)
	}
	return points
}

func TestDetect(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		tf        models.Timeframe
		times     []time.Time
		wantGaps  int
		wantFirst Gap
	}{
		{
			name:     "continuous hourly series",
			tf:       models.Timeframe1h,
			times:    []time.Time{base, base.Add(time.Hour), base.Add(2 * time.Hour)},
			wantGaps: 0,
		},
		{
			name:     "two missing hours",
			tf:       models.Timeframe1h,
			times:    []time.Time{base, base.Add(3 * time.Hour), base.Add(4 * time.Hour)},
			wantGaps: 1,
			wantFirst: Gap{
				Timeframe: models.Timeframe1h,
				Start:     base.Add(time.Hour),
				End:       base.Add(3 * time.Hour),
				Missing:   2,
				Priority:  PriorityMedium,
			},
		},
		{
			name:     "single missing minute",
			tf:       models.Timeframe1m,
			times:    []time.Time{base, base.Add(2 * time.Minute)},
			wantGaps: 1,
			wantFirst: Gap{
				Timeframe: models.Timeframe1m,
				Start:     base.Add(time.Minute),
				End:       base.Add(2 * time.Minute),
				Missing:   1,
				Priority:  PriorityLow,
			},
		},
		{
			name:     "week of missing days",
			tf:       models.Timeframe1d,
			times:    []time.Time{base, base.AddDate(0, 0, 9)},
			wantGaps: 1,
			wantFirst: Gap{
				Timeframe: models.Timeframe1d,
				Start:     base.AddDate(0, 0, 1),
				End:       base.AddDate(0, 0, 9),
				Missing:   8,
				Priority:  PriorityCritical,
			},
		},
		{
			name:     "calendar months of different lengths",
			tf:       models.Timeframe1M,
			times:    []time.Time{base, base.AddDate(0, 1, 0), base.AddDate(0, 2, 0), base.AddDate(0, 3, 0)},
			wantGaps: 0,
		},
		{
			name:     "missing february",
			tf:       models.Timeframe1M,
			times:    []time.Time{base, base.AddDate(0, 2, 0)},
			wantGaps: 1,
			wantFirst: Gap{
				Timeframe: models.Timeframe1M,
				Start:     base.AddDate(0, 1, 0),
				End:       base.AddDate(0, 2, 0),
				Missing:   1,
				Priority:  PriorityCritical,
			},
		},
		{
			name:     "single point",
			tf:       models.Timeframe1h,
			times:    []time.Time{base},
			wantGaps: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gaps := Detect(pointsAt(tt.times...), tt.tf)
			require.Len(t, gaps, tt.wantGaps)
			if tt.wantGaps == 0 {
				return
			}

			got := gaps[0]
			assert.Equal(t, tt.wantFirst.Timeframe, got.Timeframe)
			assert.True(t, tt.wantFirst.Start.Equal(got.Start), "start %s != %s", got.Start, tt.wantFirst.Start)
			assert.True(t, tt.wantFirst.End.Equal(got.End), "end %s != %s", got.End, tt.wantFirst.End)
			assert.Equal(t, tt.wantFirst.Missing, got.Missing)
			assert.Equal(t, tt.wantFirst.Priority, got.Priority)
			assert.NotEmpty(t, got.ID)
		})
	}
}

func TestSummary(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	gaps := Detect(pointsAt(
		base,
		base.Add(2*time.Hour),
		base.Add(3*time.Hour),
		base.Add(7*time.Hour),
	), models.Timeframe1h)

	count, missing := Summary(gaps)
	assert.Equal(t, 2, count)
	assert.Equal(t, 4, missing)
}

func TestPriority_MarshalText(t *testing.T) {
	text, err := PriorityHigh.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "high", string(text))
}
