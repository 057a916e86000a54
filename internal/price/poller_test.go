package price

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	current    string
	currentErr error
	previous   float64
	prevErr    error

	// barrier, when set, makes each call wait for the other one to start
	barrier *sync.WaitGroup

	tickerCalls atomic.Int32
	prevCalls   atomic.Int32
}

func (f *fakeSource) TickerPrice(ctx context.Context) (string, error) {
	f.tickerCalls.Add(1)
	if err := f.wait(ctx); err != nil {
		return "", err
	}
	return f.current, f.currentErr
}

func (f *fakeSource) PreviousMinuteClose(ctx context.Context) (float64, error) {
	f.prevCalls.Add(1)
	if err := f.wait(ctx); err != nil {
		return 0, err
	}
	return f.previous, f.prevErr
}

func (f *fakeSource) wait(ctx context.Context) error {
	if f.barrier == nil {
		return nil
	}
	f.barrier.Done()
	done := make(chan struct{})
	go func() {
		f.barrier.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func createTestPoller(source *fakeSource) *Poller {
	return NewPoller(source, time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestPoller_FetchPrices(t *testing.T) {
	tests := []struct {
		name         string
		source       *fakeSource
		wantErr      bool
		wantCurrent  *float64
		wantPrevious *float64
	}{
		{
			name:         "both prices",
			source:       &fakeSource{current: "67123.45000000", previous: 67000.5},
			wantCurrent:  ptr(67123.45),
			wantPrevious: ptr(67000.5),
		},
		{
			name:        "previous failure degrades to nil",
			source:      &fakeSource{current: "67123.45", prevErr: errors.New("timeout")},
			wantCurrent: ptr(67123.45),
		},
		{
			name:    "current failure resets both",
			source:  &fakeSource{currentErr: errors.New("connection refused"), previous: 1},
			wantErr: true,
		},
		{
			name:    "unparseable current price",
			source:  &fakeSource{current: "not-a-price", previous: 1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := createTestPoller(tt.source)

			info, err := p.FetchPrices(context.Background())
			snap := p.Snapshot()

			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, info.Current)
				assert.Nil(t, info.Previous)
				assert.Nil(t, snap.Prices.Current)
				assert.Nil(t, snap.Prices.Previous)
				assert.NotEmpty(t, snap.Error)
				return
			}

			require.NoError(t, err)
			assert.Empty(t, snap.Error)
			assert.Equal(t, tt.wantCurrent, info.Current)
			assert.Equal(t, tt.wantPrevious, info.Previous)
			assert.Equal(t, info, snap.Prices)
			assert.False(t, snap.UpdatedAt.IsZero())
		})
	}
}

func TestPoller_FetchPricesConcurrent(t *testing.T) {
	var barrier sync.WaitGroup
	barrier.Add(2)
	source := &fakeSource{current: "100", previous: 99, barrier: &barrier}
	p := createTestPoller(source)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// each request waits for the other, so this only succeeds when both run at once
	info, err := p.FetchPrices(ctx)
	require.NoError(t, err)
	require.NotNil(t, info.Previous)
	assert.Equal(t, 99.0, *info.Previous)
}

func TestPoller_ErrorClearsOnSuccess(t *testing.T) {
	source := &fakeSource{currentErr: errors.New("boom")}
	p := createTestPoller(source)

	_, err := p.FetchPrices(context.Background())
	require.Error(t, err)
	require.NotEmpty(t, p.Snapshot().Error)

	source.currentErr = nil
	source.current = "5"
	_, err = p.FetchPrices(context.Background())
	require.NoError(t, err)
	assert.Empty(t, p.Snapshot().Error)
}

func TestPoller_AutoRefresh(t *testing.T) {
	source := &fakeSource{current: "100", previous: 99}
	p := createTestPoller(source)
	defer p.Close()

	p.EnableAuto(time.Second)
	snap := p.Snapshot()
	assert.True(t, snap.Auto)
	assert.Equal(t, time.Second, snap.Interval)

	assert.Eventually(t, func() bool {
		return source.tickerCalls.Load() >= 1
	}, 3*time.Second, 20*time.Millisecond)

	p.DisableAuto()
	assert.False(t, p.Snapshot().Auto)

	calls := source.tickerCalls.Load()
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, calls, source.tickerCalls.Load(), "no fetches after DisableAuto returns")
}

func TestPoller_EnableAutoReplacesSchedule(t *testing.T) {
	p := createTestPoller(&fakeSource{current: "1"})

	p.EnableAuto(time.Minute)
	p.EnableAuto(0)
	assert.Equal(t, DefaultInterval, p.Snapshot().Interval)

	require.NoError(t, p.Close())
	assert.False(t, p.Snapshot().Auto)

	// stopping twice is harmless
	p.DisableAuto()
}

func ptr(v float64) *float64 { return &v }
