package stream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnayoung/go-btc-chart/internal/config"
	"github.com/johnayoung/go-btc-chart/internal/models"
)

type fakeApplier struct {
	mu      sync.Mutex
	active  models.Timeframe
	applied map[models.Timeframe][]models.Point
	finals  int
}

func newFakeApplier(tf models.Timeframe) *fakeApplier {
	return &fakeApplier{active: tf, applied: make(map[models.Timeframe][]models.Point)}
}

func (f *fakeApplier) ApplyLive(ctx context.Context, tf models.Timeframe, p models.Point, final bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tf != f.active {
		return false
	}
	f.applied[tf] = append(f.applied[tf], p)
	if final {
		f.finals++
	}
	return true
}

func (f *fakeApplier) ActiveTimeframe() models.Timeframe {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *fakeApplier) setActive(tf models.Timeframe) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = tf
}

func (f *fakeApplier) count(tf models.Timeframe) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.applied[tf])
}

func klineMessage(interval string, openMs int64, closed bool) string {
	return fmt.Sprintf(`{"e":"kline","E":%d,"s":"BTCUSDT","k":{"t":%d,"T":%d,"s":"BTCUSDT","i":%q,"o":"100.5","c":"101.0","h":"102","l":"99.5","v":"12.5","x":%t}}`,
		openMs+500, openMs, openMs+59_999, interval, closed)
}

// createMockStream serves kline messages for the interval named in the path.
// When closeAfterSend is set the server drops the connection after sending.
func createMockStream(t *testing.T, messages int, closeAfterSend bool) (*httptest.Server, *atomic.Int32, *sync.Map) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	connections := &atomic.Int32{}
	paths := &sync.Map{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		n := connections.Add(1)
		paths.Store(n, r.URL.Path)
		interval := r.URL.Path[strings.LastIndex(r.URL.Path, "_")+1:]

		for i := 0; i < messages; i++ {
			msg := klineMessage(interval, 1_700_000_040_000+int64(i)*60_000, i == messages-1)
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
		if closeAfterSend {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return server, connections, paths
}

func createTestStream(server *httptest.Server, applier Applier) *KlineStream {
	cfg := config.StreamConfig{
		URL:            "ws" + strings.TrimPrefix(server.URL, "http") + "/ws",
		ReconnectDelay: "10ms",
		MaxReconnect:   "50ms",
	}
	return NewKlineStream(cfg, "BTCUSDT", applier, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestParseKline(t *testing.T) {
	p, final, err := ParseKline([]byte(klineMessage("1m", 1_700_000_040_000, true)))
	require.NoError(t, err)
	assert.True(t, final)
	assert.Equal(t, int64(1_700_000_040), p.Candle.Time)
	assert.Equal(t, 100.5, p.Candle.Open)
	assert.Equal(t, 102.0, p.Candle.High)
	assert.Equal(t, 12.5, p.Volume.Value)
	assert.Equal(t, models.ColorUp, p.Volume.Color)

	_, _, err = ParseKline([]byte(`{"result":null,"id":1}`))
	assert.Error(t, err)

	_, _, err = ParseKline([]byte(`not json`))
	assert.Error(t, err)

	bad := strings.Replace(klineMessage("1m", 1_700_000_040_000, false), `"v":"12.5"`, `"v":"-1"`, 1)
	_, _, err = ParseKline([]byte(bad))
	assert.Error(t, err)
}

func TestKlineStream_StreamURL(t *testing.T) {
	s := NewKlineStream(config.StreamConfig{URL: "wss://stream.binance.com:9443/ws/"}, "BTCUSDT", newFakeApplier(models.Timeframe1h), nil)
	assert.Equal(t, "wss://stream.binance.com:9443/ws/btcusdt@kline_1h", s.StreamURL(models.Timeframe1h))
	assert.Equal(t, "wss://stream.binance.com:9443/ws/btcusdt@kline_1M", s.StreamURL(models.Timeframe1M))
}

func TestKlineStream_AppliesUpdates(t *testing.T) {
	server, _, paths := createMockStream(t, 3, false)
	applier := newFakeApplier(models.Timeframe1m)
	s := createTestStream(server, applier)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return applier.count(models.Timeframe1m) == 3 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	path, ok := paths.Load(int32(1))
	require.True(t, ok)
	assert.Equal(t, "/ws/btcusdt@kline_1m", path)
	assert.Equal(t, 1, applier.finals)
}

func TestKlineStream_ReconnectsAfterDrop(t *testing.T) {
	server, connections, _ := createMockStream(t, 1, true)
	applier := newFakeApplier(models.Timeframe1m)
	s := createTestStream(server, applier)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	assert.Eventually(t, func() bool { return connections.Load() >= 3 }, 3*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, applier.count(models.Timeframe1m), 2)
}

func TestKlineStream_FollowsActiveTimeframe(t *testing.T) {
	server, connections, paths := createMockStream(t, 1, false)
	applier := newFakeApplier(models.Timeframe1m)
	s := createTestStream(server, applier)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	assert.Eventually(t, func() bool { return applier.count(models.Timeframe1m) == 1 }, 2*time.Second, 10*time.Millisecond)

	applier.setActive(models.Timeframe4h)
	assert.Eventually(t, func() bool { return connections.Load() >= 2 }, 3*time.Second, 10*time.Millisecond)

	path, ok := paths.Load(int32(2))
	require.True(t, ok)
	assert.Equal(t, "/ws/btcusdt@kline_4h", path)
}
