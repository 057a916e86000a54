// Package api exposes the chart feed to a rendering layer over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/johnayoung/go-btc-chart/internal/config"
	"github.com/johnayoung/go-btc-chart/internal/metrics"
	"github.com/johnayoung/go-btc-chart/internal/models"
	"github.com/johnayoung/go-btc-chart/internal/pager"
	"github.com/johnayoung/go-btc-chart/internal/price"
	"github.com/johnayoung/go-btc-chart/internal/viewport"
)

// Deps are the components the API serves.
type Deps struct {
	Controller *pager.Controller
	Poller     *price.Poller
	Trigger    *viewport.Trigger
	Health     *metrics.Health
	// Collector, when set, is served at MetricsPath and records requests.
	Collector   *metrics.Collector
	MetricsPath string
	Chart       config.ChartConfig
	Symbol      string
	Logger      *slog.Logger
}

// Server is the HTTP API.
type Server struct {
	deps            Deps
	engine          *gin.Engine
	httpServer      *http.Server
	logger          *slog.Logger
	recorder        apiRecorder
	shutdownTimeout time.Duration
}

// NewServer builds the router for deps.
func NewServer(cfg config.ServerConfig, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.MetricsPath == "" {
		deps.MetricsPath = "/metrics"
	}

	s := &Server{
		deps:            deps,
		logger:          deps.Logger.With("component", "api"),
		recorder:        noopAPIRecorder{},
		shutdownTimeout: config.DurationOr(cfg.ShutdownTimeout, 10*time.Second),
	}
	if deps.Collector != nil {
		s.recorder = deps.Collector
	}

	s.engine = s.routes()
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestIDMiddleware())
	r.Use(loggingMiddleware(s.logger, s.recorder))

	r.GET("/healthz", s.handleHealthz)
	if s.deps.Collector != nil {
		r.GET(s.deps.MetricsPath, gin.WrapH(s.deps.Collector.Handler()))
	}

	v1 := r.Group("/api/v1")
	{
		v1.GET("/timeframes", s.handleTimeframes)
		v1.GET("/state", s.handleState)
		v1.PUT("/timeframe", s.handleSetTimeframe)
		v1.POST("/older", s.handleLoadOlder)
		v1.POST("/scroll", s.handleScroll)
		v1.DELETE("/error", s.handleDismissError)
		v1.GET("/gaps", s.handleGaps)
		v1.GET("/prices", s.handlePrices)
		v1.PUT("/prices/auto", s.handlePriceAuto)
	}
	return r
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api shutdown failed: %w", err)
	}
	s.logger.Info("api stopped")
	return nil
}

// palette returns the palette for theme, falling back to the configured
// theme and then to light. Configured colours override the theme's.
func (s *Server) palette(theme string) models.Palette {
	palettes := models.DefaultPalettes()
	p, ok := palettes[theme]
	if !ok {
		if p, ok = palettes[s.deps.Chart.Theme]; !ok {
			p = palettes["light"]
		}
	}
	if s.deps.Chart.UpColor != "" {
		p.Up = s.deps.Chart.UpColor
	}
	if s.deps.Chart.DownColor != "" {
		p.Down = s.deps.Chart.DownColor
	}
	return p
}
