package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/johnayoung/go-btc-chart/internal/gaps"
	"github.com/johnayoung/go-btc-chart/internal/models"
	"github.com/johnayoung/go-btc-chart/internal/pager"
	"github.com/johnayoung/go-btc-chart/internal/price"
)

type stateResponse struct {
	pager.State
	Symbol  string         `json:"symbol"`
	Palette models.Palette `json:"palette"`
}

type timeframeRequest struct {
	Timeframe string `json:"timeframe" binding:"required"`
}

type scrollRequest struct {
	From *float64 `json:"from" binding:"required"`
	To   float64  `json:"to"`
}

type autoRequest struct {
	Enabled  bool   `json:"enabled"`
	Interval string `json:"interval"`
}

type pricesResponse struct {
	price.Snapshot
	Change        *float64 `json:"change,omitempty"`
	ChangePercent *float64 `json:"change_percent,omitempty"`
}

func (s *Server) stateResponse(c *gin.Context) stateResponse {
	return stateResponse{
		State:   s.deps.Controller.State(),
		Symbol:  s.deps.Symbol,
		Palette: s.palette(c.Query("theme")),
	}
}

func (s *Server) handleHealthz(c *gin.Context) {
	if s.deps.Health == nil {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
		return
	}
	report := s.deps.Health.Check(c.Request.Context())
	code := http.StatusOK
	if report.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, report)
}

func (s *Server) handleTimeframes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"timeframes": models.AllTimeframes(),
		"active":     s.deps.Controller.ActiveTimeframe(),
	})
}

func (s *Server) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, s.stateResponse(c))
}

func (s *Server) handleSetTimeframe(c *gin.Context) {
	var req timeframeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	tf, err := models.ParseTimeframe(req.Timeframe)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.deps.Controller.SetTimeframe(c.Request.Context(), tf); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, pager.ErrClosed) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, s.stateResponse(c))
}

func (s *Server) handleLoadOlder(c *gin.Context) {
	// the page lands in shared state; a client disconnect must not cancel it
	issued := s.deps.Controller.LoadOlder(context.WithoutCancel(c.Request.Context()))
	c.JSON(http.StatusOK, gin.H{
		"issued": issued,
		"state":  s.stateResponse(c),
	})
}

func (s *Server) handleScroll(c *gin.Context) {
	var req scrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	var requested bool
	if s.deps.Trigger != nil {
		requested = s.deps.Trigger.OnVisibleRangeChange(*req.From, req.To)
	} else {
		requested = s.deps.Controller.OnScrollNearOldest(c.Request.Context())
	}
	c.JSON(http.StatusAccepted, gin.H{"requested": requested})
}

func (s *Server) handleDismissError(c *gin.Context) {
	s.deps.Controller.DismissError()
	c.Status(http.StatusNoContent)
}

func (s *Server) handleGaps(c *gin.Context) {
	tf := s.deps.Controller.ActiveTimeframe()
	found := gaps.Detect(s.deps.Controller.Points(), tf)
	count, missing := gaps.Summary(found)
	if found == nil {
		found = []gaps.Gap{}
	}
	c.JSON(http.StatusOK, gin.H{
		"timeframe": tf,
		"count":     count,
		"missing":   missing,
		"gaps":      found,
	})
}

func (s *Server) handlePrices(c *gin.Context) {
	if s.deps.Poller == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "price polling is not configured"})
		return
	}
	if c.Query("refresh") == "true" {
		// failures are part of the snapshot
		s.deps.Poller.FetchPrices(c.Request.Context())
	}
	c.JSON(http.StatusOK, pricesFrom(s.deps.Poller.Snapshot()))
}

func (s *Server) handlePriceAuto(c *gin.Context) {
	if s.deps.Poller == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "price polling is not configured"})
		return
	}
	var req autoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	if !req.Enabled {
		s.deps.Poller.DisableAuto()
		c.JSON(http.StatusOK, pricesFrom(s.deps.Poller.Snapshot()))
		return
	}

	interval := price.DefaultInterval
	if req.Interval != "" {
		d, err := time.ParseDuration(req.Interval)
		if err != nil || d <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid interval: " + req.Interval})
			return
		}
		interval = d
	}
	s.deps.Poller.EnableAuto(interval)
	c.JSON(http.StatusOK, pricesFrom(s.deps.Poller.Snapshot()))
}

func pricesFrom(snap price.Snapshot) pricesResponse {
	resp := pricesResponse{Snapshot: snap}
	if abs, pct, ok := snap.Prices.Change(); ok {
		resp.Change = &abs
		resp.ChangePercent = &pct
	}
	return resp
}
