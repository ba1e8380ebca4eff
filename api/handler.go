package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yitech/pricechart/buffer"
	"github.com/yitech/pricechart/chart"
	"github.com/yitech/pricechart/chart/png"
	"github.com/yitech/pricechart/model/selection"
	"github.com/yitech/pricechart/session"
)

type selectionRequest struct {
	Symbol   string `json:"symbol" binding:"required"`
	Interval string `json:"interval" binding:"required"`
}

type granularityResponse struct {
	Unit string `json:"unit"`
	Step int    `json:"step"`
}

type selectionResponse struct {
	Symbol      string              `json:"symbol"`
	Interval    string              `json:"interval"`
	Granularity granularityResponse `json:"granularity"`
	State       string              `json:"state"`
	Samples     int                 `json:"samples"`
}

type seriesResponse struct {
	selectionResponse
	// Data is the Chart.js data object, the same layout snapshots use.
	Data json.RawMessage `json:"data"`
}

func newSelectionResponse(v session.View) selectionResponse {
	return selectionResponse{
		Symbol:   v.Selection.Symbol,
		Interval: string(v.Selection.Interval),
		Granularity: granularityResponse{
			Unit: string(v.Granularity.Unit),
			Step: v.Granularity.Step,
		},
		State:   v.State.String(),
		Samples: v.Series.Len(),
	}
}

// HealthCheck handles GET /health requests
func (h *APIHandler) HealthCheck(c *gin.Context) {
	v := h.svc.Current()
	c.JSON(http.StatusOK, gin.H{
		"status":    "OK",
		"service":   ServiceName,
		"version":   ServiceVersion,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"active":    v.Active,
		"stream":    v.State.String(),
	})
}

// GetSelection handles GET /api/v1/selection requests
func (h *APIHandler) GetSelection(c *gin.Context) {
	v, ok := h.current(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newSelectionResponse(v))
}

// PutSelection handles PUT /api/v1/selection requests
func (h *APIHandler) PutSelection(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	var req selectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.handleValidationError(c, err)
		return
	}
	sel := selection.New(req.Symbol, req.Interval)
	if err := sel.Validate(); err != nil {
		h.handleValidationError(c, err)
		return
	}

	if err := h.svc.Activate(ctx, sel); err != nil {
		switch {
		case errors.Is(err, session.ErrClosed):
			h.handleError(c, err, http.StatusServiceUnavailable, "Session is shutting down")
		case errors.Is(err, context.DeadlineExceeded):
			h.handleError(c, err, http.StatusGatewayTimeout, "Selection change timed out")
		default:
			h.handleError(c, err, http.StatusInternalServerError, "Internal server error")
		}
		return
	}
	c.JSON(http.StatusOK, newSelectionResponse(h.svc.Current()))
}

// GetSeries handles GET /api/v1/series requests
func (h *APIHandler) GetSeries(c *gin.Context) {
	v, ok := h.current(c)
	if !ok {
		return
	}
	data, err := buffer.MarshalSnapshot(v.Series)
	if err != nil {
		h.handleError(c, err, http.StatusInternalServerError, "Internal server error")
		return
	}
	c.JSON(http.StatusOK, seriesResponse{
		selectionResponse: newSelectionResponse(v),
		Data:              data,
	})
}

// GetIntervals handles GET /api/v1/intervals requests
func (h *APIHandler) GetIntervals(c *gin.Context) {
	out := make([]gin.H, 0, len(selection.Intervals))
	for _, iv := range selection.Intervals {
		g := iv.Granularity()
		out = append(out, gin.H{
			"interval": string(iv),
			"unit":     string(g.Unit),
			"step":     g.Step,
		})
	}
	c.JSON(http.StatusOK, out)
}

// GetChartPNG handles GET /chart.png requests
func (h *APIHandler) GetChartPNG(c *gin.Context) {
	v, ok := h.current(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	err := h.opts.Render(&buf, chart.Spec{
		Selection:   v.Selection,
		Granularity: v.Granularity,
		Series:      v.Series,
	})
	if errors.Is(err, png.ErrNoData) {
		c.Status(http.StatusNoContent)
		return
	}
	if err != nil {
		h.handleError(c, err, http.StatusInternalServerError, "Render failed")
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

// current returns the session view, answering 503 if nothing is active yet.
func (h *APIHandler) current(c *gin.Context) (session.View, bool) {
	v := h.svc.Current()
	if !v.Active {
		h.handleError(c, errors.New("no active selection"), http.StatusServiceUnavailable, "No active selection")
		return v, false
	}
	return v, true
}

// handleError logs the error and sends appropriate HTTP response
func (h *APIHandler) handleError(c *gin.Context, err error, statusCode int, userMessage string) {
	requestID := c.GetString(RequestIDContextKey)
	if requestID == "" {
		requestID = "unknown"
	}

	h.logger.Error("API error",
		slog.String("request_id", requestID),
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("error", err.Error()),
		slog.Int("status_code", statusCode),
	)

	c.JSON(statusCode, gin.H{
		"error":      userMessage,
		"request_id": requestID,
	})
}

// handleValidationError handles validation errors specifically
func (h *APIHandler) handleValidationError(c *gin.Context, err error) {
	h.handleError(c, err, http.StatusBadRequest, err.Error())
}
