// Package api is the HTTP surface of the chart daemon: health, metrics, the
// current selection and series, and the rendered chart image.
package api

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yitech/pricechart/chart"
	"github.com/yitech/pricechart/model/selection"
	"github.com/yitech/pricechart/session"
)

const (
	DefaultTimeout      = 30 * time.Second
	ServiceName         = "pricechart"
	ServiceVersion      = "1.0.0"
	RequestIDContextKey = "request_id"
	RequestIDHeaderKey  = "X-Request-ID"
)

// ChartService is the session as seen by the HTTP handlers.
type ChartService interface {
	Activate(ctx context.Context, sel selection.Selection) error
	Current() session.View
}

// Renderer draws spec as an image.
type Renderer func(w io.Writer, spec chart.Spec) error

// Options configures optional parts of the API.
type Options struct {
	// Gatherer backs GET /metrics; nil disables the route.
	Gatherer prometheus.Gatherer
	// Render backs GET /chart.png; nil disables the route.
	Render Renderer
	// CORSOrigins lists allowed origins; "*" allows any.
	CORSOrigins []string
}

// APIHandler handles HTTP requests using Gin framework
type APIHandler struct {
	svc    ChartService
	opts   Options
	logger *slog.Logger
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(svc ChartService, opts Options, logger *slog.Logger) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIHandler{svc: svc, opts: opts, logger: logger}
}

// SetupRoutes configures all API routes
func (h *APIHandler) SetupRoutes() *gin.Engine {
	router := gin.New()

	router.Use(requestIDMiddleware())
	router.Use(loggerMiddleware(h.logger))
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(h.opts.CORSOrigins))

	router.GET("/health", h.HealthCheck)
	if h.opts.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.opts.Gatherer, promhttp.HandlerOpts{})))
	}
	if h.opts.Render != nil {
		router.GET("/chart.png", h.GetChartPNG)
	}

	v1 := router.Group("/api/v1")
	v1.GET("/selection", h.GetSelection)
	v1.PUT("/selection", h.PutSelection)
	v1.GET("/series", h.GetSeries)
	v1.GET("/intervals", h.GetIntervals)

	return router
}
