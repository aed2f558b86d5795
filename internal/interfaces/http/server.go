// Package http exposes the reconciliation service over a small JSON API.
// Handlers only translate requests; all rules live in the service.
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haulmark/invoice-audit/internal/application/service"
	"github.com/haulmark/invoice-audit/pkg/metrics"
)

// Logger is the key-value logger the HTTP layer writes to
type Logger interface {
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

// HealthFunc reports overall health and per-component details
type HealthFunc func() (healthy bool, details any)

// ServerConfig holds listener and request limits. CORS is enabled only
// when CORSOrigins is not empty.
type ServerConfig struct {
	Host          string
	Port          int
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	MaxUploadSize int64
	CORSOrigins   []string
}

// Options carries the optional collaborators of the server. /metrics is
// served only when Gatherer is set; Now defaults to time.Now.
type Options struct {
	Health   HealthFunc
	Jobs     *metrics.JobMetrics
	Gatherer prometheus.Gatherer
	Now      func() time.Time
}

const shutdownTimeout = 10 * time.Second

// DefaultServerConfig listens on all interfaces at 8080 with a 20 MiB
// upload limit.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:          "0.0.0.0",
		Port:          8080,
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  30 * time.Second,
		MaxUploadSize: 20 << 20,
	}
}

// Server binds the reconciliation handlers to a gin router
type Server struct {
	config ServerConfig
	router *gin.Engine
	logger Logger
}

// NewServer builds the router with middleware and routes in place
func NewServer(config ServerConfig, reconciliation service.ReconciliationService, opts Options, logger Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.MaxMultipartMemory = config.MaxUploadSize

	s := &Server{config: config, router: router, logger: logger}
	router.Use(gin.Recovery(), s.requestLog())
	if len(config.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:  config.CORSOrigins,
			AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
			AllowHeaders:  []string{"Origin", "Content-Type"},
			ExposeHeaders: []string{"Content-Length", "Content-Disposition"},
			MaxAge:        12 * time.Hour,
		}))
	}

	h := NewHandlers(reconciliation, opts.Health, opts.Jobs, logger)
	h.maxUpload = config.MaxUploadSize
	if opts.Now != nil {
		h.now = opts.Now
	}
	registerRoutes(router, h, opts.Gatherer, config.MaxUploadSize)
	return s
}

// requestLog writes one entry per request, at warn for 4xx and error for 5xx
func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		kv := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency", time.Since(start).String(),
		}
		switch {
		case status >= http.StatusInternalServerError:
			s.logger.Error("HTTP request", kv...)
		case status >= http.StatusBadRequest:
			s.logger.Warn("HTTP request", kv...)
		default:
			s.logger.Info("HTTP request", kv...)
		}
	}
}

// limitBody answers 413 for bodies larger than limit. Declared lengths are
// checked up front; chunked bodies are cut off while the handler reads.
func limitBody(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit <= 0 {
			c.Next()
			return
		}
		if c.Request.ContentLength > limit {
			abortTooLarge(c, limit)
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

func abortTooLarge(c *gin.Context, limit int64) {
	c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, Response{
		Success: false,
		Error:   fmt.Sprintf("upload exceeds the %d byte limit", limit),
	})
}

func registerRoutes(r *gin.Engine, h *Handlers, gatherer prometheus.Gatherer, maxUpload int64) {
	r.GET("/health", h.HealthCheck)
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")
	api.GET("/imports", h.ImportHistory)

	records := api.Group("/records")
	records.GET("", h.ListRecords)
	records.POST("/import", limitBody(maxUpload), h.ImportRecords)
	records.POST("/sync", h.SyncLoads)
	records.PUT("/:id", h.UpdateRecord)
	records.DELETE("/:id", h.DeleteRecord)
	records.GET("/unbilled-export", h.UnbilledExport)
	records.GET("/export.xlsx", h.ExportWorkbook)
}

// Start listens on the configured address and serves until ctx is
// cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()
	s.logger.Info("HTTP server listening", "address", ln.Addr().String())

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown failed", "error", err)
		return err
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

// Router exposes the gin engine to tests
func (s *Server) Router() *gin.Engine {
	return s.router
}
