// Package server exposes the engine over HTTP.
package server

import (
	"log/slog"
	"net/http"
	"net/http/pprof"

	"semembed/engine"
	"semembed/metrics"

	"github.com/gin-gonic/gin"
)

// DefaultMaxBodyBytes bounds an embeddings request body.
const DefaultMaxBodyBytes = 32 << 20

type Server struct {
	engine       *engine.Engine
	metrics      *metrics.Collector
	logger       *slog.Logger
	router       *gin.Engine
	maxBodyBytes int64
}

type Option func(*Server)

// WithMaxBodyBytes overrides DefaultMaxBodyBytes. Non-positive values
// keep the default.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// New builds the router. Callers pick the gin mode beforehand.
func New(e *engine.Engine, m *metrics.Collector, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{engine: e, metrics: m, logger: logger, maxBodyBytes: DefaultMaxBodyBytes}
	for _, opt := range opts {
		opt(s)
	}

	r := gin.New()
	r.Use(
		gin.CustomRecovery(s.handlePanic),
		requestID(),
		accessLog(logger),
		cors(),
	)
	s.register(r)
	s.router = r
	return s
}

func (s *Server) register(r *gin.Engine) {
	r.POST("/v1/embeddings", s.handleEmbeddings)
	r.POST("/embeddings", s.handleEmbeddings)
	r.GET("/health", s.handleHealth)
	r.GET("/models", s.handleModels)
	r.GET("/v1/models", s.handleCatalog)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	r.NoRoute(func(c *gin.Context) {
		writeJSONError(c, http.StatusNotFound, "route not found", "invalid_request_error", "not_found")
	})
}

// EnablePprof registers the runtime profiling handlers.
func (s *Server) EnablePprof() {
	g := s.router.Group("/debug/pprof")
	g.GET("/", gin.WrapF(pprof.Index))
	g.GET("/cmdline", gin.WrapF(pprof.Cmdline))
	g.GET("/profile", gin.WrapF(pprof.Profile))
	g.GET("/symbol", gin.WrapF(pprof.Symbol))
	g.GET("/trace", gin.WrapF(pprof.Trace))
	g.GET("/:name", func(c *gin.Context) {
		pprof.Handler(c.Param("name")).ServeHTTP(c.Writer, c.Request)
	})
	s.logger.Info("debug mode on, pprof enabled")
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}
