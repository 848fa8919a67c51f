// internal/api/server.go
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lender-match-workers/internal/common/logger"
)

// ReadinessCheck reports whether a dependency is usable.
type ReadinessCheck func(ctx context.Context) error

type Config struct {
	Port           int
	RateLimit      float64
	RateBurst      int
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

type Server struct {
	cfg         Config
	recommender RecommendationService
	checks      map[string]ReadinessCheck
	logger      logger.Logger
	engine      *gin.Engine
	httpServer  *http.Server
}

func NewServer(cfg Config, recommender RecommendationService, checks map[string]ReadinessCheck, log logger.Logger) *Server {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 10
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 20
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}

	s := &Server{
		cfg:         cfg,
		recommender: recommender,
		checks:      checks,
		logger:      log.WithFields(map[string]interface{}{"component": "api"}),
	}
	s.engine = s.routes()
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           http.TimeoutHandler(s.engine, cfg.RequestTimeout, `{"error":"TIMEOUT_ERROR"}`),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestIDMiddleware(), LoggingMiddleware(s.logger))

	r.GET("/health", s.health)
	r.GET("/ready", s.ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	v1.Use(
		RateLimitMiddleware(NewClientLimiter(s.cfg.RateLimit, s.cfg.RateBurst, 0)),
		BodyLimitMiddleware(s.cfg.MaxBodyBytes),
	)
	{
		v1.POST("/recommendations", s.recommend)
		v1.GET("/products", s.listProducts)
		v1.GET("/products/categories", s.listCategories)
	}
	return r
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until Shutdown is called. It returns nil on a clean shutdown.
func (s *Server) Start() error {
	s.logger.Info("REST API listening", map[string]interface{}{"port": s.cfg.Port})

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
