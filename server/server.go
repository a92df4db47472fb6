package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/flanksource/commons/logger"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/flanksource/lint-api/cache"
	"github.com/flanksource/lint-api/config"
	"github.com/flanksource/lint-api/internal/db"
	"github.com/flanksource/lint-api/internal/stats"
	"github.com/flanksource/lint-api/linters"
	"github.com/flanksource/lint-api/models"
	"github.com/flanksource/lint-api/pipeline"
	"github.com/flanksource/lint-api/runner"
)

// Pipeline is the synchronous lint entry point. *pipeline.Service
// satisfies it.
type Pipeline interface {
	Lint(ctx context.Context, req *pipeline.LintRequest) (*pipeline.LintResponse, error)
	Validate(req *pipeline.LintRequest) error
}

// Jobs is the asynchronous scheduler surface. *jobs.Manager satisfies it.
type Jobs interface {
	Submit(ctx context.Context, req *models.JobRequest) (*models.LintJob, error)
	Status(ctx context.Context, jobID string) (*models.LintJob, error)
	Cancel(ctx context.Context, jobID string) (bool, error)
	Stats(ctx context.Context) (*models.JobStats, error)
	Running(ctx context.Context) ([]models.LintJob, error)
}

// Prober reports linter availability and live subprocess ids.
// *runner.Runner satisfies it.
type Prober interface {
	AllLinterStatus(ctx context.Context) map[string]runner.LinterStatus
	RunningProcesses() []string
}

// Deps carries everything the handlers need
type Deps struct {
	Registry  *linters.Registry
	Pipeline  Pipeline
	Jobs      Jobs
	Cache     *cache.Service
	Prober    Prober
	Metrics   *db.MetricStore
	Stats     *stats.LinterStats
	DB        *gorm.DB
	BaseDir   string
	StartedAt time.Time
}

// Server is the HTTP front of the lint API
type Server struct {
	cfg    config.ServerConfig
	deps   Deps
	engine *gin.Engine
	http   *http.Server
	prom   *promMetrics
}

// New builds the gin engine with all routes and middleware registered
func New(cfg config.ServerConfig, deps Deps) *Server {
	if deps.StartedAt.IsZero() {
		deps.StartedAt = time.Now()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		engine: engine,
		prom:   newPromMetrics(deps),
	}

	engine.Use(
		requestIDMiddleware(),
		accessLogMiddleware(),
		recoveryMiddleware(),
		rateLimitMiddleware(cfg),
		s.metricsMiddleware(),
	)
	s.routes()
	return s
}

// Engine exposes the router for tests
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) routes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/linters", s.handleLinters)
	s.engine.GET("/metrics", s.handleMetrics)
	s.engine.GET("/metrics/prometheus", s.prom.handler())
	s.engine.DELETE("/cache", s.handleCacheInvalidate)

	s.engine.GET("/jobs/:job_id", s.handleJobStatus)
	s.engine.DELETE("/jobs/:job_id", s.handleJobCancel)

	s.engine.POST("/:linter/:format", s.handleLint)
	s.engine.POST("/:linter/:format/async", s.handleLintAsync)
	s.engine.GET("/:linter/:format/:encoded", s.handleLintEncoded)
}

// Start serves until ctx is cancelled, then drains connections within the
// configured shutdown timeout
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Infof("Listening on %s", addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(),
			time.Duration(s.cfg.ShutdownTimeoutSeconds)*time.Second)
		defer cancel()

		logger.Infof("Shutting down HTTP server")
		return s.http.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
