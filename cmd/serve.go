package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flanksource/commons/logger"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flanksource/lint-api/cache"
	"github.com/flanksource/lint-api/config"
	"github.com/flanksource/lint-api/internal/db"
	"github.com/flanksource/lint-api/internal/stats"
	"github.com/flanksource/lint-api/jobs"
	"github.com/flanksource/lint-api/linters"
	"github.com/flanksource/lint-api/pipeline"
	"github.com/flanksource/lint-api/runner"
	"github.com/flanksource/lint-api/server"
	"github.com/flanksource/lint-api/workspace"
)

var warmCacheFile string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the lint API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return serve(cfg)
	},
}

func init() {
	serveCmd.Flags().StringVar(&warmCacheFile, "warm-cache", "", "YAML file of cache warm-up entries")
	rootCmd.AddCommand(serveCmd)
}

func serve(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gormDB, err := db.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	linterStats, err := stats.NewLinterStats(cfg.Database.StatsPath)
	if err != nil {
		logger.Warnf("Execution stats disabled: %v", err)
		linterStats = nil
	} else {
		defer linterStats.Close()
	}

	workspaces, err := workspace.NewManager(cfg.Workspace)
	if err != nil {
		return fmt.Errorf("failed to initialize workspace manager: %w", err)
	}

	registry := linters.Default()
	linterRunner := runner.New(registry, workspaces, cfg.Runner)

	cacheService := cache.NewService(db.NewResultStore(gormDB), cfg.Cache)
	defer cacheService.Stop()

	pipelineService := pipeline.NewService(registry, workspaces, linterRunner, cacheService, linterStats)

	jobManager := jobs.NewManager(db.NewJobStore(gormDB), pipelineService, cfg.Jobs)
	if err := jobManager.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Jobs.Timeout())
		defer cancel()
		if err := jobManager.Stop(stopCtx); err != nil {
			logger.Warnf("Job manager shutdown: %v", err)
		}
	}()

	if warmCacheFile != "" {
		warmCache(ctx, cacheService, warmCacheFile)
	}

	// Periodically reap workspaces left behind by crashed requests
	go func() {
		ticker := time.NewTicker(cfg.Workspace.TTL())
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				workspaces.CleanupExpired()
			case <-ctx.Done():
				return
			}
		}
	}()

	srv := server.New(cfg.Server, server.Deps{
		Registry: registry,
		Pipeline: pipelineService,
		Jobs:     jobManager,
		Cache:    cacheService,
		Prober:   linterRunner,
		Metrics:  db.NewMetricStore(gormDB),
		Stats:    linterStats,
		DB:       gormDB,
		BaseDir:  workspaces.BaseDir(),
	})

	return srv.Start(ctx)
}

// warmCache seeds the cache from a YAML list of {linter, format, content,
// options} entries; failures never abort startup
func warmCache(ctx context.Context, cacheService *cache.Service, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warnf("Failed to read warm-cache file %s: %v", path, err)
		return
	}

	var configs []cache.WarmConfig
	if err := yaml.Unmarshal(data, &configs); err != nil {
		logger.Warnf("Failed to parse warm-cache file %s: %v", path, err)
		return
	}

	warmed := cacheService.WarmCache(ctx, configs)
	logger.Infof("Warmed %d of %d cache entries", warmed, len(configs))
}
