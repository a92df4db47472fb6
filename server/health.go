package server

import (
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

// handleHealth serves GET /health. Database or filesystem failure returns
// 503; zero available linters only degrades the reported status, since the
// API itself is still serving.
func (s *Server) handleHealth(c *gin.Context) {
	checks := gin.H{}
	healthy := true

	if err := s.pingDatabase(); err != nil {
		checks["database"] = gin.H{"ok": false, "error": err.Error()}
		healthy = false
	} else {
		checks["database"] = gin.H{"ok": true}
	}

	if err := s.checkFilesystem(); err != nil {
		checks["filesystem"] = gin.H{"ok": false, "error": err.Error()}
		healthy = false
	} else {
		checks["filesystem"] = gin.H{"ok": true}
	}

	statuses := s.deps.Prober.AllLinterStatus(c.Request.Context())
	var available []string
	for name, status := range statuses {
		if status.Available {
			available = append(available, name)
		}
	}
	sort.Strings(available)
	checks["linters"] = gin.H{"ok": len(available) > 0}

	status := "healthy"
	httpStatus := http.StatusOK
	switch {
	case !healthy:
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	case len(available) == 0:
		status = "degraded"
	}

	c.JSON(httpStatus, gin.H{
		"status": status,
		"checks": checks,
		"linters": gin.H{
			"total":           len(statuses),
			"available_count": len(available),
			"available":       available,
		},
		"uptime_ms": time.Since(s.deps.StartedAt).Milliseconds(),
	})
}

func (s *Server) pingDatabase() error {
	sqlDB, err := s.deps.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// checkFilesystem verifies the workspace base dir is writable
func (s *Server) checkFilesystem() error {
	probe := filepath.Join(s.deps.BaseDir, ".healthcheck")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return err
	}
	return os.Remove(probe)
}

// handleMetrics serves GET /metrics: the JSON operational snapshot
func (s *Server) handleMetrics(c *gin.Context) {
	ctx := c.Request.Context()

	cacheStats, err := s.deps.Cache.Stats(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	jobStats, err := s.deps.Jobs.Stats(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	runningJobs, err := s.deps.Jobs.Running(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	runningViews := make([]gin.H, 0, len(runningJobs))
	for i := range runningJobs {
		runningViews = append(runningViews, jobView(&runningJobs[i]))
	}

	payload := gin.H{
		"cache":              cacheStats,
		"cache_counters":     s.deps.Cache.HitMissStats(),
		"jobs":               jobStats,
		"running_jobs":       runningViews,
		"running_processes":  s.deps.Prober.RunningProcesses(),
		"process":            processStats(),
		"uptime_ms":          time.Since(s.deps.StartedAt).Milliseconds(),
	}

	if s.deps.Stats != nil {
		if executions, err := s.deps.Stats.Summary(24 * time.Hour); err == nil {
			payload["executions_24h"] = executions
		}
	}

	c.JSON(http.StatusOK, payload)
}

func processStats() gin.H {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return gin.H{
		"alloc_bytes":       mem.Alloc,
		"sys_bytes":         mem.Sys,
		"heap_alloc_bytes":  mem.HeapAlloc,
		"num_gc":            mem.NumGC,
		"goroutines":        runtime.NumGoroutine(),
	}
}
