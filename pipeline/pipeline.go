package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/flanksource/commons/logger"

	"github.com/flanksource/lint-api/cache"
	"github.com/flanksource/lint-api/internal/stats"
	"github.com/flanksource/lint-api/linters"
	"github.com/flanksource/lint-api/models"
	"github.com/flanksource/lint-api/workspace"
)

// LintRequest is the decoded body of one lint invocation, synchronous or
// job-dispatched. Exactly one of Content or Archive must be set.
type LintRequest struct {
	Linter   string
	Format   string
	Content  string
	Filename string
	// Archive is a base-64 encoded gzip tar payload
	Archive string
	Options *models.LintOptions
}

// LintResponse pairs the normalized result with its cache provenance
type LintResponse struct {
	Result   *models.ExecutionResult
	CacheHit bool
}

// Runner executes one linter against a prepared workspace. *runner.Runner
// satisfies it.
type Runner interface {
	Run(ctx context.Context, execution models.Execution) (*models.ExecutionResult, error)
}

// Workspaces materializes and disposes request workspaces.
// *workspace.Manager satisfies it.
type Workspaces interface {
	CreateFromText(ctx context.Context, content, filename string) (*workspace.Workspace, error)
	CreateFromBase64(ctx context.Context, encoded string) (*workspace.Workspace, error)
	Cleanup(path string)
}

// Service is the per-request glue: validate, consult cache, build
// workspace, run, store, clean up. Both the HTTP handlers and the job
// workers drive it.
type Service struct {
	registry   *linters.Registry
	workspaces Workspaces
	runner     Runner
	cache      *cache.Service
	stats      *stats.LinterStats
}

// NewService wires the orchestrator. stats may be nil when execution
// accounting is disabled.
func NewService(registry *linters.Registry, workspaces Workspaces, runner Runner, cacheService *cache.Service, linterStats *stats.LinterStats) *Service {
	return &Service{
		registry:   registry,
		workspaces: workspaces,
		runner:     runner,
		cache:      cacheService,
		stats:      linterStats,
	}
}

// Registry exposes the descriptor table for route validation
func (s *Service) Registry() *linters.Registry {
	return s.registry
}

// Validate checks the linter and format of a request without running it
func (s *Service) Validate(req *LintRequest) error {
	descriptor, ok := s.registry.Get(req.Linter)
	if !ok {
		return models.NewInvalidParametersError(fmt.Sprintf("unknown linter: %s", req.Linter))
	}

	switch req.Format {
	case linters.FormatJSON, linters.FormatText, linters.FormatSARIF:
	default:
		return models.NewInvalidParametersError(fmt.Sprintf("unknown format: %s", req.Format))
	}
	if !descriptor.SupportsFormat(req.Format) {
		return models.NewUnsupportedFormatError(req.Linter, req.Format)
	}

	if req.Content == "" && req.Archive == "" {
		return models.NewValidationError("request must include content or archive")
	}
	return nil
}

// Lint runs the full synchronous pipeline: validate, cache lookup, and on
// a miss workspace + runner + cache store. The workspace is removed on
// every exit path.
func (s *Service) Lint(ctx context.Context, req *LintRequest) (*LintResponse, error) {
	if err := s.Validate(req); err != nil {
		return nil, err
	}

	contentHash, err := s.contentHash(req)
	if err != nil {
		return nil, err
	}
	optionsHash := cache.OptionsHash(req.Options)

	if entry := s.cache.Get(ctx, contentHash, req.Linter, optionsHash); entry != nil {
		result, err := decodeResult(entry.Result)
		if err == nil {
			logger.Debugf("Cache hit for %s", entry.CacheKey())
			return &LintResponse{Result: result, CacheHit: true}, nil
		}
		// A corrupt entry falls through to recomputation
		logger.Warnf("Discarding undecodable cache entry %s: %v", entry.CacheKey(), err)
	}

	ws, err := s.createWorkspace(ctx, req)
	if err != nil {
		return nil, err
	}
	defer s.workspaces.Cleanup(ws.Path)

	execution := models.Execution{
		Linter:        req.Linter,
		WorkspacePath: ws.Path,
		Options:       req.Options,
		TimeoutMs:     req.Options.Timeout(),
	}

	started := time.Now()
	result, err := s.runner.Run(ctx, execution)
	s.recordExecution(req.Linter, ws.Path, time.Since(started), result, err)
	if err != nil {
		return nil, err
	}

	s.storeResult(ctx, contentHash, req, optionsHash, result)
	return &LintResponse{Result: result}, nil
}

// Execute adapts a persisted job request onto the same pipeline; the job
// manager drives it from its workers.
func (s *Service) Execute(ctx context.Context, job *models.LintJob) (*models.ExecutionResult, error) {
	var opts *models.LintOptions
	if job.Options != "" {
		opts = &models.LintOptions{}
		if err := json.Unmarshal([]byte(job.Options), opts); err != nil {
			return nil, models.NewValidationError(fmt.Sprintf("invalid job options: %v", err))
		}
	}

	resp, err := s.Lint(ctx, &LintRequest{
		Linter:   job.LinterType,
		Format:   job.Format,
		Content:  job.Content,
		Filename: job.Filename,
		Archive:  job.Archive,
		Options:  opts,
	})
	if err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// contentHash digests the raw submitted bytes. Archives are decoded first so
// the key does not depend on which base-64 alphabet carried the payload.
func (s *Service) contentHash(req *LintRequest) (string, error) {
	if req.Archive != "" {
		data, err := workspace.DecodeBase64(req.Archive)
		if err != nil {
			return "", models.NewValidationError(fmt.Sprintf("invalid base64 archive: %v", err))
		}
		return cache.ContentHash(data), nil
	}
	return cache.ContentHash([]byte(req.Content)), nil
}

func (s *Service) createWorkspace(ctx context.Context, req *LintRequest) (*workspace.Workspace, error) {
	if req.Archive != "" {
		return s.workspaces.CreateFromBase64(ctx, req.Archive)
	}
	return s.workspaces.CreateFromText(ctx, req.Content, req.Filename)
}

// storeResult caches a completed run. Write failures are surfaced to the
// log but not the caller: the lint itself succeeded.
func (s *Service) storeResult(ctx context.Context, contentHash string, req *LintRequest, optionsHash string, result *models.ExecutionResult) {
	serialized, err := json.Marshal(result)
	if err != nil {
		logger.Warnf("Failed to serialize result for caching: %v", err)
		return
	}
	if _, err := s.cache.Set(ctx, contentHash, req.Linter, req.Format, optionsHash,
		string(serialized), models.ResultStatusSuccess, "", 0); err != nil {
		logger.Warnf("Failed to cache result for %s: %v", req.Linter, err)
	}
}

func (s *Service) recordExecution(linter, workDir string, elapsed time.Duration, result *models.ExecutionResult, err error) {
	if s.stats == nil {
		return
	}
	issues := 0
	success := err == nil
	if result != nil {
		issues = len(result.Issues)
	}
	if recordErr := s.stats.RecordExecution(linter, workDir, elapsed, issues, success); recordErr != nil {
		logger.Debugf("Failed to record execution stats: %v", recordErr)
	}
}

func decodeResult(serialized string) (*models.ExecutionResult, error) {
	var result models.ExecutionResult
	if err := json.Unmarshal([]byte(serialized), &result); err != nil {
		return nil, errors.New("cache entry does not decode to an execution result")
	}
	return &result, nil
}
