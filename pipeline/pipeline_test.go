package pipeline

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flanksource/lint-api/cache"
	"github.com/flanksource/lint-api/config"
	"github.com/flanksource/lint-api/internal/db"
	"github.com/flanksource/lint-api/linters"
	"github.com/flanksource/lint-api/models"
	"github.com/flanksource/lint-api/workspace"
)

// stubRunner counts invocations and returns a canned result
type stubRunner struct {
	runs   atomic.Int64
	result *models.ExecutionResult
	err    error
}

func (s *stubRunner) Run(ctx context.Context, execution models.Execution) (*models.ExecutionResult, error) {
	s.runs.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	return &models.ExecutionResult{Success: true, Issues: []models.Issue{}, FileCount: 1}, nil
}

func newTestPipeline(t *testing.T, r Runner) *Service {
	t.Helper()
	gormDB, err := db.Open(filepath.Join(t.TempDir(), "pipeline-test.db"))
	require.NoError(t, err)

	cacheService := cache.NewService(db.NewResultStore(gormDB), config.CacheConfig{
		TTLHours:      1,
		MemoryEnabled: true,
	})
	t.Cleanup(cacheService.Stop)

	workspaces, err := workspace.NewManager(config.WorkspaceConfig{
		BaseDir:             filepath.Join(t.TempDir(), "workspaces"),
		MaxFileSizeBytes:    1024 * 1024,
		MaxArchiveSizeBytes: 4 * 1024 * 1024,
		MaxFileCount:        10,
		TTLMinutes:          60,
	})
	require.NoError(t, err)

	return NewService(linters.Default(), workspaces, r, cacheService, nil)
}

func TestValidateRequest(t *testing.T) {
	svc := newTestPipeline(t, &stubRunner{})

	tests := []struct {
		name string
		req  *LintRequest
		code models.ErrorCode
	}{
		{
			name: "unknown linter",
			req:  &LintRequest{Linter: "invalidlinter", Format: "json", Content: "x"},
			code: models.ErrInvalidParameters,
		},
		{
			name: "unknown format",
			req:  &LintRequest{Linter: "eslint", Format: "xml", Content: "x"},
			code: models.ErrInvalidParameters,
		},
		{
			name: "format not offered by the linter",
			req:  &LintRequest{Linter: "yamllint", Format: "sarif", Content: "x"},
			code: models.ErrUnsupportedFormat,
		},
		{
			name: "no content and no archive",
			req:  &LintRequest{Linter: "eslint", Format: "json"},
			code: models.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Validate(tt.req)
			var appErr *models.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.code, appErr.Code)
		})
	}

	t.Run("valid request", func(t *testing.T) {
		assert.NoError(t, svc.Validate(&LintRequest{Linter: "eslint", Format: "json", Content: "x"}))
	})
}

func TestLint(t *testing.T) {
	ctx := context.Background()

	t.Run("miss runs the linter and caches the result", func(t *testing.T) {
		runner := &stubRunner{}
		svc := newTestPipeline(t, runner)
		req := &LintRequest{Linter: "eslint", Format: "json", Content: "var x = 1", Filename: "a.js"}

		resp, err := svc.Lint(ctx, req)
		require.NoError(t, err)
		assert.False(t, resp.CacheHit)
		assert.True(t, resp.Result.Success)
		assert.Equal(t, int64(1), runner.runs.Load())

		resp, err = svc.Lint(ctx, req)
		require.NoError(t, err)
		assert.True(t, resp.CacheHit)
		assert.Equal(t, int64(1), runner.runs.Load(), "cache hit must not re-run the linter")
	})

	t.Run("different options miss the cache", func(t *testing.T) {
		runner := &stubRunner{}
		svc := newTestPipeline(t, runner)
		base := &LintRequest{Linter: "eslint", Format: "json", Content: "var x = 1", Filename: "a.js"}

		_, err := svc.Lint(ctx, base)
		require.NoError(t, err)

		withFix := *base
		withFix.Options = &models.LintOptions{Fix: true}
		resp, err := svc.Lint(ctx, &withFix)
		require.NoError(t, err)
		assert.False(t, resp.CacheHit)
		assert.Equal(t, int64(2), runner.runs.Load())
	})

	t.Run("runner failures are not cached", func(t *testing.T) {
		runner := &stubRunner{err: models.NewLinterExecutionError("boom", nil)}
		svc := newTestPipeline(t, runner)
		req := &LintRequest{Linter: "eslint", Format: "json", Content: "var x = 1"}

		_, err := svc.Lint(ctx, req)
		require.Error(t, err)

		_, err = svc.Lint(ctx, req)
		require.Error(t, err)
		assert.Equal(t, int64(2), runner.runs.Load(), "failures must re-run, not hit the cache")
	})

	t.Run("workspace is removed after the run", func(t *testing.T) {
		svc := newTestPipeline(t, &stubRunner{})
		_, err := svc.Lint(ctx, &LintRequest{Linter: "eslint", Format: "json", Content: "x", Filename: "a.js"})
		require.NoError(t, err)

		base := svc.workspaces.(*workspace.Manager).BaseDir()
		entries, readErr := os.ReadDir(base)
		require.NoError(t, readErr)
		assert.Empty(t, entries)
	})

	t.Run("invalid request never touches the runner", func(t *testing.T) {
		runner := &stubRunner{}
		svc := newTestPipeline(t, runner)

		_, err := svc.Lint(ctx, &LintRequest{Linter: "ghost", Format: "json", Content: "x"})
		require.Error(t, err)
		assert.Zero(t, runner.runs.Load())
	})

	t.Run("undecodable archive is rejected before the runner", func(t *testing.T) {
		runner := &stubRunner{}
		svc := newTestPipeline(t, runner)

		_, err := svc.Lint(ctx, &LintRequest{Linter: "eslint", Format: "json", Archive: "!!!not-base64!!!"})
		var appErr *models.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, models.ErrValidation, appErr.Code)
		assert.Zero(t, runner.runs.Load())
	})
}

func TestContentHash(t *testing.T) {
	svc := newTestPipeline(t, &stubRunner{})

	t.Run("archive key is independent of the base64 alphabet", func(t *testing.T) {
		raw := []byte{0x1f, 0x8b, 0xff, 0xfe, 0xfd, 0x00}
		std := base64.StdEncoding.EncodeToString(raw)
		url := base64.URLEncoding.EncodeToString(raw)
		require.NotEqual(t, std, url, "payload must exercise the alphabet-specific characters")

		fromStd, err := svc.contentHash(&LintRequest{Archive: std})
		require.NoError(t, err)
		fromURL, err := svc.contentHash(&LintRequest{Archive: url})
		require.NoError(t, err)

		assert.Equal(t, fromStd, fromURL)
		assert.NotEqual(t, cache.ContentHash([]byte(std)), fromStd,
			"the key must digest the decoded bytes, not the encoded text")
		assert.Equal(t, cache.ContentHash(raw), fromStd)
	})

	t.Run("text submissions hash the content verbatim", func(t *testing.T) {
		h, err := svc.contentHash(&LintRequest{Content: "var x = 1"})
		require.NoError(t, err)
		assert.Equal(t, cache.ContentHash([]byte("var x = 1")), h)
	})

	t.Run("invalid base64 fails validation", func(t *testing.T) {
		_, err := svc.contentHash(&LintRequest{Archive: "%%%"})
		var appErr *models.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, models.ErrValidation, appErr.Code)
	})
}

func TestExecuteJob(t *testing.T) {
	ctx := context.Background()

	t.Run("deserializes job options", func(t *testing.T) {
		svc := newTestPipeline(t, &stubRunner{})
		result, err := svc.Execute(ctx, &models.LintJob{
			LinterType: "eslint",
			Format:     "json",
			Content:    "var x = 1",
			Options:    `{"fix": true, "timeout": 5000}`,
		})
		require.NoError(t, err)
		assert.True(t, result.Success)
	})

	t.Run("malformed options fail validation", func(t *testing.T) {
		svc := newTestPipeline(t, &stubRunner{})
		_, err := svc.Execute(ctx, &models.LintJob{
			LinterType: "eslint",
			Format:     "json",
			Content:    "x",
			Options:    `{not json`,
		})

		var appErr *models.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, models.ErrValidation, appErr.Code)
	})
}
