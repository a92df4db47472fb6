package jobs

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flanksource/lint-api/config"
	"github.com/flanksource/lint-api/internal/db"
	"github.com/flanksource/lint-api/models"
)

// stubExecutor lets tests control how long a job takes and what it returns
type stubExecutor struct {
	mu       sync.Mutex
	executed []string
	delay    time.Duration
	err      error
}

func (s *stubExecutor) Execute(ctx context.Context, job *models.LintJob) (*models.ExecutionResult, error) {
	s.mu.Lock()
	s.executed = append(s.executed, job.JobID)
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &models.ExecutionResult{Success: true, Issues: []models.Issue{}}, nil
}

func (s *stubExecutor) order() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.executed...)
}

func newTestStore(t *testing.T) *db.JobStore {
	t.Helper()
	gormDB, err := db.Open(filepath.Join(t.TempDir(), "jobs-test.db"))
	require.NoError(t, err)
	return db.NewJobStore(gormDB)
}

func newTestManager(t *testing.T, executor Executor, maxConcurrent int) *Manager {
	t.Helper()
	m := NewManager(newTestStore(t), executor, config.JobsConfig{
		MaxConcurrent:  maxConcurrent,
		TimeoutSeconds: 30,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Stop(ctx)
	})
	return m
}

func submitRequest(linter string) *models.JobRequest {
	return &models.JobRequest{
		Linter:  linter,
		Format:  "json",
		Content: "console.log(1)",
	}
}

func waitForStatus(t *testing.T, m *Manager, jobID string, want models.JobStatus) *models.LintJob {
	t.Helper()
	var job *models.LintJob
	require.Eventually(t, func() bool {
		var err error
		job, err = m.Status(context.Background(), jobID)
		require.NoError(t, err)
		return job != nil && job.Status == want
	}, 10*time.Second, 10*time.Millisecond, "job %s never reached %s", jobID, want)
	return job
}

func TestSubmit(t *testing.T) {
	executor := &stubExecutor{}
	m := newTestManager(t, executor, 2)
	ctx := context.Background()

	t.Run("persists a pending job", func(t *testing.T) {
		job, err := m.Submit(ctx, submitRequest("eslint"))
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusPending, job.Status)
		assert.Equal(t, "eslint", job.LinterType)
		assert.Regexp(t, `^job_\d+_[0-9a-f]{12}$`, job.JobID)

		stored, err := m.Status(ctx, job.JobID)
		require.NoError(t, err)
		require.NotNil(t, stored)
	})

	t.Run("serializes options into the record", func(t *testing.T) {
		req := submitRequest("eslint")
		req.Options = &models.LintOptions{Fix: true, TimeoutMs: 1000}
		job, err := m.Submit(ctx, req)
		require.NoError(t, err)

		var opts models.LintOptions
		require.NoError(t, json.Unmarshal([]byte(job.Options), &opts))
		assert.True(t, opts.Fix)
	})

	t.Run("ids are distinct", func(t *testing.T) {
		seen := map[string]bool{}
		for i := 0; i < 50; i++ {
			job, err := m.Submit(ctx, submitRequest("eslint"))
			require.NoError(t, err)
			assert.False(t, seen[job.JobID], "duplicate id %s", job.JobID)
			seen[job.JobID] = true
		}
	})
}

func TestDispatch(t *testing.T) {
	t.Run("submitted jobs run to completion", func(t *testing.T) {
		executor := &stubExecutor{}
		m := newTestManager(t, executor, 2)
		require.NoError(t, m.Start(context.Background()))

		job, err := m.Submit(context.Background(), submitRequest("eslint"))
		require.NoError(t, err)

		final := waitForStatus(t, m, job.JobID, models.JobStatusCompleted)
		assert.NotEmpty(t, final.Result)
		assert.NotNil(t, final.CompletedAt)

		var result models.ExecutionResult
		require.NoError(t, json.Unmarshal([]byte(final.Result), &result))
		assert.True(t, result.Success)
	})

	t.Run("failed executions record the error message", func(t *testing.T) {
		executor := &stubExecutor{err: models.NewLinterExecutionError("eslint blew up", nil)}
		m := newTestManager(t, executor, 1)
		require.NoError(t, m.Start(context.Background()))

		job, err := m.Submit(context.Background(), submitRequest("eslint"))
		require.NoError(t, err)

		final := waitForStatus(t, m, job.JobID, models.JobStatusFailed)
		assert.Contains(t, final.ErrorMessage, "eslint blew up")
		assert.Empty(t, final.Result)
	})

	t.Run("single worker drains the queue in submission order", func(t *testing.T) {
		executor := &stubExecutor{delay: 20 * time.Millisecond}
		m := newTestManager(t, executor, 1)

		// Queue everything before the dispatcher starts so order is
		// decided purely by the store
		var ids []string
		for i := 0; i < 4; i++ {
			job, err := m.Submit(context.Background(), submitRequest("eslint"))
			require.NoError(t, err)
			ids = append(ids, job.JobID)
			time.Sleep(2 * time.Millisecond)
		}

		require.NoError(t, m.Start(context.Background()))
		for _, id := range ids {
			waitForStatus(t, m, id, models.JobStatusCompleted)
		}
		assert.Equal(t, ids, executor.order())
	})
}

func TestCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown job", func(t *testing.T) {
		m := newTestManager(t, &stubExecutor{}, 1)
		_, err := m.Cancel(ctx, "job_0_deadbeef0000")

		var appErr *models.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, models.ErrJobNotFound, appErr.Code)
	})

	t.Run("pending job is cancelled before it runs", func(t *testing.T) {
		executor := &stubExecutor{}
		m := newTestManager(t, executor, 1)
		// Dispatcher not started: the job stays pending

		job, err := m.Submit(ctx, submitRequest("eslint"))
		require.NoError(t, err)

		ok, err := m.Cancel(ctx, job.JobID)
		require.NoError(t, err)
		assert.True(t, ok)

		stored, err := m.Status(ctx, job.JobID)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusCancelled, stored.Status)
		assert.NotNil(t, stored.CompletedAt)
		assert.Empty(t, executor.order(), "cancelled job must never execute")
	})

	t.Run("running job is interrupted", func(t *testing.T) {
		executor := &stubExecutor{delay: 30 * time.Second}
		m := newTestManager(t, executor, 1)
		require.NoError(t, m.Start(ctx))

		job, err := m.Submit(ctx, submitRequest("eslint"))
		require.NoError(t, err)
		waitForStatus(t, m, job.JobID, models.JobStatusRunning)

		cancelCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		ok, err := m.Cancel(cancelCtx, job.JobID)
		require.NoError(t, err)
		assert.True(t, ok)

		stored, err := m.Status(ctx, job.JobID)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusCancelled, stored.Status)
	})

	t.Run("terminal jobs are immutable", func(t *testing.T) {
		executor := &stubExecutor{}
		m := newTestManager(t, executor, 1)
		require.NoError(t, m.Start(ctx))

		job, err := m.Submit(ctx, submitRequest("eslint"))
		require.NoError(t, err)
		waitForStatus(t, m, job.JobID, models.JobStatusCompleted)

		ok, err := m.Cancel(ctx, job.JobID)
		require.NoError(t, err)
		assert.False(t, ok)

		stored, err := m.Status(ctx, job.JobID)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusCompleted, stored.Status)
	})
}

func TestOrphanReconciliation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	stale := time.Now().Add(-2 * time.Hour)
	orphan := &models.LintJob{
		JobID:      "job_1_aaaaaaaaaaaa",
		LinterType: "eslint",
		Format:     "json",
		Status:     models.JobStatusRunning,
		CreatedAt:  stale,
		StartedAt:  &stale,
	}
	require.NoError(t, store.Insert(ctx, orphan))

	fresh := time.Now()
	live := &models.LintJob{
		JobID:      "job_2_bbbbbbbbbbbb",
		LinterType: "eslint",
		Format:     "json",
		Status:     models.JobStatusRunning,
		CreatedAt:  fresh,
		StartedAt:  &fresh,
	}
	require.NoError(t, store.Insert(ctx, live))

	m := NewManager(store, &stubExecutor{}, config.JobsConfig{MaxConcurrent: 1, TimeoutSeconds: 60})
	require.NoError(t, m.Start(ctx))
	t.Cleanup(func() { _ = m.Stop(ctx) })

	got, err := store.GetByJobID(ctx, orphan.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "orphaned")

	got, err = store.GetByJobID(ctx, live.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, got.Status, "recent jobs survive reconciliation")
}

func TestStats(t *testing.T) {
	executor := &stubExecutor{}
	m := newTestManager(t, executor, 1)
	ctx := context.Background()

	_, err := m.Submit(ctx, submitRequest("eslint"))
	require.NoError(t, err)
	_, err = m.Submit(ctx, submitRequest("ruff"))
	require.NoError(t, err)

	stats, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Pending)
	assert.Equal(t, int64(2), stats.Total)
	assert.Zero(t, stats.Running)
}
