package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flanksource/lint-api/models"
)

func newJobStore(t *testing.T) *JobStore {
	t.Helper()
	gormDB, err := Open(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	return NewJobStore(gormDB)
}

func pendingJob(id string, createdAt time.Time) *models.LintJob {
	return &models.LintJob{
		JobID:      id,
		LinterType: "eslint",
		Format:     "json",
		Content:    "var x = 1",
		Status:     models.JobStatusPending,
		CreatedAt:  createdAt,
	}
}

func TestJobStoreClaim(t *testing.T) {
	store := newJobStore(t)
	ctx := context.Background()

	t.Run("claim transitions pending to running once", func(t *testing.T) {
		require.NoError(t, store.Insert(ctx, pendingJob("j1", time.Now())))

		ok, err := store.ClaimRunning(ctx, "j1", time.Now())
		require.NoError(t, err)
		assert.True(t, ok)

		// A second claim must lose: the row is no longer pending
		ok, err = store.ClaimRunning(ctx, "j1", time.Now())
		require.NoError(t, err)
		assert.False(t, ok)

		job, err := store.GetByJobID(ctx, "j1")
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusRunning, job.Status)
		assert.NotNil(t, job.StartedAt)
	})

	t.Run("cancelled jobs cannot be claimed", func(t *testing.T) {
		require.NoError(t, store.Insert(ctx, pendingJob("j2", time.Now())))

		ok, err := store.CancelPending(ctx, "j2", time.Now())
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = store.ClaimRunning(ctx, "j2", time.Now())
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestJobStoreNextPending(t *testing.T) {
	store := newJobStore(t)
	ctx := context.Background()

	t.Run("empty queue", func(t *testing.T) {
		job, err := store.NextPending(ctx)
		require.NoError(t, err)
		assert.Nil(t, job)
	})

	t.Run("oldest first, job id breaks ties", func(t *testing.T) {
		base := time.Now().Truncate(time.Second)
		require.NoError(t, store.Insert(ctx, pendingJob("j-b", base)))
		require.NoError(t, store.Insert(ctx, pendingJob("j-a", base)))
		require.NoError(t, store.Insert(ctx, pendingJob("j-old", base.Add(-time.Minute))))

		job, err := store.NextPending(ctx)
		require.NoError(t, err)
		assert.Equal(t, "j-old", job.JobID)

		ok, err := store.ClaimRunning(ctx, job.JobID, time.Now())
		require.NoError(t, err)
		require.True(t, ok)

		job, err = store.NextPending(ctx)
		require.NoError(t, err)
		assert.Equal(t, "j-a", job.JobID, "equal created_at falls back to job_id order")
	})
}

func TestJobStoreComplete(t *testing.T) {
	store := newJobStore(t)
	ctx := context.Background()

	require.NoError(t, store.Insert(ctx, pendingJob("j1", time.Now())))
	ok, err := store.ClaimRunning(ctx, "j1", time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	t.Run("records the terminal state", func(t *testing.T) {
		ok, err := store.Complete(ctx, "j1", models.JobStatusCompleted, `{"success":true}`, "", 42, time.Now())
		require.NoError(t, err)
		assert.True(t, ok)

		job, err := store.GetByJobID(ctx, "j1")
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusCompleted, job.Status)
		assert.Equal(t, `{"success":true}`, job.Result)
		require.NotNil(t, job.ExecutionTimeMs)
		assert.Equal(t, int64(42), *job.ExecutionTimeMs)
		assert.NotNil(t, job.CompletedAt)
	})

	t.Run("terminal rows are immutable", func(t *testing.T) {
		ok, err := store.Complete(ctx, "j1", models.JobStatusFailed, "", "late failure", 1, time.Now())
		require.NoError(t, err)
		assert.False(t, ok)

		job, err := store.GetByJobID(ctx, "j1")
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusCompleted, job.Status)
		assert.Empty(t, job.ErrorMessage)
	})
}

func TestJobStoreMarkOrphans(t *testing.T) {
	store := newJobStore(t)
	ctx := context.Background()

	stale := time.Now().Add(-time.Hour)
	orphan := pendingJob("j-orphan", stale)
	orphan.Status = models.JobStatusRunning
	orphan.StartedAt = &stale
	require.NoError(t, store.Insert(ctx, orphan))

	fresh := time.Now()
	live := pendingJob("j-live", fresh)
	live.Status = models.JobStatusRunning
	live.StartedAt = &fresh
	require.NoError(t, store.Insert(ctx, live))

	marked, err := store.MarkOrphans(ctx, time.Now().Add(-time.Minute), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), marked)

	job, err := store.GetByJobID(ctx, "j-orphan")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)

	job, err = store.GetByJobID(ctx, "j-live")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, job.Status)
}

func TestJobStoreStats(t *testing.T) {
	store := newJobStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Insert(ctx, pendingJob("j1", now)))
	require.NoError(t, store.Insert(ctx, pendingJob("j2", now)))

	running := pendingJob("j3", now)
	running.Status = models.JobStatusRunning
	running.StartedAt = &now
	require.NoError(t, store.Insert(ctx, running))

	old := now.Add(-48 * time.Hour)
	done := pendingJob("j4", old)
	done.Status = models.JobStatusCompleted
	done.CompletedAt = &old
	require.NoError(t, store.Insert(ctx, done))

	stats, err := store.Stats(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Pending)
	assert.Equal(t, int64(1), stats.Running)
	assert.Equal(t, int64(4), stats.Total)
	assert.Zero(t, stats.Completed24h, "completions outside the window are excluded")
}

func TestResultStore(t *testing.T) {
	gormDB, err := Open(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	store := NewResultStore(gormDB)
	ctx := context.Background()
	now := time.Now()

	entry := func(hash string, expiresAt time.Time) *models.LintResult {
		return &models.LintResult{
			ContentHash: hash,
			LinterType:  "eslint",
			OptionsHash: "o1",
			Result:      "r",
			Format:      "json",
			Status:      models.ResultStatusSuccess,
			CreatedAt:   now,
			ExpiresAt:   expiresAt,
		}
	}

	t.Run("freshest non-expired entry wins", func(t *testing.T) {
		stale := entry("h1", now.Add(time.Hour))
		stale.CreatedAt = now.Add(-time.Minute)
		stale.Result = "old"
		require.NoError(t, store.Insert(ctx, stale))

		latest := entry("h1", now.Add(time.Hour))
		latest.Result = "new"
		require.NoError(t, store.Insert(ctx, latest))

		got, err := store.GetFreshest(ctx, "h1", "eslint", "o1", now)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "new", got.Result)
	})

	t.Run("expired entries are invisible", func(t *testing.T) {
		require.NoError(t, store.Insert(ctx, entry("h2", now.Add(-time.Minute))))

		got, err := store.GetFreshest(ctx, "h2", "eslint", "o1", now)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("delete expired reports the count", func(t *testing.T) {
		removed, err := store.DeleteExpired(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)

		total, expired, err := store.Counts(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		assert.Zero(t, expired)
	})
}
