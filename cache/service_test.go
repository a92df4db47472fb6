package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flanksource/lint-api/config"
	"github.com/flanksource/lint-api/internal/db"
	"github.com/flanksource/lint-api/models"
)

func newTestService(t *testing.T, memory bool) *Service {
	t.Helper()
	gormDB, err := db.Open(filepath.Join(t.TempDir(), "cache-test.db"))
	require.NoError(t, err)

	svc := NewService(db.NewResultStore(gormDB), config.CacheConfig{
		TTLHours:      1,
		MemoryEnabled: memory,
		// No cleanup interval: tests drive Cleanup explicitly
	})
	t.Cleanup(svc.Stop)
	return svc
}

func TestServiceSetGet(t *testing.T) {
	svc := newTestService(t, true)
	ctx := context.Background()

	t.Run("get on empty cache misses", func(t *testing.T) {
		assert.Nil(t, svc.Get(ctx, "c1", "eslint", "o1"))
		assert.Equal(t, int64(1), svc.HitMissStats().Misses)
	})

	t.Run("set then get round-trips the result", func(t *testing.T) {
		_, err := svc.Set(ctx, "c1", "eslint", "json", "o1", `{"success":true}`, models.ResultStatusSuccess, "", 0)
		require.NoError(t, err)

		entry := svc.Get(ctx, "c1", "eslint", "o1")
		require.NotNil(t, entry)
		assert.Equal(t, `{"success":true}`, entry.Result)
		assert.Equal(t, "json", entry.Format)
		assert.Equal(t, models.ResultStatusSuccess, entry.Status)
	})

	t.Run("counters move exactly once per get", func(t *testing.T) {
		svc.ResetStats()
		svc.Get(ctx, "c1", "eslint", "o1")   // hit
		svc.Get(ctx, "c1", "eslint", "o2")   // miss
		svc.Get(ctx, "nope", "eslint", "o1") // miss

		stats := svc.HitMissStats()
		assert.Equal(t, int64(1), stats.Hits)
		assert.Equal(t, int64(2), stats.Misses)
		assert.InDelta(t, 1.0/3.0, stats.Rate, 0.001)
	})

	t.Run("freshest entry wins when the key is rewritten", func(t *testing.T) {
		_, err := svc.Set(ctx, "c2", "ruff", "json", "o1", "first", models.ResultStatusSuccess, "", 0)
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
		_, err = svc.Set(ctx, "c2", "ruff", "json", "o1", "second", models.ResultStatusSuccess, "", 0)
		require.NoError(t, err)

		entry := svc.Get(ctx, "c2", "ruff", "o1")
		require.NotNil(t, entry)
		assert.Equal(t, "second", entry.Result)
	})
}

func TestServiceExpiry(t *testing.T) {
	for _, memory := range []bool{true, false} {
		name := "persistent only"
		if memory {
			name = "with memory tier"
		}
		t.Run(name, func(t *testing.T) {
			svc := newTestService(t, memory)
			ctx := context.Background()

			// Plant an already-expired entry in both tiers
			expired := &models.LintResult{
				ContentHash: "c1",
				LinterType:  "eslint",
				OptionsHash: "o1",
				Result:      "stale",
				Format:      "json",
				Status:      models.ResultStatusSuccess,
				CreatedAt:   time.Now().Add(-2 * time.Hour),
				ExpiresAt:   time.Now().Add(-time.Hour),
			}
			require.NoError(t, svc.back.Set(ctx, expired))
			if svc.front != nil {
				require.NoError(t, svc.front.Set(ctx, expired))
			}

			assert.Nil(t, svc.Get(ctx, "c1", "eslint", "o1"))
		})
	}
}

func TestServiceCleanup(t *testing.T) {
	svc := newTestService(t, true)
	ctx := context.Background()

	_, err := svc.Set(ctx, "fresh", "eslint", "json", "o", "r", models.ResultStatusSuccess, "", 1)
	require.NoError(t, err)

	stale := &models.LintResult{
		ContentHash: "stale", LinterType: "eslint", OptionsHash: "o",
		Result: "r", Format: "json", Status: models.ResultStatusSuccess,
		CreatedAt: time.Now().Add(-2 * time.Hour), ExpiresAt: time.Now().Add(-time.Hour),
	}
	require.NoError(t, svc.back.Set(ctx, stale))

	removed, err := svc.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	assert.NotNil(t, svc.Get(ctx, "fresh", "eslint", "o"))
	assert.Nil(t, svc.Get(ctx, "stale", "eslint", "o"))
}

func TestServiceInvalidate(t *testing.T) {
	svc := newTestService(t, true)
	ctx := context.Background()

	seed := func() {
		for _, row := range []struct{ hash, linter string }{
			{"h1", "eslint"}, {"h1", "ruff"}, {"h2", "eslint"},
		} {
			_, err := svc.Set(ctx, row.hash, row.linter, "json", "o", "r", models.ResultStatusSuccess, "", 0)
			require.NoError(t, err)
		}
	}

	t.Run("by content hash and linter", func(t *testing.T) {
		seed()
		removed, err := svc.Invalidate(ctx, "h1", "eslint")
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)
		assert.Nil(t, svc.Get(ctx, "h1", "eslint", "o"))
		assert.NotNil(t, svc.Get(ctx, "h1", "ruff", "o"))
	})

	t.Run("empty arguments wipe everything", func(t *testing.T) {
		seed()
		_, err := svc.Invalidate(ctx, "", "")
		require.NoError(t, err)
		assert.Nil(t, svc.Get(ctx, "h1", "ruff", "o"))
		assert.Nil(t, svc.Get(ctx, "h2", "eslint", "o"))
	})
}

func TestServiceStats(t *testing.T) {
	svc := newTestService(t, true)
	ctx := context.Background()

	_, err := svc.Set(ctx, "c1", "eslint", "json", "o1", "r", models.ResultStatusSuccess, "", 0)
	require.NoError(t, err)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalEntries)
	assert.Equal(t, int64(0), stats.ExpiredEntries)
}

func TestWarmCache(t *testing.T) {
	svc := newTestService(t, true)

	warmed := svc.WarmCache(context.Background(), []WarmConfig{
		{Linter: "eslint", Format: "json", Content: "console.log(1)"},
		{Linter: "", Content: "skipped: no linter"},
		{Linter: "ruff", Content: "print(1)"},
	})
	assert.Equal(t, 2, warmed)
}

func TestResetStats(t *testing.T) {
	svc := newTestService(t, false)
	svc.Get(context.Background(), "c", "eslint", "o")
	require.NotZero(t, svc.HitMissStats().Misses)

	svc.ResetStats()
	stats := svc.HitMissStats()
	assert.Zero(t, stats.Hits)
	assert.Zero(t, stats.Misses)
}
