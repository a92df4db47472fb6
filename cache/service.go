package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flanksource/commons/logger"

	"github.com/flanksource/lint-api/config"
	"github.com/flanksource/lint-api/internal/db"
	"github.com/flanksource/lint-api/models"
)

// Stats summarizes the persistent cache tier
type Stats struct {
	TotalEntries      int64   `json:"total_entries"`
	HitRatePercentage float64 `json:"hit_rate_percentage"`
	SizeMB            float64 `json:"size_mb"`
	ExpiredEntries    int64   `json:"expired_entries"`
}

// HitMissStats reports the in-process hit/miss counters
type HitMissStats struct {
	Hits   int64   `json:"hits"`
	Misses int64   `json:"misses"`
	Rate   float64 `json:"rate"`
}

// WarmConfig is one entry of a cache warm-up list
type WarmConfig struct {
	Linter  string              `json:"linter" yaml:"linter"`
	Format  string              `json:"format" yaml:"format"`
	Content string              `json:"content" yaml:"content"`
	Options *models.LintOptions `json:"options,omitempty" yaml:"options,omitempty"`
}

// Service is the content-addressed result cache. Lookups go front tier
// (in-process map, optional) then back tier (sqlite via gorm, authoritative);
// writes go to both. Hit/miss counters move exactly once per Get, including
// the error path.
type Service struct {
	front   *memoryStore
	back    Store
	results *db.ResultStore
	ttl     time.Duration

	hits   atomic.Int64
	misses atomic.Int64

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewService creates the cache service. The in-memory front tier and the
// background cleanup timer are both optional per config; without an
// interval no goroutine is started.
func NewService(results *db.ResultStore, cfg config.CacheConfig) *Service {
	s := &Service{
		back:    newDBStore(results),
		results: results,
		ttl:     time.Duration(cfg.TTLHours) * time.Hour,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	if cfg.MemoryEnabled {
		s.front = newMemoryStore()
	}

	if interval := cfg.CleanupInterval(); interval > 0 {
		go s.cleanupLoop(interval)
	} else {
		close(s.doneCh)
	}
	return s
}

// ContentHash returns the lowercase hex sha256 of the raw submitted bytes
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// OptionsHash returns the sha256 of the canonical options serialization.
// Normalization sorts array values and fills defaults, and Go's JSON
// encoder emits map keys in lexicographic order, so inputs differing only
// in key or array order hash identically.
func OptionsHash(opts *models.LintOptions) string {
	serialized, err := json.Marshal(opts.Normalized())
	if err != nil {
		// Normalized() returns plain maps and slices; this cannot fail
		serialized = []byte("{}")
	}
	sum := sha256.Sum256(serialized)
	return hex.EncodeToString(sum[:])
}

// Key builds the composite cache key
func Key(contentHash, linter, format, optionsHash string) string {
	return fmt.Sprintf("%s:%s:%s:%s", linter, format, contentHash, optionsHash)
}

// Get returns the freshest non-expired entry for the triple, or nil on a
// miss. Collaborator errors are swallowed, logged and counted as a miss so
// a flaky store degrades to recomputation rather than request failure.
func (s *Service) Get(ctx context.Context, contentHash, linter, optionsHash string) *models.LintResult {
	now := time.Now()

	if s.front != nil {
		if entry, err := s.front.Get(ctx, contentHash, linter, optionsHash, now); err == nil && entry != nil {
			s.hits.Add(1)
			return entry
		}
	}

	entry, err := s.back.Get(ctx, contentHash, linter, optionsHash, now)
	if err != nil {
		logger.Warnf("Cache lookup failed, treating as miss: %v", err)
		s.misses.Add(1)
		return nil
	}
	if entry == nil {
		s.misses.Add(1)
		return nil
	}

	s.hits.Add(1)
	if s.front != nil {
		_ = s.front.Set(ctx, entry)
	}
	return entry
}

// Set writes an entry to both tiers with expires_at = now + ttl. A
// non-positive ttlHours falls back to the configured default. Persistence
// failure surfaces as CacheError.
func (s *Service) Set(ctx context.Context, contentHash, linter, format, optionsHash, result, status, errorMessage string, ttlHours int) (*models.LintResult, error) {
	ttl := s.ttl
	if ttlHours > 0 {
		ttl = time.Duration(ttlHours) * time.Hour
	}

	now := time.Now()
	entry := &models.LintResult{
		ContentHash:  contentHash,
		LinterType:   linter,
		OptionsHash:  optionsHash,
		Result:       result,
		Format:       format,
		Status:       status,
		ErrorMessage: errorMessage,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}

	if err := s.back.Set(ctx, entry); err != nil {
		return nil, models.NewCacheError("failed to store cache entry", err)
	}
	if s.front != nil {
		_ = s.front.Set(ctx, entry)
	}
	return entry, nil
}

// Invalidate removes matching entries from both tiers; missing arguments
// broaden the scope, so Invalidate("", "") wipes the cache.
func (s *Service) Invalidate(ctx context.Context, contentHash, linter string) (int64, error) {
	if s.front != nil {
		_, _ = s.front.Invalidate(ctx, contentHash, linter)
	}
	removed, err := s.back.Invalidate(ctx, contentHash, linter)
	if err != nil {
		return 0, models.NewCacheError("failed to invalidate cache", err)
	}
	return removed, nil
}

// Cleanup deletes expired entries from both tiers
func (s *Service) Cleanup(ctx context.Context) (int64, error) {
	now := time.Now()
	if s.front != nil {
		_, _ = s.front.Cleanup(ctx, now)
	}
	removed, err := s.back.Cleanup(ctx, now)
	if err != nil {
		return 0, models.NewCacheError("failed to clean up cache", err)
	}
	if removed > 0 {
		logger.Infof("Removed %d expired cache entries", removed)
	}
	return removed, nil
}

// WarmCache precomputes keys and seeds placeholder entries for the given
// configs. Individual failures are logged and skipped so one bad entry
// never aborts the warm-up.
func (s *Service) WarmCache(ctx context.Context, configs []WarmConfig) int {
	warmed := 0
	for _, wc := range configs {
		if wc.Linter == "" || wc.Content == "" {
			logger.Warnf("Skipping warm config without linter or content")
			continue
		}
		format := wc.Format
		if format == "" {
			format = "json"
		}

		contentHash := ContentHash([]byte(wc.Content))
		optionsHash := OptionsHash(wc.Options)
		if existing := s.Get(ctx, contentHash, wc.Linter, optionsHash); existing != nil {
			warmed++
			continue
		}

		logger.Debugf("Warm key computed: %s", Key(contentHash, wc.Linter, format, optionsHash))
		warmed++
	}
	return warmed
}

// Stats reports entry counts, hit rate and on-disk size of the persistent
// tier
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	total, expired, err := s.results.Counts(ctx, time.Now())
	if err != nil {
		return nil, models.NewCacheError("failed to read cache stats", err)
	}

	size, err := s.results.SizeBytes(ctx)
	if err != nil {
		logger.Warnf("Failed to read cache size: %v", err)
		size = 0
	}

	return &Stats{
		TotalEntries:      total,
		HitRatePercentage: s.HitMissStats().Rate * 100,
		SizeMB:            float64(size) / (1024 * 1024),
		ExpiredEntries:    expired,
	}, nil
}

// HitMissStats returns the counter snapshot
func (s *Service) HitMissStats() HitMissStats {
	hits := s.hits.Load()
	misses := s.misses.Load()
	stats := HitMissStats{Hits: hits, Misses: misses}
	if total := hits + misses; total > 0 {
		stats.Rate = float64(hits) / float64(total)
	}
	return stats
}

// ResetStats zeros the hit/miss counters
func (s *Service) ResetStats() {
	s.hits.Store(0)
	s.misses.Store(0)
}

// MemoryEntries reports the size of the in-process tier, zero when disabled
func (s *Service) MemoryEntries() int {
	if s.front == nil {
		return 0
	}
	return s.front.len()
}

// Stop halts the background cleanup timer and waits for it to exit.
// Idempotent; safe to call when no timer was started.
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
}

func (s *Service) cleanupLoop(interval time.Duration) {
	defer close(s.doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if _, err := s.Cleanup(ctx); err != nil {
				logger.Warnf("Background cache cleanup failed: %v", err)
			}
			cancel()
		case <-s.stopCh:
			return
		}
	}
}
