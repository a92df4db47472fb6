package cache

import (
	"context"
	"sync"
	"time"

	"github.com/flanksource/lint-api/internal/db"
	"github.com/flanksource/lint-api/models"
)

// Store is the read/write contract shared by the in-memory tier and the
// persistent tier. The service composes two of these front-then-back;
// store-specific errors never leak past the service.
type Store interface {
	// Get returns the freshest entry for the triple that is still valid at
	// now, or nil when none exists
	Get(ctx context.Context, contentHash, linter, optionsHash string, now time.Time) (*models.LintResult, error)

	// Set writes one entry
	Set(ctx context.Context, entry *models.LintResult) error

	// Invalidate removes matching entries; empty arguments broaden the
	// scope up to a full wipe. Returns the number removed.
	Invalidate(ctx context.Context, contentHash, linter string) (int64, error)

	// Cleanup removes entries expired at now and returns the count
	Cleanup(ctx context.Context, now time.Time) (int64, error)
}

// memoryKey identifies an entry in the in-process tier
type memoryKey struct {
	contentHash string
	linter      string
	optionsHash string
}

// memoryStore is the in-process front tier. It holds at most one entry per
// (content, linter, options) triple and never returns values past their
// expiry even before the sweeper runs.
type memoryStore struct {
	mu      sync.RWMutex
	entries map[memoryKey]*models.LintResult
}

func newMemoryStore() *memoryStore {
	return &memoryStore{entries: make(map[memoryKey]*models.LintResult)}
}

func (m *memoryStore) Get(_ context.Context, contentHash, linter, optionsHash string, now time.Time) (*models.LintResult, error) {
	m.mu.RLock()
	entry, ok := m.entries[memoryKey{contentHash, linter, optionsHash}]
	m.mu.RUnlock()
	if !ok || entry.Expired(now) {
		return nil, nil
	}

	clone := *entry
	return &clone, nil
}

func (m *memoryStore) Set(_ context.Context, entry *models.LintResult) error {
	clone := *entry
	m.mu.Lock()
	m.entries[memoryKey{entry.ContentHash, entry.LinterType, entry.OptionsHash}] = &clone
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) Invalidate(_ context.Context, contentHash, linter string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for key := range m.entries {
		if contentHash != "" && key.contentHash != contentHash {
			continue
		}
		if linter != "" && key.linter != linter {
			continue
		}
		delete(m.entries, key)
		removed++
	}
	return removed, nil
}

func (m *memoryStore) Cleanup(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for key, entry := range m.entries {
		if entry.Expired(now) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed, nil
}

func (m *memoryStore) len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// dbStore adapts the gorm-backed result store to the Store contract. This
// is the authoritative tier.
type dbStore struct {
	results *db.ResultStore
}

func newDBStore(results *db.ResultStore) *dbStore {
	return &dbStore{results: results}
}

func (s *dbStore) Get(ctx context.Context, contentHash, linter, optionsHash string, now time.Time) (*models.LintResult, error) {
	return s.results.GetFreshest(ctx, contentHash, linter, optionsHash, now)
}

func (s *dbStore) Set(ctx context.Context, entry *models.LintResult) error {
	return s.results.Insert(ctx, entry)
}

func (s *dbStore) Invalidate(ctx context.Context, contentHash, linter string) (int64, error) {
	return s.results.Invalidate(ctx, contentHash, linter)
}

func (s *dbStore) Cleanup(ctx context.Context, now time.Time) (int64, error) {
	return s.results.DeleteExpired(ctx, now)
}
