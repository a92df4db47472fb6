package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/flanksource/lint-api/models"
)

// ResultStore persists cached lint results
type ResultStore struct {
	db *gorm.DB
}

// NewResultStore creates a result store on the given database
func NewResultStore(db *gorm.DB) *ResultStore {
	return &ResultStore{db: db}
}

// GetFreshest returns the most recent non-expired entry for the triple, or
// nil when none exists
func (s *ResultStore) GetFreshest(ctx context.Context, contentHash, linter, optionsHash string, now time.Time) (*models.LintResult, error) {
	var result models.LintResult
	err := s.db.WithContext(ctx).
		Where("content_hash = ? AND linter_type = ? AND options_hash = ? AND expires_at > ?",
			contentHash, linter, optionsHash, now).
		Order("created_at DESC").
		First(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query lint_results: %w", err)
	}
	return &result, nil
}

// Insert writes a new cache entry
func (s *ResultStore) Insert(ctx context.Context, result *models.LintResult) error {
	if err := s.db.WithContext(ctx).Create(result).Error; err != nil {
		return fmt.Errorf("failed to insert lint result: %w", err)
	}
	return nil
}

// DeleteExpired removes entries whose TTL has passed and returns the count
func (s *ResultStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&models.LintResult{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete expired results: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Invalidate removes entries matching the given hash and/or linter; empty
// arguments broaden the scope up to a full wipe
func (s *ResultStore) Invalidate(ctx context.Context, contentHash, linter string) (int64, error) {
	query := s.db.WithContext(ctx).Model(&models.LintResult{})
	switch {
	case contentHash != "" && linter != "":
		query = query.Where("content_hash = ? AND linter_type = ?", contentHash, linter)
	case contentHash != "":
		query = query.Where("content_hash = ?", contentHash)
	case linter != "":
		query = query.Where("linter_type = ?", linter)
	default:
		query = query.Where("1 = 1")
	}

	res := query.Delete(&models.LintResult{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to invalidate results: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Counts returns total and expired entry counts
func (s *ResultStore) Counts(ctx context.Context, now time.Time) (total, expired int64, err error) {
	if err := s.db.WithContext(ctx).Model(&models.LintResult{}).Count(&total).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to count results: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&models.LintResult{}).
		Where("expires_at <= ?", now).Count(&expired).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to count expired results: %w", err)
	}
	return total, expired, nil
}

// SizeBytes reports the size of the backing database file
func (s *ResultStore) SizeBytes(ctx context.Context) (int64, error) {
	return SizeBytes(s.db.WithContext(ctx))
}
