package models

import (
	"time"
)

// Result statuses stored alongside cache entries
const (
	ResultStatusSuccess = "success"
	ResultStatusError   = "error"
	ResultStatusTimeout = "timeout"
)

// LintResult is a cached linting outcome, addressed by content, linter and
// options hashes. The freshest non-expired row wins on lookup.
type LintResult struct {
	ID           uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	ContentHash  string    `json:"content_hash" gorm:"column:content_hash;not null;index:idx_lint_results_lookup,priority:1"`
	LinterType   string    `json:"linter_type" gorm:"column:linter_type;not null;index:idx_lint_results_lookup,priority:2"`
	OptionsHash  string    `json:"options_hash" gorm:"column:options_hash;not null;index:idx_lint_results_lookup,priority:3"`
	Result       string    `json:"result" gorm:"column:result;not null"`
	Format       string    `json:"format" gorm:"column:format;not null"`
	Status       string    `json:"status" gorm:"column:status;not null;default:success"`
	ErrorMessage string    `json:"error_message,omitempty" gorm:"column:error_message"`
	CreatedAt    time.Time `json:"created_at" gorm:"column:created_at;index"`
	ExpiresAt    time.Time `json:"expires_at" gorm:"column:expires_at;not null;index"`
}

// TableName specifies the table name for LintResult
func (LintResult) TableName() string {
	return "lint_results"
}

// Expired reports whether the entry is past its TTL at the given instant
func (r *LintResult) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// CacheKey returns the composite key identifying this entry
func (r *LintResult) CacheKey() string {
	return r.LinterType + ":" + r.Format + ":" + r.ContentHash + ":" + r.OptionsHash
}
