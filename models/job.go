package models

import (
	"time"
)

// JobStatus tracks an asynchronous lint job through its lifecycle
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// LintJob is the durable record of an asynchronous lint request
type LintJob struct {
	ID              uint       `json:"-" gorm:"primaryKey;autoIncrement"`
	JobID           string     `json:"job_id" gorm:"column:job_id;uniqueIndex;not null"`
	LinterType      string     `json:"linter_type" gorm:"column:linter_type;not null"`
	Format          string     `json:"format" gorm:"column:format;not null"`
	Content         string     `json:"content,omitempty" gorm:"column:content"`
	Archive         string     `json:"archive,omitempty" gorm:"column:archive"`
	Filename        string     `json:"filename,omitempty" gorm:"column:filename"`
	Options         string     `json:"options,omitempty" gorm:"column:options"`
	Status          JobStatus  `json:"status" gorm:"column:status;not null;index"`
	Result          string     `json:"result,omitempty" gorm:"column:result"`
	ErrorMessage    string     `json:"error_message,omitempty" gorm:"column:error_message"`
	ExecutionTimeMs *int64     `json:"execution_time_ms,omitempty" gorm:"column:execution_time_ms"`
	CreatedAt       time.Time  `json:"created_at" gorm:"column:created_at;index"`
	StartedAt       *time.Time `json:"started_at,omitempty" gorm:"column:started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty" gorm:"column:completed_at"`
}

// TableName specifies the table name for LintJob
func (LintJob) TableName() string {
	return "lint_jobs"
}

// JobRequest is the payload accepted by the async submission endpoint
type JobRequest struct {
	Linter   string       `json:"linter"`
	Format   string       `json:"format"`
	Content  string       `json:"content,omitempty"`
	Archive  string       `json:"archive,omitempty"`
	Filename string       `json:"filename,omitempty"`
	Options  *LintOptions `json:"options,omitempty"`
}

// JobStats aggregates job counts per state; completed and failed are
// windowed to the trailing 24 hours.
type JobStats struct {
	Pending      int64 `json:"pending"`
	Running      int64 `json:"running"`
	Completed24h int64 `json:"completed_24h"`
	Failed24h    int64 `json:"failed_24h"`
	Cancelled    int64 `json:"cancelled"`
	Total        int64 `json:"total"`
}
