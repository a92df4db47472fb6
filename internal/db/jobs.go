package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/flanksource/lint-api/models"
)

// JobStore persists job records. Job state is authoritative here; the
// in-process scheduler reconciles from this store on startup.
type JobStore struct {
	db *gorm.DB
}

// NewJobStore creates a job store on the given database
func NewJobStore(db *gorm.DB) *JobStore {
	return &JobStore{db: db}
}

// Insert persists a new job record
func (s *JobStore) Insert(ctx context.Context, job *models.LintJob) error {
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

// GetByJobID returns the job record or nil when unknown
func (s *JobStore) GetByJobID(ctx context.Context, jobID string) (*models.LintJob, error) {
	var job models.LintJob
	err := s.db.WithContext(ctx).Where("job_id = ?", jobID).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query job %s: %w", jobID, err)
	}
	return &job, nil
}

// NextPending returns the oldest pending job, FIFO by created_at with ties
// broken by job_id, or nil when the queue is empty
func (s *JobStore) NextPending(ctx context.Context) (*models.LintJob, error) {
	var job models.LintJob
	err := s.db.WithContext(ctx).
		Where("status = ?", models.JobStatusPending).
		Order("created_at ASC, job_id ASC").
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query pending jobs: %w", err)
	}
	return &job, nil
}

// ClaimRunning transitions a pending job to running, setting started_at.
// The conditional update makes the claim atomic: a job cancelled while
// pending is never claimed, and two dispatchers cannot claim the same job.
func (s *JobStore) ClaimRunning(ctx context.Context, jobID string, startedAt time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.LintJob{}).
		Where("job_id = ? AND status = ?", jobID, models.JobStatusPending).
		Updates(map[string]any{
			"status":     models.JobStatusRunning,
			"started_at": startedAt,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to claim job %s: %w", jobID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// CancelPending transitions a pending job straight to cancelled
func (s *JobStore) CancelPending(ctx context.Context, jobID string, completedAt time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.LintJob{}).
		Where("job_id = ? AND status = ?", jobID, models.JobStatusPending).
		Updates(map[string]any{
			"status":       models.JobStatusCancelled,
			"completed_at": completedAt,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to cancel pending job %s: %w", jobID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Complete transitions a running job to a terminal state. Terminal rows are
// never updated, which keeps completed jobs immutable.
func (s *JobStore) Complete(ctx context.Context, jobID string, status models.JobStatus, result, errorMessage string, executionTimeMs int64, completedAt time.Time) (bool, error) {
	updates := map[string]any{
		"status":            status,
		"completed_at":      completedAt,
		"execution_time_ms": executionTimeMs,
	}
	if result != "" {
		updates["result"] = result
	}
	if errorMessage != "" {
		updates["error_message"] = errorMessage
	}

	res := s.db.WithContext(ctx).Model(&models.LintJob{}).
		Where("job_id = ? AND status = ?", jobID, models.JobStatusRunning).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to complete job %s: %w", jobID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Running returns a snapshot of all jobs currently marked running
func (s *JobStore) Running(ctx context.Context) ([]models.LintJob, error) {
	var jobs []models.LintJob
	if err := s.db.WithContext(ctx).
		Where("status = ?", models.JobStatusRunning).
		Order("started_at ASC").
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to query running jobs: %w", err)
	}
	return jobs, nil
}

// MarkOrphans fails running jobs whose started_at is older than the cutoff.
// Called once at startup to reconcile jobs left behind by a previous
// process.
func (s *JobStore) MarkOrphans(ctx context.Context, cutoff, completedAt time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.LintJob{}).
		Where("status = ? AND started_at < ?", models.JobStatusRunning, cutoff).
		Updates(map[string]any{
			"status":        models.JobStatusFailed,
			"error_message": "job orphaned: process restarted during execution",
			"completed_at":  completedAt,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to mark orphaned jobs: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Stats aggregates job counts by state; completed and failed are windowed
// to the trailing 24 hours
func (s *JobStore) Stats(ctx context.Context, now time.Time) (*models.JobStats, error) {
	stats := &models.JobStats{}
	window := now.Add(-24 * time.Hour)

	type row struct {
		Status models.JobStatus
		N      int64
	}
	var rows []row
	if err := s.db.WithContext(ctx).Model(&models.LintJob{}).
		Select("status, count(*) as n").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate job stats: %w", err)
	}

	for _, r := range rows {
		stats.Total += r.N
		switch r.Status {
		case models.JobStatusPending:
			stats.Pending = r.N
		case models.JobStatusRunning:
			stats.Running = r.N
		case models.JobStatusCancelled:
			stats.Cancelled = r.N
		}
	}

	if err := s.db.WithContext(ctx).Model(&models.LintJob{}).
		Where("status = ? AND completed_at >= ?", models.JobStatusCompleted, window).
		Count(&stats.Completed24h).Error; err != nil {
		return nil, fmt.Errorf("failed to count completed jobs: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&models.LintJob{}).
		Where("status = ? AND completed_at >= ?", models.JobStatusFailed, window).
		Count(&stats.Failed24h).Error; err != nil {
		return nil, fmt.Errorf("failed to count failed jobs: %w", err)
	}

	return stats, nil
}
