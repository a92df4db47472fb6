package db

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/flanksource/lint-api/models"
)

// MetricStore appends request audit rows
type MetricStore struct {
	db *gorm.DB
}

// NewMetricStore creates a metric store on the given database
func NewMetricStore(db *gorm.DB) *MetricStore {
	return &MetricStore{db: db}
}

// Insert appends one metric row
func (s *MetricStore) Insert(ctx context.Context, metric *models.APIMetric) error {
	if err := s.db.WithContext(ctx).Create(metric).Error; err != nil {
		return fmt.Errorf("failed to insert metric: %w", err)
	}
	return nil
}

// CountSince returns the number of requests recorded after the cutoff
func (s *MetricStore) CountSince(ctx context.Context, cutoff time.Time) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.APIMetric{}).
		Where("created_at >= ?", cutoff).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count metrics: %w", err)
	}
	return count, nil
}
