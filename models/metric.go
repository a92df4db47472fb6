package models

import (
	"time"
)

// APIMetric is one append-only request audit row
type APIMetric struct {
	ID             uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Endpoint       string    `json:"endpoint" gorm:"column:endpoint;not null;index"`
	Method         string    `json:"method" gorm:"column:method;not null"`
	StatusCode     int       `json:"status_code" gorm:"column:status_code;not null"`
	ResponseTimeMs int64     `json:"response_time_ms" gorm:"column:response_time_ms;not null"`
	CacheHit       bool      `json:"cache_hit" gorm:"column:cache_hit;default:false"`
	LinterType     string    `json:"linter_type,omitempty" gorm:"column:linter_type"`
	Format         string    `json:"format,omitempty" gorm:"column:format"`
	ErrorType      string    `json:"error_type,omitempty" gorm:"column:error_type"`
	CreatedAt      time.Time `json:"created_at" gorm:"column:created_at;index"`
}

// TableName specifies the table name for APIMetric
func (APIMetric) TableName() string {
	return "api_metrics"
}
