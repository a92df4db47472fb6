package stats

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ExecutionStats aggregates the recorded runs of one linter
type ExecutionStats struct {
	LinterName    string    `json:"linter_name"`
	RunCount      int64     `json:"run_count"`
	LastRun       time.Time `json:"last_run"`
	AvgDurationMs int64     `json:"avg_duration_ms"`
	IssueCount    int64     `json:"issue_count"`
	SuccessRate   float64   `json:"success_rate"`
}

// LinterStats is an append-only record of linter executions, kept on a raw
// sqlite handle separate from the request-serving database.
type LinterStats struct {
	db *DB
}

// NewLinterStats opens (or creates) the stats database at dbPath
func NewLinterStats(dbPath string) (*LinterStats, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create stats directory: %w", err)
	}

	db, err := NewDB("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open stats database: %w", err)
	}

	ls := &LinterStats{db: db}
	if err := ls.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return ls, nil
}

// initSchema creates the necessary tables
func (ls *LinterStats) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS linter_executions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		linter_name TEXT NOT NULL,
		work_dir TEXT NOT NULL,
		executed_at DATETIME NOT NULL,
		duration_ms INTEGER NOT NULL,
		issue_count INTEGER NOT NULL,
		success BOOLEAN NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_linter_executions_name ON linter_executions(linter_name);
	CREATE INDEX IF NOT EXISTS idx_linter_executions_at ON linter_executions(executed_at);
	`

	if _, err := ls.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create stats schema: %w", err)
	}
	return nil
}

// RecordExecution appends one linter run
func (ls *LinterStats) RecordExecution(linterName, workDir string, duration time.Duration, issues int, success bool) error {
	_, err := ls.db.Exec(`
		INSERT INTO linter_executions
		(linter_name, work_dir, executed_at, duration_ms, issue_count, success)
		VALUES (?, ?, ?, ?, ?, ?)`,
		linterName, workDir, time.Now().UTC().Format(time.RFC3339), duration.Milliseconds(), issues, success)
	if err != nil {
		return fmt.Errorf("failed to record execution: %w", err)
	}
	return nil
}

// Summary aggregates per-linter execution metrics over the trailing window
func (ls *LinterStats) Summary(window time.Duration) ([]ExecutionStats, error) {
	cutoff := time.Now().UTC().Add(-window).Format(time.RFC3339)
	rows, err := ls.db.Query(`
		SELECT linter_name,
		       COUNT(*),
		       MAX(executed_at),
		       AVG(duration_ms),
		       SUM(issue_count),
		       AVG(CASE WHEN success THEN 1.0 ELSE 0.0 END)
		FROM linter_executions
		WHERE executed_at >= ?
		GROUP BY linter_name
		ORDER BY linter_name`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution stats: %w", err)
	}
	defer rows.Close()

	var out []ExecutionStats
	for rows.Next() {
		var s ExecutionStats
		var lastRun string
		var avgMs float64
		if err := rows.Scan(&s.LinterName, &s.RunCount, &lastRun, &avgMs, &s.IssueCount, &s.SuccessRate); err != nil {
			return nil, fmt.Errorf("failed to scan execution stats: %w", err)
		}
		s.LastRun, _ = time.Parse(time.RFC3339, lastRun)
		s.AvgDurationMs = int64(avgMs)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Prune removes executions older than the retention window and returns the
// number deleted
func (ls *LinterStats) Prune(retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention).Format(time.RFC3339)
	res, err := ls.db.Exec(`DELETE FROM linter_executions WHERE executed_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune execution stats: %w", err)
	}
	return res.RowsAffected()
}

// Close releases the underlying database handle
func (ls *LinterStats) Close() error {
	return ls.db.Close()
}
