package models

import (
	"strconv"
	"strings"

	"github.com/flanksource/clicky/api"
)

// Issue severity levels as reported by linters after normalization
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
	SeverityInfo    = "info"
)

// Issue is a single normalized finding reported by a linter
type Issue struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	Rule     string `json:"rule,omitempty"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	// Source tool that reported the issue (e.g., eslint, golangci-lint)
	Source string `json:"source,omitempty"`
}

func (i Issue) String() string {
	return i.Pretty().String()
}

// Pretty returns a formatted text representation of the issue with styling
func (i Issue) Pretty() api.Text {
	t := api.Text{}.Append(i.File, "text-gray-500").
		Append(":", "text-gray-500").
		Append(strconv.Itoa(i.Line))
	if i.Column > 0 {
		t = t.Append(":", "text-gray-500").Append(strconv.Itoa(i.Column))
	}

	switch i.Severity {
	case SeverityError:
		t = t.Append(" "+i.Severity, "text-red-600")
	case SeverityWarning:
		t = t.Append(" "+i.Severity, "text-yellow-600")
	default:
		t = t.Append(" "+i.Severity, "text-blue-500")
	}

	t = t.Append(" " + strings.TrimSpace(i.Message))
	if i.Rule != "" {
		t = t.Append(" ("+i.Rule+")", "text-gray-400")
	}
	return t
}

// Execution is a request to run one linter against a prepared workspace
type Execution struct {
	Linter        string       `json:"linter"`
	WorkspacePath string       `json:"workspace_path"`
	Options       *LintOptions `json:"options,omitempty"`
	TimeoutMs     int          `json:"timeout_ms,omitempty"`
}

// ExecutionResult is the normalized outcome of a single linter run
type ExecutionResult struct {
	Success         bool    `json:"success"`
	ExitCode        int     `json:"exit_code"`
	Stdout          string  `json:"stdout,omitempty"`
	Stderr          string  `json:"stderr,omitempty"`
	ExecutionTimeMs int64   `json:"execution_time_ms"`
	ParsedOutput    any     `json:"parsed_output,omitempty"`
	FileCount       int     `json:"file_count"`
	Issues          []Issue `json:"issues"`
	// Truncated is set when stdout or stderr exceeded the buffer cap
	Truncated bool `json:"truncated,omitempty"`
}

// ErrorCount returns the number of error-severity issues
func (r *ExecutionResult) ErrorCount() int {
	count := 0
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError {
			count++
		}
	}
	return count
}

// WarningCount returns the number of warning-severity issues
func (r *ExecutionResult) WarningCount() int {
	count := 0
	for _, issue := range r.Issues {
		if issue.Severity == SeverityWarning {
			count++
		}
	}
	return count
}
