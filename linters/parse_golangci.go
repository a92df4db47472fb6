package linters

import (
	"github.com/flanksource/lint-api/models"
)

// GolangciOutput represents golangci-lint --out-format json output
type GolangciOutput struct {
	Issues []GolangciIssue `json:"Issues"`
}

// GolangciIssue represents a single issue from golangci-lint
type GolangciIssue struct {
	FromLinter  string   `json:"FromLinter"`
	Text        string   `json:"Text"`
	Severity    string   `json:"Severity,omitempty"`
	SourceLines []string `json:"SourceLines,omitempty"`
	Pos         struct {
		Filename string `json:"Filename"`
		Offset   int    `json:"Offset"`
		Line     int    `json:"Line"`
		Column   int    `json:"Column"`
	} `json:"Pos"`
}

// parseGolangciJSON parses golangci-lint JSON output
func parseGolangciJSON(stdout, stderr []byte, exitCode int) ([]models.Issue, any) {
	if len(stdout) == 0 {
		return []models.Issue{}, nil
	}

	var output GolangciOutput
	if err := decodeJSON(stdout, &output); err != nil {
		logParseFailure("golangci-lint", err, stdout)
		return syntheticIssue("golangci-lint", stdout), nil
	}

	var issues []models.Issue
	for _, issue := range output.Issues {
		severity := issue.Severity
		if severity != models.SeverityError && severity != models.SeverityWarning && severity != models.SeverityInfo {
			// golangci-lint omits severity unless configured per-linter
			severity = models.SeverityWarning
		}

		issues = append(issues, models.Issue{
			File:     issue.Pos.Filename,
			Line:     issue.Pos.Line,
			Column:   issue.Pos.Column,
			Rule:     issue.FromLinter,
			Severity: severity,
			Message:  issue.Text,
			Source:   "golangci-lint",
		})
	}

	if issues == nil {
		issues = []models.Issue{}
	}
	return issues, output
}
