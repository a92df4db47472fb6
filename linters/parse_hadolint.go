package linters

import (
	"github.com/flanksource/lint-api/models"
)

// HadolintIssue represents a single issue from hadolint --format json
type HadolintIssue struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Level   string `json:"level"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// parseHadolintJSON parses hadolint JSON output
func parseHadolintJSON(stdout, stderr []byte, exitCode int) ([]models.Issue, any) {
	if len(stdout) == 0 {
		return []models.Issue{}, nil
	}

	var results []HadolintIssue
	if err := decodeJSON(stdout, &results); err != nil {
		logParseFailure("hadolint", err, stdout)
		return syntheticIssue("hadolint", stdout), nil
	}

	var issues []models.Issue
	for _, issue := range results {
		severity := models.SeverityInfo
		switch issue.Level {
		case "error":
			severity = models.SeverityError
		case "warning":
			severity = models.SeverityWarning
		}

		issues = append(issues, models.Issue{
			File:     issue.File,
			Line:     issue.Line,
			Column:   issue.Column,
			Rule:     issue.Code,
			Severity: severity,
			Message:  issue.Message,
			Source:   "hadolint",
		})
	}

	if issues == nil {
		issues = []models.Issue{}
	}
	return issues, results
}
