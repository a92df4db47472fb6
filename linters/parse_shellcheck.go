package linters

import (
	"fmt"

	"github.com/flanksource/lint-api/models"
)

// ShellcheckIssue represents a single issue from shellcheck --format=json
type ShellcheckIssue struct {
	File      string `json:"file"`
	Line      int    `json:"line"`
	EndLine   int    `json:"endLine"`
	Column    int    `json:"column"`
	EndColumn int    `json:"endColumn"`
	Level     string `json:"level"`
	Code      int    `json:"code"`
	Message   string `json:"message"`
}

// parseShellcheckJSON parses shellcheck JSON output
func parseShellcheckJSON(stdout, stderr []byte, exitCode int) ([]models.Issue, any) {
	if len(stdout) == 0 {
		return []models.Issue{}, nil
	}

	var results []ShellcheckIssue
	if err := decodeJSON(stdout, &results); err != nil {
		logParseFailure("shellcheck", err, stdout)
		return syntheticIssue("shellcheck", stdout), nil
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
			Rule:     fmt.Sprintf("SC%d", issue.Code),
			Severity: severity,
			Message:  issue.Message,
			Source:   "shellcheck",
		})
	}

	if issues == nil {
		issues = []models.Issue{}
	}
	return issues, results
}
