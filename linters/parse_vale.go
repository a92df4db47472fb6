package linters

import (
	"github.com/flanksource/lint-api/models"
)

// ValeIssue represents a single issue from vale --output=JSON. Vale keys
// its output by file name, so the document is a map of file to issues.
type ValeIssue struct {
	Check    string `json:"Check"`
	Line     int    `json:"Line"`
	Span     []int  `json:"Span"`
	Severity string `json:"Severity"`
	Message  string `json:"Message"`
	Match    string `json:"Match,omitempty"`
	Link     string `json:"Link,omitempty"`
}

// parseValeJSON parses vale JSON output
func parseValeJSON(stdout, stderr []byte, exitCode int) ([]models.Issue, any) {
	if len(stdout) == 0 {
		return []models.Issue{}, nil
	}

	var results map[string][]ValeIssue
	if err := decodeJSON(stdout, &results); err != nil {
		logParseFailure("vale", err, stdout)
		return syntheticIssue("vale", stdout), nil
	}

	var issues []models.Issue
	for file, fileIssues := range results {
		for _, issue := range fileIssues {
			severity := models.SeverityInfo
			switch issue.Severity {
			case "error":
				severity = models.SeverityError
			case "warning":
				severity = models.SeverityWarning
			}

			column := 0
			if len(issue.Span) > 0 {
				column = issue.Span[0]
			}

			issues = append(issues, models.Issue{
				File:     file,
				Line:     issue.Line,
				Column:   column,
				Rule:     issue.Check,
				Severity: severity,
				Message:  issue.Message,
				Source:   "vale",
			})
		}
	}

	if issues == nil {
		issues = []models.Issue{}
	}
	return issues, results
}
