package linters

import (
	"strings"

	"github.com/flanksource/lint-api/models"
)

// RuffIssue represents a single issue from ruff check --output-format json
type RuffIssue struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Filename string `json:"filename"`
	Location struct {
		Row    int `json:"row"`
		Column int `json:"column"`
	} `json:"location"`
	EndLocation struct {
		Row    int `json:"row"`
		Column int `json:"column"`
	} `json:"end_location"`
	Fix *struct {
		Applicability string `json:"applicability"`
		Message       string `json:"message"`
	} `json:"fix,omitempty"`
	URL string `json:"url,omitempty"`
}

// parseRuffJSON parses ruff JSON output
func parseRuffJSON(stdout, stderr []byte, exitCode int) ([]models.Issue, any) {
	if len(stdout) == 0 {
		return []models.Issue{}, nil
	}

	var results []RuffIssue
	if err := decodeJSON(stdout, &results); err != nil {
		logParseFailure("ruff", err, stdout)
		return syntheticIssue("ruff", stdout), nil
	}

	var issues []models.Issue
	for _, issue := range results {
		// F-class rules are pyflakes failures, E9 are syntax errors; the
		// rest of the rule set is stylistic
		severity := models.SeverityWarning
		if strings.HasPrefix(issue.Code, "F") || strings.HasPrefix(issue.Code, "E9") {
			severity = models.SeverityError
		}

		issues = append(issues, models.Issue{
			File:     issue.Filename,
			Line:     issue.Location.Row,
			Column:   issue.Location.Column,
			Rule:     issue.Code,
			Severity: severity,
			Message:  issue.Message,
			Source:   "ruff",
		})
	}

	if issues == nil {
		issues = []models.Issue{}
	}
	return issues, results
}
