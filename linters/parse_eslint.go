package linters

import (
	"github.com/flanksource/lint-api/models"
)

// ESLintResult represents a single file's results from ESLint
type ESLintResult struct {
	FilePath            string          `json:"filePath"`
	Messages            []ESLintMessage `json:"messages"`
	ErrorCount          int             `json:"errorCount"`
	WarningCount        int             `json:"warningCount"`
	FatalErrorCount     int             `json:"fatalErrorCount"`
	FixableErrorCount   int             `json:"fixableErrorCount"`
	FixableWarningCount int             `json:"fixableWarningCount"`
}

// ESLintMessage represents a single message from ESLint
type ESLintMessage struct {
	RuleId    string `json:"ruleId"`
	Severity  int    `json:"severity"`
	Message   string `json:"message"`
	Line      int    `json:"line"`
	Column    int    `json:"column"`
	NodeType  string `json:"nodeType"`
	MessageId string `json:"messageId,omitempty"`
	EndLine   int    `json:"endLine,omitempty"`
	EndColumn int    `json:"endColumn,omitempty"`
	Fix       *struct {
		Range []int  `json:"range"`
		Text  string `json:"text"`
	} `json:"fix,omitempty"`
}

// parseESLintJSON parses ESLint --format json output
func parseESLintJSON(stdout, stderr []byte, exitCode int) ([]models.Issue, any) {
	if len(stdout) == 0 {
		return []models.Issue{}, nil
	}

	var results []ESLintResult
	if err := decodeJSON(stdout, &results); err != nil {
		logParseFailure("eslint", err, stdout)
		return syntheticIssue("eslint", stdout), nil
	}

	var issues []models.Issue
	for _, result := range results {
		for _, message := range result.Messages {
			// ESLint severity: 1 = warning, 2 = error
			severity := models.SeverityInfo
			switch message.Severity {
			case 1:
				severity = models.SeverityWarning
			case 2:
				severity = models.SeverityError
			}

			issues = append(issues, models.Issue{
				File:     result.FilePath,
				Line:     message.Line,
				Column:   message.Column,
				Rule:     message.RuleId,
				Severity: severity,
				Message:  message.Message,
				Source:   "eslint",
			})
		}
	}

	if issues == nil {
		issues = []models.Issue{}
	}
	return issues, results
}
