package linters

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"

	"github.com/flanksource/lint-api/models"
)

// YamllintFinding is one parsed line of yamllint -f parsable output
type YamllintFinding struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Level   string `json:"level"`
	Message string `json:"message"`
	Rule    string `json:"rule,omitempty"`
}

// yamllint -f parsable prints one finding per line:
//
//	deploy.yaml:4:3: [warning] wrong indentation: expected 4 but found 2 (indentation)
var yamllintLine = regexp.MustCompile(`^(.+?):(\d+):(\d+):\s+\[(\w+)\]\s+(.+?)(?:\s+\(([\w-]+)\))?$`)

// parseYamllintParsable parses yamllint parsable output
func parseYamllintParsable(stdout, stderr []byte, exitCode int) ([]models.Issue, any) {
	if len(bytes.TrimSpace(stdout)) == 0 {
		return []models.Issue{}, nil
	}

	var issues []models.Issue
	var findings []YamllintFinding

	scanner := bufio.NewScanner(bytes.NewReader(stdout))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		m := yamllintLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		finding := YamllintFinding{
			File:    m[1],
			Line:    parseLocationInt(m[2]),
			Column:  parseLocationInt(m[3]),
			Level:   m[4],
			Message: m[5],
			Rule:    m[6],
		}
		findings = append(findings, finding)

		severity := models.SeverityWarning
		if finding.Level == "error" {
			severity = models.SeverityError
		}

		issues = append(issues, models.Issue{
			File:     finding.File,
			Line:     finding.Line,
			Column:   finding.Column,
			Rule:     finding.Rule,
			Severity: severity,
			Message:  finding.Message,
			Source:   "yamllint",
		})
	}

	if len(issues) == 0 {
		return syntheticIssue("yamllint", stdout), nil
	}
	return issues, findings
}
