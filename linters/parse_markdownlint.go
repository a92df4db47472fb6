package linters

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"

	"github.com/flanksource/lint-api/models"
)

// MarkdownlintFinding is one parsed line of markdownlint's default output
type MarkdownlintFinding struct {
	File        string `json:"file"`
	Line        int    `json:"line"`
	Column      int    `json:"column,omitempty"`
	RuleNames   string `json:"rule_names"`
	Description string `json:"description"`
}

// markdownlint prints findings to stderr, one per line:
//
//	README.md:12:3 MD013/line-length Line length [Expected: 80; Actual: 95]
//	README.md:5 MD041/first-line-heading First line should be a heading
var markdownlintLine = regexp.MustCompile(`^(.+?):(\d+)(?::(\d+))?\s+([A-Z]+\d+(?:/[\w.-]+)*)\s+(.+)$`)

// parseMarkdownlintText parses markdownlint's default text output
func parseMarkdownlintText(stdout, stderr []byte, exitCode int) ([]models.Issue, any) {
	// Diagnostics land on stderr; stdout stays empty in default mode
	output := stderr
	if len(bytes.TrimSpace(output)) == 0 {
		output = stdout
	}
	if len(bytes.TrimSpace(output)) == 0 {
		return []models.Issue{}, nil
	}

	var issues []models.Issue
	var findings []MarkdownlintFinding

	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		m := markdownlintLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		finding := MarkdownlintFinding{
			File:        m[1],
			Line:        parseLocationInt(m[2]),
			Column:      parseLocationInt(m[3]),
			RuleNames:   m[4],
			Description: m[5],
		}
		findings = append(findings, finding)

		issues = append(issues, models.Issue{
			File:     finding.File,
			Line:     finding.Line,
			Column:   finding.Column,
			Rule:     finding.RuleNames,
			Severity: models.SeverityWarning,
			Message:  finding.Description,
			Source:   "markdownlint",
		})
	}

	// Output present but no line matched: surface it rather than drop it
	if len(issues) == 0 {
		return syntheticIssue("markdownlint", output), nil
	}
	return issues, findings
}
