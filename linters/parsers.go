package linters

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/flanksource/commons/logger"

	"github.com/flanksource/lint-api/models"
)

// ParseFunc converts raw linter output into normalized issues plus the
// tool-specific parsed representation. Parsers never fail: empty output
// yields no issues, unparseable output degrades to a single synthetic issue
// carrying the raw text.
type ParseFunc func(stdout, stderr []byte, exitCode int) ([]models.Issue, any)

// parsers is the strategy table keyed by Descriptor.ParserID. Adding a
// linter means adding a row here and a descriptor to the registry.
var parsers = map[string]ParseFunc{
	"eslint-json":       parseESLintJSON,
	"golangci-json":     parseGolangciJSON,
	"ruff-json":         parseRuffJSON,
	"shellcheck-json":   parseShellcheckJSON,
	"hadolint-json":     parseHadolintJSON,
	"markdownlint-text": parseMarkdownlintText,
	"yamllint-parsable": parseYamllintParsable,
	"vale-json":         parseValeJSON,
}

// GetParser retrieves a parser by id
func GetParser(id string) (ParseFunc, bool) {
	p, ok := parsers[id]
	return p, ok
}

// decodeJSON unmarshals output into v, tolerating leading noise and
// multiple JSON documents by falling back to a streaming decode of the
// first document that fits.
func decodeJSON(output []byte, v any) error {
	output = bytes.TrimSpace(output)
	lastErr := json.Unmarshal(output, v)
	if lastErr == nil {
		return nil
	}

	// Retry from each candidate document start. Every iteration consumes
	// at least one byte of the remainder, so the loop always terminates.
	rest := output
	for {
		start := bytes.IndexAny(rest, "[{")
		if start < 0 {
			return lastErr
		}
		rest = rest[start:]

		dec := json.NewDecoder(bytes.NewReader(rest))
		if err := dec.Decode(v); err == nil {
			return nil
		} else {
			lastErr = err
		}
		rest = rest[1:]
	}
}

// syntheticIssue wraps unparseable tool output in a single error finding
func syntheticIssue(source string, raw []byte) []models.Issue {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return []models.Issue{}
	}
	return []models.Issue{{
		File:     "",
		Line:     0,
		Column:   0,
		Rule:     "parse-error",
		Severity: models.SeverityError,
		Message:  text,
		Source:   source,
	}}
}

// parseLocationInt parses a numeric location field, returning 0 on error
func parseLocationInt(s string) int {
	if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		return i
	}
	return 0
}

func logParseFailure(source string, err error, output []byte) {
	preview := output
	if len(preview) > 512 {
		preview = preview[:512]
	}
	logger.Debugf("Failed to parse %s output: %v\nOutput: %s", source, err, string(preview))
}
