package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/flanksource/commons/logger"
	"github.com/gin-gonic/gin"

	"github.com/flanksource/lint-api/linters"
	"github.com/flanksource/lint-api/models"
)

// errorEnvelope is the uniform error body
type errorEnvelope struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

type errorBody struct {
	Code      models.ErrorCode `json:"code"`
	Message   string           `json:"message"`
	Details   any              `json:"details,omitempty"`
	Timestamp string           `json:"timestamp"`
	RequestID string           `json:"request_id,omitempty"`
}

// respondError renders any error as the standard envelope, mapping its kind
// to the transport status
func respondError(c *gin.Context, err error) {
	appErr := models.AsAppError(err)
	if appErr.Code == models.ErrInternal && appErr.Err != nil {
		logger.Errorf("Internal error on %s %s: %v", c.Request.Method, c.Request.URL.Path, appErr.Err)
	}

	c.Set(ctxKeyErrorType, string(appErr.Code))
	c.JSON(appErr.Code.HTTPStatus(), errorEnvelope{
		Error: errorBody{
			Code:      appErr.Code,
			Message:   appErr.Message,
			Details:   appErr.Details,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			RequestID: c.GetString(ctxKeyRequestID),
		},
	})
}

// respondResult renders an execution result in the requested format
func respondResult(c *gin.Context, format string, result *models.ExecutionResult, cacheHit bool) {
	switch format {
	case linters.FormatText:
		c.JSON(http.StatusOK, gin.H{
			"success":           result.Success,
			"output":            renderIssuesText(result.Issues),
			"errors":            strings.TrimSpace(result.Stderr),
			"exit_code":         result.ExitCode,
			"execution_time_ms": result.ExecutionTimeMs,
			"cache_hit":         cacheHit,
		})

	case linters.FormatSARIF:
		c.JSON(http.StatusOK, renderSARIF(result))

	default:
		c.JSON(http.StatusOK, gin.H{
			"success":           result.Success,
			"exit_code":         result.ExitCode,
			"execution_time_ms": result.ExecutionTimeMs,
			"file_count":        result.FileCount,
			"issues":            result.Issues,
			"parsed_output":     result.ParsedOutput,
			"cache_hit":         cacheHit,
		})
	}
}

// renderIssuesText formats issues one per line, the way the tools print
// them on a terminal
func renderIssuesText(issues []models.Issue) string {
	if len(issues) == 0 {
		return "No issues found"
	}

	var b strings.Builder
	for _, issue := range issues {
		fmt.Fprintf(&b, "%s:%d:%d: %s: %s", issue.File, issue.Line, issue.Column, issue.Severity, issue.Message)
		if issue.Rule != "" {
			fmt.Fprintf(&b, " (%s)", issue.Rule)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderSARIF converts a result into a SARIF 2.1.0 document with one run
// per tool
func renderSARIF(result *models.ExecutionResult) gin.H {
	toolName := "lint-api"
	if len(result.Issues) > 0 && result.Issues[0].Source != "" {
		toolName = result.Issues[0].Source
	}

	results := make([]gin.H, 0, len(result.Issues))
	for _, issue := range result.Issues {
		level := "warning"
		switch issue.Severity {
		case models.SeverityError:
			level = "error"
		case models.SeverityInfo:
			level = "note"
		}

		results = append(results, gin.H{
			"ruleId":  issue.Rule,
			"level":   level,
			"message": gin.H{"text": issue.Message},
			"locations": []gin.H{{
				"physicalLocation": gin.H{
					"artifactLocation": gin.H{"uri": issue.File},
					"region": gin.H{
						"startLine":   max(issue.Line, 1),
						"startColumn": max(issue.Column, 1),
					},
				},
			}},
		})
	}

	return gin.H{
		"$schema": "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/master/Schemata/sarif-schema-2.1.0.json",
		"version": "2.1.0",
		"runs": []gin.H{{
			"tool": gin.H{
				"driver": gin.H{
					"name":           toolName,
					"informationUri": "https://github.com/flanksource/lint-api",
				},
			},
			"results": results,
		}},
	}
}
