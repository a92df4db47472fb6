package server

import (
	"bytes"
	"compress/flate"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/flanksource/lint-api/models"
	"github.com/flanksource/lint-api/pipeline"
)

// lintBody is the JSON request accepted by the sync and async lint routes
type lintBody struct {
	Content  string              `json:"content"`
	Filename string              `json:"filename"`
	Archive  string              `json:"archive"`
	Options  *models.LintOptions `json:"options"`
}

// maxBodyBytes caps request bodies well above the single-file quota so the
// workspace manager, not the transport, reports oversize content
const maxBodyBytes = 600 * 1024 * 1024

// decodeLintBody reads the request body as JSON when declared as such,
// otherwise as raw text content
func decodeLintBody(c *gin.Context) (*lintBody, error) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		return nil, models.NewValidationError(fmt.Sprintf("failed to read request body: %v", err))
	}

	contentType := c.ContentType()
	if strings.Contains(contentType, "application/json") {
		var body lintBody
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, models.NewValidationError(fmt.Sprintf("invalid JSON body: %v", err))
		}
		return &body, nil
	}

	// Raw text is treated as content
	return &lintBody{Content: string(raw)}, nil
}

// handleLint serves POST /{linter}/{format}
func (s *Server) handleLint(c *gin.Context) {
	body, err := decodeLintBody(c)
	if err != nil {
		respondError(c, err)
		return
	}

	req := &pipeline.LintRequest{
		Linter:   c.Param("linter"),
		Format:   c.Param("format"),
		Content:  body.Content,
		Filename: body.Filename,
		Archive:  body.Archive,
		Options:  body.Options,
	}

	resp, err := s.deps.Pipeline.Lint(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Set(ctxKeyCacheHit, resp.CacheHit)
	respondResult(c, req.Format, resp.Result, resp.CacheHit)
}

// handleLintEncoded serves GET /{linter}/{format}/{encoded}: the content
// arrives as base-64 of raw-deflate-compressed bytes in the path segment
func (s *Server) handleLintEncoded(c *gin.Context) {
	content, err := decodeCompressedSegment(c.Param("encoded"))
	if err != nil {
		respondError(c, err)
		return
	}

	req := &pipeline.LintRequest{
		Linter:  c.Param("linter"),
		Format:  c.Param("format"),
		Content: content,
	}

	resp, err := s.deps.Pipeline.Lint(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Set(ctxKeyCacheHit, resp.CacheHit)
	respondResult(c, req.Format, resp.Result, resp.CacheHit)
}

// decodeCompressedSegment reverses the Kroki-style encoding: URL-safe
// base-64 (standard accepted too) wrapping a raw deflate stream
func decodeCompressedSegment(encoded string) (string, error) {
	encoded = strings.TrimSpace(encoded)

	compressed, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		if compressed, err = base64.StdEncoding.DecodeString(encoded); err != nil {
			return "", models.NewValidationError("invalid base64 in path segment")
		}
	}

	fr := flate.NewReader(bytes.NewReader(compressed))
	defer fr.Close()

	decompressed, err := io.ReadAll(io.LimitReader(fr, maxBodyBytes))
	if err != nil {
		return "", models.NewValidationError("invalid deflate stream in path segment")
	}
	return string(decompressed), nil
}

// handleLintAsync serves POST /{linter}/{format}/async
func (s *Server) handleLintAsync(c *gin.Context) {
	body, err := decodeLintBody(c)
	if err != nil {
		respondError(c, err)
		return
	}

	req := &pipeline.LintRequest{
		Linter:   c.Param("linter"),
		Format:   c.Param("format"),
		Content:  body.Content,
		Filename: body.Filename,
		Archive:  body.Archive,
		Options:  body.Options,
	}
	// Reject bad submissions up front instead of persisting a job doomed
	// to fail
	if err := s.deps.Pipeline.Validate(req); err != nil {
		respondError(c, err)
		return
	}

	job, err := s.deps.Jobs.Submit(c.Request.Context(), &models.JobRequest{
		Linter:   req.Linter,
		Format:   req.Format,
		Content:  req.Content,
		Archive:  req.Archive,
		Filename: req.Filename,
		Options:  req.Options,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success":    true,
		"job_id":     job.JobID,
		"status":     job.Status,
		"status_url": fmt.Sprintf("/jobs/%s", job.JobID),
		"cancel_url": fmt.Sprintf("/jobs/%s", job.JobID),
	})
}

// handleJobStatus serves GET /jobs/{job_id}
func (s *Server) handleJobStatus(c *gin.Context) {
	jobID := c.Param("job_id")

	job, err := s.deps.Jobs.Status(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, models.NewDatabaseError("failed to look up job", err))
		return
	}
	if job == nil {
		respondError(c, models.NewJobNotFoundError(jobID))
		return
	}

	c.JSON(http.StatusOK, jobView(job))
}

// jobView renders a job record with its serialized result decoded
func jobView(job *models.LintJob) gin.H {
	view := gin.H{
		"job_id":      job.JobID,
		"linter_type": job.LinterType,
		"format":      job.Format,
		"status":      job.Status,
		"created_at":  job.CreatedAt,
	}
	if job.StartedAt != nil {
		view["started_at"] = job.StartedAt
	}
	if job.CompletedAt != nil {
		view["completed_at"] = job.CompletedAt
	}
	if job.ExecutionTimeMs != nil {
		view["execution_time_ms"] = *job.ExecutionTimeMs
	}
	if job.ErrorMessage != "" {
		view["error_message"] = job.ErrorMessage
	}
	if job.Result != "" {
		var result models.ExecutionResult
		if err := json.Unmarshal([]byte(job.Result), &result); err == nil {
			view["result"] = result
		} else {
			view["result"] = job.Result
		}
	}
	return view
}

// handleJobCancel serves DELETE /jobs/{job_id}
func (s *Server) handleJobCancel(c *gin.Context) {
	jobID := c.Param("job_id")

	cancelled, err := s.deps.Jobs.Cancel(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !cancelled {
		respondError(c, models.NewJobAlreadyCancelledError(jobID))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"job_id":  jobID,
		"status":  models.JobStatusCancelled,
	})
}

// handleLinters serves GET /linters
func (s *Server) handleLinters(c *gin.Context) {
	statuses := s.deps.Prober.AllLinterStatus(c.Request.Context())

	linterList := make([]gin.H, 0, s.deps.Registry.Count())
	for _, d := range s.deps.Registry.List() {
		status := statuses[d.Name]
		linterList = append(linterList, gin.H{
			"name":       d.Name,
			"executable": d.Executable,
			"available":  status.Available,
			"version":    status.Version,
			"extensions": d.Extensions,
			"formats":    d.OutputFormats,
		})
	}

	available := lo.Filter(linterList, func(l gin.H, _ int) bool { return l["available"] == true })
	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"total":           len(linterList),
		"available_count": len(available),
		"linters":         linterList,
	})
}

// handleCacheInvalidate serves DELETE /cache: full invalidation
func (s *Server) handleCacheInvalidate(c *gin.Context) {
	removed, err := s.deps.Cache.Invalidate(c.Request.Context(), "", "")
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"removed": removed,
	})
}
