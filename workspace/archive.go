package workspace

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/flanksource/commons/logger"

	"github.com/flanksource/lint-api/models"
)

// allowedExtensions is the global allowlist applied to every archive entry.
// It covers the extensions the registered linters accept plus the config and
// manifest files they read.
var allowedExtensions = map[string]bool{
	".js": true, ".jsx": true, ".ts": true, ".tsx": true, ".mjs": true, ".cjs": true,
	".go": true, ".mod": true, ".sum": true,
	".py": true, ".pyi": true,
	".sh": true, ".bash": true, ".ksh": true,
	".md": true, ".markdown": true, ".txt": true, ".rst": true,
	".yml": true, ".yaml": true, ".json": true, ".jsonc": true,
	".toml": true, ".ini": true, ".cfg": true,
	".dockerfile": true,
	".html": true, ".css": true,
	// dotfile configs: filepath.Ext treats the whole name as the extension
	".eslintrc": true, ".yamllint": true, ".markdownlintrc": true, ".golangci": true,
}

// allowedNames admits extension-less files by exact base name
var allowedNames = map[string]bool{
	"Dockerfile": true,
	"Makefile":   true,
}

// blockedSegments drops any entry whose path contains one of these
// directories
var blockedSegments = map[string]bool{
	"node_modules": true,
	".git":         true,
	"dist":         true,
	"build":        true,
	"vendor":       true,
	"__pycache__":  true,
}

// admissible reports whether an archive entry's relative path passes the
// segment blocklist and extension allowlist
func admissible(relPath string) bool {
	for _, segment := range strings.Split(relPath, "/") {
		if blockedSegments[segment] {
			return false
		}
	}
	base := filepath.Base(relPath)
	if allowedNames[base] {
		return true
	}
	ext := strings.ToLower(filepath.Ext(base))
	return allowedExtensions[ext]
}

// extractTarGz unpacks a gzip-compressed tar archive into a fresh workspace.
// Entries that escape the workspace, carry blocked segments or disallowed
// extensions, or are not regular files are dropped; quota breaches abort the
// extraction and remove the partial workspace.
func (m *Manager) extractTarGz(ctx context.Context, data []byte) (*Workspace, error) {
	id, wsPath, err := m.newWorkspaceDir()
	if err != nil {
		return nil, models.NewWorkspaceError("failed to create workspace", err)
	}

	ws, err := m.extractInto(ctx, wsPath, data)
	if err != nil {
		// Never leave a partial workspace behind
		m.Cleanup(wsPath)
		return nil, err
	}
	ws.ID = id
	return ws, nil
}

func (m *Manager) extractInto(ctx context.Context, wsPath string, data []byte) (*Workspace, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, models.NewWorkspaceError("invalid gzip stream", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	var totalSize int64
	fileCount := 0
	dropped := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, models.NewWorkspaceError("extraction cancelled", err)
		}

		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, models.NewWorkspaceError("failed to read archive", err)
		}

		// Only regular files are materialized; directories are implied by
		// file paths, links and devices are dropped outright
		if header.Typeflag != tar.TypeReg {
			continue
		}

		relPath, target, ok := safeTarget(wsPath, header.Name)
		if !ok {
			logger.Debugf("Dropping archive entry escaping workspace: %s", header.Name)
			dropped++
			continue
		}
		if !admissible(relPath) {
			dropped++
			continue
		}

		if header.Size > m.maxFileSize {
			return nil, models.NewContentTooLargeError(
				fmt.Sprintf("archive entry %s exceeds single-file limit of %d bytes", relPath, m.maxFileSize))
		}

		fileCount++
		if fileCount > m.maxFileCount {
			return nil, models.NewContentTooLargeError(
				fmt.Sprintf("archive exceeds file count limit of %d", m.maxFileCount))
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return nil, models.NewWorkspaceError("failed to create directory", err)
		}

		// Decompressed size is measured progressively so an archive bomb
		// aborts mid-stream instead of filling the disk first
		written, err := writeEntry(target, tr, m.maxArchiveSize-totalSize)
		totalSize += written
		if err != nil {
			var appErr *models.AppError
			if errors.As(err, &appErr) {
				return nil, err
			}
			return nil, models.NewWorkspaceError(fmt.Sprintf("failed to extract %s", relPath), err)
		}
	}

	if dropped > 0 {
		logger.Infof("Dropped %d inadmissible archive entries", dropped)
	}

	files, err := m.ListFiles(wsPath)
	if err != nil {
		return nil, models.NewWorkspaceError("failed to list extracted files", err)
	}

	now := time.Now()
	return &Workspace{
		Path:      wsPath,
		Files:     files,
		SizeBytes: totalSize,
		CreatedAt: now,
		CleanupAt: now.Add(m.ttl),
	}, nil
}

// safeTarget resolves an archive entry name against the workspace and
// reports whether the result stays strictly inside it
func safeTarget(wsPath, name string) (relPath, target string, ok bool) {
	cleaned := filepath.Clean(strings.ReplaceAll(name, "\\", "/"))
	if filepath.IsAbs(cleaned) {
		return "", "", false
	}

	target = filepath.Join(wsPath, cleaned)
	base := filepath.Clean(wsPath)
	if !strings.HasPrefix(target, base+string(filepath.Separator)) {
		return "", "", false
	}

	rel, err := filepath.Rel(base, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", "", false
	}
	return filepath.ToSlash(rel), target, true
}

// writeEntry copies at most limit+1 bytes so the caller can detect a quota
// breach without trusting tar header sizes
func writeEntry(target string, r io.Reader, limit int64) (int64, error) {
	if limit < 0 {
		limit = 0
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	written, err := io.Copy(f, io.LimitReader(r, limit+1))
	if err != nil {
		return written, err
	}
	if written > limit {
		return written, models.NewContentTooLargeError("archive exceeds decompressed size limit")
	}
	return written, nil
}
