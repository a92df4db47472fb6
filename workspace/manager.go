package workspace

import (
	"context"
	"encoding/base64"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/flanksource/commons/logger"
	"github.com/google/uuid"

	"github.com/flanksource/lint-api/config"
	"github.com/flanksource/lint-api/models"
)

// DefaultFilename is used when a text submission does not name its file
const DefaultFilename = "code.txt"

// Workspace is an isolated directory holding one request's files. Its
// lifetime is bounded by the request (or job) that created it.
type Workspace struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Files     []string  `json:"files"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
	CleanupAt time.Time `json:"cleanup_at"`
}

// ValidationResult reports whether a workspace directory is usable
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// Manager materializes untrusted submissions under a single base directory,
// enforcing size, count and path-safety quotas.
type Manager struct {
	baseDir        string
	maxFileSize    int64
	maxArchiveSize int64
	maxFileCount   int
	ttl            time.Duration
}

// NewManager creates a workspace manager and its base directory
func NewManager(cfg config.WorkspaceConfig) (*Manager, error) {
	if err := os.MkdirAll(cfg.BaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace base dir %s: %w", cfg.BaseDir, err)
	}
	return &Manager{
		baseDir:        cfg.BaseDir,
		maxFileSize:    cfg.MaxFileSizeBytes,
		maxArchiveSize: cfg.MaxArchiveSizeBytes,
		maxFileCount:   cfg.MaxFileCount,
		ttl:            cfg.TTL(),
	}, nil
}

// BaseDir returns the directory all workspaces live under
func (m *Manager) BaseDir() string {
	return m.baseDir
}

// newWorkspaceDir allocates a unique directory under the base dir
func (m *Manager) newWorkspaceDir() (string, string, error) {
	id := "ws_" + uuid.New().String()
	path := filepath.Join(m.baseDir, id)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", "", fmt.Errorf("failed to create workspace dir: %w", err)
	}
	return id, path, nil
}

// CreateFromText writes a single file containing content. The filename is
// reduced to its base name so a submission cannot place files outside the
// workspace.
func (m *Manager) CreateFromText(ctx context.Context, content, filename string) (*Workspace, error) {
	if int64(len(content)) > m.maxFileSize {
		return nil, models.NewContentTooLargeError(
			fmt.Sprintf("content size %d exceeds maximum %d bytes", len(content), m.maxFileSize))
	}

	name := filepath.Base(strings.TrimSpace(filename))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = DefaultFilename
	}

	id, path, err := m.newWorkspaceDir()
	if err != nil {
		return nil, models.NewWorkspaceError("failed to create workspace", err)
	}

	if err := os.WriteFile(filepath.Join(path, name), []byte(content), 0o644); err != nil {
		m.Cleanup(path)
		return nil, models.NewWorkspaceError("failed to write file", err)
	}

	now := time.Now()
	return &Workspace{
		ID:        id,
		Path:      path,
		Files:     []string{name},
		SizeBytes: int64(len(content)),
		CreatedAt: now,
		CleanupAt: now.Add(m.ttl),
	}, nil
}

// CreateFromBase64 decodes a base-64 payload. Gzip payloads are unpacked as
// tar archives; anything else is written as a single text file.
func (m *Manager) CreateFromBase64(ctx context.Context, encoded string) (*Workspace, error) {
	data, err := DecodeBase64(encoded)
	if err != nil {
		return nil, models.NewWorkspaceError("invalid base64 payload", err)
	}

	if isGzip(data) {
		return m.CreateFromBuffer(ctx, data, "tar.gz")
	}
	return m.CreateFromText(ctx, string(data), DefaultFilename)
}

// CreateFromBuffer routes a raw payload by kind; "tar.gz" runs the archive
// extraction policy.
func (m *Manager) CreateFromBuffer(ctx context.Context, buf []byte, kind string) (*Workspace, error) {
	switch kind {
	case "tar.gz":
		return m.extractTarGz(ctx, buf)
	default:
		return nil, models.NewWorkspaceError(fmt.Sprintf("unsupported buffer kind: %s", kind), nil)
	}
}

// Validate checks that a workspace directory exists and holds at least one
// file
func (m *Manager) Validate(path string) ValidationResult {
	result := ValidationResult{Valid: true}

	info, err := os.Stat(path)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("workspace does not exist: %s", path))
		return result
	}
	if !info.IsDir() {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("workspace is not a directory: %s", path))
		return result
	}

	files, err := m.ListFiles(path)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("failed to list workspace files: %v", err))
		return result
	}
	if len(files) == 0 {
		result.Valid = false
		result.Errors = append(result.Errors, "workspace contains no files")
	}
	return result
}

// ListFiles returns the sorted relative paths of all regular files under
// the workspace
func (m *Manager) ListFiles(path string) ([]string, error) {
	return ListFiles(path)
}

// ListFiles enumerates the regular files under a directory as sorted
// relative paths
func ListFiles(path string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(path, p)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk workspace %s: %w", path, err)
	}
	sort.Strings(files)
	return files, nil
}

// Cleanup removes a workspace. Idempotent: missing paths are not an error.
// Paths outside the base directory are refused.
func (m *Manager) Cleanup(path string) {
	if path == "" {
		return
	}
	cleaned := filepath.Clean(path)
	if !strings.HasPrefix(cleaned, m.baseDir+string(filepath.Separator)) {
		logger.Warnf("Refusing to clean up path outside workspace base: %s", path)
		return
	}
	if err := os.RemoveAll(cleaned); err != nil {
		logger.Warnf("Failed to clean up workspace %s: %v", path, err)
	}
}

// CleanupExpired removes workspaces older than the retention window and
// returns how many were removed
func (m *Manager) CleanupExpired() int {
	entries, err := os.ReadDir(m.baseDir)
	if err != nil {
		logger.Warnf("Failed to read workspace base dir: %v", err)
		return 0
	}

	removed := 0
	cutoff := time.Now().Add(-m.ttl)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			m.Cleanup(filepath.Join(m.baseDir, entry.Name()))
			removed++
		}
	}
	if removed > 0 {
		logger.Infof("Removed %d expired workspaces", removed)
	}
	return removed
}

// DecodeBase64 accepts standard encoding with a URL-safe fallback. Callers
// that key on payload bytes decode through this so both alphabets map to the
// same content.
func DecodeBase64(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if data, err := base64.StdEncoding.DecodeString(encoded); err == nil {
		return data, nil
	}
	return base64.URLEncoding.DecodeString(encoded)
}

// isGzip checks for the gzip magic bytes
func isGzip(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}
