package runner

import (
	"context"
	"os/exec"
	"regexp"
	"strings"
	"sync"

	"github.com/flanksource/commons/logger"
	"golang.org/x/mod/semver"
	"golang.org/x/sync/errgroup"
)

// LinterStatus reports whether a registered linter binary is installed and,
// when it is, which version answered the probe.
type LinterStatus struct {
	Available  bool     `json:"available"`
	Version    string   `json:"version,omitempty"`
	Path       string   `json:"path,omitempty"`
	Extensions []string `json:"extensions"`
	Formats    []string `json:"formats"`
}

var versionPattern = regexp.MustCompile(`v?(\d+\.\d+(?:\.\d+)?)`)

// AllLinterStatus probes every registered executable concurrently and
// reports availability and version for each.
func (r *Runner) AllLinterStatus(ctx context.Context) map[string]LinterStatus {
	statuses := make(map[string]LinterStatus, r.registry.Count())
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for _, d := range r.registry.List() {
		g.Go(func() error {
			status := r.probe(gctx, d.Executable, d.VersionArgs)
			status.Extensions = d.Extensions
			status.Formats = d.OutputFormats

			mu.Lock()
			statuses[d.Name] = status
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return statuses
}

// probe resolves the binary on PATH and asks it for its version
func (r *Runner) probe(ctx context.Context, executable string, versionArgs []string) LinterStatus {
	path, err := exec.LookPath(executable)
	if err != nil {
		return LinterStatus{Available: false}
	}

	probeCtx, cancel := context.WithTimeout(ctx, r.cfg.ProbeTimeout())
	defer cancel()

	out, err := exec.CommandContext(probeCtx, executable, versionArgs...).CombinedOutput()
	if err != nil {
		logger.Debugf("Version probe for %s failed: %v", executable, err)
		// Binary exists even if the probe errored
		return LinterStatus{Available: true, Path: path}
	}

	return LinterStatus{
		Available: true,
		Path:      path,
		Version:   extractVersion(string(out)),
	}
}

// extractVersion pulls the first semver-looking token out of probe output
// and canonicalizes it
func extractVersion(output string) string {
	line := strings.TrimSpace(output)
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}

	m := versionPattern.FindStringSubmatch(line)
	if m == nil {
		return ""
	}

	v := "v" + m[1]
	if semver.IsValid(v) {
		return strings.TrimPrefix(semver.Canonical(v), "v")
	}
	return m[1]
}
