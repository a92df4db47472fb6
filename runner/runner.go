package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/flanksource/commons/logger"

	"github.com/flanksource/lint-api/config"
	"github.com/flanksource/lint-api/linters"
	"github.com/flanksource/lint-api/models"
)

// ErrCancelled is returned by Run when the execution was stopped through
// Cancel rather than by timeout or child exit.
var ErrCancelled = errors.New("execution cancelled")

// FileLister enumerates the regular files of a workspace as sorted relative
// paths. *workspace.Manager satisfies it.
type FileLister interface {
	ListFiles(path string) ([]string, error)
}

// process is one live child tracked by the runner
type process struct {
	id        string
	linter    string
	cmd       *exec.Cmd
	cancelCh  chan struct{}
	done      chan struct{}
	startedAt time.Time
}

// Runner spawns linter binaries against workspaces and supervises their
// lifetime: bounded output, timeout, cancellation, exit-code mapping.
type Runner struct {
	registry *linters.Registry
	files    FileLister
	cfg      config.RunnerConfig

	// mu guards processes; held only for O(1) map operations, never
	// across a child wait
	mu        sync.Mutex
	processes map[string]*process
	seq       atomic.Int64
}

// New creates a Runner backed by the given registry and file lister
func New(registry *linters.Registry, files FileLister, cfg config.RunnerConfig) *Runner {
	return &Runner{
		registry:  registry,
		files:     files,
		cfg:       cfg,
		processes: make(map[string]*process),
	}
}

// Registry exposes the descriptor table the runner executes from
func (r *Runner) Registry() *linters.Registry {
	return r.registry
}

// Run executes one linter against a prepared workspace and returns the
// normalized result. Non-zero exits listed in the descriptor's findings
// codes count as successful runs with issues.
func (r *Runner) Run(ctx context.Context, execution models.Execution) (*models.ExecutionResult, error) {
	descriptor, ok := r.registry.Get(execution.Linter)
	if !ok {
		return nil, models.NewInvalidParametersError(fmt.Sprintf("unknown linter: %s", execution.Linter))
	}

	if _, err := os.Stat(execution.WorkspacePath); err != nil {
		return nil, models.NewWorkspaceError(fmt.Sprintf("workspace does not exist: %s", execution.WorkspacePath), err)
	}

	files, err := r.files.ListFiles(execution.WorkspacePath)
	if err != nil {
		return nil, models.NewWorkspaceError("failed to list workspace files", err)
	}
	if len(files) == 0 {
		return nil, models.NewWorkspaceError(
			fmt.Sprintf("workspace contains no files: %s", execution.WorkspacePath), nil)
	}

	supported := r.supportedFiles(descriptor, execution.Options, files)
	if len(supported) == 0 {
		return nil, models.NewLinterExecutionError(
			fmt.Sprintf("No supported files found for linter %s", execution.Linter), nil)
	}

	args := r.buildArgs(descriptor, execution.Options, execution.WorkspacePath)
	env := buildEnv(execution.Options)
	timeout := clampTimeout(execution, descriptor)

	cmd := exec.Command(descriptor.Executable, args...)
	cmd.Dir = execution.WorkspacePath
	cmd.Env = env

	stdout := newBoundedBuffer(r.cfg.OutputCapBytes)
	stderr := newBoundedBuffer(r.cfg.OutputCapBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	logger.Infof("Executing: %s %s (timeout %s)", descriptor.Executable, strings.Join(args, " "), timeout)

	started := time.Now()
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, models.NewAppError(models.ErrLinterNotFound,
				fmt.Sprintf("Linter executable not found: %s", descriptor.Executable), err)
		}
		return nil, models.NewLinterExecutionError(
			fmt.Sprintf("failed to start %s", descriptor.Executable), err)
	}

	proc := &process{
		id:        fmt.Sprintf("proc_%d_%d", started.UnixMilli(), r.seq.Add(1)),
		linter:    execution.Linter,
		cmd:       cmd,
		cancelCh:  make(chan struct{}),
		done:      make(chan struct{}),
		startedAt: started,
	}
	r.track(proc)
	defer r.untrack(proc)

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	// Three-way select: child exit, timeout, cancel (external or context)
	select {
	case err = <-waitCh:

	case <-timer.C:
		r.terminate(cmd)
		<-waitCh
		return nil, models.NewTimeoutError(
			fmt.Sprintf("%s exceeded timeout of %s", execution.Linter, timeout))

	case <-proc.cancelCh:
		r.terminate(cmd)
		<-waitCh
		return nil, fmt.Errorf("%s: %w", execution.Linter, ErrCancelled)

	case <-ctx.Done():
		r.terminate(cmd)
		<-waitCh
		return nil, models.NewLinterExecutionError(
			fmt.Sprintf("%s execution aborted", execution.Linter), ctx.Err())
	}

	elapsed := time.Since(started)
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, models.NewLinterExecutionError(
				fmt.Sprintf("%s execution failed", execution.Linter), err)
		}
	}

	stdoutBytes := stdout.Bytes()
	stderrBytes := stderr.Bytes()

	if exitCode != 0 && !descriptor.IsFindingsExit(exitCode) {
		detail := strings.TrimSpace(string(stderrBytes))
		if detail == "" {
			detail = strings.TrimSpace(string(stdoutBytes))
		}
		return nil, models.NewLinterExecutionError(
			fmt.Sprintf("%s exited with code %d: %s", execution.Linter, exitCode, firstLine(detail)), nil)
	}

	parse, ok := linters.GetParser(descriptor.ParserID)
	if !ok {
		return nil, models.NewInternalError(
			fmt.Sprintf("no parser registered for %s", descriptor.ParserID), nil)
	}
	issues, parsed := parse(stdoutBytes, stderrBytes, exitCode)
	relativizeIssues(issues, execution.WorkspacePath)

	result := &models.ExecutionResult{
		Success:         true,
		ExitCode:        exitCode,
		Stdout:          string(stdoutBytes),
		Stderr:          string(stderrBytes),
		ExecutionTimeMs: elapsed.Milliseconds(),
		ParsedOutput:    parsed,
		FileCount:       len(supported),
		Issues:          issues,
		Truncated:       stdout.Truncated() || stderr.Truncated(),
	}

	logger.Debugf("%s finished in %s: exit=%d issues=%d", execution.Linter, elapsed, exitCode, len(issues))
	return result, nil
}

// Cancel terminates a tracked child and returns true once it has exited;
// unknown ids return false.
func (r *Runner) Cancel(processID string) bool {
	r.mu.Lock()
	proc, ok := r.processes[processID]
	r.mu.Unlock()
	if !ok {
		return false
	}

	select {
	case <-proc.cancelCh:
		// already cancelled
	default:
		close(proc.cancelCh)
	}
	<-proc.done
	return true
}

// CancelByLinter cancels every live process of the given linter started at
// or after since, returning how many were cancelled.
func (r *Runner) CancelByLinter(linter string, since time.Time) int {
	r.mu.Lock()
	var ids []string
	for id, proc := range r.processes {
		if proc.linter == linter && !proc.startedAt.Before(since) {
			ids = append(ids, id)
		}
	}
	r.mu.Unlock()

	cancelled := 0
	for _, id := range ids {
		if r.Cancel(id) {
			cancelled++
		}
	}
	return cancelled
}

// RunningProcesses returns a sorted snapshot of live process identifiers
func (r *Runner) RunningProcesses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.processes))
	for id := range r.processes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Runner) track(proc *process) {
	r.mu.Lock()
	r.processes[proc.id] = proc
	r.mu.Unlock()
}

func (r *Runner) untrack(proc *process) {
	r.mu.Lock()
	delete(r.processes, proc.id)
	r.mu.Unlock()
	close(proc.done)
}

// terminate sends SIGTERM, waits out the grace period, then SIGKILLs
func (r *Runner) terminate(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return
	}

	deadline := time.NewTimer(r.cfg.KillGrace())
	defer deadline.Stop()

	check := time.NewTicker(50 * time.Millisecond)
	defer check.Stop()

	for {
		select {
		case <-deadline.C:
			_ = cmd.Process.Kill()
			return
		case <-check.C:
			// Signal 0 probes liveness without delivering anything
			if err := cmd.Process.Signal(syscall.Signal(0)); err != nil {
				return
			}
		}
	}
}

// supportedFiles filters the workspace listing by option patterns and the
// descriptor's extension set
func (r *Runner) supportedFiles(d *linters.Descriptor, opts *models.LintOptions, files []string) []string {
	var supported []string
	for _, f := range files {
		if !opts.AllowsFile(f) {
			continue
		}
		if d.SupportsFile(f) {
			supported = append(supported, f)
		}
	}
	return supported
}

// buildArgs assembles the argv vector: base args, fix flag, config flag,
// then the workspace path. The child is never invoked through a shell.
func (r *Runner) buildArgs(d *linters.Descriptor, opts *models.LintOptions, wsPath string) []string {
	args := append([]string{}, d.BaseArgs...)

	if opts != nil && opts.Fix && d.AcceptsFix {
		args = append(args, d.FixArg)
	}

	if d.AcceptsConfig {
		if opts != nil && opts.ConfigFile != "" {
			// Config paths are confined to the workspace
			args = append(args, d.ConfigArg, filepath.Join(wsPath, filepath.Base(opts.ConfigFile)))
		} else if configPath, found := config.FindLinterConfig(wsPath, d.Name); found {
			args = append(args, d.ConfigArg, configPath)
		}
	}

	return append(args, wsPath)
}

// buildEnv propagates the standard env plus the flags linter wrappers expect
func buildEnv(opts *models.LintOptions) []string {
	env := append(os.Environ(), "RUN_LOCAL=true")
	if opts != nil && opts.ValidateAll {
		env = append(env, "VALIDATE_ALL_CODEBASE=true")
	}
	return env
}

// clampTimeout bounds the request timeout by the descriptor's maximum
func clampTimeout(execution models.Execution, d *linters.Descriptor) time.Duration {
	requested := execution.TimeoutMs
	if requested <= 0 {
		requested = execution.Options.Timeout()
	}
	if requested > d.TimeoutMs {
		requested = d.TimeoutMs
	}
	return time.Duration(requested) * time.Millisecond
}

// relativizeIssues rewrites absolute issue paths to workspace-relative ones
func relativizeIssues(issues []models.Issue, wsPath string) {
	prefix := filepath.Clean(wsPath) + string(filepath.Separator)
	for i := range issues {
		if strings.HasPrefix(issues[i].File, prefix) {
			issues[i].File = issues[i].File[len(prefix):]
		}
	}
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
