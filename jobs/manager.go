package jobs

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/flanksource/commons/logger"

	"github.com/flanksource/lint-api/config"
	"github.com/flanksource/lint-api/internal/db"
	"github.com/flanksource/lint-api/models"
)

// Executor runs one persisted job through the lint pipeline.
// *pipeline.Service satisfies it.
type Executor interface {
	Execute(ctx context.Context, job *models.LintJob) (*models.ExecutionResult, error)
}

// runningJob is the in-process handle of a dispatched job
type runningJob struct {
	cancel    context.CancelFunc
	done      chan struct{}
	cancelled bool
}

// Manager is the bounded-concurrency scheduler for asynchronous lint
// requests. Job state is authoritative in the store; the manager holds only
// the in-flight handles it needs for cancellation.
type Manager struct {
	store         *db.JobStore
	executor      Executor
	maxConcurrent int
	jobTimeout    time.Duration

	sem    chan struct{}
	wake   chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup

	// mu guards running; held only for O(1) map operations
	mu      sync.Mutex
	running map[string]*runningJob

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewManager creates a job manager drawing workers from a pool of
// cfg.MaxConcurrent
func NewManager(store *db.JobStore, executor Executor, cfg config.JobsConfig) *Manager {
	return &Manager{
		store:         store,
		executor:      executor,
		maxConcurrent: cfg.MaxConcurrent,
		jobTimeout:    cfg.Timeout(),
		sem:           make(chan struct{}, cfg.MaxConcurrent),
		wake:          make(chan struct{}, 1),
		stopCh:        make(chan struct{}),
		running:       make(map[string]*runningJob),
	}
}

// Start reconciles orphaned jobs left behind by a previous process and
// launches the dispatch loop
func (m *Manager) Start(ctx context.Context) error {
	var startErr error
	m.startOnce.Do(func() {
		now := time.Now()
		orphaned, err := m.store.MarkOrphans(ctx, now.Add(-m.jobTimeout), now)
		if err != nil {
			startErr = fmt.Errorf("failed to reconcile orphaned jobs: %w", err)
			return
		}
		if orphaned > 0 {
			logger.Warnf("Marked %d orphaned jobs as failed", orphaned)
		}

		m.wg.Add(1)
		go m.dispatchLoop()
	})
	return startErr
}

// Stop halts dispatch and waits for in-flight workers, bounded by ctx
func (m *Manager) Stop(ctx context.Context) error {
	m.stopOnce.Do(func() { close(m.stopCh) })

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("job manager shutdown timed out: %w", ctx.Err())
	}
}

// Submit persists a new pending job and returns its record. Submission
// never blocks on worker capacity; callers observe queue depth via Stats.
func (m *Manager) Submit(ctx context.Context, req *models.JobRequest) (*models.LintJob, error) {
	var options string
	if req.Options != nil {
		serialized, err := json.Marshal(req.Options)
		if err != nil {
			return nil, models.NewValidationError(fmt.Sprintf("invalid options: %v", err))
		}
		options = string(serialized)
	}

	job := &models.LintJob{
		JobID:      newJobID(),
		LinterType: req.Linter,
		Format:     req.Format,
		Content:    req.Content,
		Archive:    req.Archive,
		Filename:   req.Filename,
		Options:    options,
		Status:     models.JobStatusPending,
		CreatedAt:  time.Now(),
	}

	if err := m.store.Insert(ctx, job); err != nil {
		return nil, models.NewDatabaseError("failed to persist job", err)
	}

	// Poke the dispatcher without blocking if it is already awake
	select {
	case m.wake <- struct{}{}:
	default:
	}

	logger.Infof("Job %s submitted for %s/%s", job.JobID, job.LinterType, job.Format)
	return job, nil
}

// Status returns the persisted job record, or nil when unknown
func (m *Manager) Status(ctx context.Context, jobID string) (*models.LintJob, error) {
	return m.store.GetByJobID(ctx, jobID)
}

// Cancel stops a job. A pending job moves straight to cancelled and never
// runs; a running job has its context cancelled and transitions after the
// worker observes it. Terminal jobs return false with no state change.
func (m *Manager) Cancel(ctx context.Context, jobID string) (bool, error) {
	job, err := m.store.GetByJobID(ctx, jobID)
	if err != nil {
		return false, models.NewDatabaseError("failed to look up job", err)
	}
	if job == nil {
		return false, models.NewJobNotFoundError(jobID)
	}
	if job.Status.Terminal() {
		return false, nil
	}

	// The conditional update wins the race against dispatch: a job
	// cancelled here is never claimed by a worker
	if job.Status == models.JobStatusPending {
		ok, err := m.store.CancelPending(ctx, jobID, time.Now())
		if err != nil {
			return false, models.NewDatabaseError("failed to cancel job", err)
		}
		if ok {
			logger.Infof("Job %s cancelled while pending", jobID)
			return true, nil
		}
		// Lost the race to the dispatcher; fall through to the running path
	}

	m.mu.Lock()
	handle, inFlight := m.running[jobID]
	if inFlight {
		handle.cancelled = true
	}
	m.mu.Unlock()

	if !inFlight {
		// Running in no worker of ours (e.g. orphan mid-reconcile); nothing
		// to signal
		return false, nil
	}

	handle.cancel()
	select {
	case <-handle.done:
	case <-ctx.Done():
		return false, fmt.Errorf("cancel wait aborted: %w", ctx.Err())
	}
	logger.Infof("Job %s cancelled while running", jobID)
	return true, nil
}

// Stats aggregates job counts per state
func (m *Manager) Stats(ctx context.Context) (*models.JobStats, error) {
	return m.store.Stats(ctx, time.Now())
}

// Running returns a snapshot of in-flight job records
func (m *Manager) Running(ctx context.Context) ([]models.LintJob, error) {
	return m.store.Running(ctx)
}

// dispatchLoop moves pending jobs to workers whenever capacity frees up.
// Dispatch order is FIFO over created_at with ties broken by job_id, which
// the store's query guarantees.
func (m *Manager) dispatchLoop() {
	defer m.wg.Done()

	// Poll as a backstop for wake-ups lost to a full channel
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case m.sem <- struct{}{}:
		}

		job, claimed := m.claimNext()
		if !claimed {
			<-m.sem
			select {
			case <-m.stopCh:
				return
			case <-m.wake:
			case <-ticker.C:
			}
			continue
		}

		m.wg.Add(1)
		go m.work(job)
	}
}

// claimNext pulls the oldest pending job and atomically transitions it to
// running
func (m *Manager) claimNext() (*models.LintJob, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for {
		job, err := m.store.NextPending(ctx)
		if err != nil {
			logger.Warnf("Failed to query pending jobs: %v", err)
			return nil, false
		}
		if job == nil {
			return nil, false
		}

		startedAt := time.Now()
		ok, err := m.store.ClaimRunning(ctx, job.JobID, startedAt)
		if err != nil {
			logger.Warnf("Failed to claim job %s: %v", job.JobID, err)
			return nil, false
		}
		if !ok {
			// Cancelled between query and claim; try the next one
			continue
		}
		job.Status = models.JobStatusRunning
		job.StartedAt = &startedAt
		return job, true
	}
}

// work drives one claimed job through the pipeline and records its
// terminal state
func (m *Manager) work(job *models.LintJob) {
	defer m.wg.Done()
	defer func() { <-m.sem }()

	ctx, cancel := context.WithTimeout(context.Background(), m.jobTimeout)
	defer cancel()

	handle := &runningJob{cancel: cancel, done: make(chan struct{})}
	m.mu.Lock()
	m.running[job.JobID] = handle
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.running, job.JobID)
		m.mu.Unlock()
		close(handle.done)
	}()

	started := time.Now()
	result, err := m.executor.Execute(ctx, job)
	elapsed := time.Since(started).Milliseconds()

	m.mu.Lock()
	cancelled := handle.cancelled
	m.mu.Unlock()

	completeCtx, completeCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer completeCancel()

	switch {
	case cancelled:
		m.complete(completeCtx, job.JobID, models.JobStatusCancelled, "", "", elapsed)

	case err != nil:
		appErr := models.AsAppError(err)
		status := models.JobStatusFailed
		logger.Warnf("Job %s failed after %dms: %v", job.JobID, elapsed, err)
		m.complete(completeCtx, job.JobID, status, "", appErr.Message, elapsed)

	default:
		serialized, marshalErr := json.Marshal(result)
		if marshalErr != nil {
			m.complete(completeCtx, job.JobID, models.JobStatusFailed, "",
				fmt.Sprintf("failed to serialize result: %v", marshalErr), elapsed)
			return
		}
		logger.Infof("Job %s completed in %dms with %d issues", job.JobID, elapsed, len(result.Issues))
		m.complete(completeCtx, job.JobID, models.JobStatusCompleted, string(serialized), "", elapsed)
	}
}

func (m *Manager) complete(ctx context.Context, jobID string, status models.JobStatus, result, errorMessage string, elapsed int64) {
	ok, err := m.store.Complete(ctx, jobID, status, result, errorMessage, elapsed, time.Now())
	if err != nil {
		logger.Errorf("Failed to record terminal state of job %s: %v", jobID, err)
		return
	}
	if !ok {
		// Already terminal (e.g. concurrently cancelled); terminal states
		// are immutable so this is not an error
		logger.Debugf("Job %s already terminal, skipping %s", jobID, status)
	}
}

// newJobID generates a monotonically unique job identifier
func newJobID() string {
	buf := make([]byte, 6)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("job_%d_%s", time.Now().UnixMilli(), hex.EncodeToString(buf))
}
