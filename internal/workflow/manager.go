// Package workflow dispatches canonicalization jobs to a worker pool.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"curator/internal/canonicalize"
	"curator/internal/catalog"
	"curator/internal/logging"
	"curator/internal/services"
)

// job is one canonicalization dispatch. attempt counts prior runs of the same
// dispatch so a lost lock race is retried at most once.
type job struct {
	matchID int64
	attempt int
}

// Manager owns the bounded dispatch queue and the canonicalization workers.
// Concurrent jobs for distinct matches run in parallel; the store's
// conditional writes are the only same-match guard.
type Manager struct {
	store         *catalog.Store
	orchestrator  *canonicalize.Orchestrator
	logger        *slog.Logger
	workers       int
	queueDepth    int
	retryInterval time.Duration

	mu      sync.Mutex
	running bool
	jobs    chan job
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager creates a manager with the given pool sizing. retryInterval is
// the delay before a job that lost a lock race is dispatched again; zero
// disables the retry.
func NewManager(store *catalog.Store, orchestrator *canonicalize.Orchestrator, workers, queueDepth int, retryInterval time.Duration, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	if workers < 1 {
		workers = 1
	}
	if queueDepth < 1 {
		queueDepth = 1
	}
	if retryInterval < 0 {
		retryInterval = 0
	}
	return &Manager{
		store:         store,
		orchestrator:  orchestrator,
		logger:        logger.With(logging.String(logging.FieldComponent, "workflow")),
		workers:       workers,
		queueDepth:    queueDepth,
		retryInterval: retryInterval,
	}
}

// Start launches the worker pool. Candidates already locked at startup are
// reported but never unlocked automatically; recovery is the explicit Unlock
// operation.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return services.Wrap(services.ErrInvalidState, "workflow", "start", "manager already running", nil)
	}

	locked, err := m.store.CandidatesByStatus(ctx, catalog.CandidateLocked)
	if err != nil {
		return err
	}
	if len(locked) > 0 {
		m.logger.Warn("candidates locked from a previous run; unlock their matches to retry",
			logging.Int("locked", len(locked)))
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancel = cancel
	m.jobs = make(chan job, m.queueDepth)
	m.running = true

	for i := 0; i < m.workers; i++ {
		m.wg.Add(1)
		go m.worker(runCtx)
	}

	m.logger.Info("workflow manager started",
		logging.Int("workers", m.workers),
		logging.Int("queue_depth", m.queueDepth))
	return nil
}

// Stop cancels the workers and waits for in-flight jobs to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.cancel()
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("workflow manager stopped")
}

// Enqueue validates that a match is ready for canonicalization and hands it
// to the queue. Not-found and invalid-state problems surface synchronously; a
// full queue is reported as a retryable concurrency error.
func (m *Manager) Enqueue(ctx context.Context, matchID int64) error {
	m.mu.Lock()
	running := m.running
	jobs := m.jobs
	m.mu.Unlock()
	if !running {
		return services.Wrap(services.ErrInvalidState, "workflow", "enqueue", "manager not running", nil)
	}

	match, err := m.store.MatchByID(ctx, matchID)
	if err != nil {
		return err
	}
	if match == nil {
		return services.Wrap(services.ErrNotFound, "workflow", "enqueue",
			fmt.Sprintf("match %d", matchID), nil)
	}
	if match.Status != catalog.MatchAccepted {
		return services.Wrap(services.ErrInvalidState, "workflow", "enqueue",
			fmt.Sprintf("match %d: status is %q, expected %q", matchID, match.Status, catalog.MatchAccepted), nil)
	}

	select {
	case jobs <- job{matchID: matchID}:
		m.logger.Info("canonicalization enqueued", logging.Int64(logging.FieldMatchID, matchID))
		return nil
	default:
		return services.Wrap(services.ErrConcurrent, "workflow", "enqueue",
			"dispatch queue full, try again shortly", nil)
	}
}

// Unlock is the administrative recovery path for a match whose members are
// stuck locked after a partial failure. It requires the match to still be
// accepted, returns each locked member to accepted, and clears the recorded
// error.
func (m *Manager) Unlock(ctx context.Context, matchID int64) error {
	match, err := m.store.MatchByID(ctx, matchID)
	if err != nil {
		return err
	}
	if match == nil {
		return services.Wrap(services.ErrNotFound, "workflow", "unlock",
			fmt.Sprintf("match %d", matchID), nil)
	}
	if match.Status != catalog.MatchAccepted {
		return services.Wrap(services.ErrInvalidState, "workflow", "unlock",
			fmt.Sprintf("match %d: status is %q, expected %q", matchID, match.Status, catalog.MatchAccepted), nil)
	}

	members, err := m.store.CandidatesForMatch(ctx, matchID)
	if err != nil {
		return err
	}
	unlocked := 0
	for _, member := range members {
		if member.Status != catalog.CandidateLocked {
			continue
		}
		if err := m.store.TransitionCandidate(ctx, member.ID, catalog.CandidateLocked, catalog.CandidateAccepted); err != nil {
			return err
		}
		unlocked++
	}

	if err := m.store.SetMatchError(ctx, matchID, ""); err != nil {
		return err
	}

	m.logger.Info("match unlocked",
		logging.Int64(logging.FieldMatchID, matchID),
		logging.Int("unlocked", unlocked))
	return nil
}

func (m *Manager) worker(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-m.jobs:
			err := m.run(ctx, j)
			if err != nil && services.Retryable(err) && j.attempt == 0 && m.retryInterval > 0 {
				m.scheduleRetry(ctx, j)
			}
		}
	}
}

func (m *Manager) run(ctx context.Context, j job) error {
	logger := m.logger.With(logging.Int64(logging.FieldMatchID, j.matchID))
	_, err := m.orchestrator.Canonicalize(ctx, j.matchID)
	switch {
	case err == nil:
		logger.Info("canonicalization job finished")
	case errors.Is(err, services.ErrConcurrent):
		logger.Info("canonicalization lost a lock race", logging.Error(err))
	case errors.Is(err, services.ErrInvalidState), errors.Is(err, services.ErrNotFound):
		logger.Warn("canonicalization job skipped", logging.Error(err))
	default:
		logger.Error("canonicalization job failed", logging.Error(err))
	}
	return err
}

// scheduleRetry re-dispatches a job that lost a lock race after the
// configured delay. If the competing attempt finished in the meantime the
// retry fails its precondition read and is logged as skipped.
func (m *Manager) scheduleRetry(ctx context.Context, j job) {
	m.logger.Info("retrying canonicalization after lock race",
		logging.Int64(logging.FieldMatchID, j.matchID),
		logging.Duration("delay", m.retryInterval))
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		select {
		case <-ctx.Done():
		case <-time.After(m.retryInterval):
			select {
			case m.jobs <- job{matchID: j.matchID, attempt: j.attempt + 1}:
			default:
				m.logger.Warn("dispatch queue full, dropping retry",
					logging.Int64(logging.FieldMatchID, j.matchID))
			}
		}
	}()
}
