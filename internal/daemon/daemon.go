// Package daemon coordinates the pipeline services behind a single-instance
// HTTP daemon.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/gofrs/flock"

	"curator/internal/api"
	"curator/internal/catalog"
	"curator/internal/clustering"
	"curator/internal/config"
	"curator/internal/decision"
	"curator/internal/logging"
	"curator/internal/projection"
	"curator/internal/provider"
	"curator/internal/scanner"
	"curator/internal/workflow"
)

// Daemon owns the long-running services and enforces single-instance
// execution via a lock file.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *catalog.Store
	workflow *workflow.Manager

	scanner    *scanner.Scanner
	clustering *clustering.Service
	decision   *decision.Service
	feed       *projection.Feed
	source     provider.Client

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	api     *apiServer
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *catalog.Store, manager *workflow.Manager, source provider.Client, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || manager == nil || source == nil {
		return nil, errors.New("daemon requires config, store, workflow manager, and provider client")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := cfg.LockFilePath()
	d := &Daemon{
		cfg:        cfg,
		logger:     logger.With(logging.String(logging.FieldComponent, "daemon")),
		store:      store,
		workflow:   manager,
		scanner:    scanner.New(store, logger),
		clustering: clustering.New(store, logger),
		decision:   decision.New(store, logger),
		feed:       projection.New(store, logger),
		source:     source,
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}
	d.api = newAPIServer(cfg.Paths.APIBind, d, logger)
	return d, nil
}

// Start acquires the instance lock and launches the workflow manager and API
// server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another curator daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.workflow.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		d.cancel = nil
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(runCtx); err != nil {
		d.workflow.Stop()
		_ = d.lock.Unlock()
		cancel()
		d.cancel = nil
		return err
	}

	d.running.Store(true)
	d.logger.Info("curator daemon started",
		logging.String("lock", d.lockPath),
		logging.String("database", d.store.Path()))
	return nil
}

// Stop shuts down background processing and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("curator daemon stopped")
}

// Close stops the daemon and closes the store.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// Addr reports the API listen address, empty until started.
func (d *Daemon) Addr() string {
	return d.api.addr()
}

// Status collects runtime and pipeline counters.
func (d *Daemon) Status(ctx context.Context) (api.DaemonStatus, error) {
	candidates, err := d.store.CandidateStats(ctx)
	if err != nil {
		return api.DaemonStatus{}, err
	}
	matches, err := d.store.MatchStats(ctx)
	if err != nil {
		return api.DaemonStatus{}, err
	}
	counts, err := d.store.CanonicalCounts(ctx)
	if err != nil {
		return api.DaemonStatus{}, err
	}
	return api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
		Candidates:   candidates,
		Matches:      matches,
		Works:        counts.Works,
		Provenance:   counts.Provenance,
	}, nil
}

// Scan runs the library scanner against the configured root, or an explicit
// override.
func (d *Daemon) Scan(ctx context.Context, root string) (scanner.Summary, error) {
	if root == "" {
		root = d.cfg.Paths.LibraryDir
	}
	return d.scanner.Scan(ctx, root)
}
