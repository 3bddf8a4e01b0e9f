package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/creature-backend/internal/config"
)

// SnapshotStore archives and prunes world-state snapshots
type SnapshotStore interface {
	SaveWorldSnapshot(ctx context.Context) (bool, error)
	PruneWorldSnapshots(ctx context.Context, keep int) (int64, error)
}

// SnapshotWorker periodically archives the world-state document so a bad
// world write can be recovered from
type SnapshotWorker struct {
	store   SnapshotStore
	config  *config.SnapshotConfig
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewSnapshotWorker creates a new snapshot worker
func NewSnapshotWorker(store SnapshotStore, cfg *config.SnapshotConfig, logger *slog.Logger) *SnapshotWorker {
	return &SnapshotWorker{
		store:  store,
		config: cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins the background snapshot process
func (w *SnapshotWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("snapshot worker started", "interval", w.config.Interval)

	go w.run(ctx)
	return nil
}

// Stop stops the background snapshot process
func (w *SnapshotWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("snapshot worker stopped")
	return nil
}

// run is the main worker loop
func (w *SnapshotWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.snapshot(ctx)
		}
	}
}

// snapshot runs a single archive-and-prune cycle
func (w *SnapshotWorker) snapshot(ctx context.Context) {
	startTime := time.Now()

	saved, err := w.store.SaveWorldSnapshot(ctx)
	if err != nil {
		w.logger.Error("failed to save world snapshot", "error", err)
		return
	}
	if !saved {
		w.logger.Debug("no world state to snapshot")
		return
	}

	pruned, err := w.store.PruneWorldSnapshots(ctx, w.config.Keep)
	if err != nil {
		w.logger.Error("failed to prune world snapshots", "error", err)
		return
	}

	w.logger.Info("snapshot cycle completed",
		"duration", time.Since(startTime),
		"pruned", pruned,
	)
}

// IsRunning returns whether the worker is currently running
func (w *SnapshotWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// RunOnce runs a single snapshot cycle (useful for manual triggers)
func (w *SnapshotWorker) RunOnce(ctx context.Context) {
	w.snapshot(ctx)
}
