package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/haulmark/invoice-audit/internal/domain/entity"
	"github.com/haulmark/invoice-audit/pkg/metrics"
	"go.uber.org/zap"
)

// LoadSyncer is the part of the reconciliation service the sync worker drives
type LoadSyncer interface {
	SyncLoads(ctx context.Context) (*entity.SyncResult, error)
}

// SyncWorkerConfig holds configuration for the sync worker
type SyncWorkerConfig struct {
	Interval time.Duration
	// Timeout bounds one sync run; 0 means no limit
	Timeout time.Duration
	// RunOnStart syncs once immediately instead of waiting a full interval
	RunOnStart bool
}

// SyncStatus is a snapshot of the worker's progress
type SyncStatus struct {
	Running    bool               `json:"running"`
	Runs       int                `json:"runs"`
	Failures   int                `json:"failures"`
	LastRun    time.Time          `json:"last_run,omitempty"`
	LastResult *entity.SyncResult `json:"last_result,omitempty"`
	LastError  string             `json:"last_error,omitempty"`
}

// SyncWorker periodically creates or refreshes placeholders for billable loads
type SyncWorker struct {
	config  SyncWorkerConfig
	syncer  LoadSyncer
	metrics *metrics.JobMetrics
	logger  *zap.Logger

	mu        sync.RWMutex
	cancel    context.CancelFunc
	done      chan struct{}
	isRunning bool
	status    SyncStatus
}

// NewSyncWorker creates a new sync worker. jobMetrics may be nil.
func NewSyncWorker(config SyncWorkerConfig, syncer LoadSyncer, jobMetrics *metrics.JobMetrics, logger *zap.Logger) *SyncWorker {
	return &SyncWorker{
		config:  config,
		syncer:  syncer,
		metrics: jobMetrics,
		logger:  logger,
	}
}

// Name returns the worker name for identification
func (w *SyncWorker) Name() string {
	return "LoadSyncWorker"
}

// Start begins the ticker loop
func (w *SyncWorker) Start(ctx context.Context) error {
	if w.config.Interval <= 0 {
		return fmt.Errorf("sync worker interval must be positive, got %s", w.config.Interval)
	}

	w.mu.Lock()
	if w.isRunning {
		w.mu.Unlock()
		return fmt.Errorf("sync worker already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.isRunning = true
	w.status.Running = true
	done := w.done
	w.mu.Unlock()

	w.logger.Info("LoadSyncWorker started",
		zap.Duration("interval", w.config.Interval),
		zap.Bool("run_on_start", w.config.RunOnStart))

	go w.loop(runCtx, done)
	return nil
}

// Stop cancels the loop and waits for an in-flight sync to finish
func (w *SyncWorker) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	w.status.Running = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done

	w.mu.RLock()
	runs, failures := w.status.Runs, w.status.Failures
	w.mu.RUnlock()
	w.logger.Info("LoadSyncWorker stopped",
		zap.Int("runs", runs),
		zap.Int("failures", failures))
	return nil
}

// Status returns a copy of the worker's progress
func (w *SyncWorker) Status() SyncStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()
	s := w.status
	if s.LastResult != nil {
		r := *s.LastResult
		s.LastResult = &r
	}
	return s
}

func (w *SyncWorker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	if w.config.RunOnStart {
		w.RunOnce(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Sync loop context cancelled")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs one sync and records the outcome
func (w *SyncWorker) RunOnce(ctx context.Context) {
	if w.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := w.syncer.SyncLoads(ctx)
	w.metrics.Observe(metrics.JobLoadSync, start, err)

	w.mu.Lock()
	w.status.Runs++
	w.status.LastRun = time.Now()
	if err != nil {
		w.status.Failures++
		w.status.LastError = err.Error()
	} else {
		w.status.LastResult = result
		w.status.LastError = ""
	}
	w.mu.Unlock()

	if err != nil {
		w.logger.Error("Scheduled load sync failed", zap.Error(err))
		return
	}
	w.metrics.AddRecords(metrics.JobLoadSync, "created", result.Created)
	w.metrics.AddRecords(metrics.JobLoadSync, "refreshed", result.Refreshed)
	w.logger.Debug("Scheduled load sync completed",
		zap.Int("created", result.Created),
		zap.Int("refreshed", result.Refreshed),
		zap.Int("unchanged", result.Unchanged))
}
