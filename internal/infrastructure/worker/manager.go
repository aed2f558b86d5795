package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var errAlreadyRunning = errors.New("workers already running")

// Worker is a background job with an explicit lifecycle
type Worker interface {
	Start(ctx context.Context) error
	Stop() error
	Name() string
}

// WorkerManager owns the background jobs of one process. Only workers that
// started successfully are stopped again.
type WorkerManager struct {
	logger *zap.Logger

	mu         sync.RWMutex
	registered []Worker
	active     []Worker
	cancel     context.CancelFunc
}

// NewWorkerManager creates an empty manager
func NewWorkerManager(logger *zap.Logger) *WorkerManager {
	return &WorkerManager{logger: logger}
}

// Register queues w for the next StartAll
func (m *WorkerManager) Register(w Worker) {
	m.mu.Lock()
	m.registered = append(m.registered, w)
	n := len(m.registered)
	m.mu.Unlock()

	m.logger.Debug("Worker registered", zap.String("worker", w.Name()), zap.Int("registered", n))
}

// StartAll starts every registered worker under a context that StopAll
// cancels. A worker whose Start fails is logged and left out.
func (m *WorkerManager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return errAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.active = m.active[:0]
	for _, w := range m.registered {
		if err := w.Start(runCtx); err != nil {
			m.logger.Error("Worker failed to start", zap.String("worker", w.Name()), zap.Error(err))
			continue
		}
		m.active = append(m.active, w)
	}

	m.logger.Info("Workers started",
		zap.Int("started", len(m.active)),
		zap.Int("registered", len(m.registered)))
	return nil
}

// StopAll cancels the run context and stops the active workers in reverse
// start order. Stop failures are combined into the returned error.
func (m *WorkerManager) StopAll() error {
	m.mu.Lock()
	cancel, active := m.cancel, m.active
	m.cancel, m.active = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	var errs error
	for i := len(active) - 1; i >= 0; i-- {
		w := active[i]
		if err := w.Stop(); err != nil {
			m.logger.Error("Worker failed to stop", zap.String("worker", w.Name()), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", w.Name(), err))
		}
	}

	m.logger.Info("Workers stopped", zap.Int("count", len(active)))
	return errs
}

// GetWorkerCount returns the number of registered workers
func (m *WorkerManager) GetWorkerCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.registered)
}

// IsRunning reports whether StartAll has run without a matching StopAll
func (m *WorkerManager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cancel != nil
}
