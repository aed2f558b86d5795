// Package container wires the invoice audit application together with
// ordered initialization and reverse-order teardown.
package container

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/haulmark/invoice-audit/internal/application/port"
	"github.com/haulmark/invoice-audit/internal/application/service"
	"github.com/haulmark/invoice-audit/internal/config"
	"github.com/haulmark/invoice-audit/internal/infrastructure/persistence/repository"
	"github.com/haulmark/invoice-audit/internal/infrastructure/persistence/sqlite"
	"github.com/haulmark/invoice-audit/internal/infrastructure/worker"
	"github.com/haulmark/invoice-audit/pkg/database"
	"github.com/haulmark/invoice-audit/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type lifecycle int32

const (
	stateNew lifecycle = iota
	stateRunning
	stateClosed
)

// Container owns the process-wide components. Start builds them in
// dependency order and Close releases them in reverse.
type Container struct {
	config *config.Config
	logger *zap.Logger
	now    func() time.Time

	db           *database.DB
	txManager    *sqlite.TxManager
	repositories *RepositoryBundle
	storage      *StorageBundle
	services     *ServiceBundle

	workers    *worker.WorkerManager
	syncWorker *worker.SyncWorker

	registry   *prometheus.Registry
	jobMetrics *metrics.JobMetrics

	mu     sync.RWMutex
	state  lifecycle
	cancel context.CancelFunc
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Records    port.AuditRecordRepository
	Loads      *repository.LoadRepository
	ImportLogs port.ImportLogRepository
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Reconciliation service.ReconciliationService
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// Option customises a Container.
type Option func(*Container)

// WithClock replaces time.Now for export names and workbook headers.
func WithClock(now func() time.Time) Option {
	return func(c *Container) { c.now = now }
}

// NewContainer validates cfg and prepares an unstarted container
func NewContainer(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c := &Container{config: cfg, logger: logger, now: time.Now}
	c.registry, c.jobMetrics = ProvideMetrics()
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Start opens the database, storage and services, then launches the
// workers. On failure everything opened so far is released.
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case stateRunning:
		return fmt.Errorf("container already started")
	case stateClosed:
		return fmt.Errorf("container has been closed")
	}

	runCtx, cancel := context.WithCancel(ctx)
	steps := []struct {
		name string
		run  func() error
	}{
		{"database", func() error { return c.initDatabase(ctx) }},
		{"storage", c.initStorage},
		{"services", c.initServices},
		{"workers", func() error { return c.initWorkers(runCtx) }},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			cancel()
			_ = c.teardown()
			return fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
		c.logger.Debug("Component ready", zap.String("component", step.name))
	}

	c.cancel = cancel
	c.state = stateRunning
	c.logger.Info("Container started", zap.String("export_dir", c.config.Export.Dir))
	return nil
}

// Close stops the workers and closes the database. Closing twice is an
// error.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == stateClosed {
		return fmt.Errorf("container already closed")
	}
	c.state = stateClosed
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}

	if err := c.teardown(); err != nil {
		c.logger.Error("Container closed with errors", zap.Error(err))
		return err
	}
	c.logger.Info("Container closed")
	return nil
}

func (c *Container) teardown() error {
	var errs error
	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("stop workers: %w", err))
		}
	}
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close database: %w", err))
		}
		c.db = nil
	}
	return errs
}

// Ready reports whether Start succeeded and Close has not run
func (c *Container) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == stateRunning
}

// Health returns health status of all components.
func (c *Container) Health() *HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}
	set := func(name string, h ComponentHealth) {
		status.Components[name] = h
		if !h.Healthy {
			status.Overall = false
		}
	}

	switch {
	case c.db == nil:
		set("database", ComponentHealth{Healthy: false, Message: "not initialized"})
	default:
		if err := c.db.Ping(); err != nil {
			set("database", ComponentHealth{Healthy: false, Message: fmt.Sprintf("ping failed: %v", err)})
		} else {
			set("database", ComponentHealth{Healthy: true})
		}
	}

	switch {
	case c.workers == nil:
		set("workers", ComponentHealth{Healthy: false, Message: "not initialized"})
	case c.syncWorker == nil:
		set("workers", ComponentHealth{Healthy: true, Message: "load sync disabled"})
	default:
		st := c.syncWorker.Status()
		msg := fmt.Sprintf("runs: %d, failures: %d", st.Runs, st.Failures)
		if st.LastError != "" {
			msg += ", last error: " + st.LastError
		}
		set("workers", ComponentHealth{Healthy: c.workers.IsRunning(), Message: msg})
	}

	if c.services != nil {
		set("services", ComponentHealth{Healthy: true})
	} else {
		set("services", ComponentHealth{Healthy: false, Message: "not initialized"})
	}

	return status
}

func (c *Container) initDatabase(ctx context.Context) error {
	dbBundle, err := ProvideDatabase(ctx, &c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.db = dbBundle.DB
	c.txManager = dbBundle.TxManager

	repos, err := ProvideRepositories(c.db.DB, c.logger)
	if err != nil {
		return err
	}
	c.repositories = repos
	return nil
}

func (c *Container) initStorage() error {
	bundle, err := ProvideStorage(c.config, c.logger)
	if err != nil {
		return err
	}
	c.storage = bundle
	return nil
}

func (c *Container) initServices() error {
	services, err := ProvideServices(ServiceDependencies{
		Repos:     c.repositories,
		TxManager: c.txManager,
		Storage:   c.storage,
		Config:    c.config,
		Logger:    c.logger,
		Now:       c.now,
	})
	if err != nil {
		return err
	}
	c.services = services
	return nil
}

func (c *Container) initWorkers(ctx context.Context) error {
	c.workers, c.syncWorker = ProvideWorkers(&c.config.Sync, c.services.Reconciliation, c.jobMetrics, c.logger)
	return c.workers.StartAll(ctx)
}

// Config returns the configuration the container was built from.
func (c *Container) Config() *config.Config {
	return c.config
}

// Reconciliation returns the reconciliation service.
func (c *Container) Reconciliation() service.ReconciliationService {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.services == nil {
		return nil
	}
	return c.services.Reconciliation
}

// Registry returns the Prometheus registry served on /metrics.
func (c *Container) Registry() *prometheus.Registry {
	return c.registry
}

// JobMetrics returns the reconciliation job collectors.
func (c *Container) JobMetrics() *metrics.JobMetrics {
	return c.jobMetrics
}

// Loads returns the load repository, the payroll side of the database.
func (c *Container) Loads() *repository.LoadRepository {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.repositories == nil {
		return nil
	}
	return c.repositories.Loads
}

// ZapLoggerAdapter exposes a zap logger through the key-value Logger
// interfaces of the service and HTTP packages.
type ZapLoggerAdapter struct {
	sugar *zap.SugaredLogger
}

// NewZapLoggerAdapter wraps logger.
func NewZapLoggerAdapter(logger *zap.Logger) *ZapLoggerAdapter {
	return &ZapLoggerAdapter{sugar: logger.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (a *ZapLoggerAdapter) Info(msg string, kv ...any)  { a.sugar.Infow(msg, kv...) }
func (a *ZapLoggerAdapter) Warn(msg string, kv ...any)  { a.sugar.Warnw(msg, kv...) }
func (a *ZapLoggerAdapter) Error(msg string, kv ...any) { a.sugar.Errorw(msg, kv...) }
