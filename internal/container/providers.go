package container

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/haulmark/invoice-audit/internal/application/port"
	"github.com/haulmark/invoice-audit/internal/application/service"
	"github.com/haulmark/invoice-audit/internal/config"
	"github.com/haulmark/invoice-audit/internal/domain/entity"
	"github.com/haulmark/invoice-audit/internal/importer"
	"github.com/haulmark/invoice-audit/internal/infrastructure/persistence/repository"
	"github.com/haulmark/invoice-audit/internal/infrastructure/persistence/sqlite"
	"github.com/haulmark/invoice-audit/internal/infrastructure/storage"
	"github.com/haulmark/invoice-audit/internal/infrastructure/worker"
	"github.com/haulmark/invoice-audit/internal/report"
	"github.com/haulmark/invoice-audit/migrations"
	"github.com/haulmark/invoice-audit/pkg/database"
	"github.com/haulmark/invoice-audit/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	DB        *database.DB
	TxManager *sqlite.TxManager
}

// StorageBundle holds storage-related components.
type StorageBundle struct {
	FileStorage port.FileStorage
	Paths       port.DocumentPaths
}

// ProvideDatabase opens the database and applies the embedded migrations.
func ProvideDatabase(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		BusyTimeout:     cfg.BusyTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	if _, err := database.NewMigrator(db, logger).Up(ctx, migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		DB:        db,
		TxManager: sqlite.NewTxManager(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(sqlDB *sql.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Records:    repository.NewAuditRecordRepository(sqlDB, logger),
		Loads:      repository.NewLoadRepository(sqlDB, logger),
		ImportLogs: repository.NewImportLogRepository(sqlDB, logger),
	}, nil
}

// ProvideStorage creates the export file storage and its path templates.
func ProvideStorage(cfg *config.Config, logger *zap.Logger) (*StorageBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Export.Dir == "" {
		return nil, fmt.Errorf("export directory is required")
	}

	return &StorageBundle{
		FileStorage: storage.NewLocalFileStorage(cfg.Export.Dir, logger),
		Paths: storage.NewTemplatePaths(
			cfg.Export.Templates,
			map[string]string{"company": cfg.Company.Name},
			logger,
		),
	}, nil
}

// ServiceDependencies holds everything the application services need.
type ServiceDependencies struct {
	Repos     *RepositoryBundle
	TxManager port.TransactionManager
	Storage   *StorageBundle
	Config    *config.Config
	Logger    *zap.Logger
	Now       func() time.Time
}

// ProvideServices creates the importer, workbook writer and the
// reconciliation service.
func ProvideServices(deps ServiceDependencies) (*ServiceBundle, error) {
	if deps.Repos == nil || deps.TxManager == nil || deps.Storage == nil || deps.Config == nil {
		return nil, fmt.Errorf("service dependencies are incomplete")
	}

	imp, err := importer.New(importer.Config{
		HeaderScanRows: deps.Config.Importer.HeaderScanRows,
		ExtraAliases:   deps.Config.Importer.ExtraAliases,
	}, deps.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create importer: %w", err)
	}

	workbook := report.NewWorkbookWriter(deps.Config.Company.Name, deps.Now, deps.Logger)

	statuses := make([]entity.LoadStatus, 0, len(deps.Config.Sync.Statuses))
	for _, s := range deps.Config.Sync.Statuses {
		statuses = append(statuses, entity.LoadStatus(s))
	}

	reconciliation := service.NewReconciliationService(
		deps.Repos.Records,
		deps.Repos.Loads,
		deps.Repos.ImportLogs,
		deps.TxManager,
		imp,
		workbook,
		deps.Storage.FileStorage,
		deps.Storage.Paths,
		service.Options{SyncStatuses: statuses, Now: deps.Now},
		NewZapLoggerAdapter(deps.Logger),
	)

	return &ServiceBundle{
		Reconciliation: reconciliation,
	}, nil
}

// ProvideWorkers registers the background load sync when an interval is
// configured. The returned SyncWorker is nil when sync is disabled.
func ProvideWorkers(cfg *config.SyncConfig, syncer worker.LoadSyncer, jobMetrics *metrics.JobMetrics, logger *zap.Logger) (*worker.WorkerManager, *worker.SyncWorker) {
	manager := worker.NewWorkerManager(logger)
	if cfg.Interval <= 0 {
		logger.Info("Background load sync disabled")
		return manager, nil
	}

	sw := worker.NewSyncWorker(worker.SyncWorkerConfig{
		Interval:   cfg.Interval,
		Timeout:    cfg.Interval,
		RunOnStart: true,
	}, syncer, jobMetrics, logger)
	manager.Register(sw)
	return manager, sw
}

// ProvideMetrics creates the Prometheus registry with runtime collectors
// and the job metrics registered on it.
func ProvideMetrics() (*prometheus.Registry, *metrics.JobMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewJobMetrics(reg)
}
