package backend

import (
	"context"
	"errors"
	"fmt"

	"costbook/internal/amqp"
	"costbook/internal/cache"
	"costbook/internal/core"
	"costbook/internal/log"
	"costbook/internal/ports"
	"costbook/internal/report"
	"costbook/internal/services"
	gsheet "costbook/internal/sheets/google"
	"costbook/internal/storage"
	"costbook/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Default()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	res := &BackendResult{}
	var closers []func() error
	cleanup := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
	fail := func(err error) (*BackendResult, error) {
		if cerr := cleanup(); cerr != nil {
			f.logger.Warn("Cleanup after failed backend init", log.FieldError, cerr)
		}
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		closers = append(closers, repo.Close)
		res.Repository = repo
		res.Ready = repo.Ping
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	case MemoryBackend:
		res.Repository = memory.New()
		res.Ready = func(context.Context) error { return nil }
		f.logger.Info("Initialized memory backend")
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	// The snapshot cache must hear about writes before anyone else rebuilds a report.
	var notifiers []ports.ChangeNotifier
	res.Loader = ports.DirectLoader{Reader: res.Repository}
	if config.CacheTTL > 0 {
		rc, err := cache.NewRistretto[core.ProjectSnapshot](int64(config.CacheSize), config.CacheTTL)
		if err != nil {
			return fail(fmt.Errorf("failed to initialize snapshot cache: %w", err))
		}
		closers = append(closers, func() error {
			rc.Close()
			return nil
		})
		snapshots := cache.NewSnapshotCache(res.Repository, rc)
		res.Loader = snapshots
		notifiers = append(notifiers, snapshots)
		f.logger.Info("Initialized snapshot cache", "ttl", config.CacheTTL.String(), "max_items", config.CacheSize)
	}
	res.Reports = report.NewService(res.Loader, f.logger)

	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, f.logger)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without broker", log.FieldError, err)
		} else {
			res.AMQP = client
			notifiers = append(notifiers, client)
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	if config.GoogleSpreadsheetID != "" {
		exporter, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:      config.GoogleSpreadsheetID,
			ServiceAccountJSON: config.GoogleServiceAccountJSON,
			ServiceAccountFile: config.GoogleServiceAccountFile,
		}, f.logger)
		if err != nil {
			if res.AMQP != nil {
				_ = res.AMQP.Close()
			}
			return fail(fmt.Errorf("failed to initialize Google Sheets client: %w", err))
		}
		res.Exporter = exporter

		if res.AMQP == nil {
			export := services.NewReportExport(res.Reports, exporter, f.logger)
			res.Processor = services.NewExportProcessor(export, config.exportConfig(), f.logger)
			notifiers = append(notifiers, res.Processor)
			f.logger.Info("Reports will be exported in-process")
		}
	}

	res.Projects = services.NewProjectService(res.Repository, f.logger, notifiers...)
	res.Projects.SetDefaultCurrency(config.Currency)

	// ProjectService.Close closes the AMQP client; run it before the store closes.
	closers = append(closers, res.Projects.Close)
	res.Cleanup = cleanup

	f.logger.Info("Backend ready",
		"backend", config.Type.String(),
		"amqp_enabled", res.AMQP != nil,
		"sheets_enabled", res.Exporter != nil,
		"cache_enabled", config.CacheTTL > 0)
	return res, nil
}
