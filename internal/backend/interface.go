package backend

import (
	"context"
	"time"

	"costbook/internal/amqp"
	"costbook/internal/ports"
	"costbook/internal/report"
	"costbook/internal/services"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult holds everything wired for one process.
type BackendResult struct {
	Repository ports.ProjectRepository
	// Loader serves snapshots to the report service, cached when enabled.
	Loader   ports.SnapshotLoader
	Projects *services.ProjectService
	Reports  *report.Service

	// AMQP is nil when no broker is configured.
	AMQP *amqp.Client
	// Exporter is nil when report export to Google Sheets is off.
	Exporter ports.ReportExporter
	// Processor exports reports in-process. Set only when Exporter is set
	// and AMQP is not.
	Processor *services.ExportProcessor

	// Ready reports whether the store is reachable.
	Ready   func(ctx context.Context) error
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Backend type
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// AMQP, optional
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets report export, optional
	GoogleSpreadsheetID      string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string

	// Snapshot cache. A zero TTL disables caching.
	CacheTTL  time.Duration
	CacheSize int

	// Currency given to projects created without one
	Currency string

	// In-process export
	ExportInterval   time.Duration
	ExportBatchSize  int
	ExportMaxRetries int
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
