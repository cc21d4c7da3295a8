package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"costbook/internal/core"
	"costbook/internal/log"
	"costbook/internal/ports"
)

// ExportProcessorConfig holds configuration for the export processor
type ExportProcessorConfig struct {
	// PollInterval is how often pending projects are exported (default: 10s)
	PollInterval time.Duration

	// BatchSize is the max number of projects exported per poll cycle (default: 10)
	BatchSize int

	// MaxRetries is the maximum attempts before a project is dropped (default: 3)
	MaxRetries int
}

// DefaultExportProcessorConfig returns sensible defaults
func DefaultExportProcessorConfig() ExportProcessorConfig {
	return ExportProcessorConfig{
		PollInterval: 10 * time.Second,
		BatchSize:    10,
		MaxRetries:   3,
	}
}

// ExportStats counts processor outcomes since start.
type ExportStats struct {
	Pending  int
	Exported int
	Failed   int
}

// ExportProcessor collects changed projects and exports their reports in
// batches. It is used in-process when no message broker is configured.
type ExportProcessor struct {
	export *ReportExport
	config ExportProcessorConfig
	logger *log.Logger

	pendingMu sync.Mutex
	pending   map[string]int // project id -> failed attempts
	stats     ExportStats

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

var _ ports.ChangeNotifier = (*ExportProcessor)(nil)

// NewExportProcessor creates a new export processor
func NewExportProcessor(export *ReportExport, config ExportProcessorConfig, logger *log.Logger) *ExportProcessor {
	if logger == nil {
		logger = log.Default()
	}
	return &ExportProcessor{
		export:  export,
		config:  config,
		logger:  logger.WithComponent(log.ComponentWorker),
		pending: make(map[string]int),
	}
}

// ProjectChanged queues the project for export.
func (p *ExportProcessor) ProjectChanged(_ context.Context, change ports.Change) error {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	if _, ok := p.pending[change.ProjectID]; !ok {
		p.pending[change.ProjectID] = 0
	}
	return nil
}

// Start begins the processing loop. Returns an error if already running.
func (p *ExportProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("export processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	p.logger.InfoContext(ctx, "Export processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)

	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *ExportProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		p.logger.InfoContext(ctx, "Export processor stopped gracefully")
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Export processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

// IsRunning returns whether the processor is currently running
func (p *ExportProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *ExportProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProcessPending(ctx)
		}
	}
}

// ProcessPending exports up to BatchSize queued projects and returns how
// many were exported.
func (p *ExportProcessor) ProcessPending(ctx context.Context) int {
	batch := p.takeBatch()
	if len(batch) == 0 {
		return 0
	}

	p.logger.DebugContext(ctx, "Processing export batch", "count", len(batch))

	exported := 0
	for id, attempts := range batch {
		if ctx.Err() != nil {
			p.requeue(id, attempts)
			continue
		}
		if err := p.export.Export(ctx, id); err != nil {
			p.handleFailure(ctx, id, attempts, err)
			continue
		}
		exported++
	}

	p.pendingMu.Lock()
	p.stats.Exported += exported
	p.pendingMu.Unlock()
	return exported
}

func (p *ExportProcessor) takeBatch() map[string]int {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()

	ids := make([]string, 0, len(p.pending))
	for id := range p.pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if p.config.BatchSize > 0 && len(ids) > p.config.BatchSize {
		ids = ids[:p.config.BatchSize]
	}

	batch := make(map[string]int, len(ids))
	for _, id := range ids {
		batch[id] = p.pending[id]
		delete(p.pending, id)
	}
	return batch
}

func (p *ExportProcessor) requeue(id string, attempts int) {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	// A change recorded during the export restarts the attempt count.
	if _, ok := p.pending[id]; !ok {
		p.pending[id] = attempts
	}
}

func (p *ExportProcessor) handleFailure(ctx context.Context, id string, attempts int, exportErr error) {
	p.logger.WarnContext(ctx, "Report export failed",
		log.FieldProjectID, id,
		"attempt", attempts+1,
		log.FieldError, exportErr)

	if core.IsValidation(exportErr) || attempts+1 >= p.config.MaxRetries {
		p.pendingMu.Lock()
		p.stats.Failed++
		p.pendingMu.Unlock()
		p.logger.ErrorContext(ctx, "Report export failed permanently",
			log.FieldProjectID, id,
			"attempts", attempts+1)
		return
	}
	p.requeue(id, attempts+1)
}

// Stats returns current processor statistics
func (p *ExportProcessor) Stats() ExportStats {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	s := p.stats
	s.Pending = len(p.pending)
	return s
}
