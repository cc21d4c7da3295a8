package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"costbook/internal/core"
	"costbook/internal/log"
	"costbook/internal/ports"
	"costbook/internal/report"
	"costbook/internal/storage/memory"
)

type fakeExporter struct {
	mu       sync.Mutex
	failures int // remaining calls that fail
	exported map[string][][]any
}

func (f *fakeExporter) ExportReport(_ context.Context, code string, rows [][]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("sheets unavailable")
	}
	if f.exported == nil {
		f.exported = make(map[string][][]any)
	}
	f.exported[code] = rows
	return nil
}

func (f *fakeExporter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.exported)
}

func newTestProcessor(t *testing.T, exporter *fakeExporter, config ExportProcessorConfig) (*ExportProcessor, string) {
	t.Helper()
	store := memory.NewFromSnapshots(core.ProjectSnapshot{
		Project: core.Project{ID: "p1", Code: "WH-1", Name: "Warehouse", Currency: "USD"},
		Payments: []core.PaymentSchedule{
			{ID: "pay", InvoiceNo: "INV-1", InvoiceDate: core.NewDate(2025, 1, 1), Amount: decimal.NewFromInt(10)},
		},
	})
	builder := report.NewService(ports.DirectLoader{Reader: store}, log.Discard())
	export := NewReportExport(builder, exporter, log.Discard())
	return NewExportProcessor(export, config, log.Discard()), "p1"
}

func TestDefaultExportProcessorConfig(t *testing.T) {
	config := DefaultExportProcessorConfig()

	if config.PollInterval != 10*time.Second {
		t.Errorf("expected PollInterval 10s, got %v", config.PollInterval)
	}
	if config.BatchSize != 10 {
		t.Errorf("expected BatchSize 10, got %d", config.BatchSize)
	}
	if config.MaxRetries != 3 {
		t.Errorf("expected MaxRetries 3, got %d", config.MaxRetries)
	}
}

func TestExportProcessor_ExportsChangedProjects(t *testing.T) {
	exporter := &fakeExporter{}
	p, id := newTestProcessor(t, exporter, DefaultExportProcessorConfig())
	ctx := context.Background()

	// Two changes to the same project collapse into one export.
	_ = p.ProjectChanged(ctx, ports.Change{ProjectID: id, Entity: ports.KindPayment})
	_ = p.ProjectChanged(ctx, ports.Change{ProjectID: id, Entity: ports.KindMilestone})

	if got := p.ProcessPending(ctx); got != 1 {
		t.Fatalf("expected 1 export, got %d", got)
	}
	rows, ok := exporter.exported["WH-1"]
	if !ok {
		t.Fatal("expected WH-1 report to be exported")
	}
	if rows[0][1] != "WH-1" {
		t.Errorf("unexpected first row %v", rows[0])
	}
	if stats := p.Stats(); stats.Pending != 0 || stats.Exported != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestExportProcessor_RetriesThenDrops(t *testing.T) {
	exporter := &fakeExporter{failures: 5}
	config := DefaultExportProcessorConfig()
	config.MaxRetries = 2
	p, id := newTestProcessor(t, exporter, config)
	ctx := context.Background()

	_ = p.ProjectChanged(ctx, ports.Change{ProjectID: id})

	p.ProcessPending(ctx)
	if stats := p.Stats(); stats.Pending != 1 || stats.Failed != 0 {
		t.Fatalf("expected project to be requeued, got %+v", stats)
	}
	p.ProcessPending(ctx)
	if stats := p.Stats(); stats.Pending != 0 || stats.Failed != 1 {
		t.Fatalf("expected project to be dropped, got %+v", stats)
	}
}

func TestExportProcessor_DropsUnbuildableProjectAtOnce(t *testing.T) {
	huge := decimal.NewNullDecimal(decimal.New(1, 12))
	store := memory.NewFromSnapshots(core.ProjectSnapshot{
		Project: core.Project{ID: "p1", Code: "WH-1", Name: "Warehouse"},
		LineItems: []core.CostLineItem{
			{ID: "li", ProjectID: "p1", Type: core.Labour, RoleOrSKU: "Engineer", Rate: huge, Qty: huge},
		},
	})
	exporter := &fakeExporter{}
	builder := report.NewService(ports.DirectLoader{Reader: store}, log.Discard())
	p := NewExportProcessor(NewReportExport(builder, exporter, log.Discard()), DefaultExportProcessorConfig(), log.Discard())
	ctx := context.Background()

	_ = p.ProjectChanged(ctx, ports.Change{ProjectID: "p1"})
	p.ProcessPending(ctx)

	if stats := p.Stats(); stats.Pending != 0 || stats.Failed != 1 {
		t.Fatalf("expected the project to be dropped without retries, got %+v", stats)
	}
	if exporter.count() != 0 {
		t.Error("nothing should be exported")
	}
}

func TestExportProcessor_SkipsMissingProject(t *testing.T) {
	exporter := &fakeExporter{}
	p, _ := newTestProcessor(t, exporter, DefaultExportProcessorConfig())
	ctx := context.Background()

	_ = p.ProjectChanged(ctx, ports.Change{ProjectID: "gone", Operation: ports.OpDelete})
	p.ProcessPending(ctx)

	if exporter.count() != 0 {
		t.Error("nothing should be exported for a deleted project")
	}
	if stats := p.Stats(); stats.Failed != 0 || stats.Pending != 0 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestExportProcessor_BatchSize(t *testing.T) {
	exporter := &fakeExporter{}
	config := DefaultExportProcessorConfig()
	config.BatchSize = 1
	p, id := newTestProcessor(t, exporter, config)
	ctx := context.Background()

	_ = p.ProjectChanged(ctx, ports.Change{ProjectID: id})
	_ = p.ProjectChanged(ctx, ports.Change{ProjectID: "gone"})

	p.ProcessPending(ctx)
	if got := p.Stats().Pending; got != 1 {
		t.Errorf("expected 1 pending after first batch, got %d", got)
	}
}

func TestExportProcessor_StartStop(t *testing.T) {
	exporter := &fakeExporter{}
	config := DefaultExportProcessorConfig()
	config.PollInterval = 10 * time.Millisecond
	p, id := newTestProcessor(t, exporter, config)

	if p.IsRunning() {
		t.Error("processor should not be running initially")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := p.Start(ctx); err == nil {
		t.Error("expected error when starting already running processor")
	}

	_ = p.ProjectChanged(ctx, ports.Change{ProjectID: id})
	deadline := time.Now().Add(2 * time.Second)
	for exporter.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if exporter.count() != 1 {
		t.Error("expected the background loop to export the project")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if p.IsRunning() {
		t.Error("processor should not be running after stop")
	}
}

func TestExportProcessor_StopNotRunning(t *testing.T) {
	p, _ := newTestProcessor(t, &fakeExporter{}, DefaultExportProcessorConfig())
	if err := p.Stop(context.Background()); err != nil {
		t.Errorf("Stop should not error when not running: %v", err)
	}
}
