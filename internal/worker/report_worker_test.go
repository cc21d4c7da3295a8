package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"costbook/internal/amqp"
	"costbook/internal/core"
	"costbook/internal/log"
	"costbook/internal/ports"
	"costbook/internal/report"
	"costbook/internal/services"
	"costbook/internal/storage/memory"
)

type fakeExporter struct {
	codes []string
	err   error
}

func (f *fakeExporter) ExportReport(_ context.Context, code string, _ [][]any) error {
	if f.err != nil {
		return f.err
	}
	f.codes = append(f.codes, code)
	return nil
}

func newTestWorker(exporter ports.ReportExporter) *ReportWorker {
	store := memory.NewFromSnapshots(
		core.ProjectSnapshot{
			Project: core.Project{ID: "p1", Code: "A", Name: "Alpha"},
			Payments: []core.PaymentSchedule{
				{ID: "pay", InvoiceNo: "INV-1", InvoiceDate: core.NewDate(2025, 1, 1), Amount: decimal.NewFromInt(10)},
			},
		},
		core.ProjectSnapshot{Project: core.Project{ID: "p2", Code: "B", Name: "Beta"}},
	)
	builder := report.NewService(ports.DirectLoader{Reader: store}, log.Discard())
	export := services.NewReportExport(builder, exporter, log.Discard())
	return NewReportWorker(store, export, log.Discard())
}

func TestReportWorker_HandleProjectChanged(t *testing.T) {
	exporter := &fakeExporter{}
	w := newTestWorker(exporter)

	msg := amqp.NewProjectChangedMessage(ports.Change{ProjectID: "p1", Entity: ports.KindPayment, Operation: ports.OpCreate})
	if err := w.HandleProjectChanged(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(exporter.codes) != 1 || exporter.codes[0] != "A" {
		t.Errorf("expected report A to be exported, got %v", exporter.codes)
	}
}

func TestReportWorker_HandleDeletedProject(t *testing.T) {
	exporter := &fakeExporter{}
	w := newTestWorker(exporter)

	msg := amqp.NewProjectChangedMessage(ports.Change{ProjectID: "gone", Entity: ports.KindProject, Operation: ports.OpDelete})
	if err := w.HandleProjectChanged(context.Background(), msg); err != nil {
		t.Fatalf("deleted projects should be acked, got %v", err)
	}
	if len(exporter.codes) != 0 {
		t.Errorf("nothing should be exported, got %v", exporter.codes)
	}
}

func TestReportWorker_HandleExportFailure(t *testing.T) {
	w := newTestWorker(&fakeExporter{err: errors.New("quota exceeded")})

	msg := amqp.NewProjectChangedMessage(ports.Change{ProjectID: "p1"})
	if err := w.HandleProjectChanged(context.Background(), msg); err == nil {
		t.Fatal("expected error so the message is requeued")
	}
}

func TestReportWorker_DropsUnbuildableProject(t *testing.T) {
	huge := decimal.NewNullDecimal(decimal.New(1, 12))
	store := memory.NewFromSnapshots(core.ProjectSnapshot{
		Project: core.Project{ID: "p1", Code: "A", Name: "Alpha"},
		LineItems: []core.CostLineItem{
			{ID: "li", ProjectID: "p1", Type: core.Labour, RoleOrSKU: "Engineer", Rate: huge, Qty: huge},
		},
	})
	exporter := &fakeExporter{}
	builder := report.NewService(ports.DirectLoader{Reader: store}, log.Discard())
	w := NewReportWorker(store, services.NewReportExport(builder, exporter, log.Discard()), log.Discard())

	msg := amqp.NewProjectChangedMessage(ports.Change{ProjectID: "p1", Entity: ports.KindLineItem, Operation: ports.OpCreate})
	if err := w.HandleProjectChanged(context.Background(), msg); err != nil {
		t.Fatalf("an unbuildable report must not be requeued, got %v", err)
	}
	if len(exporter.codes) != 0 {
		t.Errorf("nothing should be exported, got %v", exporter.codes)
	}
}

func TestReportWorker_ExportAll(t *testing.T) {
	exporter := &fakeExporter{}
	w := newTestWorker(exporter)

	if err := w.ExportAll(context.Background()); err != nil {
		t.Fatalf("export all: %v", err)
	}
	if len(exporter.codes) != 2 {
		t.Errorf("expected 2 exports, got %v", exporter.codes)
	}

	// Individual failures are logged, not returned.
	w = newTestWorker(&fakeExporter{err: errors.New("down")})
	if err := w.ExportAll(context.Background()); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
}
