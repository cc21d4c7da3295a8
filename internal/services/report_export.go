package services

import (
	"context"
	"errors"
	"fmt"

	"costbook/internal/core"
	"costbook/internal/log"
	"costbook/internal/ports"
	"costbook/internal/report"
)

// ReportBuilder builds the report of one stored project.
type ReportBuilder interface {
	ProjectReport(ctx context.Context, projectID string) (report.ProjectReport, error)
}

// ReportExport renders project reports and hands them to an exporter.
type ReportExport struct {
	builder  ReportBuilder
	exporter ports.ReportExporter
	logger   *log.Logger
}

func NewReportExport(builder ReportBuilder, exporter ports.ReportExporter, logger *log.Logger) *ReportExport {
	if logger == nil {
		logger = log.Default()
	}
	return &ReportExport{builder: builder, exporter: exporter, logger: logger.WithComponent(log.ComponentWorker)}
}

// Export rebuilds and exports the report of projectID. A project that no
// longer exists is skipped.
func (e *ReportExport) Export(ctx context.Context, projectID string) error {
	r, err := e.builder.ProjectReport(ctx, projectID)
	if errors.Is(err, core.ErrNotFound) {
		e.logger.InfoContext(ctx, "Project gone, skipping export", log.FieldProjectID, projectID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("build report: %w", err)
	}

	if err := e.exporter.ExportReport(ctx, r.Project.Code, report.Rows(r)); err != nil {
		return fmt.Errorf("export report %s: %w", r.Project.Code, err)
	}

	e.logger.InfoContext(ctx, "Report exported",
		log.FieldProjectID, projectID,
		log.FieldSheetTab, report.SheetTitle(r.Project.Code),
		log.FieldTotalCents, r.Totals.Total,
		log.FieldVarianceCents, r.Reconcile.Variance)
	return nil
}
