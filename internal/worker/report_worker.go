package worker

import (
	"context"
	"fmt"

	"costbook/internal/amqp"
	"costbook/internal/core"
	"costbook/internal/log"
	"costbook/internal/ports"
	"costbook/internal/services"
)

// ReportWorker keeps exported project reports in step with project changes
type ReportWorker struct {
	projects ports.ProjectReader
	export   *services.ReportExport
	logger   *log.Logger
}

func NewReportWorker(projects ports.ProjectReader, export *services.ReportExport, logger *log.Logger) *ReportWorker {
	if logger == nil {
		logger = log.Default()
	}
	return &ReportWorker{
		projects: projects,
		export:   export,
		logger:   logger.WithComponent(log.ComponentWorker),
	}
}

// HandleProjectChanged processes a single project change message from AMQP.
// Only transient failures are returned, so only those are requeued.
func (w *ReportWorker) HandleProjectChanged(ctx context.Context, msg *amqp.ProjectChangedMessage) error {
	w.logger.InfoContext(ctx, "Processing project change",
		log.FieldMessageID, msg.ID,
		log.FieldProjectID, msg.ProjectID,
		log.FieldEntity, msg.Entity,
		log.FieldOperation, msg.Operation)

	err := w.export.Export(ctx, msg.ProjectID)
	if core.IsValidation(err) {
		// Stored data the engines reject fails the same way on every
		// redelivery; the message is acked so the queue keeps moving.
		w.logger.ErrorContext(ctx, "Project report cannot be built, dropping message",
			log.FieldMessageID, msg.ID,
			log.FieldProjectID, msg.ProjectID,
			log.FieldError, err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("export project %s: %w", msg.ProjectID, err)
	}
	return nil
}

// ExportAll re-exports every stored project. Used at startup and on a timer
// to recover from missed messages or worker downtime.
func (w *ReportWorker) ExportAll(ctx context.Context) error {
	projects, err := w.projects.ListProjects(ctx)
	if err != nil {
		return fmt.Errorf("list projects: %w", err)
	}

	if len(projects) == 0 {
		w.logger.InfoContext(ctx, "No projects to export")
		return nil
	}

	successCount := 0
	errorCount := 0
	for _, p := range projects {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := w.export.Export(ctx, p.ID); err != nil {
			w.logger.ErrorContext(ctx, "Failed to export project",
				log.FieldProjectID, p.ID,
				log.FieldError, err)
			errorCount++
			continue
		}
		successCount++
	}

	w.logger.InfoContext(ctx, "Full export completed",
		"total", len(projects),
		"exported", successCount,
		"errors", errorCount)

	return nil
}
