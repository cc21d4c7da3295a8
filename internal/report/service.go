package report

import (
	"context"
	"fmt"
	"time"

	"costbook/internal/log"
	"costbook/internal/ports"
)

// Service builds reports from persisted projects.
type Service struct {
	loader ports.SnapshotLoader
	logger *log.Logger
}

func NewService(loader ports.SnapshotLoader, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{loader: loader, logger: logger.WithComponent(log.ComponentReport)}
}

// ProjectReport loads the project snapshot and builds its report. Nothing
// derived is cached; only the snapshot may come from a cache.
func (s *Service) ProjectReport(ctx context.Context, projectID string) (ProjectReport, error) {
	start := time.Now()

	snap, err := s.loader.LoadSnapshot(ctx, projectID)
	if err != nil {
		return ProjectReport{}, fmt.Errorf("load project %s: %w", projectID, err)
	}

	r, err := Build(snap)
	if err != nil {
		s.logger.WarnContext(ctx, "Report build failed",
			log.FieldProjectID, projectID,
			log.FieldError, err)
		return ProjectReport{}, err
	}

	s.logger.DebugContext(ctx, "Report built",
		log.FieldProjectID, projectID,
		log.FieldTotalCents, r.Totals.Total,
		log.FieldVarianceCents, r.Reconcile.Variance,
		log.FieldDuration, time.Since(start).Milliseconds())
	return r, nil
}
