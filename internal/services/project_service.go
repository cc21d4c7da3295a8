package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"costbook/internal/core"
	"costbook/internal/importer"
	"costbook/internal/log"
	"costbook/internal/ports"
	"costbook/internal/report"
	"costbook/internal/rollup"
)

// ProjectService orchestrates project writes across the repository and the
// change notifiers.
type ProjectService struct {
	repo      ports.ProjectRepository
	notifiers []ports.ChangeNotifier
	logger    *log.Logger
	now       func() time.Time
	currency  string
}

func NewProjectService(repo ports.ProjectRepository, logger *log.Logger, notifiers ...ports.ChangeNotifier) *ProjectService {
	if logger == nil {
		logger = log.Default()
	}
	return &ProjectService{
		repo:      repo,
		notifiers: notifiers,
		logger:    logger.WithComponent(log.ComponentProject),
		now:       time.Now,
	}
}

// SetDefaultCurrency sets the currency given to projects created without one.
func (s *ProjectService) SetDefaultCurrency(code string) {
	s.currency = code
}

func (s *ProjectService) ListProjects(ctx context.Context) ([]core.Project, error) {
	return s.repo.ListProjects(ctx)
}

func (s *ProjectService) GetProject(ctx context.Context, id string) (core.Project, error) {
	return s.repo.GetProject(ctx, id)
}

// CreateProject saves a project and notifies listeners.
func (s *ProjectService) CreateProject(ctx context.Context, p core.Project) (core.Project, error) {
	if p.Currency == "" {
		p.Currency = s.currency
	}
	created, err := s.repo.CreateProject(ctx, p)
	if err != nil {
		return core.Project{}, fmt.Errorf("create project: %w", err)
	}
	s.notify(ctx, created.ID, ports.KindProject, created.ID, ports.OpCreate)
	return created, nil
}

func (s *ProjectService) DeleteProject(ctx context.Context, id string) error {
	if err := s.repo.DeleteProject(ctx, id); err != nil {
		return fmt.Errorf("delete project %s: %w", id, err)
	}
	s.notify(ctx, id, ports.KindProject, id, ports.OpDelete)
	return nil
}

// AddMilestone saves a milestone after checking that its parent belongs to
// the same project and that it does not close a cycle.
func (s *ProjectService) AddMilestone(ctx context.Context, m core.Milestone) (core.Milestone, error) {
	if err := m.Validate(); err != nil {
		return core.Milestone{}, err
	}
	if m.ParentID != "" {
		existing, err := s.repo.ListMilestones(ctx, m.ProjectID)
		if err != nil {
			return core.Milestone{}, fmt.Errorf("list milestones: %w", err)
		}
		if err := checkParent(existing, m); err != nil {
			return core.Milestone{}, err
		}
	}

	created, err := s.repo.CreateMilestone(ctx, m)
	if err != nil {
		return core.Milestone{}, fmt.Errorf("create milestone: %w", err)
	}
	s.notify(ctx, created.ProjectID, ports.KindMilestone, created.ID, ports.OpCreate)
	return created, nil
}

func checkParent(existing []core.Milestone, m core.Milestone) error {
	found := false
	for _, e := range existing {
		if e.ID == m.ParentID {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %s", core.ErrUnknownParent, m.ParentID)
	}
	if m.ID == "" {
		// A fresh id cannot be anyone's parent yet.
		return nil
	}
	candidate := make([]core.Milestone, 0, len(existing)+1)
	for _, e := range existing {
		if e.ID != m.ID {
			candidate = append(candidate, e)
		}
	}
	_, err := rollup.OrderMilestones(append(candidate, m))
	return err
}

// AddLineItem saves a line item whose cost fits the safe cent range.
func (s *ProjectService) AddLineItem(ctx context.Context, li core.CostLineItem) (core.CostLineItem, error) {
	if err := li.Validate(); err != nil {
		return core.CostLineItem{}, err
	}
	if _, err := rollup.ItemContribution(li); err != nil {
		return core.CostLineItem{}, costError("line item", err)
	}
	li.MilestoneIDs = rollup.UniqueIDs(li.MilestoneIDs)
	created, err := s.repo.CreateLineItem(ctx, li)
	if err != nil {
		return core.CostLineItem{}, fmt.Errorf("create line item: %w", err)
	}
	s.notify(ctx, created.ProjectID, ports.KindLineItem, created.ID, ports.OpCreate)
	return created, nil
}

// AddMaterial saves a material whose full cost fits the safe cent range.
func (s *ProjectService) AddMaterial(ctx context.Context, mc core.MaterialCost) (core.MaterialCost, error) {
	if err := mc.Validate(); err != nil {
		return core.MaterialCost{}, err
	}
	if _, err := rollup.MaterialContribution(mc); err != nil {
		return core.MaterialCost{}, costError("material", err)
	}
	mc.MilestoneIDs = rollup.UniqueIDs(mc.MilestoneIDs)
	created, err := s.repo.CreateMaterial(ctx, mc)
	if err != nil {
		return core.MaterialCost{}, fmt.Errorf("create material: %w", err)
	}
	s.notify(ctx, created.ProjectID, ports.KindMaterial, created.ID, ports.OpCreate)
	return created, nil
}

func (s *ProjectService) AddPayment(ctx context.Context, ps core.PaymentSchedule) (core.PaymentSchedule, error) {
	if err := ps.Validate(); err != nil {
		return core.PaymentSchedule{}, err
	}
	if _, err := core.ToCents(ps.Amount); err != nil {
		return core.PaymentSchedule{}, fmt.Errorf("payment amount: %w", err)
	}
	ps.MilestoneIDs = rollup.UniqueIDs(ps.MilestoneIDs)
	ps.MaterialCostIDs = rollup.UniqueIDs(ps.MaterialCostIDs)
	created, err := s.repo.CreatePayment(ctx, ps)
	if err != nil {
		return core.PaymentSchedule{}, fmt.Errorf("create payment: %w", err)
	}
	s.notify(ctx, created.ProjectID, ports.KindPayment, created.ID, ports.OpCreate)
	return created, nil
}

// costError drops the entity wrapper of a contribution error; a new entity
// has no id yet.
func costError(kind string, err error) error {
	var itemErr *core.ItemError
	if errors.As(err, &itemErr) {
		err = itemErr.Err
	}
	return fmt.Errorf("%s cost: %w", kind, err)
}

// DeleteEntity removes one child entity of a project.
func (s *ProjectService) DeleteEntity(ctx context.Context, projectID string, kind ports.EntityKind, id string) error {
	if err := s.repo.DeleteEntity(ctx, projectID, kind, id); err != nil {
		return fmt.Errorf("delete %s %s: %w", kind, id, err)
	}
	s.notify(ctx, projectID, kind, id, ports.OpDelete)
	return nil
}

// ImportProject writes a decoded project document. A document whose report
// cannot be built is rejected before anything is written, and a partially
// written project is removed again when one of its entities is rejected.
func (s *ProjectService) ImportProject(ctx context.Context, snap core.ProjectSnapshot) (core.Project, error) {
	if _, err := report.Build(snap); err != nil {
		return core.Project{}, err
	}
	if snap.Project.Currency == "" {
		snap.Project.Currency = s.currency
	}

	p, err := importer.Apply(ctx, s.repo, snap)
	if err != nil {
		if p.ID != "" {
			if derr := s.repo.DeleteProject(ctx, p.ID); derr != nil {
				s.logger.ErrorContext(ctx, "Failed to remove partial import",
					log.FieldProjectID, p.ID,
					log.FieldError, derr)
			}
		}
		return core.Project{}, err
	}

	s.logger.InfoContext(ctx, "Project imported",
		log.FieldProjectID, p.ID,
		log.FieldProjectCode, p.Code,
		"milestones", len(snap.Milestones),
		"line_items", len(snap.LineItems),
		"materials", len(snap.Materials),
		"payments", len(snap.Payments))
	s.notify(ctx, p.ID, ports.KindProject, p.ID, ports.OpImport)
	return p, nil
}

func (s *ProjectService) notify(ctx context.Context, projectID string, kind ports.EntityKind, id string, op ports.Operation) {
	change := ports.Change{
		ProjectID: projectID,
		Entity:    kind,
		EntityID:  id,
		Operation: op,
		At:        s.now().UTC(),
	}
	for _, n := range s.notifiers {
		if err := n.ProjectChanged(ctx, change); err != nil {
			// Don't fail the request - the write is already stored
			s.logger.ErrorContext(ctx, "Failed to publish project change",
				log.FieldProjectID, projectID,
				log.FieldEntity, string(kind),
				log.FieldEntityID, id,
				log.FieldOperation, string(op),
				log.FieldError, err)
		}
	}
}

// Close releases notifiers that hold resources.
func (s *ProjectService) Close() error {
	var errs []error
	for _, n := range s.notifiers {
		if c, ok := n.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
