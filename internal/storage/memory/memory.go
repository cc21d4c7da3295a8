// Package memory is an in-process project repository used by the memory
// backend and by tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"costbook/internal/core"
	"costbook/internal/ports"
)

type Store struct {
	mu       sync.Mutex
	now      func() time.Time
	projects []core.Project
	children map[string]*projectData
}

type projectData struct {
	milestones []core.Milestone
	lineItems  []core.CostLineItem
	materials  []core.MaterialCost
	payments   []core.PaymentSchedule
}

var _ ports.ProjectRepository = (*Store)(nil)

func New() *Store {
	return &Store{now: time.Now, children: map[string]*projectData{}}
}

// NewFromSnapshots seeds the store with complete projects, keeping their ids.
func NewFromSnapshots(snaps ...core.ProjectSnapshot) *Store {
	s := New()
	for _, snap := range snaps {
		s.projects = append(s.projects, snap.Project)
		s.children[snap.Project.ID] = &projectData{
			milestones: slices.Clone(snap.Milestones),
			lineItems:  slices.Clone(snap.LineItems),
			materials:  slices.Clone(snap.Materials),
			payments:   slices.Clone(snap.Payments),
		}
	}
	return s
}

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

func (s *Store) CreateProject(_ context.Context, p core.Project) (core.Project, error) {
	if err := p.Validate(); err != nil {
		return core.Project{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = newID(p.ID)
	if _, ok := s.children[p.ID]; ok {
		return core.Project{}, fmt.Errorf("project %s already exists", p.ID)
	}
	for _, existing := range s.projects {
		if strings.EqualFold(existing.Code, p.Code) {
			return core.Project{}, fmt.Errorf("project code %q: %w", p.Code, core.ErrDuplicateCode)
		}
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now().UTC()
	}
	s.projects = append(s.projects, p)
	s.children[p.ID] = &projectData{}
	return p, nil
}

func (s *Store) GetProject(_ context.Context, id string) (core.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.projects {
		if p.ID == id {
			return p, nil
		}
	}
	return core.Project{}, fmt.Errorf("project %s: %w", id, core.ErrNotFound)
}

func (s *Store) ListProjects(context.Context) ([]core.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.projects), nil
}

func (s *Store) DeleteProject(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.IndexFunc(s.projects, func(p core.Project) bool { return p.ID == id })
	if i < 0 {
		return fmt.Errorf("project %s: %w", id, core.ErrNotFound)
	}
	s.projects = slices.Delete(s.projects, i, i+1)
	delete(s.children, id)
	return nil
}

// data returns the child collections of a project. Caller holds s.mu.
func (s *Store) data(projectID string) (*projectData, error) {
	d, ok := s.children[projectID]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", projectID, core.ErrNotFound)
	}
	return d, nil
}

func (s *Store) CreateMilestone(_ context.Context, m core.Milestone) (core.Milestone, error) {
	if err := m.Validate(); err != nil {
		return core.Milestone{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.data(m.ProjectID)
	if err != nil {
		return core.Milestone{}, err
	}
	m.ID = newID(m.ID)
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now().UTC()
	}
	d.milestones = append(d.milestones, m)
	return m, nil
}

func (s *Store) CreateLineItem(_ context.Context, li core.CostLineItem) (core.CostLineItem, error) {
	if err := li.Validate(); err != nil {
		return core.CostLineItem{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.data(li.ProjectID)
	if err != nil {
		return core.CostLineItem{}, err
	}
	li.ID = newID(li.ID)
	d.lineItems = append(d.lineItems, li)
	return li, nil
}

func (s *Store) CreateMaterial(_ context.Context, mc core.MaterialCost) (core.MaterialCost, error) {
	if err := mc.Validate(); err != nil {
		return core.MaterialCost{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.data(mc.ProjectID)
	if err != nil {
		return core.MaterialCost{}, err
	}
	mc.ID = newID(mc.ID)
	d.materials = append(d.materials, mc)
	return mc, nil
}

func (s *Store) CreatePayment(_ context.Context, ps core.PaymentSchedule) (core.PaymentSchedule, error) {
	if err := ps.Validate(); err != nil {
		return core.PaymentSchedule{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.data(ps.ProjectID)
	if err != nil {
		return core.PaymentSchedule{}, err
	}
	ps.ID = newID(ps.ID)
	d.payments = append(d.payments, ps)
	return ps, nil
}

func (s *Store) DeleteEntity(_ context.Context, projectID string, kind ports.EntityKind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.data(projectID)
	if err != nil {
		return err
	}
	var removed bool
	switch kind {
	case ports.KindMilestone:
		d.milestones, removed = deleteByID(d.milestones, id, func(m core.Milestone) string { return m.ID })
	case ports.KindLineItem:
		d.lineItems, removed = deleteByID(d.lineItems, id, func(li core.CostLineItem) string { return li.ID })
	case ports.KindMaterial:
		d.materials, removed = deleteByID(d.materials, id, func(mc core.MaterialCost) string { return mc.ID })
	case ports.KindPayment:
		d.payments, removed = deleteByID(d.payments, id, func(ps core.PaymentSchedule) string { return ps.ID })
	default:
		return fmt.Errorf("unknown entity kind %q", kind)
	}
	if !removed {
		return fmt.Errorf("%s %s: %w", kind, id, core.ErrNotFound)
	}
	return nil
}

func deleteByID[T any](items []T, id string, key func(T) string) ([]T, bool) {
	i := slices.IndexFunc(items, func(v T) bool { return key(v) == id })
	if i < 0 {
		return items, false
	}
	return slices.Delete(items, i, i+1), true
}

func (s *Store) ListMilestones(_ context.Context, projectID string) ([]core.Milestone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.data(projectID)
	if err != nil {
		return nil, err
	}
	return slices.Clone(d.milestones), nil
}

func (s *Store) ListLineItems(_ context.Context, projectID string) ([]core.CostLineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.data(projectID)
	if err != nil {
		return nil, err
	}
	return slices.Clone(d.lineItems), nil
}

func (s *Store) ListMaterials(_ context.Context, projectID string) ([]core.MaterialCost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.data(projectID)
	if err != nil {
		return nil, err
	}
	return slices.Clone(d.materials), nil
}

func (s *Store) ListPayments(_ context.Context, projectID string) ([]core.PaymentSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.data(projectID)
	if err != nil {
		return nil, err
	}
	return slices.Clone(d.payments), nil
}
