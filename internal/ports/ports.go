package ports

import (
	"context"
	"time"

	"costbook/internal/core"
)

// Ports for outbound adapters.
type (
	// ProjectReader reads projects and their child entities.
	ProjectReader interface {
		GetProject(ctx context.Context, id string) (core.Project, error)
		ListProjects(ctx context.Context) ([]core.Project, error)
		ListMilestones(ctx context.Context, projectID string) ([]core.Milestone, error)
		ListLineItems(ctx context.Context, projectID string) ([]core.CostLineItem, error)
		ListMaterials(ctx context.Context, projectID string) ([]core.MaterialCost, error)
		ListPayments(ctx context.Context, projectID string) ([]core.PaymentSchedule, error)
	}

	// ProjectWriter creates and deletes entities. Create methods return the
	// stored entity with its id assigned.
	ProjectWriter interface {
		CreateProject(ctx context.Context, p core.Project) (core.Project, error)
		DeleteProject(ctx context.Context, id string) error
		CreateMilestone(ctx context.Context, m core.Milestone) (core.Milestone, error)
		CreateLineItem(ctx context.Context, li core.CostLineItem) (core.CostLineItem, error)
		CreateMaterial(ctx context.Context, mc core.MaterialCost) (core.MaterialCost, error)
		CreatePayment(ctx context.Context, ps core.PaymentSchedule) (core.PaymentSchedule, error)
		// DeleteEntity removes one child entity of a project.
		DeleteEntity(ctx context.Context, projectID string, kind EntityKind, id string) error
	}

	// ProjectRepository is the full persistence surface.
	ProjectRepository interface {
		ProjectReader
		ProjectWriter
	}

	// SnapshotLoader returns every entity of a project at once.
	SnapshotLoader interface {
		LoadSnapshot(ctx context.Context, projectID string) (core.ProjectSnapshot, error)
	}

	// ChangeNotifier is told about every successful write.
	ChangeNotifier interface {
		ProjectChanged(ctx context.Context, change Change) error
	}

	// ReportExporter publishes a rendered project report somewhere outside the service.
	ReportExporter interface {
		ExportReport(ctx context.Context, code string, rows [][]any) error
	}
)

// EntityKind names a child collection of a project.
type EntityKind string

const (
	KindProject   EntityKind = "project"
	KindMilestone EntityKind = "milestone"
	KindLineItem  EntityKind = "line_item"
	KindMaterial  EntityKind = "material"
	KindPayment   EntityKind = "payment"
)

// Operation is the kind of write that happened.
type Operation string

const (
	OpCreate Operation = "create"
	OpDelete Operation = "delete"
	OpImport Operation = "import"
)

// Change describes one write to a project.
type Change struct {
	ProjectID string
	Entity    EntityKind
	EntityID  string
	Operation Operation
	At        time.Time
}

// NopNotifier drops every change.
type NopNotifier struct{}

func (NopNotifier) ProjectChanged(context.Context, Change) error { return nil }
