package ports

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"costbook/internal/core"
)

// LoadSnapshot reads a project and its four child collections concurrently.
func LoadSnapshot(ctx context.Context, r ProjectReader, projectID string) (core.ProjectSnapshot, error) {
	var snap core.ProjectSnapshot

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		snap.Project, err = r.GetProject(gctx, projectID)
		return err
	})
	g.Go(func() (err error) {
		snap.Milestones, err = r.ListMilestones(gctx, projectID)
		return wrapList("milestones", err)
	})
	g.Go(func() (err error) {
		snap.LineItems, err = r.ListLineItems(gctx, projectID)
		return wrapList("line items", err)
	})
	g.Go(func() (err error) {
		snap.Materials, err = r.ListMaterials(gctx, projectID)
		return wrapList("materials", err)
	})
	g.Go(func() (err error) {
		snap.Payments, err = r.ListPayments(gctx, projectID)
		return wrapList("payments", err)
	})

	if err := g.Wait(); err != nil {
		return core.ProjectSnapshot{}, err
	}
	return snap, nil
}

func wrapList(what string, err error) error {
	if err != nil {
		return fmt.Errorf("list %s: %w", what, err)
	}
	return nil
}

// DirectLoader loads snapshots straight from a reader without caching.
type DirectLoader struct {
	Reader ProjectReader
}

func (l DirectLoader) LoadSnapshot(ctx context.Context, projectID string) (core.ProjectSnapshot, error) {
	return LoadSnapshot(ctx, l.Reader, projectID)
}
