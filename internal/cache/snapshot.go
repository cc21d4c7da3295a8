package cache

import (
	"context"
	"sync"

	"costbook/internal/core"
	"costbook/internal/ports"
)

// SnapshotCache memoizes project snapshots in front of a ProjectReader. It
// only stores raw entities; totals are always recomputed from them.
//
// It also implements ports.ChangeNotifier so writes evict the project.
type SnapshotCache struct {
	reader ports.ProjectReader
	cache  Cache[core.ProjectSnapshot]

	mu       sync.Mutex
	versions map[string]uint64
}

var (
	_ ports.SnapshotLoader = (*SnapshotCache)(nil)
	_ ports.ChangeNotifier = (*SnapshotCache)(nil)
)

func NewSnapshotCache(reader ports.ProjectReader, c Cache[core.ProjectSnapshot]) *SnapshotCache {
	return &SnapshotCache{reader: reader, cache: c, versions: map[string]uint64{}}
}

func (s *SnapshotCache) version(projectID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.versions[projectID]
}

// LoadSnapshot implements ports.SnapshotLoader
func (s *SnapshotCache) LoadSnapshot(ctx context.Context, projectID string) (core.ProjectSnapshot, error) {
	if snap, ok := s.cache.Get(projectID); ok {
		return snap, nil
	}

	before := s.version(projectID)
	snap, err := ports.LoadSnapshot(ctx, s.reader, projectID)
	if err != nil {
		return core.ProjectSnapshot{}, err
	}

	// A write that landed while loading makes this snapshot stale.
	s.mu.Lock()
	if s.versions[projectID] == before {
		s.cache.Set(projectID, snap)
	}
	s.mu.Unlock()
	return snap, nil
}

// Invalidate drops the cached snapshot of a project.
func (s *SnapshotCache) Invalidate(projectID string) {
	s.mu.Lock()
	s.versions[projectID]++
	s.cache.Delete(projectID)
	s.mu.Unlock()
}

// ProjectChanged implements ports.ChangeNotifier
func (s *SnapshotCache) ProjectChanged(_ context.Context, change ports.Change) error {
	s.Invalidate(change.ProjectID)
	return nil
}
