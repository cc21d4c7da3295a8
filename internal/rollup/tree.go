package rollup

import (
	"fmt"
	"slices"

	"costbook/internal/core"
)

// OrderedMilestone is a milestone positioned in its tree.
type OrderedMilestone struct {
	core.Milestone
	Depth int `json:"depth"`
}

// OrderMilestones lists milestones depth-first, children under their parent.
// Siblings are sorted by SortIndex (unset last), then CreatedAt, then input
// order. A milestone whose parent is not in the list is treated as a root.
func OrderMilestones(milestones []core.Milestone) ([]OrderedMilestone, error) {
	if err := checkCycles(milestones); err != nil {
		return nil, err
	}

	sorted := slices.Clone(milestones)
	slices.SortStableFunc(sorted, compareMilestones)

	known := make(map[string]bool, len(sorted))
	for _, m := range sorted {
		known[m.ID] = true
	}
	children := make(map[string][]core.Milestone)
	var roots []core.Milestone
	for _, m := range sorted {
		if m.ParentID == "" || !known[m.ParentID] {
			roots = append(roots, m)
			continue
		}
		children[m.ParentID] = append(children[m.ParentID], m)
	}

	out := make([]OrderedMilestone, 0, len(sorted))
	var walk func(m core.Milestone, depth int)
	walk = func(m core.Milestone, depth int) {
		out = append(out, OrderedMilestone{Milestone: m, Depth: depth})
		for _, c := range children[m.ID] {
			walk(c, depth+1)
		}
	}
	for _, r := range roots {
		walk(r, 0)
	}
	return out, nil
}

func compareMilestones(a, b core.Milestone) int {
	switch {
	case a.SortIndex != nil && b.SortIndex == nil:
		return -1
	case a.SortIndex == nil && b.SortIndex != nil:
		return 1
	case a.SortIndex != nil && *a.SortIndex != *b.SortIndex:
		if *a.SortIndex < *b.SortIndex {
			return -1
		}
		return 1
	}
	return a.CreatedAt.Compare(b.CreatedAt)
}

// SubtreeTotals returns, for every milestone, its own rolled-up amount plus
// the amounts of all its descendants.
func SubtreeTotals(totals core.MilestoneTotals, milestones []core.Milestone) (map[string]int64, error) {
	if err := checkCycles(milestones); err != nil {
		return nil, err
	}

	parent := make(map[string]string, len(milestones))
	out := make(map[string]int64, len(milestones))
	for _, m := range milestones {
		parent[m.ID] = m.ParentID
		out[m.ID] = 0
	}

	for _, m := range milestones {
		own := totals.ByMilestoneID[m.ID]
		if own == 0 {
			continue
		}
		for id := m.ID; id != ""; id = parent[id] {
			if _, ok := out[id]; !ok {
				break
			}
			v, err := core.SafeAdd(out[id], own)
			if err != nil {
				return nil, &core.ItemError{Kind: "milestone", ID: id, Err: err}
			}
			out[id] = v
		}
	}
	return out, nil
}

// checkCycles fails when following ParentID from any milestone revisits it.
func checkCycles(milestones []core.Milestone) error {
	parent := make(map[string]string, len(milestones))
	for _, m := range milestones {
		parent[m.ID] = m.ParentID
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(milestones))
	for _, m := range milestones {
		var path []string
		id := m.ID
		for id != "" && state[id] == unvisited {
			if _, ok := parent[id]; !ok {
				break
			}
			state[id] = visiting
			path = append(path, id)
			id = parent[id]
		}
		if id != "" && state[id] == visiting {
			return &core.ItemError{
				Kind: "milestone",
				ID:   id,
				Err:  fmt.Errorf("%w: %s is its own ancestor", core.ErrMilestoneCycle, id),
			}
		}
		for _, p := range path {
			state[p] = done
		}
	}
	return nil
}
