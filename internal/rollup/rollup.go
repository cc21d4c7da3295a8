// Package rollup aggregates a project's cost line items and material costs
// into per-milestone and per-project totals in integer cents.
//
// Every function here is pure: inputs are read-only snapshots and the result
// is recomputed on each call.
package rollup

import (
	"fmt"

	"costbook/internal/core"
)

// ComputeMilestoneTotals rolls line items and material costs up to milestones.
//
// Line item contributions are attributed in full to every listed milestone;
// material costs of type "milestone" are split evenly across their milestones
// with the remainder going to the first id. Contributions without milestones
// land in the unassigned bucket. Total counts each contribution once.
func ComputeMilestoneTotals(items []core.CostLineItem, materials []core.MaterialCost, milestones []core.Milestone) (core.MilestoneTotals, error) {
	acc := newAccumulator(milestones)

	for _, li := range items {
		cents, err := ItemContribution(li)
		if err != nil {
			return core.MilestoneTotals{}, err
		}
		if err := acc.attributeFull(cents, li.MilestoneIDs); err != nil {
			return core.MilestoneTotals{}, &core.ItemError{Kind: "line_item", ID: li.ID, Err: err}
		}
	}

	for _, mc := range materials {
		cents, err := MaterialContribution(mc)
		if err != nil {
			return core.MilestoneTotals{}, err
		}
		if mc.CostType == core.MilestoneShared {
			err = acc.attributeSplit(cents, mc.MilestoneIDs)
		} else {
			err = acc.attributeFull(cents, mc.MilestoneIDs)
		}
		if err != nil {
			return core.MilestoneTotals{}, &core.ItemError{Kind: "material", ID: mc.ID, Err: err}
		}
	}

	return acc.totals, nil
}

// ItemContribution returns rate*qty in cents, or 0 when either is missing.
func ItemContribution(li core.CostLineItem) (int64, error) {
	if !li.Rate.Valid || !li.Qty.Valid {
		return 0, nil
	}
	cents, err := core.ToCents(li.Rate.Decimal.Mul(li.Qty.Decimal))
	if err != nil {
		return 0, &core.ItemError{Kind: "line_item", ID: li.ID, Err: err}
	}
	return cents, nil
}

// MaterialContribution returns the full cost of a material in cents. For
// monthly costs the base amount is multiplied by the number of calendar months
// in range; for milestone costs it is the amount before splitting.
func MaterialContribution(mc core.MaterialCost) (int64, error) {
	base, err := core.ToCents(mc.UnitPrice.Mul(mc.Qty))
	if err != nil {
		return 0, &core.ItemError{Kind: "material", ID: mc.ID, Err: err}
	}

	switch mc.CostType {
	case core.OneTime, core.MilestoneShared:
		return base, nil
	case core.Monthly:
		months, err := MonthsInRange(mc.StartDate, mc.EndDate)
		if err != nil {
			return 0, &core.ItemError{Kind: "material", ID: mc.ID, Err: err}
		}
		total, err := core.SafeMul(base, months)
		if err != nil {
			return 0, &core.ItemError{Kind: "material", ID: mc.ID, Err: err}
		}
		return total, nil
	default:
		return 0, &core.ItemError{
			Kind: "material",
			ID:   mc.ID,
			Err:  fmt.Errorf("%w: %q", core.ErrInvalidCostType, mc.CostType),
		}
	}
}

// MonthsInRange counts the calendar months touched by [start, end], both ends
// inclusive. A missing bound counts as a single month.
func MonthsInRange(start, end core.Date) (int64, error) {
	if start.IsEmpty() || end.IsEmpty() {
		return 1, nil
	}
	if end.Before(start.Time) {
		return 0, fmt.Errorf("%w: end %s before start %s", core.ErrInvalidDateRange, end, start)
	}
	return int64(end.MonthIndex()-start.MonthIndex()) + 1, nil
}

// SplitEven divides cents into n integer shares. The remainder goes to the
// first share so the shares always sum to cents.
func SplitEven(cents int64, n int) []int64 {
	if n <= 0 {
		return nil
	}
	shares := make([]int64, n)
	share := cents / int64(n)
	for i := range shares {
		shares[i] = share
	}
	shares[0] += cents % int64(n)
	return shares
}

type accumulator struct {
	totals core.MilestoneTotals
}

func newAccumulator(milestones []core.Milestone) *accumulator {
	by := make(map[string]int64, len(milestones))
	for _, m := range milestones {
		by[m.ID] = 0
	}
	return &accumulator{totals: core.MilestoneTotals{ByMilestoneID: by}}
}

func (a *accumulator) addTotal(cents int64) error {
	total, err := core.SafeAdd(a.totals.Total, cents)
	if err != nil {
		return err
	}
	a.totals.Total = total
	return nil
}

func (a *accumulator) addUnassigned(cents int64) error {
	u, err := core.SafeAdd(a.totals.Unassigned, cents)
	if err != nil {
		return err
	}
	a.totals.Unassigned = u
	return nil
}

func (a *accumulator) addMilestone(id string, cents int64) error {
	v, err := core.SafeAdd(a.totals.ByMilestoneID[id], cents)
	if err != nil {
		return err
	}
	a.totals.ByMilestoneID[id] = v
	return nil
}

func (a *accumulator) attributeFull(cents int64, ids []string) error {
	if err := a.addTotal(cents); err != nil {
		return err
	}
	ids = UniqueIDs(ids)
	if len(ids) == 0 {
		return a.addUnassigned(cents)
	}
	for _, id := range ids {
		if err := a.addMilestone(id, cents); err != nil {
			return err
		}
	}
	return nil
}

func (a *accumulator) attributeSplit(cents int64, ids []string) error {
	if err := a.addTotal(cents); err != nil {
		return err
	}
	ids = UniqueIDs(ids)
	if len(ids) == 0 {
		return a.addUnassigned(cents)
	}
	for i, share := range SplitEven(cents, len(ids)) {
		if err := a.addMilestone(ids[i], share); err != nil {
			return err
		}
	}
	return nil
}

// UniqueIDs drops blank and repeated ids, keeping first-seen order.
func UniqueIDs(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
