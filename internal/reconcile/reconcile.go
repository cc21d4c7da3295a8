// Package reconcile compares invoiced payments against rolled-up project cost.
package reconcile

import (
	"fmt"
	"sort"

	"costbook/internal/core"
	"costbook/internal/rollup"
)

// ReconcilePayments sums the invoiced amounts and classifies the variance
// against totals.Total. A negative variance means the project is under-billed.
func ReconcilePayments(totals core.MilestoneTotals, payments []core.PaymentSchedule) (core.Reconciliation, error) {
	var invoiced int64
	for _, p := range payments {
		cents, err := paymentCents(p)
		if err != nil {
			return core.Reconciliation{}, err
		}
		invoiced, err = core.SafeAdd(invoiced, cents)
		if err != nil {
			return core.Reconciliation{}, &core.ItemError{Kind: "payment", ID: p.ID, Err: err}
		}
	}

	variance, err := core.SafeSub(invoiced, totals.Total)
	if err != nil {
		return core.Reconciliation{}, fmt.Errorf("variance: %w", err)
	}

	return core.Reconciliation{
		TotalInvoicedCents: invoiced,
		Variance:           variance,
		Classification:     core.Classify(variance),
	}, nil
}

// MilestoneLine is the reconciliation of a single milestone.
type MilestoneLine struct {
	MilestoneID    string              `json:"milestoneId"`
	CostCents      int64               `json:"costCents"`
	InvoicedCents  int64               `json:"invoicedCents"`
	Variance       int64               `json:"variance"`
	Classification core.Classification `json:"classification"`
}

// ByMilestone holds per-milestone lines plus the unattributed remainder.
type ByMilestone struct {
	Lines      []MilestoneLine `json:"lines"`
	Unassigned MilestoneLine   `json:"unassigned"`
}

// ReconcileByMilestone splits every payment evenly across its milestones
// (remainder to the first id) and reconciles each milestone's invoiced amount
// against its rolled-up cost. Lines follow the order of milestones; ids only
// seen in totals or payments are appended in lexical order.
func ReconcileByMilestone(totals core.MilestoneTotals, payments []core.PaymentSchedule, milestones []core.Milestone) (ByMilestone, error) {
	invoiced := make(map[string]int64)
	var unassigned int64

	for _, p := range payments {
		cents, err := paymentCents(p)
		if err != nil {
			return ByMilestone{}, err
		}
		ids := rollup.UniqueIDs(p.MilestoneIDs)
		if len(ids) == 0 {
			if unassigned, err = core.SafeAdd(unassigned, cents); err != nil {
				return ByMilestone{}, &core.ItemError{Kind: "payment", ID: p.ID, Err: err}
			}
			continue
		}
		for i, share := range rollup.SplitEven(cents, len(ids)) {
			v, err := core.SafeAdd(invoiced[ids[i]], share)
			if err != nil {
				return ByMilestone{}, &core.ItemError{Kind: "payment", ID: p.ID, Err: err}
			}
			invoiced[ids[i]] = v
		}
	}

	order := make([]string, 0, len(milestones))
	listed := make(map[string]bool, len(milestones))
	for _, m := range milestones {
		if listed[m.ID] {
			continue
		}
		listed[m.ID] = true
		order = append(order, m.ID)
	}
	var extra []string
	for id := range totals.ByMilestoneID {
		if !listed[id] {
			listed[id] = true
			extra = append(extra, id)
		}
	}
	for id := range invoiced {
		if !listed[id] {
			listed[id] = true
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	order = append(order, extra...)

	out := ByMilestone{Lines: make([]MilestoneLine, 0, len(order))}
	for _, id := range order {
		line, err := newLine(id, totals.ByMilestoneID[id], invoiced[id])
		if err != nil {
			return ByMilestone{}, err
		}
		out.Lines = append(out.Lines, line)
	}

	line, err := newLine("", totals.Unassigned, unassigned)
	if err != nil {
		return ByMilestone{}, err
	}
	out.Unassigned = line
	return out, nil
}

func newLine(id string, cost, invoiced int64) (MilestoneLine, error) {
	variance, err := core.SafeSub(invoiced, cost)
	if err != nil {
		return MilestoneLine{}, &core.ItemError{Kind: "milestone", ID: id, Err: err}
	}
	return MilestoneLine{
		MilestoneID:    id,
		CostCents:      cost,
		InvoicedCents:  invoiced,
		Variance:       variance,
		Classification: core.Classify(variance),
	}, nil
}

func paymentCents(p core.PaymentSchedule) (int64, error) {
	if !p.Amount.IsPositive() {
		return 0, &core.ItemError{
			Kind: "payment",
			ID:   p.ID,
			Err:  fmt.Errorf("%w: amount %s must be greater than zero", core.ErrInvalidAmount, p.Amount),
		}
	}
	cents, err := core.ToCents(p.Amount)
	if err != nil {
		return 0, &core.ItemError{Kind: "payment", ID: p.ID, Err: err}
	}
	return cents, nil
}
