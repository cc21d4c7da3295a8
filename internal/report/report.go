// Package report composes the rollup and reconciliation engines into the
// project report shown by the web UI, the CLI and the sheet export.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"costbook/internal/core"
	"costbook/internal/reconcile"
	"costbook/internal/rollup"
)

// Amount is a money figure in cents with its display form.
type Amount struct {
	Cents   int64  `json:"cents"`
	Display string `json:"display"`
}

type KPIs struct {
	TotalCost      Amount              `json:"totalCost"`
	Invoiced       Amount              `json:"invoiced"`
	Variance       Amount              `json:"variance"`
	Classification core.Classification `json:"classification"`
	// PercentBilled is invoiced / total cost * 100, one decimal. Zero when
	// there is no cost.
	PercentBilled  float64 `json:"percentBilled"`
	MilestoneCount int     `json:"milestoneCount"`
	InvoiceCount   int     `json:"invoiceCount"`
}

type MilestoneRow struct {
	ID             string              `json:"id"`
	Code           string              `json:"code"`
	Name           string              `json:"name"`
	Depth          int                 `json:"depth"`
	StartDate      core.Date           `json:"startDate"`
	EndDate        core.Date           `json:"endDate"`
	Own            Amount              `json:"own"`
	Subtree        Amount              `json:"subtree"`
	Invoiced       Amount              `json:"invoiced"`
	Variance       Amount              `json:"variance"`
	Classification core.Classification `json:"classification"`
}

type BreakdownRow struct {
	Category string  `json:"category"`
	Amount   Amount  `json:"amount"`
	Share    float64 `json:"share"`
}

type CashflowRow struct {
	Month      string `json:"month"` // YYYY-MM
	Invoices   int    `json:"invoices"`
	Invoiced   Amount `json:"invoiced"`
	Cumulative Amount `json:"cumulative"`
}

// LineRow is one cost entry with its rolled-up contribution.
type LineRow struct {
	Kind       string   `json:"kind"`
	ID         string   `json:"id"`
	Label      string   `json:"label"`
	Detail     string   `json:"detail"`
	Milestones []string `json:"milestones"`
	Amount     Amount   `json:"amount"`
}

type ProjectReport struct {
	Project     core.Project          `json:"project"`
	Currency    string                `json:"currency"`
	KPIs        KPIs                  `json:"kpis"`
	Milestones  []MilestoneRow        `json:"milestones"`
	Unassigned  MilestoneRow          `json:"unassigned"`
	Breakdown   []BreakdownRow        `json:"breakdown"`
	Cashflow    []CashflowRow         `json:"cashflow"`
	Lines       []LineRow             `json:"lines"`
	Totals      core.MilestoneTotals  `json:"totals"`
	Reconcile   core.Reconciliation   `json:"reconciliation"`
	ByMilestone reconcile.ByMilestone `json:"byMilestone"`
}

const materialCategory = "material"

// Build computes the full report of one project snapshot.
func Build(snap core.ProjectSnapshot) (ProjectReport, error) {
	currency := snap.Project.Currency
	if currency == "" {
		currency = "USD"
	}
	amount := func(cents int64) Amount {
		return Amount{Cents: cents, Display: core.FormatCurrencyFromCentsIn(cents, currency)}
	}

	totals, err := rollup.ComputeMilestoneTotals(snap.LineItems, snap.Materials, snap.Milestones)
	if err != nil {
		return ProjectReport{}, fmt.Errorf("rollup: %w", err)
	}
	rec, err := reconcile.ReconcilePayments(totals, snap.Payments)
	if err != nil {
		return ProjectReport{}, fmt.Errorf("reconcile: %w", err)
	}
	byMilestone, err := reconcile.ReconcileByMilestone(totals, snap.Payments, snap.Milestones)
	if err != nil {
		return ProjectReport{}, fmt.Errorf("reconcile milestones: %w", err)
	}
	ordered, err := rollup.OrderMilestones(snap.Milestones)
	if err != nil {
		return ProjectReport{}, err
	}
	subtree, err := rollup.SubtreeTotals(totals, snap.Milestones)
	if err != nil {
		return ProjectReport{}, err
	}

	lines := make(map[string]reconcile.MilestoneLine, len(byMilestone.Lines))
	for _, l := range byMilestone.Lines {
		lines[l.MilestoneID] = l
	}

	r := ProjectReport{
		Project:     snap.Project,
		Currency:    currency,
		Totals:      totals,
		Reconcile:   rec,
		ByMilestone: byMilestone,
		KPIs: KPIs{
			TotalCost:      amount(totals.Total),
			Invoiced:       amount(rec.TotalInvoicedCents),
			Variance:       amount(rec.Variance),
			Classification: rec.Classification,
			PercentBilled:  percent(rec.TotalInvoicedCents, totals.Total),
			MilestoneCount: len(snap.Milestones),
			InvoiceCount:   len(snap.Payments),
		},
	}

	for _, m := range ordered {
		l := lines[m.ID]
		r.Milestones = append(r.Milestones, MilestoneRow{
			ID:             m.ID,
			Code:           m.Code,
			Name:           m.Name,
			Depth:          m.Depth,
			StartDate:      m.StartDate,
			EndDate:        m.EndDate,
			Own:            amount(totals.ByMilestoneID[m.ID]),
			Subtree:        amount(subtree[m.ID]),
			Invoiced:       amount(l.InvoicedCents),
			Variance:       amount(l.Variance),
			Classification: core.Classify(l.Variance),
		})
	}
	u := byMilestone.Unassigned
	r.Unassigned = MilestoneRow{
		Name:           "Unassigned",
		Own:            amount(u.CostCents),
		Subtree:        amount(u.CostCents),
		Invoiced:       amount(u.InvoicedCents),
		Variance:       amount(u.Variance),
		Classification: u.Classification,
	}

	if r.Lines, r.Breakdown, err = buildLines(snap, totals.Total, amount); err != nil {
		return ProjectReport{}, err
	}
	if r.Cashflow, err = buildCashflow(snap.Payments, amount); err != nil {
		return ProjectReport{}, err
	}
	return r, nil
}

func buildLines(snap core.ProjectSnapshot, total int64, amount func(int64) Amount) ([]LineRow, []BreakdownRow, error) {
	byCategory := map[string]int64{}
	var rows []LineRow

	for _, li := range snap.LineItems {
		cents, err := rollup.ItemContribution(li)
		if err != nil {
			return nil, nil, err
		}
		if byCategory[string(li.Type)], err = core.SafeAdd(byCategory[string(li.Type)], cents); err != nil {
			return nil, nil, err
		}
		rows = append(rows, LineRow{
			Kind:       string(li.Type),
			ID:         li.ID,
			Label:      li.RoleOrSKU,
			Detail:     itemDetail(li),
			Milestones: li.MilestoneIDs,
			Amount:     amount(cents),
		})
	}
	for _, mc := range snap.Materials {
		cents, err := rollup.MaterialContribution(mc)
		if err != nil {
			return nil, nil, err
		}
		if byCategory[materialCategory], err = core.SafeAdd(byCategory[materialCategory], cents); err != nil {
			return nil, nil, err
		}
		label := mc.SKU
		if mc.Description != "" {
			label += " " + mc.Description
		}
		rows = append(rows, LineRow{
			Kind:       materialCategory,
			ID:         mc.ID,
			Label:      label,
			Detail:     fmt.Sprintf("%s x %s (%s)", mc.Qty, mc.UnitPrice.StringFixed(2), mc.CostType),
			Milestones: mc.MilestoneIDs,
			Amount:     amount(cents),
		})
	}

	categories := []string{string(core.Labour), string(core.Service), string(core.Equipment), materialCategory}
	breakdown := make([]BreakdownRow, 0, len(categories))
	for _, c := range categories {
		breakdown = append(breakdown, BreakdownRow{
			Category: c,
			Amount:   amount(byCategory[c]),
			Share:    percent(byCategory[c], total),
		})
	}
	return rows, breakdown, nil
}

func itemDetail(li core.CostLineItem) string {
	if !li.Rate.Valid || !li.Qty.Valid {
		return "no rate"
	}
	var b strings.Builder
	b.WriteString(li.Qty.Decimal.String())
	if li.Unit != "" {
		b.WriteString(" " + string(li.Unit))
	}
	b.WriteString(" @ " + li.Rate.Decimal.StringFixed(2))
	return b.String()
}

func buildCashflow(payments []core.PaymentSchedule, amount func(int64) Amount) ([]CashflowRow, error) {
	type bucket struct {
		count int
		cents int64
	}
	months := map[string]*bucket{}
	for _, p := range payments {
		if !p.Amount.IsPositive() {
			return nil, &core.ItemError{Kind: "payment", ID: p.ID, Err: core.ErrInvalidAmount}
		}
		cents, err := core.ToCents(p.Amount)
		if err != nil {
			return nil, &core.ItemError{Kind: "payment", ID: p.ID, Err: err}
		}
		key := "undated"
		if !p.InvoiceDate.IsEmpty() {
			key = p.InvoiceDate.Format("2006-01")
		}
		b, ok := months[key]
		if !ok {
			b = &bucket{}
			months[key] = b
		}
		b.count++
		if b.cents, err = core.SafeAdd(b.cents, cents); err != nil {
			return nil, err
		}
	}

	keys := make([]string, 0, len(months))
	for k := range months {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([]CashflowRow, 0, len(keys))
	var running int64
	for _, k := range keys {
		b := months[k]
		var err error
		if running, err = core.SafeAdd(running, b.cents); err != nil {
			return nil, err
		}
		rows = append(rows, CashflowRow{
			Month:      k,
			Invoices:   b.count,
			Invoiced:   amount(b.cents),
			Cumulative: amount(running),
		})
	}
	return rows, nil
}

func percent(part, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	return decimal.NewFromInt(part).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(whole)).
		Round(1).
		InexactFloat64()
}
