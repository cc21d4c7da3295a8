package report

import "strings"

// SheetTitle is the tab name a report is exported under.
func SheetTitle(code string) string {
	return code + " Report"
}

// Rows flattens a report into spreadsheet rows: a KPI header, the milestone
// table, then the cashflow table. Money cells hold display strings.
func Rows(r ProjectReport) [][]any {
	rows := [][]any{
		{"Project", r.Project.Code, r.Project.Name},
		{"Total cost", r.KPIs.TotalCost.Display},
		{"Invoiced", r.KPIs.Invoiced.Display},
		{"Variance", r.KPIs.Variance.Display, string(r.KPIs.Classification)},
		{"Billed %", r.KPIs.PercentBilled},
		{},
		{"Code", "Milestone", "Start", "End", "Cost", "Subtree", "Invoiced", "Variance", "Status"},
	}
	for _, m := range append(append([]MilestoneRow(nil), r.Milestones...), r.Unassigned) {
		rows = append(rows, []any{
			m.Code,
			strings.Repeat("  ", m.Depth) + m.Name,
			m.StartDate.String(),
			m.EndDate.String(),
			m.Own.Display,
			m.Subtree.Display,
			m.Invoiced.Display,
			m.Variance.Display,
			string(m.Classification),
		})
	}

	rows = append(rows, []any{}, []any{"Month", "Invoices", "Invoiced", "Cumulative"})
	for _, c := range r.Cashflow {
		rows = append(rows, []any{c.Month, c.Invoices, c.Invoiced.Display, c.Cumulative.Display})
	}
	return rows
}
