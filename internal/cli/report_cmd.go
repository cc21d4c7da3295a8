package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"costbook/internal/core"
	"costbook/internal/report"
)

func newReportCmd(app *App) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "report PROJECT",
		Short: "Show the cost report of a project (id or code)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := resolveProjectID(cmd.Context(), app, args[0])
			if err != nil {
				return err
			}
			r, err := app.Reports.ProjectReport(cmd.Context(), id)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, r)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, row := range report.Rows(r) {
				cells := make([]string, len(row))
				for i, c := range row {
					cells[i] = fmt.Sprint(c)
				}
				fmt.Fprintln(tw, strings.Join(cells, "\t"))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full report as JSON")
	return cmd
}

func newReconcileCmd(app *App) *cobra.Command {
	var byMilestone, asJSON bool

	cmd := &cobra.Command{
		Use:   "reconcile PROJECT",
		Short: "Compare invoiced payments with the rolled-up project cost",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := resolveProjectID(cmd.Context(), app, args[0])
			if err != nil {
				return err
			}
			r, err := app.Reports.ProjectReport(cmd.Context(), id)
			if err != nil {
				return err
			}

			if asJSON {
				if byMilestone {
					return writeJSON(cmd, r.ByMilestone)
				}
				return writeJSON(cmd, r.Reconcile)
			}

			money := func(cents int64) string { return core.FormatCurrencyFromCentsIn(cents, r.Currency) }
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Total cost: %s\n", money(r.Totals.Total))
			fmt.Fprintf(out, "Invoiced:   %s\n", money(r.Reconcile.TotalInvoicedCents))
			fmt.Fprintf(out, "Variance:   %s (%s)\n", money(r.Reconcile.Variance), r.Reconcile.Classification)

			if !byMilestone {
				return nil
			}

			fmt.Fprintln(out)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "MILESTONE\tCOST\tINVOICED\tVARIANCE\tSTATUS")
			names := make(map[string]string, len(r.Milestones))
			for _, m := range r.Milestones {
				names[m.ID] = m.Code
			}
			for _, l := range r.ByMilestone.Lines {
				name := names[l.MilestoneID]
				if name == "" {
					name = l.MilestoneID
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", name,
					money(l.CostCents), money(l.InvoicedCents), money(l.Variance), l.Classification)
			}
			u := r.ByMilestone.Unassigned
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", "(unassigned)",
				money(u.CostCents), money(u.InvoicedCents), money(u.Variance), u.Classification)
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&byMilestone, "by-milestone", false, "break the reconciliation down per milestone")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
