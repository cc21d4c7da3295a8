package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"costbook/internal/importer"
)

func newProjectsCmd(app *App) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "projects",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			projects, err := app.Projects.ListProjects(cmd.Context())
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd, projects)
			}
			if len(projects) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No projects.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CODE\tNAME\tCLIENT\tCURRENCY\tID")
			for _, p := range projects {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.Code, p.Name, p.Client, p.Currency, p.ID)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newImportCmd(app *App) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import a project document (JSON or YAML)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := importer.Format(format)
			if format == "" {
				var err error
				if f, err = importer.FormatFromPath(args[0]); err != nil {
					return err
				}
			}

			file, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			defer file.Close()

			snap, err := importer.Decode(file, f)
			if err != nil {
				return fmt.Errorf("decode %s: %w", args[0], err)
			}

			p, err := app.Projects.ImportProject(cmd.Context(), snap)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Imported project %s (%s): %d milestones, %d line items, %d materials, %d payments\n",
				p.Code, p.ID, len(snap.Milestones), len(snap.LineItems), len(snap.Materials), len(snap.Payments))
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "document format (json|yaml), detected from the extension by default")
	return cmd
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
