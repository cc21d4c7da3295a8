package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"costbook/internal/core"
	"costbook/internal/report"
	"costbook/internal/services"
)

// ReportSource builds project reports.
type ReportSource interface {
	ProjectReport(ctx context.Context, projectID string) (report.ProjectReport, error)
}

// App holds the services used by costctl commands.
type App struct {
	Projects *services.ProjectService
	Reports  ReportSource
}

// NewRootCmd creates the top-level "costctl" command and registers all
// subcommands against the provided App.
func NewRootCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "costctl",
		Short:         "Project cost rollup and invoice reconciliation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newProjectsCmd(app),
		newImportCmd(app),
		newReportCmd(app),
		newReconcileCmd(app),
	)

	return root
}

// resolveProjectID accepts a project id, a project code (case-insensitive)
// or a unique id prefix.
func resolveProjectID(ctx context.Context, app *App, input string) (string, error) {
	if input == "" {
		return "", fmt.Errorf("project is required")
	}

	projects, err := app.Projects.ListProjects(ctx)
	if err != nil {
		return "", err
	}

	for _, p := range projects {
		if p.ID == input {
			return p.ID, nil
		}
	}
	for _, p := range projects {
		if strings.EqualFold(p.Code, input) {
			return p.ID, nil
		}
	}

	var matches []string
	for _, p := range projects {
		if strings.HasPrefix(p.ID, input) {
			matches = append(matches, p.ID)
		}
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("project %q: %w", input, core.ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("project id prefix %q is ambiguous (%d matches)", input, len(matches))
	}
}
