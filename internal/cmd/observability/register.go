package observability

import (
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/subsession/internal/app"
)

// Register adds all observability-related commands to the given parent command.
// This is the main entry point for integrating the observability subpackage with
// the root command.
func Register(parent *cobra.Command) {
	RegisterStatusCmd(parent)
	RegisterDashboardCmd(parent)
	RegisterWatchCmd(parent)
	RegisterMaintenanceCmd(parent)
	RegisterLogsCmd(parent)
}

func open(cmd *cobra.Command) (*app.App, error) {
	return app.Open(app.Options{Out: cmd.OutOrStdout()})
}
