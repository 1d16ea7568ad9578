package coord

import (
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/subsession/internal/app"
)

// Register adds the conflict and coordination commands to the given parent
// command.
func Register(parent *cobra.Command) {
	RegisterConflictsCmd(parent)
	RegisterCoordinateCmd(parent)
}

func open(cmd *cobra.Command) (*app.App, error) {
	return app.Open(app.Options{Out: cmd.OutOrStdout()})
}
