package files

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/subsession/internal/app"
)

// Register adds the lock, access, guard and permission commands to the
// given parent command.
func Register(parent *cobra.Command) {
	RegisterLockCmd(parent)
	RegisterAccessCmd(parent)
	RegisterGuardCmd(parent)
	RegisterPermissionCmd(parent)
}

func open(cmd *cobra.Command) (*app.App, error) {
	return app.Open(app.Options{Out: cmd.OutOrStdout()})
}

// absPath resolves p against the working directory so that locks taken
// here and by the operation guard name the same file.
func absPath(a *app.App, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(a.WorkDir, p)
}
