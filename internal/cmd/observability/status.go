package observability

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/subsession/internal/render"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show registry status",
	Long: `Show active sessions, locks, pending requests, recent activity and the
per-file lock conflict summary. The revision is a digest of the registry
content and changes whenever the content does.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

// RegisterStatusCmd registers the status command with the given parent command.
func RegisterStatusCmd(parent *cobra.Command) {
	parent.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := open(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	analysis, err := a.Detector.Analyze(cmd.Context())
	if err != nil {
		return err
	}

	return a.Render(analysis.Status, func(s *render.Styles) string {
		var b strings.Builder
		b.WriteString(render.HealthLine(s, analysis.Health) + "\n")
		b.WriteString(render.StatusText(analysis.Status, time.Now())(s))
		return b.String()
	})
}
