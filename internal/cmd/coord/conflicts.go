package coord

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/subsession/internal/render"
)

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "Detect and resolve conflicts between sub-sessions",
}

var conflictsDetectCmd = &cobra.Command{
	Use:   "detect",
	Short: "List current conflicts with suggested resolutions",
	Long: `Detect file-lock conflicts in the recent window, sessions sharing a
parent branch, and repeated permission requests for one resource. Nothing
is changed.`,
	Args: cobra.NoArgs,
	RunE: runConflictsDetect,
}

var conflictsResolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Apply the automatic resolutions that are safe without a human",
	Long: `Apply automatic resolutions. Repeated requests for documentation
resources are approved; documentation lock conflicts get a split
suggestion. Other conflicts are left for the agents to coordinate.`,
	Args: cobra.NoArgs,
	RunE: runConflictsResolve,
}

var conflictsReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate the coordination report",
	Long: `Detect conflicts, apply automatic resolutions, score system health and
list recommendations. The report is also recorded in the coordination log.`,
	Args: cobra.NoArgs,
	RunE: runConflictsReport,
}

func init() {
	conflictsCmd.AddCommand(conflictsDetectCmd)
	conflictsCmd.AddCommand(conflictsResolveCmd)
	conflictsCmd.AddCommand(conflictsReportCmd)
}

// RegisterConflictsCmd registers the conflicts command with the given parent command.
func RegisterConflictsCmd(parent *cobra.Command) {
	parent.AddCommand(conflictsCmd)
}

func runConflictsDetect(cmd *cobra.Command, args []string) error {
	a, err := open(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	analysis, err := a.Detector.Analyze(cmd.Context())
	if err != nil {
		return err
	}
	return a.Render(analysis.Conflicts, func(s *render.Styles) string {
		var b strings.Builder
		b.WriteString(render.ConflictsText(analysis.Conflicts)(s))
		if len(analysis.Proposed) > 0 {
			b.WriteString("\n" + s.Header.Render("Automatic resolutions available") + "\n")
			b.WriteString(render.ResolutionsText(analysis.Proposed)(s))
		}
		return b.String()
	})
}

func runConflictsResolve(cmd *cobra.Command, args []string) error {
	a, err := open(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	resolutions, err := a.Detector.AutoResolve(cmd.Context())
	if err != nil {
		return err
	}
	return a.Render(resolutions, render.ResolutionsText(resolutions))
}

func runConflictsReport(cmd *cobra.Command, args []string) error {
	a, err := open(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	report, err := a.Detector.Report(cmd.Context())
	if err != nil {
		return err
	}
	return a.Render(report, render.ReportText(report))
}
