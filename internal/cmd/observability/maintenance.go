package observability

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/subsession/internal/app"
	"github.com/Iron-Ham/subsession/internal/render"
)

var maintenanceCmd = &cobra.Command{
	Use:   "maintenance",
	Short: "End stale sessions, prune orphaned locks and assess health",
	Long: `Run the maintenance tasks in order:
  cleanup-expired-sessions  end sessions past their auto-expiry or inactive
                            longer than health.stale_after
  prune-orphaned-locks      drop lock holders that are no longer sessions
  conflict-detection        list current conflicts
  system-health-assessment  score health and list recommendations

A failing task does not stop the others; any failure exits with status 1.
With --dry-run nothing is changed and the tasks report what they would do.`,
	Args: cobra.NoArgs,
	RunE: runMaintenance,
}

var maintenanceDryRun bool

func init() {
	maintenanceCmd.Flags().BoolVar(&maintenanceDryRun, "dry-run", false, "report without changing anything")
}

// RegisterMaintenanceCmd registers the maintenance command with the given parent command.
func RegisterMaintenanceCmd(parent *cobra.Command) {
	parent.AddCommand(maintenanceCmd)
}

// Task states.
const (
	taskCompleted = "completed"
	taskFailed    = "failed"
	taskSkipped   = "skipped"
)

type maintenanceTask struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Details string `json:"details,omitempty"`
	Error   string `json:"error,omitempty"`
	Result  any    `json:"result,omitempty"`
}

type maintenanceSummary struct {
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

type maintenanceReport struct {
	Timestamp time.Time          `json:"timestamp"`
	DryRun    bool               `json:"dryRun"`
	Tasks     []maintenanceTask  `json:"tasks"`
	Summary   maintenanceSummary `json:"summary"`
}

func (r *maintenanceReport) add(t maintenanceTask) {
	switch t.Status {
	case taskCompleted:
		r.Summary.Completed++
	case taskFailed:
		r.Summary.Failed++
	case taskSkipped:
		r.Summary.Skipped++
	}
	r.Tasks = append(r.Tasks, t)
}

type maintenanceStep struct {
	name string
	run  func(ctx context.Context, a *app.App, dryRun bool) (details string, result any, err error)
}

var maintenanceSteps = []maintenanceStep{
	{"cleanup-expired-sessions", sweepSessions},
	{"prune-orphaned-locks", pruneLocks},
	{"conflict-detection", detectConflicts},
	{"system-health-assessment", assessHealth},
}

func runMaintenance(cmd *cobra.Command, args []string) error {
	a, err := open(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	report := runMaintenanceSteps(cmd.Context(), a, maintenanceDryRun)
	a.Logger.Info("maintenance finished",
		"dry_run", report.DryRun,
		"completed", report.Summary.Completed,
		"failed", report.Summary.Failed,
		"skipped", report.Summary.Skipped)

	return a.RenderResult(report, func(s *render.Styles) string {
		var b strings.Builder
		title := "Maintenance"
		if report.DryRun {
			title += " (dry run)"
		}
		b.WriteString(s.Title.Render(title) + "\n")
		for _, t := range report.Tasks {
			state := s.Success.Render(t.Status)
			switch t.Status {
			case taskFailed:
				state = s.Error.Render(t.Status)
			case taskSkipped:
				state = s.Muted.Render(t.Status)
			}
			line := t.Details
			if t.Error != "" {
				line = t.Error
			}
			fmt.Fprintf(&b, "  %-9s %-26s %s\n", state, t.Name, line)
		}
		fmt.Fprintf(&b, "completed %d  failed %d  skipped %d",
			report.Summary.Completed, report.Summary.Failed, report.Summary.Skipped)
		return b.String()
	}, report.Summary.Failed == 0)
}

func runMaintenanceSteps(ctx context.Context, a *app.App, dryRun bool) *maintenanceReport {
	report := &maintenanceReport{Timestamp: time.Now().UTC(), DryRun: dryRun, Tasks: []maintenanceTask{}}
	for _, step := range maintenanceSteps {
		if err := ctx.Err(); err != nil {
			report.add(maintenanceTask{Name: step.name, Status: taskSkipped, Details: "interrupted"})
			continue
		}
		details, result, err := step.run(ctx, a, dryRun)
		if err != nil {
			a.Logger.Error("maintenance task failed", "task", step.name, "error", err)
			report.add(maintenanceTask{Name: step.name, Status: taskFailed, Error: err.Error()})
			continue
		}
		report.add(maintenanceTask{Name: step.name, Status: taskCompleted, Details: details, Result: result})
	}
	return report
}

func sweepSessions(ctx context.Context, a *app.App, dryRun bool) (string, any, error) {
	res, err := a.Sessions.Sweep(ctx, dryRun)
	if err != nil {
		return "", nil, err
	}
	verb := "ended"
	if dryRun {
		verb = "would end"
	}
	return fmt.Sprintf("%s %d sessions", verb, len(res.Sessions)), res, nil
}

func pruneLocks(ctx context.Context, a *app.App, dryRun bool) (string, any, error) {
	paths, err := a.Locks.Prune(ctx, dryRun)
	if err != nil {
		return "", nil, err
	}
	verb := "pruned"
	if dryRun {
		verb = "would prune"
	}
	return fmt.Sprintf("%s %d locks", verb, len(paths)), paths, nil
}

func detectConflicts(ctx context.Context, a *app.App, _ bool) (string, any, error) {
	conflicts, err := a.Detector.Detect(ctx)
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("%d conflicts detected", len(conflicts)), conflicts, nil
}

func assessHealth(ctx context.Context, a *app.App, _ bool) (string, any, error) {
	analysis, err := a.Detector.Analyze(ctx)
	if err != nil {
		return "", nil, err
	}
	result := map[string]any{
		"systemHealth":    analysis.Health,
		"recommendations": analysis.Recommendations,
	}
	return fmt.Sprintf("%s (%d/100)", analysis.Health.Level, analysis.Health.Score), result, nil
}
