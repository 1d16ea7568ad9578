package observability

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/subsession/internal/app"
	"github.com/Iron-Ham/subsession/internal/conflict"
	"github.com/Iron-Ham/subsession/internal/event"
	"github.com/Iron-Ham/subsession/internal/registry"
	"github.com/Iron-Ham/subsession/internal/render"
	"github.com/Iron-Ham/subsession/internal/tui"
	"github.com/Iron-Ham/subsession/internal/watch"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show sessions, conflicts, coordinations and health together",
	Long: `Print one combined view of the registry: status, detected conflicts,
proposed automatic resolutions, active coordinations, health and
recommendations.

With --live a full-screen dashboard opens and refreshes whenever the
registry changes.`,
	Args: cobra.NoArgs,
	RunE: runDashboard,
}

var dashboardLive bool

func init() {
	dashboardCmd.Flags().BoolVarP(&dashboardLive, "live", "l", false, "open the live dashboard")
}

// RegisterDashboardCmd registers the dashboard command with the given parent command.
func RegisterDashboardCmd(parent *cobra.Command) {
	parent.AddCommand(dashboardCmd)
}

// dashboardView is the static dashboard document.
type dashboardView struct {
	Timestamp       time.Time                 `json:"timestamp"`
	Status          *registry.Status          `json:"status"`
	Conflicts       []conflict.Conflict       `json:"conflicts"`
	AutoResolutions []conflict.Resolution     `json:"autoResolutions"`
	Coordinations   []*registry.Coordination  `json:"coordinations"`
	SystemHealth    conflict.Health           `json:"systemHealth"`
	Recommendations []conflict.Recommendation `json:"recommendations"`
}

func snapshotLoader(a *app.App) tui.Loader {
	return func(ctx context.Context) (*tui.Snapshot, error) {
		analysis, err := a.Detector.Analyze(ctx)
		if err != nil {
			return nil, err
		}
		coords, err := a.Coordination.List(ctx)
		if err != nil {
			return nil, err
		}
		return &tui.Snapshot{Analysis: analysis, Coordinations: coords, LoadedAt: time.Now()}, nil
	}
}

func runDashboard(cmd *cobra.Command, args []string) error {
	a, err := open(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	load := snapshotLoader(a)
	if dashboardLive {
		return runLiveDashboard(cmd.Context(), a, load)
	}

	snap, err := load(cmd.Context())
	if err != nil {
		return err
	}
	an := snap.Analysis
	view := dashboardView{
		Timestamp:       snap.LoadedAt,
		Status:          an.Status,
		Conflicts:       an.Conflicts,
		AutoResolutions: an.Proposed,
		Coordinations:   snap.Coordinations,
		SystemHealth:    an.Health,
		Recommendations: an.Recommendations,
	}
	return a.Render(view, func(s *render.Styles) string {
		var b strings.Builder
		b.WriteString(s.Title.Render("Sub-Session Dashboard") + "\n")
		b.WriteString(render.HealthLine(s, an.Health) + "\n\n")
		b.WriteString(render.StatusText(an.Status, snap.LoadedAt)(s))
		b.WriteString("\n" + s.Header.Render("Conflicts") + "\n")
		b.WriteString(render.ConflictsText(an.Conflicts)(s) + "\n")
		if len(an.Proposed) > 0 {
			b.WriteString("\n" + s.Header.Render("Automatic resolutions available") + "\n")
			b.WriteString(render.ResolutionsText(an.Proposed)(s))
		}
		if len(snap.Coordinations) > 0 {
			b.WriteString("\n" + s.Header.Render("Coordinations") + "\n")
			for _, c := range snap.Coordinations {
				fmt.Fprintf(&b, "  %s  %s  %s  %s\n", c.ID, c.Type, s.Level(string(c.Status)), strings.Join(c.Sessions, ", "))
			}
		}
		for _, r := range an.Recommendations {
			fmt.Fprintf(&b, "[%s] %s: %s\n", r.Priority, r.Message, r.Action)
		}
		return b.String()
	})
}

// runLiveDashboard feeds registry change notifications from a watcher into
// the dashboard. Notifications are coalesced; the dashboard always reloads
// the whole registry.
func runLiveDashboard(ctx context.Context, a *app.App, load tui.Loader) error {
	w, err := watch.New(a.Store, watch.WithBus(a.Bus), watch.WithLogger(a.Logger))
	if err != nil {
		return err
	}
	changes := make(chan struct{}, 1)
	w.SetCallback(func(event.RegistryChangedEvent) {
		select {
		case changes <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	return tui.Run(ctx, load, changes)
}
