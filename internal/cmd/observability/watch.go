package observability

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/subsession/internal/event"
	"github.com/Iron-Ham/subsession/internal/render"
	"github.com/Iron-Ham/subsession/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print a line whenever the registry content changes",
	Long: `Watch the registry document and print its new revision and counts each
time its content changes. Saves that only move the timestamp are ignored.
Runs until interrupted, or until --count changes were printed.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

var (
	watchCount    int
	watchDebounce time.Duration
)

func init() {
	watchCmd.Flags().IntVarP(&watchCount, "count", "n", 0, "exit after this many changes (0 runs until interrupted)")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "quiet period before a burst of writes is reloaded")
}

// RegisterWatchCmd registers the watch command with the given parent command.
func RegisterWatchCmd(parent *cobra.Command) {
	parent.AddCommand(watchCmd)
}

// changeView is one printed registry change.
type changeView struct {
	Timestamp       time.Time `json:"timestamp"`
	Path            string    `json:"path"`
	Revision        string    `json:"revision"`
	ActiveSessions  int       `json:"activeSessions"`
	ActiveLocks     int       `json:"activeLocks"`
	PendingRequests int       `json:"pendingRequests"`
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := open(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	w, err := watch.New(a.Store,
		watch.WithBus(a.Bus),
		watch.WithLogger(a.Logger),
		watch.WithDebounce(watchDebounce),
	)
	if err != nil {
		return fmt.Errorf("failed to watch registry: %w", err)
	}

	changes := make(chan event.RegistryChangedEvent, 16)
	w.SetCallback(func(e event.RegistryChangedEvent) {
		select {
		case changes <- e:
		default:
			a.Logger.Warn("watch output behind, change dropped", "revision", e.Revision)
		}
	})

	ctx := cmd.Context()
	w.Start(ctx)
	defer w.Stop()
	a.Logger.Info("watching registry", "path", a.Store.Path(), "revision", w.Revision())

	printed := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.Done():
			return nil
		case e := <-changes:
			v := changeView{Timestamp: e.Timestamp(), Path: e.Path, Revision: e.Revision}
			if e.Status != nil {
				v.ActiveSessions = e.Status.TotalActiveSessions
				v.ActiveLocks = e.Status.TotalActiveLocks
				v.PendingRequests = e.Status.TotalPendingRequests
			}
			err := a.Render(v, func(s *render.Styles) string {
				return fmt.Sprintf("%s  %s  sessions %d  locks %d  pending %d",
					s.Muted.Render(v.Timestamp.Format(time.TimeOnly)), render.ShortRev(v.Revision),
					v.ActiveSessions, v.ActiveLocks, v.PendingRequests)
			})
			if err != nil {
				return err
			}
			printed++
			if watchCount > 0 && printed >= watchCount {
				return nil
			}
		}
	}
}
