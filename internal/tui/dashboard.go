// Package tui provides the live sub-session dashboard.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/subsession/internal/conflict"
	"github.com/Iron-Ham/subsession/internal/registry"
	"github.com/Iron-Ham/subsession/internal/render"
)

// Snapshot is everything the dashboard shows at one moment.
type Snapshot struct {
	Analysis      *conflict.Analysis
	Coordinations []*registry.Coordination
	LoadedAt      time.Time
}

// Loader reads a fresh snapshot.
type Loader func(ctx context.Context) (*Snapshot, error)

// tickInterval refreshes ages and catches changes a watcher missed.
const tickInterval = 5 * time.Second

type snapshotMsg struct {
	snap *Snapshot
	err  error
}

type changedMsg struct{}

type tickMsg time.Time

// Model is the bubbletea model of the dashboard.
type Model struct {
	ctx     context.Context
	load    Loader
	changes <-chan struct{}
	now     func() time.Time

	keys     keyMap
	styles   *render.Styles
	viewport viewport.Model
	ready    bool
	width    int
	height   int

	snap     *Snapshot
	err      error
	loading  bool
	showHelp bool
}

// New creates the dashboard model. A receive on changes triggers a reload;
// changes may be nil.
func New(ctx context.Context, load Loader, changes <-chan struct{}) Model {
	return Model{
		ctx:     ctx,
		load:    load,
		changes: changes,
		now:     time.Now,
		keys:    defaultKeyMap(),
		styles:  render.NewStyles(true),
		loading: true,
	}
}

// Run starts the dashboard full screen and blocks until it exits.
func Run(ctx context.Context, load Loader, changes <-chan struct{}) error {
	p := tea.NewProgram(New(ctx, load, changes), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

// Init loads the first snapshot.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadCmd(), m.waitForChange(), tick())
}

func (m Model) loadCmd() tea.Cmd {
	return func() tea.Msg {
		snap, err := m.load(m.ctx)
		return snapshotMsg{snap: snap, err: err}
	}
}

func (m Model) waitForChange() tea.Cmd {
	if m.changes == nil {
		return nil
	}
	ch := m.changes
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return changedMsg{}
	}
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		bodyHeight := max(1, msg.Height-headerHeight-footerHeight)
		if !m.ready {
			m.viewport = viewport.New(msg.Width, bodyHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = bodyHeight
		}
		m.viewport.SetContent(m.body())
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Refresh):
			m.loading = true
			return m, m.loadCmd()
		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp
			return m, nil
		}

	case snapshotMsg:
		m.loading = false
		m.err = msg.err
		if msg.err == nil {
			m.snap = msg.snap
		}
		if m.ready {
			m.viewport.SetContent(m.body())
		}
		return m, nil

	case changedMsg:
		m.loading = true
		return m, tea.Batch(m.loadCmd(), m.waitForChange())

	case tickMsg:
		return m, tea.Batch(m.loadCmd(), tick())
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

const (
	headerHeight = 2
	footerHeight = 1
)

// View renders the dashboard.
func (m Model) View() string {
	if !m.ready {
		return "loading..."
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.header(), m.viewport.View(), m.footer())
}

func (m Model) header() string {
	s := m.styles
	title := s.Title.Render("Sub-Session Dashboard")
	if m.snap == nil || m.snap.Analysis == nil {
		return title + "\n"
	}
	a := m.snap.Analysis
	line := fmt.Sprintf("%s   sessions %d  locks %d  pending %d  conflicts %d",
		render.HealthLine(s, a.Health),
		a.Status.TotalActiveSessions, a.Status.TotalActiveLocks,
		a.Status.TotalPendingRequests, len(a.Conflicts))
	return title + "\n" + line
}

func (m Model) footer() string {
	s := m.styles
	state := ""
	switch {
	case m.err != nil:
		state = s.Error.Render("error: " + m.err.Error())
	case m.loading:
		state = s.Muted.Render("refreshing...")
	case m.snap != nil:
		state = s.Muted.Render("updated " + m.snap.LoadedAt.Format(time.TimeOnly))
	}
	if m.showHelp {
		return m.keys.fullHelp() + "  " + state
	}
	return m.keys.shortHelp() + "  " + state
}

// body is the scrollable part: sessions, conflicts, coordinations and
// recommendations.
func (m Model) body() string {
	if m.snap == nil || m.snap.Analysis == nil {
		if m.err != nil {
			return m.styles.Error.Render(m.err.Error())
		}
		return m.styles.Muted.Render("loading registry...")
	}
	s := m.styles
	a := m.snap.Analysis
	now := m.now()

	var b strings.Builder
	b.WriteString(render.StatusText(a.Status, now)(s))

	b.WriteString("\n" + s.Header.Render("Conflicts") + "\n")
	b.WriteString(render.ConflictsText(a.Conflicts)(s) + "\n")

	if len(a.Proposed) > 0 {
		b.WriteString("\n" + s.Header.Render("Automatic resolutions available") + "\n")
		b.WriteString(render.ResolutionsText(a.Proposed)(s))
	}

	if len(m.snap.Coordinations) > 0 {
		b.WriteString("\n" + s.Header.Render("Coordinations") + "\n")
		for _, c := range m.snap.Coordinations {
			fmt.Fprintf(&b, "  %s  %s  %s  %s (%d messages)\n",
				c.ID, c.Type, s.Level(string(c.Status)), strings.Join(c.Sessions, ", "), len(c.Messages))
		}
	}

	if len(a.Recommendations) > 0 {
		b.WriteString("\n" + s.Header.Render("Recommendations") + "\n")
		for _, r := range a.Recommendations {
			fmt.Fprintf(&b, "  [%s] %s: %s\n", r.Priority, r.Message, r.Action)
		}
	}
	return b.String()
}
