package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/subsession/internal/app"
	"github.com/Iron-Ham/subsession/internal/registry"
	"github.com/Iron-Ham/subsession/internal/render"
	appsession "github.com/Iron-Ham/subsession/internal/session"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Create, end and inspect sub-sessions",
}

var sessionCreateCmd = &cobra.Command{
	Use:   "create <main-agent> <sub-agent> <task-scope...>",
	Short: "Register a new sub-session",
	Long: `Register a new sub-session for sub-agent, started by main-agent.

Agent names are resolved against the agent table, so aliases such as
"docs" or shortcuts work. The access mode decides what the session may
touch without explicit grants:
  restricted  only --allow paths
  expanded    everything except --deny paths and critical paths
  custom      nothing beyond --allow paths`,
	Args: cobra.MinimumNArgs(3),
	RunE: runSessionCreate,
}

var sessionEndCmd = &cobra.Command{
	Use:   "end <session-id>",
	Short: "End a sub-session, releasing its locks and expiring its requests",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionEnd,
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show one sub-session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionShow,
}

var sessionListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List active sub-sessions",
	Args:    cobra.NoArgs,
	RunE:    runSessionList,
}

var (
	createOpts createFlags
	endReason  string
)

func init() {
	createOpts.bind(sessionCreateCmd)
	sessionEndCmd.Flags().StringVar(&endReason, "reason", appsession.DefaultEndReason, "reason recorded in history")

	sessionCmd.AddCommand(sessionCreateCmd)
	sessionCmd.AddCommand(sessionEndCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionListCmd)
}

// RegisterSessionCmd registers the session command with the given parent command.
func RegisterSessionCmd(parent *cobra.Command) {
	parent.AddCommand(sessionCmd)
}

// createFlags are the session options shared by create and start.
type createFlags struct {
	taskType     string
	mode         string
	allow        []string
	deny         []string
	parentBranch string
	subBranch    string
	related      string
	expiresIn    time.Duration
}

func (f *createFlags) bind(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.taskType, "task-type", appsession.DefaultTaskType, "task type used in the session id")
	fs.StringVarP(&f.mode, "mode", "m", string(registry.ModeRestricted), "access mode: restricted, expanded or custom")
	fs.StringSliceVar(&f.allow, "allow", nil, "allowed path (repeatable)")
	fs.StringSliceVar(&f.deny, "deny", nil, "denied path (repeatable)")
	fs.StringVar(&f.parentBranch, "parent-branch", "", "branch the session works from")
	fs.StringVar(&f.subBranch, "sub-branch", "", "branch the session works on")
	fs.StringVar(&f.related, "related", "", "id of the related main session")
	fs.DurationVar(&f.expiresIn, "expires-in", 0, "end the session automatically after this long (maintenance)")
}

func (f *createFlags) options(a *app.App, mainAgent, subAgent, scope string) (appsession.CreateOptions, error) {
	mode, err := registry.ParseAccessMode(f.mode)
	if err != nil {
		return appsession.CreateOptions{}, err
	}
	opts := appsession.CreateOptions{
		MainAgent:          a.Agents.Canonical(mainAgent),
		SubAgent:           a.Agents.Canonical(subAgent),
		TaskScope:          scope,
		TaskType:           f.taskType,
		AccessMode:         mode,
		AllowedPaths:       f.allow,
		DeniedPaths:        f.deny,
		ParentBranch:       f.parentBranch,
		SubBranch:          f.subBranch,
		RelatedMainSession: f.related,
	}
	if f.expiresIn > 0 {
		expiry := time.Now().UTC().Add(f.expiresIn)
		opts.AutoExpiry = &expiry
	}
	return opts, nil
}

func open(cmd *cobra.Command) (*app.App, error) {
	return app.Open(app.Options{Out: cmd.OutOrStdout()})
}

func runSessionCreate(cmd *cobra.Command, args []string) error {
	a, err := open(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	opts, err := createOpts.options(a, args[0], args[1], strings.Join(args[2:], " "))
	if err != nil {
		return err
	}
	sess, err := a.Sessions.Create(cmd.Context(), opts)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return a.Render(sess, render.SessionText(sess, time.Now()))
}

func runSessionEnd(cmd *cobra.Command, args []string) error {
	a, err := open(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	res, err := a.Sessions.End(cmd.Context(), args[0], endReason)
	if err != nil {
		return err
	}
	return a.Render(res, func(s *render.Styles) string {
		return fmt.Sprintf("%s %s: %s\n  released locks:   %d\n  expired requests: %d",
			s.Success.Render("ended"), res.SessionID, res.Reason,
			len(res.ReleasedLocks), len(res.ExpiredRequests))
	})
}

func runSessionShow(cmd *cobra.Command, args []string) error {
	a, err := open(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	sess, err := a.Sessions.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return a.Render(sess, render.SessionText(sess, time.Now()))
}

func runSessionList(cmd *cobra.Command, args []string) error {
	a, err := open(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	sessions, err := a.Sessions.List(cmd.Context())
	if err != nil {
		return err
	}
	return a.Render(sessions, render.SessionsText(sessions, time.Now()))
}
