package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/subsession/internal/agent"
	"github.com/Iron-Ham/subsession/internal/registry"
	"github.com/Iron-Ham/subsession/internal/render"
	"github.com/Iron-Ham/subsession/internal/workspace"
)

var startCmd = &cobra.Command{
	Use:   "start <sub-agent> <task...>",
	Short: "Create a sub-session and bootstrap its workspace",
	Long: `Create a sub-session and prepare a workspace directory for it under
<dir>/sub-sessions/<session-id>/ containing:
  .env-sub-session  environment for the sub-agent (source it)
  .sub-session-id   marker used by 'subsession detect'
  briefing.md       access mode, paths and the commands to use

The sub-agent name is resolved against the agent table; the resolution is
included in the output.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runStart,
}

var (
	startOpts  createFlags
	startMain  string
	startTitle string
	startDir   string
)

func init() {
	startOpts.bind(startCmd)
	startCmd.Flags().StringVar(&startMain, "main", "main", "main agent starting the session")
	startCmd.Flags().StringVar(&startTitle, "title", "", "task title for the briefing (default: the task)")
	startCmd.Flags().StringVar(&startDir, "dir", "", "workspace root (default: repository root)")
}

// RegisterStartCmd registers the start command with the given parent command.
func RegisterStartCmd(parent *cobra.Command) {
	parent.AddCommand(startCmd)
}

type startResult struct {
	Session   *registry.Session    `json:"session"`
	Workspace *workspace.Workspace `json:"workspace"`
	Agent     agent.Resolution     `json:"agentResolution"`
	NextSteps []string             `json:"nextSteps"`
}

func runStart(cmd *cobra.Command, args []string) error {
	a, err := open(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	resolution := a.Agents.Resolve(args[0])
	opts, err := startOpts.options(a, startMain, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}

	sess, err := a.Sessions.Create(cmd.Context(), opts)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	root := startDir
	if root == "" {
		root = a.Root
	}
	ws, err := workspace.Setup(root, a.Config.Paths.WorkspaceDir, sess, startTitle)
	if err != nil {
		// The session stays registered; it can be ended or reused.
		return fmt.Errorf("session %s created but workspace setup failed: %w", sess.ID, err)
	}
	a.Logger.WithSession(sess.ID).Info("workspace ready", "dir", ws.Dir)

	res := startResult{Session: sess, Workspace: ws, Agent: resolution, NextSteps: ws.NextSteps}
	return a.Render(res, func(s *render.Styles) string {
		var b strings.Builder
		b.WriteString(render.SessionText(sess, time.Now())(s))
		if !resolution.Found() && len(resolution.Suggestions) > 0 {
			fmt.Fprintf(&b, "%s unknown agent %q, did you mean %s?\n",
				s.Warning.Render("note:"), resolution.Input, strings.Join(resolution.Suggestions, ", "))
		}
		fmt.Fprintf(&b, "\n%s %s\n", s.Header.Render("Workspace"), ws.Dir)
		for i, step := range ws.NextSteps {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, step)
		}
		return b.String()
	})
}
