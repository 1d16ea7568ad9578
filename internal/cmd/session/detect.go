package session

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	apperrors "github.com/Iron-Ham/subsession/internal/errors"
	"github.com/Iron-Ham/subsession/internal/registry"
	"github.com/Iron-Ham/subsession/internal/render"
	"github.com/Iron-Ham/subsession/internal/workspace"
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Report whether the current process runs inside a sub-session",
	Long: `Detect the current sub-session from SUB_SESSION_ID, or from the
.sub-session-id marker when the working directory lies inside a
sub-sessions workspace. Outside a sub-session this reports the main agent.`,
	Args: cobra.NoArgs,
	RunE: runDetect,
}

// RegisterDetectCmd registers the detect command with the given parent command.
func RegisterDetectCmd(parent *cobra.Command) {
	parent.AddCommand(detectCmd)
}

type detectResult struct {
	SubSession bool                 `json:"subSession"`
	Detection  *workspace.Detection `json:"detection,omitempty"`
	Registered bool                 `json:"registered"`
	Session    *registry.Session    `json:"session,omitempty"`
}

func runDetect(cmd *cobra.Command, args []string) error {
	a, err := open(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	res := detectResult{}
	det, ok := workspace.Detect(os.Getenv, a.WorkDir)
	if ok {
		res.SubSession = true
		res.Detection = &det
		sess, err := a.Sessions.Get(cmd.Context(), det.SessionID)
		switch {
		case err == nil:
			res.Registered = true
			res.Session = sess
		case !apperrors.IsNotFound(err):
			return err
		}
	}

	return a.Render(res, func(s *render.Styles) string {
		if !res.SubSession {
			return "main agent " + s.Muted.Render("(no sub-session detected)")
		}
		state := s.Success.Render("registered")
		if !res.Registered {
			state = s.Warning.Render("not in registry")
		}
		return fmt.Sprintf("sub-session %s  %s  %s", det.SessionID, s.Muted.Render("via "+det.Source), state)
	})
}
