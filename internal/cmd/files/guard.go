package files

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/subsession/internal/access"
	"github.com/Iron-Ham/subsession/internal/guard"
	"github.com/Iron-Ham/subsession/internal/render"
	"github.com/Iron-Ham/subsession/internal/workspace"
)

var guardCmd = &cobra.Command{
	Use:   "guard",
	Short: "Validate agent tool operations before they run",
}

var guardValidateCmd = &cobra.Command{
	Use:   "validate <operation>",
	Short: "Validate one tool operation for the current sub-session",
	Long: `Validate a read, write, create, edit, delete, glob or bash operation.

The file paths are taken from the tool parameters: file_path for file
operations, path for glob, and paths found in the command line for bash.
Every path must be accessible. Mutating operations (write, create, edit)
also take a write lock on each path. A denial or lock conflict exits
with status 1 and includes a suggested next step.

The session defaults to the detected sub-session. Without one the caller
is the main agent and nothing is restricted.

Parameters come from --params as JSON ("-" reads stdin) or from the
individual flags:
  subsession guard validate write --file-path docs/guide.md
  echo '{"command":"rm build/out.txt"}' | subsession guard validate bash --params -`,
	Args: cobra.ExactArgs(1),
	RunE: runGuardValidate,
}

var (
	guardSession string
	guardParams  string
	guardFlags   guard.Params
)

func init() {
	fs := guardValidateCmd.Flags()
	fs.StringVarP(&guardSession, "session", "s", "", "session id (default: detected sub-session)")
	fs.StringVar(&guardParams, "params", "", `tool parameters as JSON, or "-" for stdin`)
	fs.StringVar(&guardFlags.FilePath, "file-path", "", "file_path parameter")
	fs.StringVar(&guardFlags.Path, "path", "", "path parameter (glob)")
	fs.StringVar(&guardFlags.Command, "command", "", "command parameter (bash)")

	guardCmd.AddCommand(guardValidateCmd)
}

// RegisterGuardCmd registers the guard command with the given parent command.
func RegisterGuardCmd(parent *cobra.Command) {
	parent.AddCommand(guardCmd)
}

func runGuardValidate(cmd *cobra.Command, args []string) error {
	op, err := access.ParseOperation(args[0])
	if err != nil {
		return err
	}
	params, err := readParams(cmd.InOrStdin())
	if err != nil {
		return err
	}

	a, err := open(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	sessionID := guardSession
	if sessionID == "" {
		if det, ok := workspace.Detect(os.Getenv, a.WorkDir); ok {
			sessionID = det.SessionID
		}
	}

	res, err := a.Guard.Validate(cmd.Context(), sessionID, op, params)
	if err != nil {
		return err
	}
	return a.RenderResult(res, render.GuardText(res), res.Allowed)
}

// readParams merges the JSON parameters with the individual flags; flags
// win when both are set.
func readParams(stdin io.Reader) (guard.Params, error) {
	var p guard.Params
	if guardParams != "" {
		var raw []byte
		if guardParams == "-" {
			data, err := io.ReadAll(stdin)
			if err != nil {
				return p, fmt.Errorf("failed to read parameters: %w", err)
			}
			raw = data
		} else {
			raw = []byte(guardParams)
		}
		if err := json.Unmarshal(raw, &p); err != nil {
			return p, fmt.Errorf("invalid parameters: %w", err)
		}
	}
	if guardFlags.FilePath != "" {
		p.FilePath = guardFlags.FilePath
	}
	if guardFlags.Path != "" {
		p.Path = guardFlags.Path
	}
	if guardFlags.Command != "" {
		p.Command = guardFlags.Command
	}
	return p, nil
}
