package files

import (
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/subsession/internal/access"
	"github.com/Iron-Ham/subsession/internal/render"
)

var accessCmd = &cobra.Command{
	Use:   "access",
	Short: "Evaluate file access for a session",
}

var accessCheckCmd = &cobra.Command{
	Use:   "check <session-id> <path>",
	Short: "Check whether a session may perform an operation on a path",
	Long: `Check a session's access to a path without taking any lock.

Denied paths always win. Explicitly allowed paths are next. Otherwise the
session's access mode decides: restricted and custom deny, expanded allows
everything but critical paths. A denial exits with status 1.`,
	Args: cobra.ExactArgs(2),
	RunE: runAccessCheck,
}

var accessOp string

func init() {
	accessCheckCmd.Flags().StringVar(&accessOp, "op", string(access.OpRead), "operation: read, write, create, edit, delete, glob or bash")
	accessCmd.AddCommand(accessCheckCmd)
}

// RegisterAccessCmd registers the access command with the given parent command.
func RegisterAccessCmd(parent *cobra.Command) {
	parent.AddCommand(accessCmd)
}

type checkResult struct {
	SessionID string `json:"sessionId"`
	FilePath  string `json:"filePath"`
	access.Decision
}

func runAccessCheck(cmd *cobra.Command, args []string) error {
	op, err := access.ParseOperation(accessOp)
	if err != nil {
		return err
	}
	a, err := open(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	path := absPath(a, args[1])
	d, err := a.Access.Check(cmd.Context(), args[0], path, op)
	if err != nil {
		return err
	}
	res := checkResult{SessionID: args[0], FilePath: path, Decision: d}
	return a.RenderResult(res, render.DecisionText(path, d), d.Allowed)
}
