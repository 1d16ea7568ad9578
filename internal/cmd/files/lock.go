package files

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/subsession/internal/registry"
	"github.com/Iron-Ham/subsession/internal/render"
)

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Acquire, release and list file locks",
}

var lockAcquireCmd = &cobra.Command{
	Use:   "acquire <session-id> <path>",
	Short: "Acquire a lock on a file",
	Long: `Acquire a read, write or exclusive lock on a file for a session.

Read locks are shared: a second reader joins as a co-reader. Write and
exclusive locks conflict with any other holder. A conflict is reported in
the result, recorded in history, and exits with status 1. Relative paths
resolve against the working directory.`,
	Args: cobra.ExactArgs(2),
	RunE: runLockAcquire,
}

var lockReleaseCmd = &cobra.Command{
	Use:   "release <session-id> <path>",
	Short: "Release a lock held by a session",
	Long: `Release a session's hold on a file. When the owner of a shared read lock
leaves, the oldest co-reader becomes the owner.`,
	Args: cobra.ExactArgs(2),
	RunE: runLockRelease,
}

var lockListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List held locks",
	Args:    cobra.NoArgs,
	RunE:    runLockList,
}

var (
	lockType    string
	lockReason  string
	lockRelated []string
)

func init() {
	lockAcquireCmd.Flags().StringVarP(&lockType, "type", "t", string(registry.LockWrite), "lock type: read, write or exclusive")
	lockAcquireCmd.Flags().StringVar(&lockReason, "reason", "", "why the lock is needed")
	lockAcquireCmd.Flags().StringSliceVar(&lockRelated, "related", nil, "related file (repeatable)")

	lockCmd.AddCommand(lockAcquireCmd)
	lockCmd.AddCommand(lockReleaseCmd)
	lockCmd.AddCommand(lockListCmd)
}

// RegisterLockCmd registers the lock command with the given parent command.
func RegisterLockCmd(parent *cobra.Command) {
	parent.AddCommand(lockCmd)
}

func runLockAcquire(cmd *cobra.Command, args []string) error {
	lt, err := registry.ParseLockType(lockType)
	if err != nil {
		return err
	}
	a, err := open(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	path := absPath(a, args[1])
	res, err := a.Locks.Acquire(cmd.Context(), args[0], path, lt, lockReason, lockRelated)
	if err != nil {
		return err
	}
	return a.RenderResult(res, func(s *render.Styles) string {
		if !res.Success {
			return fmt.Sprintf("%s %s", s.Error.Render("conflict"), res.Reason)
		}
		note := ""
		switch {
		case res.Upgraded:
			note = " (upgraded)"
		case res.Shared:
			note = " (shared)"
		}
		return fmt.Sprintf("%s %s lock on %s%s", s.Success.Render("acquired"), res.LockType, res.FilePath, note)
	}, res.Success)
}

func runLockRelease(cmd *cobra.Command, args []string) error {
	a, err := open(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	res, err := a.Locks.Release(cmd.Context(), args[0], absPath(a, args[1]))
	if err != nil {
		return err
	}
	return a.Render(res, func(s *render.Styles) string {
		out := fmt.Sprintf("%s %s", s.Success.Render("released"), res.FilePath)
		if res.PromotedTo != "" {
			out += s.Muted.Render(" (now held by " + res.PromotedTo + ")")
		}
		return out
	})
}

func runLockList(cmd *cobra.Command, args []string) error {
	a, err := open(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	locks, err := a.Locks.Locks(cmd.Context())
	if err != nil {
		return err
	}
	return a.Render(locks, func(s *render.Styles) string {
		if len(locks) == 0 {
			return s.Muted.Render("no locks held")
		}
		paths := make([]string, 0, len(locks))
		for p := range locks {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		var b strings.Builder
		for _, p := range paths {
			l := locks[p]
			fmt.Fprintf(&b, "%-9s %s  %s\n", l.LockType, p, strings.Join(l.Holders(), ", "))
		}
		return b.String()
	})
}
