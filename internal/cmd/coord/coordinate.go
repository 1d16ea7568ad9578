package coord

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/subsession/internal/coordination"
	"github.com/Iron-Ham/subsession/internal/registry"
	"github.com/Iron-Ham/subsession/internal/render"
)

var coordinateCmd = &cobra.Command{
	Use:     "coordinate",
	Aliases: []string{"coord"},
	Short:   "Run coordination sessions between sub-sessions",
}

var coordinateStartCmd = &cobra.Command{
	Use:   "start <session-id> [session-id...]",
	Short: "Start a coordination between sessions",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCoordinateStart,
}

var coordinateMessageCmd = &cobra.Command{
	Use:   "message <coordination-id> <from-session> <text>",
	Short: "Send a message to a coordination",
	Long: `Append a message from a participating session. Message types are info,
request, proposal, agreement and warning.`,
	Args: cobra.ExactArgs(3),
	RunE: runCoordinateMessage,
}

var coordinateResolveCmd = &cobra.Command{
	Use:   "resolve <coordination-id> <approach>",
	Short: "Resolve a coordination",
	Long:  `Mark a coordination resolved with the agreed approach. Resolution is final.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runCoordinateResolve,
}

var coordinateShowCmd = &cobra.Command{
	Use:   "show <coordination-id>",
	Short: "Show a coordination and its messages",
	Args:  cobra.ExactArgs(1),
	RunE:  runCoordinateShow,
}

var coordinateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show coordinations, conflicts and system health",
	Args:  cobra.NoArgs,
	RunE:  runCoordinateStatus,
}

var (
	coordType      string
	coordContext   map[string]string
	messageType    string
	resolvedBy     string
	includeHistory bool
)

func init() {
	coordinateStartCmd.Flags().StringVarP(&coordType, "type", "t", coordination.DefaultType, "coordination type")
	coordinateStartCmd.Flags().StringToStringVar(&coordContext, "context", nil, "context entries as key=value")
	coordinateMessageCmd.Flags().StringVarP(&messageType, "type", "t", string(registry.MessageInfo), "message type")
	coordinateResolveCmd.Flags().StringVar(&resolvedBy, "by", coordination.DefaultResolver, "who resolved it")
	coordinateStatusCmd.Flags().BoolVar(&includeHistory, "history", false, "include recent coordination log entries")

	coordinateCmd.AddCommand(coordinateStartCmd)
	coordinateCmd.AddCommand(coordinateMessageCmd)
	coordinateCmd.AddCommand(coordinateResolveCmd)
	coordinateCmd.AddCommand(coordinateShowCmd)
	coordinateCmd.AddCommand(coordinateStatusCmd)
}

// RegisterCoordinateCmd registers the coordinate command with the given parent command.
func RegisterCoordinateCmd(parent *cobra.Command) {
	parent.AddCommand(coordinateCmd)
}

func runCoordinateStart(cmd *cobra.Command, args []string) error {
	a, err := open(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctxData := make(map[string]any, len(coordContext))
	for k, v := range coordContext {
		ctxData[k] = v
	}
	c, err := a.Coordination.Coordinate(cmd.Context(), args, coordType, ctxData)
	if err != nil {
		return err
	}
	return a.Render(c, render.CoordinationText(c))
}

func runCoordinateMessage(cmd *cobra.Command, args []string) error {
	mt, err := registry.ParseMessageType(messageType)
	if err != nil {
		return err
	}
	a, err := open(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	msg, err := a.Coordination.SendMessage(cmd.Context(), args[0], args[1], args[2], mt)
	if err != nil {
		return err
	}
	return a.Render(msg, func(s *render.Styles) string {
		return fmt.Sprintf("%s %s [%s] %s", s.Success.Render("sent"), msg.ID, msg.Type, msg.Message)
	})
}

func runCoordinateResolve(cmd *cobra.Command, args []string) error {
	a, err := open(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	c, err := a.Coordination.Resolve(cmd.Context(), args[0], args[1], resolvedBy)
	if err != nil {
		return err
	}
	return a.Render(c, render.CoordinationText(c))
}

func runCoordinateShow(cmd *cobra.Command, args []string) error {
	a, err := open(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	c, err := a.Coordination.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return a.Render(c, render.CoordinationText(c))
}

func runCoordinateStatus(cmd *cobra.Command, args []string) error {
	a, err := open(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	st, err := a.Coordination.Status(cmd.Context(), includeHistory)
	if err != nil {
		return err
	}
	return a.Render(st, render.CoordinationStatusText(st))
}
