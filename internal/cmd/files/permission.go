package files

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/subsession/internal/registry"
	"github.com/Iron-Ham/subsession/internal/render"
)

var permissionCmd = &cobra.Command{
	Use:     "permission",
	Aliases: []string{"perm"},
	Short:   "Request and answer permission escalations",
}

var permissionRequestCmd = &cobra.Command{
	Use:   "request <session-id> <resource>",
	Short: "Ask for access to a resource outside the session's allowed paths",
	Long: `Create a permission request. File-access requests for safe read paths
or documentation paths are approved immediately and the resource is added
to the session's allowed paths. Everything else stays pending until
'subsession permission approve' or 'deny'.`,
	Args: cobra.ExactArgs(2),
	RunE: runPermissionRequest,
}

var permissionApproveCmd = &cobra.Command{
	Use:   "approve <request-id>",
	Short: "Approve a pending request",
	Args:  cobra.ExactArgs(1),
	RunE:  runPermissionApprove,
}

var permissionDenyCmd = &cobra.Command{
	Use:   "deny <request-id>",
	Short: "Deny a pending request",
	Args:  cobra.ExactArgs(1),
	RunE:  runPermissionDeny,
}

var permissionShowCmd = &cobra.Command{
	Use:   "show <request-id>",
	Short: "Show one permission request",
	Args:  cobra.ExactArgs(1),
	RunE:  runPermissionShow,
}

var permissionListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List permission requests",
	Args:    cobra.NoArgs,
	RunE:    runPermissionList,
}

var (
	requestType   string
	requestReason string
	responder     string
	respondReason string
	listStatus    string
)

func init() {
	permissionRequestCmd.Flags().StringVarP(&requestType, "type", "t", string(registry.RequestFileAccess), "request type: file-access, directory-access or tool-permission")
	permissionRequestCmd.Flags().StringVar(&requestReason, "reason", "", "justification shown to the approver")

	for _, c := range []*cobra.Command{permissionApproveCmd, permissionDenyCmd} {
		c.Flags().StringVar(&responder, "by", "main-agent", "who is responding")
		c.Flags().StringVar(&respondReason, "reason", "", "reason recorded with the response")
	}

	permissionListCmd.Flags().StringVar(&listStatus, "status", "", "only requests with this status: pending, approved, denied or expired")

	permissionCmd.AddCommand(permissionRequestCmd)
	permissionCmd.AddCommand(permissionApproveCmd)
	permissionCmd.AddCommand(permissionDenyCmd)
	permissionCmd.AddCommand(permissionShowCmd)
	permissionCmd.AddCommand(permissionListCmd)
}

// RegisterPermissionCmd registers the permission command with the given parent command.
func RegisterPermissionCmd(parent *cobra.Command) {
	parent.AddCommand(permissionCmd)
}

func runPermissionRequest(cmd *cobra.Command, args []string) error {
	rt, err := registry.ParseRequestType(requestType)
	if err != nil {
		return err
	}
	a, err := open(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	out, err := a.Permissions.Request(cmd.Context(), args[0], args[1], rt, requestReason)
	if err != nil {
		return err
	}
	return a.Render(out, func(s *render.Styles) string {
		if out.AutoApproved {
			return fmt.Sprintf("%s %s %s", s.Success.Render("auto-approved"), out.RequestID,
				s.Muted.Render("("+strings.Join(out.Rules, ", ")+")"))
		}
		return fmt.Sprintf("%s %s %s", s.Warning.Render("pending"), out.RequestID,
			s.Muted.Render("(subsession permission approve "+out.RequestID+")"))
	})
}

func runPermissionApprove(cmd *cobra.Command, args []string) error {
	return respond(cmd, args[0], true)
}

func runPermissionDeny(cmd *cobra.Command, args []string) error {
	return respond(cmd, args[0], false)
}

func respond(cmd *cobra.Command, requestID string, approve bool) error {
	a, err := open(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	respondFn := a.Permissions.Deny
	if approve {
		respondFn = a.Permissions.Approve
	}
	req, err := respondFn(cmd.Context(), requestID, responder, respondReason)
	if err != nil {
		return err
	}
	return a.Render(req, render.RequestsText([]*registry.PermissionRequest{req}))
}

func runPermissionShow(cmd *cobra.Command, args []string) error {
	a, err := open(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	req, err := a.Permissions.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return a.Render(req, render.RequestsText([]*registry.PermissionRequest{req}))
}

func runPermissionList(cmd *cobra.Command, args []string) error {
	status := registry.RequestStatus(listStatus)
	if status != "" && !status.Valid() {
		return fmt.Errorf("invalid status %q (want pending, approved, denied or expired)", listStatus)
	}
	a, err := open(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	reqs, err := a.Permissions.List(cmd.Context(), status)
	if err != nil {
		return err
	}
	return a.Render(reqs, render.RequestsText(reqs))
}
