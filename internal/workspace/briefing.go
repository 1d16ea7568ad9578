package workspace

import (
	"bytes"
	"strings"
	"text/template"

	apperrors "github.com/Iron-Ham/subsession/internal/errors"
	"github.com/Iron-Ham/subsession/internal/registry"
)

// BriefingData is available to the briefing template.
type BriefingData struct {
	SessionID    string
	MainAgent    string
	SubAgent     string
	TaskTitle    string
	AccessMode   registry.AccessMode
	AllowedPaths []string
	DeniedPaths  []string
	ParentBranch string
}

const briefingTemplate = `# Sub-session {{.SessionID}}

Sub-session access control is active for this workspace.

- Task: {{if .TaskTitle}}{{.TaskTitle}}{{else}}(none){{end}}
- Agent: {{.SubAgent}} (started by {{.MainAgent}})
- Access mode: {{.AccessMode}}{{if .ParentBranch}}
- Parent branch: {{.ParentBranch}}{{end}}

## Allowed paths
{{if .AllowedPaths}}{{range .AllowedPaths}}
- {{.}}{{end}}{{else}}
{{modeDefault .AccessMode}}{{end}}

## Denied paths
{{if .DeniedPaths}}{{range .DeniedPaths}}
- {{.}}{{end}}{{else}}
None.{{end}}

## Commands

- Check access: ` + "`subsession access check {{.SessionID}} <path> --op write`" + `
- Request permission: ` + "`subsession permission request {{.SessionID}} <path> --reason \"<justification>\"`" + `
- Release a lock: ` + "`subsession lock release {{.SessionID}} <path>`" + `
- Session status: ` + "`subsession session show {{.SessionID}}`" + `

## Workflow

1. Check access before touching a file.
2. Request permission instead of working around a denial.
3. Write operations take a write lock; release it when you are done.
4. End the session when the task is complete: ` + "`subsession session end {{.SessionID}}`" + `
`

var briefingTmpl = template.Must(template.New("briefing").Funcs(template.FuncMap{
	"modeDefault": modeDefault,
}).Parse(briefingTemplate))

func modeDefault(mode registry.AccessMode) string {
	switch mode {
	case registry.ModeExpanded:
		return "Everything except critical files (environment files, git metadata, dependency manifests)."
	case registry.ModeRestricted:
		return "Nothing outside the session's explicit allow list. Request permission for anything else."
	default:
		return "No default access. Every path needs an explicit grant."
	}
}

// RenderBriefing renders the workspace briefing for sess.
func RenderBriefing(sess *registry.Session, taskTitle string) ([]byte, error) {
	data := BriefingData{
		SessionID:    sess.ID,
		MainAgent:    sess.MainAgent,
		SubAgent:     sess.SubAgent,
		TaskTitle:    strings.TrimSpace(taskTitle),
		AccessMode:   sess.AccessMode,
		AllowedPaths: sess.AllowedPaths,
		DeniedPaths:  sess.DeniedPaths,
		ParentBranch: sess.CoordinationData.ParentBranch,
	}
	var buf bytes.Buffer
	if err := briefingTmpl.Execute(&buf, data); err != nil {
		return nil, apperrors.Wrap(err, "render briefing")
	}
	return buf.Bytes(), nil
}
