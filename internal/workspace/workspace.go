// Package workspace bootstraps the working directory handed to a sub-agent
// when a session starts, and detects from inside such a directory which
// session is running.
package workspace

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	apperrors "github.com/Iron-Ham/subsession/internal/errors"
	"github.com/Iron-Ham/subsession/internal/registry"
)

// Files written into every workspace.
const (
	EnvFileName      = ".env-sub-session"
	MarkerFileName   = ".sub-session-id"
	BriefingFileName = "briefing.md"
)

// Environment variables exported by the env file.
const (
	EnvSessionID    = "SUB_SESSION_ID"
	EnvSubSession   = "CLAUDE_SUB_SESSION"
	EnvSubAgentMode = "SUB_AGENT_MODE"
	EnvWorkspaceDir = "WORKSPACE_DIR"
	EnvTaskTitle    = "TASK_TITLE"
)

// DefaultDirName is the directory under the repository root that holds
// workspaces.
const DefaultDirName = "sub-sessions"

// Workspace describes a bootstrapped session directory.
type Workspace struct {
	SessionID string   `json:"sessionId"`
	Dir       string   `json:"dir"`
	EnvFile   string   `json:"envFile"`
	Marker    string   `json:"marker"`
	Briefing  string   `json:"briefing"`
	NextSteps []string `json:"nextSteps"`
}

// Setup creates <root>/<dirName>/<session id>/ with the env file, the
// session marker and the briefing. Existing files are overwritten.
func Setup(root, dirName string, sess *registry.Session, taskTitle string) (*Workspace, error) {
	if sess == nil || sess.ID == "" {
		return nil, apperrors.NewValidationError("session is required").WithField("sessionId")
	}
	if dirName == "" {
		dirName = DefaultDirName
	}
	if taskTitle == "" {
		taskTitle = sess.CoordinationData.TaskScope
	}

	dir := filepath.Join(root, dirName, sess.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, apperrors.NewPersistenceError("create workspace", err).WithPath(dir)
	}

	ws := &Workspace{
		SessionID: sess.ID,
		Dir:       dir,
		EnvFile:   filepath.Join(dir, EnvFileName),
		Marker:    filepath.Join(dir, MarkerFileName),
		Briefing:  filepath.Join(dir, BriefingFileName),
		NextSteps: []string{
			"cd " + filepath.Join(dirName, sess.ID),
			"source " + EnvFileName,
			"read " + BriefingFileName + " before starting work",
		},
	}

	briefing, err := RenderBriefing(sess, taskTitle)
	if err != nil {
		return nil, err
	}

	files := []struct {
		path string
		data []byte
	}{
		{ws.EnvFile, envFile(sess.ID, dir, taskTitle)},
		{ws.Marker, []byte(sess.ID)},
		{ws.Briefing, briefing},
	}
	for _, f := range files {
		if err := registry.WriteFileAtomic(f.path, f.data, 0644); err != nil {
			return nil, apperrors.NewPersistenceError("write workspace file", err).WithPath(f.path)
		}
	}
	return ws, nil
}

func envFile(sessionID, dir, taskTitle string) []byte {
	var b bytes.Buffer
	b.WriteString("# Sub-Session Environment\n")
	fmt.Fprintf(&b, "%s=%s\n", EnvSessionID, sessionID)
	fmt.Fprintf(&b, "%s=true\n", EnvSubSession)
	fmt.Fprintf(&b, "%s=true\n", EnvSubAgentMode)
	fmt.Fprintf(&b, "%s=%s\n", EnvWorkspaceDir, dir)
	fmt.Fprintf(&b, "%s=%q\n", EnvTaskTitle, taskTitle)
	return b.Bytes()
}

// RepoRoot returns the git top-level directory containing dir, or dir
// itself when dir is not inside a repository.
func RepoRoot(dir string) string {
	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return dir
	}
	if root := strings.TrimSpace(string(out)); root != "" {
		return root
	}
	return dir
}
