package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	apperrors "github.com/Iron-Ham/subsession/internal/errors"
	"github.com/Iron-Ham/subsession/internal/registry"
)

func testSession() *registry.Session {
	return &registry.Session{
		ID:           "test-runner-sub-task-1700000000000-0a1b2c3d",
		MainAgent:    "vibe-coder",
		SubAgent:     "test-runner",
		AccessMode:   registry.ModeRestricted,
		AllowedPaths: []string{"tests/", "docs/"},
		CoordinationData: registry.CoordinationData{
			TaskScope:    "Run integration tests",
			ParentBranch: "feature/api",
		},
	}
}

func TestSetup(t *testing.T) {
	root := t.TempDir()
	sess := testSession()

	ws, err := Setup(root, "", sess, "")
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	wantDir := filepath.Join(root, DefaultDirName, sess.ID)
	if ws.Dir != wantDir {
		t.Errorf("Dir = %q, want %q", ws.Dir, wantDir)
	}

	marker, err := os.ReadFile(ws.Marker)
	if err != nil || string(marker) != sess.ID {
		t.Errorf("marker = %q, %v", marker, err)
	}

	env, err := os.ReadFile(ws.EnvFile)
	if err != nil {
		t.Fatalf("read env file: %v", err)
	}
	for _, want := range []string{
		"SUB_SESSION_ID=" + sess.ID,
		"CLAUDE_SUB_SESSION=true",
		"SUB_AGENT_MODE=true",
		"WORKSPACE_DIR=" + wantDir,
		`TASK_TITLE="Run integration tests"`,
	} {
		if !strings.Contains(string(env), want) {
			t.Errorf("env file missing %q:\n%s", want, env)
		}
	}

	briefing, err := os.ReadFile(ws.Briefing)
	if err != nil {
		t.Fatalf("read briefing: %v", err)
	}
	for _, want := range []string{
		"# Sub-session " + sess.ID,
		"- Access mode: restricted",
		"- Parent branch: feature/api",
		"- tests/",
		"None.",
		"subsession permission request " + sess.ID,
	} {
		if !strings.Contains(string(briefing), want) {
			t.Errorf("briefing missing %q:\n%s", want, briefing)
		}
	}
}

func TestSetup_RequiresSession(t *testing.T) {
	_, err := Setup(t.TempDir(), "", &registry.Session{}, "x")
	if !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("Setup() error = %v, want ErrInvalidInput", err)
	}
}

func TestRenderBriefing_ModeDefaults(t *testing.T) {
	tests := []struct {
		mode registry.AccessMode
		want string
	}{
		{registry.ModeExpanded, "Everything except critical files"},
		{registry.ModeRestricted, "explicit allow list"},
		{registry.ModeCustom, "No default access"},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			sess := &registry.Session{ID: "s", AccessMode: tt.mode}
			out, err := RenderBriefing(sess, "")
			if err != nil {
				t.Fatalf("RenderBriefing() error = %v", err)
			}
			if !strings.Contains(string(out), tt.want) {
				t.Errorf("briefing missing %q:\n%s", tt.want, out)
			}
		})
	}
}

func TestDetect(t *testing.T) {
	root := t.TempDir()
	ws, err := Setup(root, "", testSession(), "")
	if err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(ws.Dir, "src", "pkg")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	noEnv := func(string) string { return "" }
	env := func(k string) string {
		if k == EnvSessionID {
			return "from-env"
		}
		return ""
	}

	tests := []struct {
		name       string
		getenv     func(string) string
		cwd        string
		wantOK     bool
		wantID     string
		wantSource string
	}{
		{"env wins", env, root, true, "from-env", SourceEnv},
		{"marker in cwd", noEnv, ws.Dir, true, ws.SessionID, SourceMarker},
		{"marker in parent", noEnv, nested, true, ws.SessionID, SourceMarker},
		{"outside workspace tree", noEnv, root, false, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Detect(tt.getenv, tt.cwd)
			if ok != tt.wantOK || got.SessionID != tt.wantID || got.Source != tt.wantSource {
				t.Errorf("Detect() = %+v, %v; want %q from %q, %v", got, ok, tt.wantID, tt.wantSource, tt.wantOK)
			}
		})
	}
}
