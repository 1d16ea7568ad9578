package workspace

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Detection sources.
const (
	SourceEnv    = "env"
	SourceMarker = "marker"
)

// Detection reports the session a process runs in.
type Detection struct {
	SessionID string `json:"sessionId"`
	Source    string `json:"source"`
	Marker    string `json:"marker,omitempty"`
}

// Detect finds the current sub-session. SUB_SESSION_ID wins; otherwise, when
// cwd lies under a sub-sessions directory, the nearest marker file in cwd or
// a parent names the session. getenv is usually os.Getenv. It returns false
// for the main agent.
func Detect(getenv func(string) string, cwd string) (Detection, bool) {
	if id := strings.TrimSpace(getenv(EnvSessionID)); id != "" {
		return Detection{SessionID: id, Source: SourceEnv}, true
	}
	if !inWorkspaceTree(cwd) {
		return Detection{}, false
	}

	dir := filepath.Clean(cwd)
	for {
		marker := filepath.Join(dir, MarkerFileName)
		if data, err := os.ReadFile(marker); err == nil {
			if id := strings.TrimSpace(string(data)); id != "" {
				return Detection{SessionID: id, Source: SourceMarker, Marker: marker}, true
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return Detection{}, false
		}
		dir = parent
	}
}

func inWorkspaceTree(cwd string) bool {
	parts := strings.Split(filepath.ToSlash(cwd), "/")
	return slices.Contains(parts, DefaultDirName) || slices.Contains(parts, "sub-session")
}
