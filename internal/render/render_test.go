package render

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/subsession/internal/access"
	"github.com/Iron-Ham/subsession/internal/conflict"
	"github.com/Iron-Ham/subsession/internal/registry"
)

type sample struct {
	SessionID string   `json:"sessionId"`
	Paths     []string `json:"paths"`
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatJSON, false},
		{"json", FormatJSON, false},
		{"YAML", FormatYAML, false},
		{" text ", FormatText, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
			}
		})
	}
}

func TestRender_JSON(t *testing.T) {
	var buf bytes.Buffer
	v := sample{SessionID: "s1", Paths: []string{"/a"}}
	if err := New(&buf, FormatJSON).Render(v, nil); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	var got sample
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if got.SessionID != "s1" || !strings.HasSuffix(buf.String(), "\n") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestRender_YAMLUsesJSONNames(t *testing.T) {
	var buf bytes.Buffer
	if err := New(&buf, FormatYAML).Render(sample{SessionID: "s1"}, nil); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	var got map[string]any
	if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not YAML: %v", err)
	}
	if got["sessionId"] != "s1" {
		t.Errorf("yaml = %v", got)
	}
}

func TestRender_Text(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, FormatText)
	if err := r.Render(nil, func(*Styles) string { return "hello" }); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "hello\n" {
		t.Errorf("output = %q", buf.String())
	}

	buf.Reset()
	if err := r.Render(sample{SessionID: "s2"}, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "sessionId: s2") {
		t.Errorf("text fallback = %q", buf.String())
	}
}

func TestIsTerminal_Buffer(t *testing.T) {
	if IsTerminal(&bytes.Buffer{}) {
		t.Error("buffer reported as terminal")
	}
}

func TestViews(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewStyles(false)

	st := &registry.Status{
		TotalActiveSessions: 1,
		Sessions: map[string]registry.SessionSummary{
			"s1": {MainAgent: "main", SubAgent: "docs", AccessMode: registry.ModeRestricted, StartTime: now.Add(-90 * time.Minute), TaskScope: "write guide"},
		},
		LockConflicts: []registry.LockConflictSummary{{FilePath: "/a.md", ConflictCount: 2, InvolvedSessions: []string{"s1", "s2"}}},
	}
	out := StatusText(st, now)(s)
	for _, want := range []string{"sessions: 1", "s1  main/docs  restricted", "age=1.5h", "write guide", "2x  /a.md  s1, s2"} {
		if !strings.Contains(out, want) {
			t.Errorf("StatusText missing %q:\n%s", want, out)
		}
	}

	out = DecisionText("/x", access.Decision{Allowed: false, Reason: "Path explicitly denied", Operation: access.OpWrite, Matched: "/x"})(s)
	if !strings.HasPrefix(out, "denied write /x: Path explicitly denied") {
		t.Errorf("DecisionText = %q", out)
	}

	report := &conflict.Report{
		Timestamp:    now,
		SystemHealth: conflict.Health{Score: 70, Level: conflict.LevelWarning, Issues: []string{"1 active conflicts"}},
		Conflicts: []conflict.Conflict{{
			ID: "file-lock-conflict:/a.md", Type: conflict.TypeFileLock, FilePath: "/a.md", ConflictCount: 2, CurrentLockHolder: "s1",
			SuggestedResolution: conflict.Suggestion{Approach: conflict.ApproachCoordinate, Suggestion: "split it"},
		}},
		Recommendations: []conflict.Recommendation{{Priority: "high", Message: "Active conflicts", Action: "resolve"}},
	}
	out = ReportText(report)(s)
	for _, want := range []string{"health: warning (70/100)", "file-lock-conflict  /a.md  2x, held by s1", "coordinate: split it", "[high] Active conflicts: resolve"} {
		if !strings.Contains(out, want) {
			t.Errorf("ReportText missing %q:\n%s", want, out)
		}
	}
}

func TestAge(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		since time.Duration
		want  string
	}{
		{30 * time.Second, "<1m"},
		{5 * time.Minute, "5m"},
		{3 * time.Hour, "3.0h"},
		{72 * time.Hour, "3d"},
	}
	for _, tt := range tests {
		if got := Age(now.Add(-tt.since), now); got != tt.want {
			t.Errorf("Age(-%v) = %q, want %q", tt.since, got, tt.want)
		}
	}
	if Age(time.Time{}, now) != "-" {
		t.Error("zero time not rendered as -")
	}
}
