package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Iron-Ham/subsession/internal/config"
	"github.com/Iron-Ham/subsession/internal/event"
	"github.com/Iron-Ham/subsession/internal/logging"
	"github.com/Iron-Ham/subsession/internal/registry"
	"github.com/Iron-Ham/subsession/internal/render"
	"github.com/Iron-Ham/subsession/internal/session"
)

func openTestApp(t *testing.T, mutate func(*config.Config)) (*App, *bytes.Buffer) {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(t.TempDir(), "state")
	if mutate != nil {
		mutate(cfg)
	}
	var out bytes.Buffer
	a, err := Open(Options{Config: cfg, WorkDir: t.TempDir(), Out: &out})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a, &out
}

func TestOpen_WiresComponents(t *testing.T) {
	a, _ := openTestApp(t, nil)

	if a.Store == nil || a.Sessions == nil || a.Access == nil || a.Locks == nil ||
		a.Permissions == nil || a.Detector == nil || a.Journal == nil ||
		a.Coordination == nil || a.Guard == nil || a.Agents == nil {
		t.Fatalf("Open() left a component nil: %+v", a)
	}
	if !filepath.IsAbs(a.StateDir) {
		t.Errorf("StateDir = %q, want absolute", a.StateDir)
	}
	if got := filepath.Dir(a.Store.Path()); got != a.StateDir {
		t.Errorf("registry dir = %q, want %q", got, a.StateDir)
	}
}

func TestOpen_SharedStore(t *testing.T) {
	a, _ := openTestApp(t, nil)
	ctx := context.Background()

	sess, err := a.Sessions.Create(ctx, session.CreateOptions{
		MainAgent:  "main",
		SubAgent:   "docs",
		TaskScope:  "update guides",
		AccessMode: registry.ModeRestricted,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	res, err := a.Locks.Acquire(ctx, sess.ID, "/repo/docs/guide.md", registry.LockWrite, "edit", nil)
	if err != nil || !res.Success {
		t.Fatalf("Acquire() = %+v, %v", res, err)
	}

	analysis, err := a.Detector.Analyze(ctx)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if analysis.Status.TotalActiveLocks != 1 {
		t.Errorf("TotalActiveLocks = %d, want 1", analysis.Status.TotalActiveLocks)
	}
}

func TestOpen_LoggingToStateDir(t *testing.T) {
	a, _ := openTestApp(t, func(c *config.Config) { c.Logging.Level = "debug" })

	_, err := a.Sessions.Create(context.Background(), session.CreateOptions{
		MainAgent:  "main",
		SubAgent:   "docs",
		TaskScope:  "update guides",
		AccessMode: registry.ModeRestricted,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(a.StateDir, logging.LogFileName))
	if err != nil {
		t.Fatalf("log not written: %v", err)
	}
	if !strings.Contains(string(data), `"component":"session"`) {
		t.Errorf("log missing session entries:\n%s", data)
	}
}

func TestOpen_LoggingDisabled(t *testing.T) {
	a, _ := openTestApp(t, func(c *config.Config) { c.Logging.Enabled = false })

	if _, err := a.Store.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(a.StateDir, logging.LogFileName)); !os.IsNotExist(err) {
		t.Errorf("disabled logging should not create a log file, stat error = %v", err)
	}
}

func TestOpen_InvalidOutputFormat(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.StateDir = t.TempDir()
	cfg.Output.Format = "xml"

	if _, err := Open(Options{Config: cfg, WorkDir: t.TempDir()}); err == nil {
		t.Error("Open() should reject an unknown output format")
	}
}

func TestRenderResult(t *testing.T) {
	a, out := openTestApp(t, nil)
	text := func(*render.Styles) string { return "ignored" }

	if err := a.RenderResult(map[string]bool{"success": true}, text, true); err != nil {
		t.Errorf("RenderResult(ok) error = %v", err)
	}
	err := a.RenderResult(map[string]bool{"success": false}, text, false)
	if !errors.Is(err, ErrFailed) {
		t.Errorf("RenderResult(!ok) error = %v, want ErrFailed", err)
	}
	if got := strings.Count(out.String(), `"success"`); got != 2 {
		t.Errorf("both results should be rendered, output:\n%s", out.String())
	}
}

func TestClose_DetachesAudit(t *testing.T) {
	a, _ := openTestApp(t, nil)
	before := a.Bus.SubscriptionCount()

	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := a.Bus.SubscriptionCount(); got != before-1 {
		t.Errorf("SubscriptionCount() = %d after Close, want %d", got, before-1)
	}
}

func TestClose_ReportsLeftoverSubscribers(t *testing.T) {
	a, _ := openTestApp(t, nil)
	a.Bus.SubscribeAll(func(event.Event) {})

	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(a.StateDir, logging.LogFileName))
	if err != nil {
		t.Fatalf("log not written: %v", err)
	}
	if !strings.Contains(string(data), "event subscribers still attached at close") ||
		!strings.Contains(string(data), `"count":1`) {
		t.Errorf("leftover subscriber not logged:\n%s", data)
	}
}
