package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/subsession/internal/conflict"
	"github.com/Iron-Ham/subsession/internal/registry"
)

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func testSnapshot() *Snapshot {
	return &Snapshot{
		Analysis: &conflict.Analysis{
			Status: &registry.Status{
				TotalActiveSessions: 1,
				TotalActiveLocks:    1,
				Sessions: map[string]registry.SessionSummary{
					"docs-1": {MainAgent: "main", SubAgent: "docs", AccessMode: registry.ModeRestricted, StartTime: testNow.Add(-time.Hour)},
				},
			},
			Conflicts: []conflict.Conflict{{ID: "branch-conflict:dev", Type: conflict.TypeBranch, ParentBranch: "dev", PrimarySession: "docs-1", ConflictingSessions: []string{"api-1"}}},
			Health:    conflict.Health{Score: 90, Level: conflict.LevelHealthy},
		},
		Coordinations: []*registry.Coordination{{ID: "coord-1-abcdef", Type: "general", Sessions: []string{"docs-1", "api-1"}, Status: registry.CoordinationActive}},
		LoadedAt:      testNow,
	}
}

func newTestModel(load Loader) Model {
	m := New(context.Background(), load, nil)
	m.now = func() time.Time { return testNow }
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return updated.(Model)
}

func TestModel_RendersSnapshot(t *testing.T) {
	m := newTestModel(func(context.Context) (*Snapshot, error) { return testSnapshot(), nil })

	msg := m.loadCmd()()
	updated, _ := m.Update(msg)
	m = updated.(Model)

	view := m.View()
	for _, want := range []string{"Sub-Session Dashboard", "sessions 1", "docs-1", "branch-conflict", "coord-1-abcdef", "updated 12:00:00"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestModel_LoadError(t *testing.T) {
	m := newTestModel(func(context.Context) (*Snapshot, error) { return nil, errors.New("registry locked") })
	updated, _ := m.Update(m.loadCmd()())
	m = updated.(Model)
	if !strings.Contains(m.View(), "registry locked") {
		t.Errorf("error not shown:\n%s", m.View())
	}
}

func TestModel_KeepsSnapshotOnError(t *testing.T) {
	m := newTestModel(nil)
	updated, _ := m.Update(snapshotMsg{snap: testSnapshot()})
	updated, _ = updated.(Model).Update(snapshotMsg{err: errors.New("boom")})
	m = updated.(Model)
	if m.snap == nil || !strings.Contains(m.View(), "docs-1") {
		t.Error("previous snapshot dropped after a failed reload")
	}
}

func TestModel_Keys(t *testing.T) {
	m := newTestModel(func(context.Context) (*Snapshot, error) { return testSnapshot(), nil })

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("q returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit")
	}

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})
	if cmd == nil || !updated.(Model).loading {
		t.Error("r did not start a reload")
	}

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'?'}})
	if !strings.Contains(updated.(Model).View(), "scroll down") {
		t.Error("help not expanded")
	}
}

func TestModel_ChangeTriggersReload(t *testing.T) {
	changes := make(chan struct{}, 1)
	m := New(context.Background(), func(context.Context) (*Snapshot, error) { return testSnapshot(), nil }, changes)

	changes <- struct{}{}
	if _, ok := m.waitForChange()().(changedMsg); !ok {
		t.Fatal("change not delivered")
	}
	updated, cmd := m.Update(changedMsg{})
	if cmd == nil || !updated.(Model).loading {
		t.Error("change did not start a reload")
	}

	close(changes)
	if msg := m.waitForChange()(); msg != nil {
		t.Errorf("closed channel produced %T", msg)
	}
}
