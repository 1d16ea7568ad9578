package config

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Registry.HistoryLimit != 100 {
		t.Errorf("Registry.HistoryLimit = %d, want 100", cfg.Registry.HistoryLimit)
	}
	if cfg.Coordination.LogLimit != 200 {
		t.Errorf("Coordination.LogLimit = %d, want 200", cfg.Coordination.LogLimit)
	}
	if cfg.Conflict.Window != 30*time.Minute {
		t.Errorf("Conflict.Window = %v, want 30m", cfg.Conflict.Window)
	}
	if cfg.Conflict.ContentionThreshold != 3 {
		t.Errorf("Conflict.ContentionThreshold = %d, want 3", cfg.Conflict.ContentionThreshold)
	}
	if cfg.Health.StaleAfter != 2*time.Hour {
		t.Errorf("Health.StaleAfter = %v, want 2h", cfg.Health.StaleAfter)
	}
	if cfg.Recommend.MaxSessionAge != 4*time.Hour {
		t.Errorf("Recommend.MaxSessionAge = %v, want 4h", cfg.Recommend.MaxSessionAge)
	}
	if !slices.Contains(cfg.Access.CriticalPaths, "/.git/") {
		t.Errorf("CriticalPaths missing /.git/: %v", cfg.Access.CriticalPaths)
	}
	if !slices.Contains(cfg.Permission.SafeWritePaths, "/docs/") {
		t.Errorf("SafeWritePaths missing /docs/: %v", cfg.Permission.SafeWritePaths)
	}
	if cfg.Output.Format != "json" {
		t.Errorf("Output.Format = %q, want json", cfg.Output.Format)
	}
}

func TestSetDefaultsAndLoad(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	SetDefaults()
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Registry.LockTimeout != 2*time.Second {
		t.Errorf("Registry.LockTimeout = %v, want 2s", cfg.Registry.LockTimeout)
	}
	if cfg.Paths.RegistryFile != ".sub-session-locks.json" {
		t.Errorf("Paths.RegistryFile = %q", cfg.Paths.RegistryFile)
	}
	if len(cfg.Permission.SafeReadPaths) != len(DefaultSafeReadPaths()) {
		t.Errorf("SafeReadPaths = %v", cfg.Permission.SafeReadPaths)
	}
}

func TestLoad_FromFile(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
registry:
  history_limit: 50
  lock_timeout: 500ms
conflict:
  window: 10m
logging:
  level: debug
output:
  format: yaml
agents:
  - name: react-dev
    aliases: [react, frontend]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	SetDefaults()
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Registry.HistoryLimit != 50 {
		t.Errorf("HistoryLimit = %d, want 50", cfg.Registry.HistoryLimit)
	}
	if cfg.Registry.LockTimeout != 500*time.Millisecond {
		t.Errorf("LockTimeout = %v, want 500ms", cfg.Registry.LockTimeout)
	}
	if cfg.Conflict.Window != 10*time.Minute {
		t.Errorf("Window = %v, want 10m", cfg.Conflict.Window)
	}
	if cfg.Output.Format != "yaml" {
		t.Errorf("Output.Format = %q, want yaml", cfg.Output.Format)
	}
	if len(cfg.Agents) != 1 || cfg.Agents[0].Name != "react-dev" || len(cfg.Agents[0].Aliases) != 2 {
		t.Errorf("Agents = %+v", cfg.Agents)
	}
	// untouched keys keep their defaults
	if cfg.Coordination.LogLimit != 200 {
		t.Errorf("LogLimit = %d, want 200", cfg.Coordination.LogLimit)
	}
}

func TestLoad_InvalidConfig(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	SetDefaults()
	viper.Set("registry.history_limit", 0)
	viper.Set("output.format", "xml")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() should fail for invalid config")
	}
	verrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("error type = %T, want ValidationErrors", err)
	}
	if len(verrs) != 2 {
		t.Errorf("got %d errors, want 2: %v", len(verrs), verrs)
	}
}

func TestResolveStateDir(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	tests := []struct {
		name     string
		stateDir string
		want     string
	}{
		{"empty uses default", "", filepath.Join("/repo", ".subsession")},
		{"relative", "state", filepath.Join("/repo", "state")},
		{"absolute", "/var/lib/subsession", "/var/lib/subsession"},
		{"home", "~/subsession", filepath.Join(home, "subsession")},
		{"bare home", "~", home},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := PathsConfig{StateDir: tt.stateDir}
			if got := p.ResolveStateDir("/repo"); got != tt.want {
				t.Errorf("ResolveStateDir() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDocumentPaths(t *testing.T) {
	p := Default().Paths
	if got := p.RegistryPath("/repo"); got != "/repo/.subsession/.sub-session-locks.json" {
		t.Errorf("RegistryPath() = %q", got)
	}
	if got := p.CoordinationLogPath("/repo"); got != "/repo/.subsession/coordination-log.json" {
		t.Errorf("CoordinationLogPath() = %q", got)
	}
}

func TestConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got := ConfigDir(); got != "/xdg/subsession" {
		t.Errorf("ConfigDir() = %q, want /xdg/subsession", got)
	}
	if got := ConfigFile(); got != "/xdg/subsession/config.yaml" {
		t.Errorf("ConfigFile() = %q", got)
	}
}
