package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete subsession configuration
type Config struct {
	Paths        PathsConfig        `mapstructure:"paths"`
	Registry     RegistryConfig     `mapstructure:"registry"`
	Coordination CoordinationConfig `mapstructure:"coordination"`
	Access       AccessConfig       `mapstructure:"access"`
	Permission   PermissionConfig   `mapstructure:"permission"`
	Conflict     ConflictConfig     `mapstructure:"conflict"`
	Health       HealthConfig       `mapstructure:"health"`
	Recommend    RecommendConfig    `mapstructure:"recommend"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Output       OutputConfig       `mapstructure:"output"`
	Agents       []AgentConfig      `mapstructure:"agents"`
}

// PathsConfig controls where state is stored
type PathsConfig struct {
	// StateDir holds the registry, coordination log and log file.
	// Relative paths resolve against the working directory.
	StateDir string `mapstructure:"state_dir"`
	// RegistryFile is the registry document name inside StateDir
	RegistryFile string `mapstructure:"registry_file"`
	// CoordinationLogFile is the coordination log name inside StateDir
	CoordinationLogFile string `mapstructure:"coordination_log_file"`
	// WorkspaceDir is where per-session workspaces are created by `start`
	WorkspaceDir string `mapstructure:"workspace_dir"`
}

// RegistryConfig controls persistence of the registry document
type RegistryConfig struct {
	// HistoryLimit caps lockHistory (default: 100)
	HistoryLimit int `mapstructure:"history_limit"`
	// LockTimeout bounds how long a process waits for the cooperative lock file
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
	// StaleLockAfter is the age after which a lock file is considered abandoned
	StaleLockAfter time.Duration `mapstructure:"stale_lock_after"`
	// ValidateSchema runs JSON schema validation on every load
	ValidateSchema bool `mapstructure:"validate_schema"`
}

// CoordinationConfig controls the coordination log
type CoordinationConfig struct {
	// LogLimit caps the coordination log entries (default: 200)
	LogLimit int `mapstructure:"log_limit"`
}

// AccessConfig controls the access evaluator
type AccessConfig struct {
	// CriticalPaths are denied in expanded mode unless explicitly allowed
	CriticalPaths []string `mapstructure:"critical_paths"`
}

// PermissionConfig holds the auto-approval allow-lists
type PermissionConfig struct {
	SafeReadPaths  []string `mapstructure:"safe_read_paths"`
	SafeWritePaths []string `mapstructure:"safe_write_paths"`
}

// ConflictConfig controls conflict detection
type ConflictConfig struct {
	// Window is how far back lock-conflict history is considered
	Window time.Duration `mapstructure:"window"`
	// ContentionThreshold is the request count above which a
	// (session, resource) pair is reported as contention
	ContentionThreshold int `mapstructure:"contention_threshold"`
	// DocumentationPatterns are glob patterns for documentation files
	DocumentationPatterns []string `mapstructure:"documentation_patterns"`
	// SourcePatterns are glob patterns for source files that can be partitioned
	SourcePatterns []string `mapstructure:"source_patterns"`
}

// HealthConfig holds the health assessment thresholds
type HealthConfig struct {
	StaleAfter       time.Duration `mapstructure:"stale_after"`
	LockThreshold    int           `mapstructure:"lock_threshold"`
	PendingThreshold int           `mapstructure:"pending_threshold"`
}

// RecommendConfig holds the advisory recommendation thresholds
type RecommendConfig struct {
	LockThreshold    int           `mapstructure:"lock_threshold"`
	PendingThreshold int           `mapstructure:"pending_threshold"`
	MaxSessionAge    time.Duration `mapstructure:"max_session_age"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether logging is enabled (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of backup log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups"`
}

// OutputConfig controls how command results are rendered
type OutputConfig struct {
	// Format is "json", "yaml" or "text" (default: "json")
	Format string `mapstructure:"format"`
}

// AgentConfig describes an agent known to the resolver
type AgentConfig struct {
	Name      string   `mapstructure:"name"`
	Aliases   []string `mapstructure:"aliases"`
	Shortcuts []string `mapstructure:"shortcuts"`
	Roles     []string `mapstructure:"roles"`
}

// DefaultCriticalPaths are the substrings denied in expanded mode.
func DefaultCriticalPaths() []string {
	return []string{
		"/.git/",
		"/.env",
		"/package-lock.json",
		"/node_modules/",
		"/scripts/setup-",
		"/scripts/cleanup-",
	}
}

// DefaultSafeReadPaths are auto-approved for read-style requests.
func DefaultSafeReadPaths() []string {
	return []string{
		"/README.md",
		"/package.json",
		"/docs/",
		"/agentic-development/workflows/",
		"/.github/workflows/",
		"/scripts/",
		"/CLAUDE.md",
	}
}

// DefaultSafeWritePaths are auto-approved for write-style requests.
func DefaultSafeWritePaths() []string {
	return []string{
		"/docs/",
		"/agentic-development/auto-generated/",
		"/IMPLEMENTATION_NOTES.md",
		"/ENHANCEMENT_DOCUMENTATION.md",
	}
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			StateDir:            ".subsession",
			RegistryFile:        ".sub-session-locks.json",
			CoordinationLogFile: "coordination-log.json",
			WorkspaceDir:        "sub-sessions",
		},
		Registry: RegistryConfig{
			HistoryLimit:   100,
			LockTimeout:    2 * time.Second,
			StaleLockAfter: 30 * time.Second,
			ValidateSchema: true,
		},
		Coordination: CoordinationConfig{
			LogLimit: 200,
		},
		Access: AccessConfig{
			CriticalPaths: DefaultCriticalPaths(),
		},
		Permission: PermissionConfig{
			SafeReadPaths:  DefaultSafeReadPaths(),
			SafeWritePaths: DefaultSafeWritePaths(),
		},
		Conflict: ConflictConfig{
			Window:                30 * time.Minute,
			ContentionThreshold:   3,
			DocumentationPatterns: []string{"**/docs/**", "**.md"},
			SourcePatterns:        []string{"**.{go,js,ts,jsx,tsx,py,java}"},
		},
		Health: HealthConfig{
			StaleAfter:       2 * time.Hour,
			LockThreshold:    15,
			PendingThreshold: 10,
		},
		Recommend: RecommendConfig{
			LockThreshold:    10,
			PendingThreshold: 5,
			MaxSessionAge:    4 * time.Hour,
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Output: OutputConfig{
			Format: "json",
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	d := Default()

	viper.SetDefault("paths.state_dir", d.Paths.StateDir)
	viper.SetDefault("paths.registry_file", d.Paths.RegistryFile)
	viper.SetDefault("paths.coordination_log_file", d.Paths.CoordinationLogFile)
	viper.SetDefault("paths.workspace_dir", d.Paths.WorkspaceDir)

	viper.SetDefault("registry.history_limit", d.Registry.HistoryLimit)
	viper.SetDefault("registry.lock_timeout", d.Registry.LockTimeout)
	viper.SetDefault("registry.stale_lock_after", d.Registry.StaleLockAfter)
	viper.SetDefault("registry.validate_schema", d.Registry.ValidateSchema)

	viper.SetDefault("coordination.log_limit", d.Coordination.LogLimit)

	viper.SetDefault("access.critical_paths", d.Access.CriticalPaths)
	viper.SetDefault("permission.safe_read_paths", d.Permission.SafeReadPaths)
	viper.SetDefault("permission.safe_write_paths", d.Permission.SafeWritePaths)

	viper.SetDefault("conflict.window", d.Conflict.Window)
	viper.SetDefault("conflict.contention_threshold", d.Conflict.ContentionThreshold)
	viper.SetDefault("conflict.documentation_patterns", d.Conflict.DocumentationPatterns)
	viper.SetDefault("conflict.source_patterns", d.Conflict.SourcePatterns)

	viper.SetDefault("health.stale_after", d.Health.StaleAfter)
	viper.SetDefault("health.lock_threshold", d.Health.LockThreshold)
	viper.SetDefault("health.pending_threshold", d.Health.PendingThreshold)

	viper.SetDefault("recommend.lock_threshold", d.Recommend.LockThreshold)
	viper.SetDefault("recommend.pending_threshold", d.Recommend.PendingThreshold)
	viper.SetDefault("recommend.max_session_age", d.Recommend.MaxSessionAge)

	viper.SetDefault("logging.enabled", d.Logging.Enabled)
	viper.SetDefault("logging.level", d.Logging.Level)
	viper.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", d.Logging.MaxBackups)

	viper.SetDefault("output.format", d.Output.Format)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "subsession")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".subsession"
	}
	return filepath.Join(home, ".config", "subsession")
}

// ProjectFileName is the per-project config file read from the working
// directory on top of the user config.
const ProjectFileName = ".subsession.yaml"

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ResolveStateDir returns the absolute state directory. A leading ~ expands
// to the home directory and relative paths resolve against baseDir.
func (p *PathsConfig) ResolveStateDir(baseDir string) string {
	path := p.StateDir
	if path == "" {
		path = ".subsession"
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	return path
}

// RegistryPath returns the registry document path under baseDir.
func (p *PathsConfig) RegistryPath(baseDir string) string {
	return filepath.Join(p.ResolveStateDir(baseDir), p.RegistryFile)
}

// CoordinationLogPath returns the coordination log path under baseDir.
func (p *PathsConfig) CoordinationLogPath(baseDir string) string {
	return filepath.Join(p.ResolveStateDir(baseDir), p.CoordinationLogFile)
}
