// Package config provides CLI commands for managing subsession configuration.
package config

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	appconfig "github.com/Iron-Ham/subsession/internal/config"
	"github.com/Iron-Ham/subsession/internal/render"
)

// Wrapper functions for exec to allow testing
var execLookPath = exec.LookPath
var execCommand = exec.Command

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify subsession configuration",
	Long: `View or modify subsession configuration.

Configuration is read from $XDG_CONFIG_HOME/subsession/config.yaml (or the
file given with --config), then ./.subsession.yaml, then SUBSESSION_*
environment variables, then command-line flags.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  subsession config set conflict.window 45m
  subsession config set logging.level debug
  subsession config set permission.safe_read_paths /docs/,/README.md

List values are comma separated. Run 'subsession config show' for all keys.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in your editor",
	Long: `Open the config file in your preferred editor.

Uses $EDITOR environment variable, or falls back to common editors (vim, nano, vi).
If no config file exists, creates one with default values first.`,
	Args: cobra.NoArgs,
	RunE: runConfigEdit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the effective configuration for errors",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configValidateCmd)
}

// Register adds all config-related commands to the given parent command.
// This is the main entry point for integrating the config subpackage with
// the root command.
func Register(parent *cobra.Command) {
	parent.AddCommand(configCmd)
}

func renderer(cmd *cobra.Command) (*render.Renderer, error) {
	format, err := render.ParseFormat(viper.GetString("output.format"))
	if err != nil {
		return nil, err
	}
	return render.New(cmd.OutOrStdout(), format), nil
}

// settings returns viper's merged settings with durations as strings, so
// they print the way they are written in the config file.
func settings() map[string]any {
	return normalize(viper.AllSettings()).(map[string]any)
}

func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	case time.Duration:
		return t.String()
	default:
		return v
	}
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	r, err := renderer(cmd)
	if err != nil {
		return err
	}
	all := settings()
	// The --config flag is bound to viper but is not a setting.
	delete(all, "config")

	return r.Render(all, func(s *render.Styles) string {
		var b strings.Builder
		used := viper.ConfigFileUsed()
		if used == "" {
			used = "(none - using defaults)"
		}
		fmt.Fprintf(&b, "%s %s\n\n", s.Label.Render("Config file:"), used)

		keys := viper.AllKeys()
		slices.Sort(keys)
		for _, k := range keys {
			if k == "config" {
				continue
			}
			fmt.Fprintf(&b, "%s = %v\n", k, normalize(viper.Get(k)))
		}
		return b.String()
	})
}

// parseValue converts value to the type of the key's current value.
func parseValue(key, value string) (any, error) {
	switch viper.Get(key).(type) {
	case bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		return b, nil
	case int:
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected integer", key)
		}
		return n, nil
	case time.Duration:
		d, err := time.ParseDuration(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected duration like 30m", key)
		}
		return d, nil
	case []string, []any:
		parts := []string{}
		for _, p := range strings.Split(value, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		return parts, nil
	default:
		return value, nil
	}
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := strings.ToLower(args[0])
	value := args[1]

	if key == "config" || !slices.Contains(viper.AllKeys(), key) {
		return fmt.Errorf("unknown configuration key: %s\nRun 'subsession config show' to see valid keys", key)
	}
	typedValue, err := parseValue(key, value)
	if err != nil {
		return err
	}

	previous := viper.Get(key)
	viper.Set(key, typedValue)
	if _, err := appconfig.Load(); err != nil {
		viper.Set(key, previous)
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Ensure config directory exists
	configDir := appconfig.ConfigDir()
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Write to config file
	configFile := appconfig.ConfigFile()
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Set %s = %v\n", key, normalize(typedValue))
	_, _ = fmt.Fprintf(out, "Config saved to %s\n", configFile)
	return nil
}

const defaultConfigContent = `# subsession configuration

paths:
  # State directory, relative to the repository root
  state_dir: .subsession
  registry_file: .sub-session-locks.json
  coordination_log_file: coordination-log.json
  # Where 'subsession start' creates session workspaces
  workspace_dir: sub-sessions

registry:
  # Entries kept in the registry lock history
  history_limit: 100
  # How long to wait for another process holding the registry
  lock_timeout: 2s
  # A registry lock file older than this (or whose process is gone) is abandoned
  stale_lock_after: 30s
  validate_schema: true

coordination:
  log_limit: 200

conflict:
  # How far back lock conflicts are considered
  window: 30m
  # Repeated requests for one resource above this count are contention
  contention_threshold: 3

health:
  # Sessions inactive this long are stale and ended by 'subsession maintenance'
  stale_after: 2h
  lock_threshold: 15
  pending_threshold: 10

recommend:
  lock_threshold: 10
  pending_threshold: 5
  max_session_age: 4h

logging:
  enabled: true
  # debug, info, warn or error
  level: info
  max_size_mb: 10
  max_backups: 3

output:
  # json, yaml or text
  format: json
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := appconfig.ConfigDir()
	configFile := appconfig.ConfigFile()

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'subsession config set' to modify values", configFile)
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(configFile, []byte(defaultConfigContent), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created config file at %s\n", configFile)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	configFile := appconfig.ConfigFile()

	if viper.ConfigFileUsed() != "" {
		_, _ = fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		_, _ = fmt.Fprintf(out, "Default path: %s (not created)\n", configFile)
	}

	_, _ = fmt.Fprintln(out, "\nSearch paths:")
	_, _ = fmt.Fprintf(out, "  1. %s\n", filepath.Join(appconfig.ConfigDir(), "config.yaml"))
	_, _ = fmt.Fprintf(out, "  2. ./%s (current directory, merged on top)\n", appconfig.ProjectFileName)
	_, _ = fmt.Fprintln(out, "\nEnvironment variables: SUBSESSION_* (e.g., SUBSESSION_LOGGING_LEVEL)")
	return nil
}

func runConfigEdit(cmd *cobra.Command, args []string) error {
	configFile := appconfig.ConfigFile()

	// Check if config file exists, if not create it
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		if err := runConfigInit(cmd, args); err != nil {
			return err
		}
	}

	// Find an editor
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		for _, e := range []string{"vim", "nano", "vi"} {
			if _, err := execLookPath(e); err == nil {
				editor = e
				break
			}
		}
	}
	if editor == "" {
		return fmt.Errorf("no editor found. Set $EDITOR environment variable")
	}

	editorCmd := execCommand(editor, configFile)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr

	if err := editorCmd.Run(); err != nil {
		return fmt.Errorf("editor exited with error: %w", err)
	}
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if _, err := appconfig.Load(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid.")
	return nil
}
