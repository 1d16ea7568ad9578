package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/gobwas/glob"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "registry.history_limit")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidOutputFormats returns the list of valid output formats
func ValidOutputFormats() []string {
	return []string{"json", "yaml", "text"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validatePaths()...)
	errors = append(errors, c.validateRegistry()...)
	errors = append(errors, c.validateConflict()...)
	errors = append(errors, c.validateThresholds()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateOutput()...)
	errors = append(errors, c.validateAgents()...)

	return errors
}

func (c *Config) validatePaths() []ValidationError {
	var errors []ValidationError

	required := []struct {
		field    string
		value    string
		fileName bool
	}{
		{"paths.registry_file", c.Paths.RegistryFile, true},
		{"paths.coordination_log_file", c.Paths.CoordinationLogFile, true},
		{"paths.workspace_dir", c.Paths.WorkspaceDir, false},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errors = append(errors, ValidationError{Field: r.field, Value: r.value, Message: "must not be empty"})
			continue
		}
		if r.fileName && strings.ContainsAny(r.value, `/\`) {
			errors = append(errors, ValidationError{Field: r.field, Value: r.value, Message: "must be a file name, not a path"})
		}
	}

	if strings.ContainsRune(c.Paths.StateDir, '\x00') {
		errors = append(errors, ValidationError{
			Field:   "paths.state_dir",
			Value:   c.Paths.StateDir,
			Message: "path contains invalid null character",
		})
	}

	return errors
}

func (c *Config) validateRegistry() []ValidationError {
	var errors []ValidationError

	if c.Registry.HistoryLimit <= 0 {
		errors = append(errors, ValidationError{Field: "registry.history_limit", Value: c.Registry.HistoryLimit, Message: "must be positive"})
	}
	if c.Coordination.LogLimit <= 0 {
		errors = append(errors, ValidationError{Field: "coordination.log_limit", Value: c.Coordination.LogLimit, Message: "must be positive"})
	}
	errors = append(errors, positiveDuration("registry.lock_timeout", c.Registry.LockTimeout)...)
	errors = append(errors, positiveDuration("registry.stale_lock_after", c.Registry.StaleLockAfter)...)

	return errors
}

func (c *Config) validateConflict() []ValidationError {
	var errors []ValidationError

	errors = append(errors, positiveDuration("conflict.window", c.Conflict.Window)...)
	if c.Conflict.ContentionThreshold < 1 {
		errors = append(errors, ValidationError{
			Field:   "conflict.contention_threshold",
			Value:   c.Conflict.ContentionThreshold,
			Message: "must be at least 1",
		})
	}

	check := func(field string, patterns []string) {
		for _, p := range patterns {
			if _, err := glob.Compile(p, '/'); err != nil {
				errors = append(errors, ValidationError{Field: field, Value: p, Message: fmt.Sprintf("invalid glob pattern: %v", err)})
			}
		}
	}
	check("conflict.documentation_patterns", c.Conflict.DocumentationPatterns)
	check("conflict.source_patterns", c.Conflict.SourcePatterns)

	return errors
}

func (c *Config) validateThresholds() []ValidationError {
	var errors []ValidationError

	errors = append(errors, positiveDuration("health.stale_after", c.Health.StaleAfter)...)
	errors = append(errors, positiveDuration("recommend.max_session_age", c.Recommend.MaxSessionAge)...)

	ints := []struct {
		field string
		value int
	}{
		{"health.lock_threshold", c.Health.LockThreshold},
		{"health.pending_threshold", c.Health.PendingThreshold},
		{"recommend.lock_threshold", c.Recommend.LockThreshold},
		{"recommend.pending_threshold", c.Recommend.PendingThreshold},
	}
	for _, v := range ints {
		if v.value < 0 {
			errors = append(errors, ValidationError{Field: v.field, Value: v.value, Message: "must be non-negative"})
		}
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	const maxLogSizeMB = 1000
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateOutput() []ValidationError {
	if c.Output.Format == "" || slices.Contains(ValidOutputFormats(), c.Output.Format) {
		return nil
	}
	return []ValidationError{{
		Field:   "output.format",
		Value:   c.Output.Format,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidOutputFormats(), ", ")),
	}}
}

func (c *Config) validateAgents() []ValidationError {
	var errors []ValidationError
	seen := make(map[string]bool)
	for i, a := range c.Agents {
		field := fmt.Sprintf("agents[%d].name", i)
		if strings.TrimSpace(a.Name) == "" {
			errors = append(errors, ValidationError{Field: field, Value: a.Name, Message: "must not be empty"})
			continue
		}
		if seen[a.Name] {
			errors = append(errors, ValidationError{Field: field, Value: a.Name, Message: "duplicate agent name"})
		}
		seen[a.Name] = true
	}
	return errors
}

func positiveDuration(field string, d time.Duration) []ValidationError {
	if d > 0 {
		return nil
	}
	return []ValidationError{{Field: field, Value: d, Message: "must be a positive duration"}}
}
