// Package app builds the coordination components from configuration. Every
// command opens one App, runs a single operation and closes it.
package app

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Iron-Ham/subsession/internal/access"
	"github.com/Iron-Ham/subsession/internal/agent"
	"github.com/Iron-Ham/subsession/internal/config"
	"github.com/Iron-Ham/subsession/internal/conflict"
	"github.com/Iron-Ham/subsession/internal/coordination"
	"github.com/Iron-Ham/subsession/internal/event"
	"github.com/Iron-Ham/subsession/internal/filelock"
	"github.com/Iron-Ham/subsession/internal/guard"
	"github.com/Iron-Ham/subsession/internal/logging"
	"github.com/Iron-Ham/subsession/internal/permission"
	"github.com/Iron-Ham/subsession/internal/registry"
	"github.com/Iron-Ham/subsession/internal/render"
	"github.com/Iron-Ham/subsession/internal/session"
	"github.com/Iron-Ham/subsession/internal/workspace"
)

// ErrFailed marks a command whose structured result reports a failure
// (denied access, lock conflict). The result has already been printed, so
// the caller only sets the exit status.
var ErrFailed = errors.New("operation reported failure")

// Options controls how Open locates state.
type Options struct {
	// Config is used as is when set; otherwise it is loaded from viper.
	Config *config.Config
	// WorkDir defaults to the process working directory.
	WorkDir string
	// Out receives rendered results. Defaults to stdout.
	Out io.Writer
	// Logger overrides the configured file logger.
	Logger *logging.Logger
}

// App holds one fully wired set of components sharing a registry store,
// an event bus and a logger.
type App struct {
	Config   *config.Config
	WorkDir  string
	Root     string
	StateDir string

	Logger       *logging.Logger
	Bus          *event.Bus
	Store        *registry.Store
	Sessions     *session.Manager
	Access       *access.Evaluator
	Locks        *filelock.Manager
	Permissions  *permission.Broker
	Detector     *conflict.Detector
	Journal      *coordination.Log
	Coordination *coordination.Manager
	Guard        *guard.Guard
	Agents       *agent.Resolver
	Out          *render.Renderer

	auditID string
}

// Open loads configuration and wires every component. The state directory
// resolves against the git repository root containing WorkDir, or WorkDir
// itself outside a repository.
func Open(opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		loaded, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		cfg = loaded
	}

	workDir := opts.WorkDir
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		workDir = wd
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	format, err := render.ParseFormat(cfg.Output.Format)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:  cfg,
		WorkDir: workDir,
		Root:    workspace.RepoRoot(workDir),
		Out:     render.New(out, format),
	}
	a.StateDir = cfg.Paths.ResolveStateDir(a.Root)

	a.Logger = opts.Logger
	if a.Logger == nil {
		logger, err := newLogger(cfg, a.StateDir)
		if err != nil {
			return nil, err
		}
		a.Logger = logger
	}

	a.Bus = event.NewBus(a.Logger.WithComponent("event"))
	audit := a.Logger.WithComponent("audit")
	a.auditID = a.Bus.SubscribeAll(func(e event.Event) {
		audit.Debug("event published", "event_type", e.EventType())
	})

	a.Store = registry.NewStore(cfg.Paths.RegistryPath(a.Root),
		registry.WithLogger(a.Logger),
		registry.WithHistoryLimit(cfg.Registry.HistoryLimit),
		registry.WithLockTimeout(cfg.Registry.LockTimeout, cfg.Registry.StaleLockAfter),
		registry.WithSchemaValidation(cfg.Registry.ValidateSchema),
	)
	a.Journal = coordination.NewLog(cfg.Paths.CoordinationLogPath(a.Root),
		coordination.WithLogLimit(cfg.Coordination.LogLimit),
		coordination.WithLogLockTimeout(cfg.Registry.LockTimeout, cfg.Registry.StaleLockAfter),
		coordination.WithLogLogger(a.Logger),
	)

	a.Sessions = session.NewManager(a.Store,
		session.WithBus(a.Bus),
		session.WithLogger(a.Logger),
		session.WithStaleAfter(cfg.Health.StaleAfter),
	)
	a.Access = access.NewEvaluator(a.Store,
		access.WithPolicy(access.Policy{CriticalPaths: cfg.Access.CriticalPaths}),
		access.WithLogger(a.Logger),
	)
	a.Locks = filelock.NewManager(a.Store,
		filelock.WithBus(a.Bus),
		filelock.WithLogger(a.Logger),
	)
	a.Permissions = permission.NewBroker(a.Store,
		permission.WithRules(permission.Rules{
			SafeReadPaths:  cfg.Permission.SafeReadPaths,
			SafeWritePaths: cfg.Permission.SafeWritePaths,
		}),
		permission.WithBus(a.Bus),
		permission.WithLogger(a.Logger),
	)

	a.Detector, err = conflict.NewDetector(a.Store,
		conflict.WithConfig(cfg),
		conflict.WithJournal(a.Journal),
		conflict.WithBus(a.Bus),
		conflict.WithLogger(a.Logger),
	)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Coordination = coordination.NewManager(a.Store,
		coordination.WithLog(a.Journal),
		coordination.WithDetector(a.Detector),
		coordination.WithBus(a.Bus),
		coordination.WithLogger(a.Logger),
	)
	a.Guard = guard.New(a.Access, a.Locks,
		guard.WithLogger(a.Logger),
		guard.WithWorkDir(workDir),
	)
	a.Agents = agent.NewResolver(agent.FromConfig(cfg.Agents))

	return a, nil
}

func newLogger(cfg *config.Config, stateDir string) (*logging.Logger, error) {
	if !cfg.Logging.Enabled {
		return logging.NopLogger(), nil
	}
	logger, err := logging.NewLoggerWithRotation(stateDir, cfg.Logging.Level, logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}
	return logger, nil
}

// Render writes v in the configured output format.
func (a *App) Render(v any, text render.TextFunc) error {
	return a.Out.Render(v, text)
}

// RenderResult writes v and returns ErrFailed when ok is false.
func (a *App) RenderResult(v any, text render.TextFunc, ok bool) error {
	if err := a.Render(v, text); err != nil {
		return err
	}
	if !ok {
		return ErrFailed
	}
	return nil
}

// Close detaches the audit subscriber and flushes the log.
func (a *App) Close() error {
	if a.Bus != nil && a.auditID != "" {
		a.Bus.Unsubscribe(a.auditID)
		a.auditID = ""
		if n := a.Bus.SubscriptionCount(); n > 0 && a.Logger != nil {
			a.Logger.Warn("event subscribers still attached at close", "count", n)
		}
	}
	if a.Logger != nil {
		return a.Logger.Close()
	}
	return nil
}
