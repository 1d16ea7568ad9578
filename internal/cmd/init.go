package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/subsession/internal/app"
	"github.com/Iron-Ham/subsession/internal/render"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the sub-session state directory",
	Long: `Create the state directory with an empty registry and coordination log.
Existing documents are left untouched, so running init again is safe.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

type initResult struct {
	StateDir            string `json:"stateDir"`
	Registry            string `json:"registry"`
	RegistryCreated     bool   `json:"registryCreated"`
	CoordinationLog     string `json:"coordinationLog"`
	CoordinationCreated bool   `json:"coordinationLogCreated"`
}

func runInit(cmd *cobra.Command, args []string) error {
	a, err := app.Open(app.Options{Out: cmd.OutOrStdout()})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctx := cmd.Context()
	res := initResult{
		StateDir:        a.StateDir,
		Registry:        a.Store.Path(),
		CoordinationLog: a.Journal.Path(),
	}
	if res.RegistryCreated, err = a.Store.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize registry: %w", err)
	}
	if res.CoordinationCreated, err = a.Journal.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize coordination log: %w", err)
	}
	a.Logger.Info("state initialized",
		"state_dir", res.StateDir,
		"registry_created", res.RegistryCreated,
		"log_created", res.CoordinationCreated)

	return a.Render(res, func(s *render.Styles) string {
		state := func(created bool) string {
			if created {
				return s.Success.Render("created")
			}
			return s.Muted.Render("exists")
		}
		return fmt.Sprintf("%s\n  registry          %s (%s)\n  coordination log  %s (%s)",
			s.Title.Render("Initialized "+res.StateDir),
			res.Registry, state(res.RegistryCreated),
			res.CoordinationLog, state(res.CoordinationCreated))
	})
}
