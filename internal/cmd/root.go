package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	configcmd "github.com/Iron-Ham/subsession/internal/cmd/config"
	"github.com/Iron-Ham/subsession/internal/cmd/coord"
	"github.com/Iron-Ham/subsession/internal/cmd/files"
	"github.com/Iron-Ham/subsession/internal/cmd/observability"
	"github.com/Iron-Ham/subsession/internal/cmd/session"
	"github.com/Iron-Ham/subsession/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "subsession",
	Short: "File-access coordination for parallel agent sub-sessions",
	Long: `subsession lets several agent processes work on one file tree at the same
time. Sub-sessions claim read, write or exclusive locks on files, request
extra permissions, and detect and resolve conflicts through a shared
registry document kept in the repository's state directory.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Interrupts cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "config file (default is $XDG_CONFIG_HOME/subsession/config.yaml)")
	flags.String("state-dir", "", "directory holding the registry and coordination log")
	flags.StringP("output", "o", "", "output format: json, yaml or text")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	_ = viper.BindPFlag("config", flags.Lookup("config"))
	_ = viper.BindPFlag("paths.state_dir", flags.Lookup("state-dir"))
	_ = viper.BindPFlag("output.format", flags.Lookup("output"))
	_ = viper.BindPFlag("logging.level", flags.Lookup("log-level"))

	rootCmd.AddCommand(initCmd)
	session.Register(rootCmd)
	files.Register(rootCmd)
	coord.Register(rootCmd)
	observability.Register(rootCmd)
	configcmd.Register(rootCmd)
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("SUBSESSION")
	// Replace dots with underscores for nested keys in env vars
	// e.g., SUBSESSION_LOGGING_LEVEL for logging.level
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()

	// A project file in the working directory overrides the user file.
	if viper.GetString("config") == "" {
		if _, err := os.Stat(config.ProjectFileName); err == nil {
			viper.SetConfigFile(config.ProjectFileName)
			_ = viper.MergeInConfig()
		}
	}
}
