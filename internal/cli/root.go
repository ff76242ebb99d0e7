// Package cli implements the tasksync command-line interface.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
	quiet   bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tasksync",
	Short: "Mirror a remote work tracker into a local database",
	Long: `tasksync mirrors workspaces, projects, tasks and their stories and
attachments from a remote work tracker into a local SQLite or PostgreSQL
database.

The first sync of a project polls it in full. Later syncs read the
project's change feed from a stored cursor, falling back to a full poll
when the cursor expires. With a webhook URL configured, every project keeps
exactly one push subscription.

Quick start:
  tasksync init                       Write .tasksync/config.yaml
  export TASKSYNC_TOKEN=...           Remote API token
  tasksync sync --dry-run             See what would be synced
  tasksync sync -w Marketing -y       Sync one workspace`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		PrintError(err)
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .tasksync/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress progress output")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// initConfig lets TASKSYNC_VERBOSE, TASKSYNC_QUIET and TASKSYNC_LOG_LEVEL
// stand in for the global flags. File configuration is loaded by each
// command through the config package, which tracks value sources.
func initConfig() {
	viper.SetEnvPrefix("TASKSYNC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	verbose = viper.GetBool("verbose")
	quiet = viper.GetBool("quiet")
	if verbose && cfgFile != "" {
		fmt.Fprintln(os.Stderr, "Using config file:", cfgFile)
	}
}

// logLevelOverride returns the --log-level flag value, or "" when unset.
func logLevelOverride() string {
	return viper.GetString("log.level")
}
