// Package cli implements the vitals command line.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is set at build time with -ldflags "-X github.com/ppiankov/vitals/internal/cli.Version=..."
var Version = "v0.1.0"

var (
	cfgFile      string
	verbose      bool
	stageTimeout time.Duration
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "vitals",
	Short: "Vitals - marriage and divorce rate collection pipeline",
	Long: `Vitals collects marriage and divorce statistics from a public web page,
structures them with a language model and loads them into a table keyed by
(country, year).

Stages run one at a time and pass their results through files:

  collect    page  -> data/raw_blob.txt
  structure  text  -> data/structured_data.json
  load       JSON  -> table

"vitals run" executes all three, "vitals serve" starts the dashboard.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "vitals %s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.vitals/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().DurationVar(&stageTimeout, "timeout", 5*time.Minute, "timeout applied to each pipeline stage separately, and to db commands")
	rootCmd.PersistentFlags().String("data-dir", "", "directory for raw_blob.txt and structured_data.json (default: data)")
	rootCmd.PersistentFlags().String("driver", "", "store driver: rest, postgres or sqlite")
	rootCmd.PersistentFlags().String("table", "", "table name (default: demographics_data)")

	// Bind flags to viper
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("artifacts.dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	_ = viper.BindPFlag("store.driver", rootCmd.PersistentFlags().Lookup("driver"))
	_ = viper.BindPFlag("store.table", rootCmd.PersistentFlags().Lookup("table"))

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

// initConfig loads .env files, then reads the config file and ENV variables
func initConfig() {
	if err := loadEnvFiles(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
		} else {
			viper.AddConfigPath(filepath.Join(home, ".vitals"))
		}
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	if err := setupViper(viper.GetViper()); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	// If a config file is found, read it in
	err := viper.ReadInConfig()
	switch {
	case err == nil && verbose:
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	case err != nil && cfgFile != "":
		fmt.Fprintf(os.Stderr, "Warning: cannot read config file %s: %v\n", cfgFile, err)
	}
}
