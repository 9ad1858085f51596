// Package cmd provides the command-line interface for Singlet with
// configuration management supporting multiple sources.
//
// Configuration Loading Priority (highest to lowest):
//  1. Command-line flags (--config, --port, etc.)
//  2. SINGLET_CONFIG_FILE environment variable
//  3. Individual environment variables (SINGLET_SERVER_PORT, etc.)
//  4. Configuration files (.singlet.yml)
//
// Environment variables follow the SINGLET_<SECTION>_<OPTION> pattern,
// for example SINGLET_SERVER_PORT=8120 or SINGLET_DEVELOPMENT_HOT_RELOAD=true.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "singlet",
	Short: "A component runtime for single-file HTML components",
	Long: `Singlet turns single-file HTML component bundles into registered custom
elements with reactive state, template bindings, and event handling, then
renders them without a browser.

Quick Start:
  singlet init                    Initialize a new project
  singlet serve                   Start the preview server
  singlet list                    List registered components
  singlet render my-counter       Render a component to stdout

Command Aliases:
  init (i), serve (s), render (r), list (l)`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .singlet.yml, can also use SINGLET_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("SINGLET_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".singlet")
	}

	viper.SetEnvPrefix("SINGLET")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Missing or malformed config files fall back to defaults.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
