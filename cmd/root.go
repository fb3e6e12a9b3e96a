// Package cmd provides the burrow command-line interface.
//
// Configuration is read from, in order of precedence:
//  1. Command-line flags (--config, --port, ...)
//  2. BURROW_CONFIG_FILE, naming an alternative config file
//  3. Individual environment variables (BURROW_SERVER_PORT, BURROW_CACHE_TTL, ...)
//  4. .burrow.yml in the current directory
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/burrow/internal/config"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "burrow",
	Short: "Compile, cache and render MDX",
	Long: `Burrow compiles MDX into a portable artifact, caches compiled artifacts,
and renders them with caller-supplied scope and components.

Quick Start:
  burrow compile post.mdx          Print the serialized result as JSON
  burrow render post.mdx           Compile and render to HTML
  burrow hydrate result.json       Render a previously serialized result
  burrow serve                     Start the HTTP server with live reload`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .burrow.yml, can also use BURROW_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig points the global viper instance at the config file and the
// BURROW_ environment. A missing file is not an error.
func initConfig() {
	v := viper.GetViper()
	config.Setup(v, cfgFile)
	if err := config.ReadFile(v); err != nil {
		fmt.Fprintln(os.Stderr, "Error reading config file:", err)
		return
	}
	if used := v.ConfigFileUsed(); used != "" {
		if _, err := os.Stat(used); err == nil {
			fmt.Fprintln(os.Stderr, "Using config file:", used)
		}
	}
}
