package main

import (
	"github.com/spf13/cobra"

	"github.com/aatumaykin/nexarchive/internal/config"
	"github.com/aatumaykin/nexarchive/internal/constants"
)

var (
	configPath string
	envPath    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "nexarchive",
	Short: "nexarchive - gradual Telegram chat archiver",
	Long: `nexarchive copies chat histories into a local archive a few messages at a
time, with randomized pauses, active hours and hourly/daily caps, so the
archiving looks like a person scrolling back through a chat.

Run "nexarchive serve" to start the daemon and "nexarchive ctl" to drive it.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", constants.DefaultConfigPath, "Path to config file")
	rootCmd.PersistentFlags().StringVar(&envPath, "env", constants.DefaultEnvPath, "Path to .env file")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(ctlCmd)
}

// loadConfig reads .env and the config file. A missing config file yields
// the defaults so that ctl and status work without one.
func loadConfig() (*config.Config, error) {
	if err := config.LoadEnvOptional(envPath); err != nil {
		return nil, err
	}
	return config.LoadOptional(configPath)
}
