package main

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/aatumaykin/nexarchive/internal/config"
	"github.com/aatumaykin/nexarchive/internal/constants"
	"github.com/aatumaykin/nexarchive/internal/messages"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Validate and inspect the nexarchive configuration.`,
}

// configValidateCmd represents the config validate command
var configValidateCmd = &cobra.Command{
	Use:   "validate [config-file]",
	Short: "Validate configuration file",
	Long:  `Validate the configuration file and check for errors.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if len(args) > 0 {
			path = args[0]
		}
		if err := config.LoadEnvOptional(envPath); err != nil {
			return err
		}

		cfg, err := config.Load(path)
		if err != nil {
			fmt.Fprint(cmd.OutOrStdout(), messages.FormatConfigLoadError(err))
			return err
		}
		if errs := cfg.Validate(); len(errs) > 0 {
			fmt.Fprint(cmd.OutOrStdout(), messages.FormatValidationErrors(errs))
			return errors.Newf("%d configuration errors", len(errs))
		}

		fmt.Fprintln(cmd.OutOrStdout(), constants.MsgConfigValid)
		return nil
	},
}

// configShowCmd prints the effective configuration with secrets masked
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long:  `Print the configuration after defaults and environment expansion. Secrets are masked.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return toml.NewEncoder(cmd.OutOrStdout()).Encode(cfg.Redacted())
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)
}
