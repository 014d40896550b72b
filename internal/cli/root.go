// Package cli wires the license bot commands.
package cli

import (
	"github.com/spf13/cobra"
)

const defaultConfigPath = "configs/default.yaml"

type RootOptions struct {
	ConfigPath string
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "license-bot",
		Short:         "License publication and synchronization engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", defaultConfigPath, "path to the YAML config file")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewLicensesCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))
	return cmd
}
