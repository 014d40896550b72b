package cli

import (
	"fmt"
	"os"

	"github.com/Opizontas-Studio/dc-license-bot/internal/app/bootstrap"
	"github.com/Opizontas-Studio/dc-license-bot/internal/syslicense"
	"github.com/spf13/cobra"
)

func NewLicensesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "licenses",
		Short: "Inspect the system license document",
	}
	cmd.AddCommand(newLicensesValidateCommand(rootOpts))
	return cmd
}

func newLicensesValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Check a system license document the way a reload would",
		Long: `Parse a system license document and report its entries.

Without a file argument the licenses.path from the config is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				cfg, err := bootstrap.LoadConfig(rootOpts.ConfigPath)
				if err != nil {
					return err
				}
				path = cfg.Licenses.Path
			}
			raw, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read license document: %w", err)
			}
			licenses, err := syslicense.Parse(raw)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, lic := range licenses {
				fmt.Fprintf(out, "%-32s redistribution=%t modification=%t backup=%t\n",
					lic.Name, lic.Flags.AllowRedistribution, lic.Flags.AllowModification, lic.Flags.AllowBackup)
			}
			fmt.Fprintf(out, "%d licenses ok in %s\n", len(licenses), path)
			return nil
		},
	}
}
