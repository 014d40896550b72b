package cli

import (
	"github.com/Opizontas-Studio/dc-license-bot/internal/app/bootstrap"
	"github.com/spf13/cobra"
)

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP, gRPC and background workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := bootstrap.LoadConfig(rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			runtime, err := bootstrap.NewRuntime(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return runtime.Run(cmd.Context())
		},
	}
}
