package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"ransim/internal/cli"
	"ransim/internal/sim"
)

var rootCmd = &cobra.Command{
	Use:          "ransim",
	Short:        "Run the gNB, the terminals and the AMF pool in one process",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := cli.Load(cmd)
		if err != nil {
			return err
		}
		defer app.Sync()

		ctx, cancel := cli.Context()
		defer cancel()

		return app.WithMetrics(ctx, func(ctx context.Context) error {
			summary, err := sim.Run(ctx, app.Config, app.Env)
			if err != nil {
				return err
			}
			return app.Publish(context.Background(), summary)
		})
	},
}

func init() {
	cli.AddConfigFlag(rootCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
