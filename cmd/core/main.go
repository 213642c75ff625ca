package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ransim/internal/cli"
	"ransim/internal/sim"
	"ransim/pkg/ngap"
)

var rootCmd = &cobra.Command{
	Use:   "ransim-core",
	Short: "Simulated AMF pool",
	Long: `Starts one AMF per configured capacity, or a single AMF with ` +
		`--amf-id and --capacity, and connects them to the gNB.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := cli.Load(cmd)
		if err != nil {
			return err
		}
		defer app.Sync()
		log := app.Env.Log.Sugar()

		first, capacities := 0, app.Config.Amf.Capacities
		if cmd.Flags().Changed("amf-id") || cmd.Flags().Changed("capacity") {
			id, _ := cmd.Flags().GetInt("amf-id")
			capacity, _ := cmd.Flags().GetInt("capacity")
			if id < 0 || id >= ngap.MaxAMF || capacity <= 0 {
				return fmt.Errorf("invalid AMF %d with capacity %d", id, capacity)
			}
			first, capacities = id, []int{capacity}
		}

		ctx, cancel := cli.Context()
		defer cancel()

		log.Infof("starting %d AMF(s), gNB at %s", len(capacities), app.Config.Amf.GnbAddr)
		return app.WithMetrics(ctx, func(ctx context.Context) error {
			return sim.RunCore(ctx, app.Config, app.Env, first, capacities)
		})
	},
}

func init() {
	cli.AddConfigFlag(rootCmd)
	rootCmd.Flags().Int("amf-id", 0, "run a single AMF with this id")
	rootCmd.Flags().Int("capacity", 0, "admission capacity of the single AMF")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
