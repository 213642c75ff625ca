package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"

	"ransim/internal/cli"
	"ransim/internal/sim"
	"ransim/internal/status"
)

var rootCmd = &cobra.Command{
	Use:   "ransim-gnb",
	Short: "Simulated gNB with its terminal population",
	Long: `Runs the gNB relay and load balancer together with the simulated ` +
		`terminals. AMFs connect to the configured listen address and announce ` +
		`their id and capacity. The run ends once every terminal is connected.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app, err := cli.Load(cmd)
		if err != nil {
			return err
		}
		defer app.Sync()
		log := app.Env.Log.Sugar()

		ctx, cancel := cli.Context()
		defer cancel()

		log.Infof("gNB listening on %s (%s), %d terminals",
			app.Config.Gnb.Listen, app.Config.Gnb.Transport, app.Config.Gnb.Terminals)

		return app.WithMetrics(ctx, func(ctx context.Context) error {
			summary, err := sim.RunGnb(ctx, app.Config, app.Env)
			if err != nil {
				return err
			}
			return app.Publish(context.Background(), summary)
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the live view of a running gNB",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return err
		}
		defer conn.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		snap, err := status.NewClient(conn).Snapshot(ctx)
		if err != nil {
			return err
		}
		buf, err := protojson.MarshalOptions{Multiline: true}.Marshal(snap)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(buf))
		return nil
	},
}

func init() {
	cli.AddConfigFlag(rootCmd)
	statusCmd.Flags().String("addr", "127.0.0.1:9101", "status service address")
	rootCmd.AddCommand(statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
