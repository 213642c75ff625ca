// Package cli holds the setup shared by the command binaries.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"ransim/internal/config"
	"ransim/internal/logger"
	"ransim/internal/metrics"
	"ransim/internal/report"
	"ransim/internal/sim"
)

// App is a loaded configuration with its environment.
type App struct {
	Config   config.Config
	Env      sim.Env
	Registry *prometheus.Registry
}

// AddConfigFlag registers --config/-c on cmd.
func AddConfigFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().StringP("config", "c", "", "YAML configuration file")
}

// Load reads the configuration named by --config and builds the logger and
// metrics registry.
func Load(cmd *cobra.Command) (*App, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	log, run, err := logger.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &App{
		Config: cfg,
		Env: sim.Env{
			Run:     run,
			Log:     log,
			Metrics: metrics.New(reg),
			Clock:   clock.RealClock{},
		},
		Registry: reg,
	}, nil
}

// Context is cancelled on SIGINT or SIGTERM.
func Context() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// WithMetrics runs fn and, when metrics_listen is set, the metrics endpoint
// next to it. The endpoint stops once fn returns.
func (a *App) WithMetrics(ctx context.Context, fn func(context.Context) error) error {
	if a.Config.Gnb.MetricsListen == "" {
		return fn(ctx)
	}
	mctx, stop := context.WithCancel(ctx)
	var eg errgroup.Group
	eg.Go(func() error {
		return metrics.Serve(mctx, a.Config.Gnb.MetricsListen, a.Registry, a.Env.Log)
	})
	err := fn(ctx)
	stop()
	if merr := eg.Wait(); err == nil {
		err = merr
	}
	return err
}

// Publish writes the run summary to the log and, when configured, Redis.
func (a *App) Publish(ctx context.Context, s report.Summary) error {
	sinks := report.Multi{report.NewLogSink(a.Env.Log)}
	if addr := a.Config.Report.RedisAddr; addr != "" {
		db := redis.NewClient(&redis.Options{Addr: addr})
		defer db.Close()
		sinks = append(sinks, report.NewRedisSink(db, a.Config.Report.Key))
	}
	return sinks.Publish(ctx, s)
}

func (a *App) Sync() {
	_ = a.Env.Log.Sync()
}

