// Package sim assembles the gNB, the terminal population and the AMFs from
// a configuration and runs them.
package sim

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"ransim/internal/config"
	"ransim/internal/core"
	"ransim/internal/gnb"
	"ransim/internal/io"
	"ransim/internal/mailbox"
	"ransim/internal/metrics"
	"ransim/internal/report"
	"ransim/internal/status"
	"ransim/internal/ue"
	"ransim/pkg/state"
)

// Env carries what every component is built with.
type Env struct {
	Run     string
	Log     *zap.Logger
	Metrics *metrics.Metrics
	Clock   clock.WithTicker
}

// RunGnb runs the gNB and the terminal population until every terminal is
// connected or ctx ends, and returns the run summary.
func RunGnb(ctx context.Context, cfg config.Config, env Env) (report.Summary, error) {
	ln, err := io.Listen(cfg.Gnb.Transport, cfg.Gnb.Listen)
	if err != nil {
		return report.Summary{}, fmt.Errorf("listen %s: %w", cfg.Gnb.Listen, err)
	}
	return newRadio(cfg, env).serve(ctx, ln)
}

// radio is the gNB with the terminals sharing its mailbox.
type radio struct {
	cfg config.Config
	env Env
	g   *gnb.Gnb
	pop *ue.Population
}

func newRadio(cfg config.Config, env Env) *radio {
	mb := mailbox.New(cfg.Gnb.Terminals)
	return &radio{
		cfg: cfg,
		env: env,
		g: gnb.New(gnb.Config{
			Tick:             cfg.Gnb.Tick,
			MonitorInterval:  cfg.Gnb.MonitorInterval,
			HandshakeTimeout: cfg.Gnb.HandshakeTimeout,
			WriteTimeout:     cfg.Gnb.WriteTimeout,
		}, mb, env.Clock, env.Log, env.Metrics),
		pop: ue.NewPopulation(ue.Config{
			Terminals:         cfg.Gnb.Terminals,
			PermanentIDBase:   cfg.UE.PermanentIDBase,
			IdleStep:          cfg.UE.IdleStep,
			Tick:              cfg.Gnb.Tick,
			RetryInterval:     cfg.UE.RetryInterval,
			MaxServiceRetries: cfg.UE.MaxServiceRetries,
		}, mb, env.Clock, env.Log, env.Metrics),
	}
}

func (r *radio) serve(ctx context.Context, ln net.Listener) (report.Summary, error) {
	start := r.env.Clock.Now()

	var statusLn net.Listener
	if addr := r.cfg.Gnb.StatusListen; addr != "" {
		var err error
		if statusLn, err = net.Listen("tcp", addr); err != nil {
			ln.Close()
			return report.Summary{}, fmt.Errorf("status listen %s: %w", addr, err)
		}
	}

	// the gNB decides when the run is over, the rest follows
	sideCtx, stop := context.WithCancel(ctx)
	defer stop()

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		defer stop()
		return r.g.Run(egCtx, ln)
	})
	eg.Go(func() error { return r.pop.Run(sideCtx) })
	if statusLn != nil {
		eg.Go(func() error { return status.Serve(sideCtx, statusLn, r.g, r.env.Log) })
	}
	err := eg.Wait()

	return summarize(r.env, r.g.Snapshot(), r.cfg.Gnb.Terminals, r.env.Clock.Since(start)), err
}

// NewCore builds one AMF per entry of capacities, indexed from firstID.
// Random streams are drawn here in id order, so call it before starting
// anything else that draws one.
func NewCore(cfg config.Config, env Env, firstID int, capacities []int) []*core.Amf {
	amfs := make([]*core.Amf, 0, len(capacities))
	for i, capacity := range capacities {
		amfs = append(amfs, core.New(core.Config{
			ID:         firstID + i,
			Capacity:   capacity,
			Terminals:  cfg.Gnb.Terminals,
			PagingStep: cfg.Amf.PagingStep,
			Tick:       cfg.Amf.Tick,
		}, env.Clock, env.Log, env.Metrics))
	}
	return amfs
}

// RunCore runs one AMF per entry of capacities, indexed from firstID, until
// ctx ends or the gNB terminates their links.
func RunCore(ctx context.Context, cfg config.Config, env Env, firstID int, capacities []int) error {
	return runCore(ctx, cfg, NewCore(cfg, env, firstID, capacities))
}

func runCore(ctx context.Context, cfg config.Config, amfs []*core.Amf) error {
	eg, ctx := errgroup.WithContext(ctx)
	for _, a := range amfs {
		eg.Go(func() error {
			return a.Run(ctx, cfg.Gnb.Transport, cfg.Amf.GnbAddr, cfg.Amf.RetryInterval)
		})
	}
	return eg.Wait()
}

// Run runs everything in one process. The AMFs dial the gNB's actual
// listen address, so a zero port is fine.
func Run(ctx context.Context, cfg config.Config, env Env) (report.Summary, error) {
	ln, err := io.Listen(cfg.Gnb.Transport, cfg.Gnb.Listen)
	if err != nil {
		return report.Summary{}, fmt.Errorf("listen %s: %w", cfg.Gnb.Listen, err)
	}
	cfg.Amf.GnbAddr = ln.Addr().String()

	// every component is built before any of them runs
	amfs := NewCore(cfg, env, 0, cfg.Amf.Capacities)
	r := newRadio(cfg, env)

	coreCtx, stopCore := context.WithCancel(ctx)
	defer stopCore()

	var eg errgroup.Group
	eg.Go(func() error { return runCore(coreCtx, cfg, amfs) })

	summary, err := r.serve(ctx, ln)
	stopCore()
	if cerr := eg.Wait(); err == nil {
		err = cerr
	}
	return summary, err
}

func summarize(env Env, snap gnb.Snapshot, terminals int, elapsed time.Duration) report.Summary {
	s := report.Summary{
		Run:       env.Run,
		Terminals: terminals,
		States:    make(map[string]int, len(state.All)),
		Elapsed:   elapsed,
	}
	for _, st := range state.All {
		s.States[st.String()] = snap.States[st]
	}
	for _, a := range snap.AMFs {
		s.AMFs = append(s.AMFs, report.AMFSummary{ID: a.ID, Capacity: a.Capacity, Load: a.Load})
	}
	return s
}
