package gnb

import (
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"ransim/internal/io"
	"ransim/internal/mailbox"
	"ransim/internal/metrics"
	"ransim/pkg/state"
)

type Config struct {
	Tick             time.Duration
	MonitorInterval  time.Duration
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

// Gnb accepts AMF links, relays between them and the terminal mailbox and
// watches the population until every terminal is connected.
type Gnb struct {
	Relay *Relay

	mb      *mailbox.Mailbox
	cfg     Config
	clock   clock.WithTicker
	log     *zap.Logger
	metrics *metrics.Metrics
}

func New(cfg Config, mb *mailbox.Mailbox, clk clock.WithTicker, logger *zap.Logger, m *metrics.Metrics) *Gnb {
	log := logger.Named("gnb")
	return &Gnb{
		Relay:   NewRelay(mb, cfg.Tick, clk, log, m),
		mb:      mb,
		cfg:     cfg,
		clock:   clk,
		log:     log,
		metrics: m,
	}
}

// Run serves AMF links on ln until ctx ends or every terminal reached
// CONNECTED. Connected AMFs receive a Termination before Run returns.
func (g *Gnb) Run(ctx context.Context, ln net.Listener) error {
	ctx, finish := context.WithCancel(ctx)
	defer finish()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return g.accept(ctx, ln) })
	eg.Go(func() error { return g.Relay.RunUplink(ctx) })
	eg.Go(func() error { return g.Relay.RunDownlink(ctx) })
	eg.Go(func() error {
		if g.monitor(ctx) {
			g.log.Info("all terminals connected")
			finish()
		}
		return nil
	})

	err := eg.Wait()
	g.Relay.Shutdown()
	return err
}

func (g *Gnb) accept(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	g.log.Info("waiting for AMFs", zap.Stringer("addr", ln.Addr()))
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go g.handshake(conn)
	}
}

func (g *Gnb) handshake(conn net.Conn) {
	ch := io.NewChannel(conn, g.log)
	if g.cfg.WriteTimeout > 0 {
		ch.SetWriteTimeout(g.cfg.WriteTimeout)
	}
	hello, err := ch.RecvInit(g.cfg.HandshakeTimeout)
	if err != nil {
		g.log.Warn("AMF handshake failed", zap.Stringer("peer", conn.RemoteAddr()), zap.Error(err))
		ch.Close()
		return
	}
	if err := g.Relay.AttachAMF(int(hello.AmfID), int(hello.Capacity), ch); err != nil {
		g.log.Warn("rejecting AMF", zap.Stringer("peer", conn.RemoteAddr()), zap.Error(err))
		ch.Close()
	}
}

// monitor logs the AMF loads and terminal states every interval. It reports
// true once every terminal is connected.
func (g *Gnb) monitor(ctx context.Context) bool {
	ticker := g.clock.NewTicker(g.cfg.MonitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C():
			if g.report() {
				return true
			}
		}
	}
}

func (g *Gnb) report() bool {
	counts := g.mb.CountStates()
	for _, st := range state.All {
		g.metrics.Terminals.WithLabelValues(st.String()).Set(float64(counts[st]))
	}
	for _, a := range g.Relay.AMFs() {
		g.log.Info("AMF load",
			zap.Int("amf", a.ID),
			zap.Int("load", a.Load),
			zap.Int("capacity", a.Capacity),
			zap.Bool("connected", a.Connected))
	}
	g.log.Info("terminals",
		zap.Int("idle", counts[state.Idle]),
		zap.Int("registered", counts[state.Registered]),
		zap.Int("connected", counts[state.Connected]),
		zap.Int("total", g.mb.Len()))
	return counts[state.Connected] == g.mb.Len()
}

// Snapshot is a point-in-time view of the gNB.
type Snapshot struct {
	AMFs   []AMFStatus
	States map[state.State]int
}

func (g *Gnb) Snapshot() Snapshot {
	return Snapshot{AMFs: g.Relay.AMFs(), States: g.mb.CountStates()}
}
