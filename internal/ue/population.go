package ue

import (
	"context"
	"time"

	"github.com/iti/rngstream"
	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"ransim/internal/mailbox"
	"ransim/internal/metrics"
	"ransim/pkg/state"
)

// idleSteps is the number of idle-timeout multiples drawn from.
const idleSteps = 6

type Config struct {
	Terminals         int
	PermanentIDBase   uint64
	IdleStep          time.Duration
	Tick              time.Duration
	RetryInterval     time.Duration
	MaxServiceRetries int
}

// Population drives every terminal from a single scanner goroutine. Each
// tick polls the downlinks, runs the idle timers and posts pending requests.
type Population struct {
	ues []*UE
	mb  *mailbox.Mailbox
	cfg Config

	clock   clock.WithTicker
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewPopulation(cfg Config, mb *mailbox.Mailbox, clk clock.WithTicker, logger *zap.Logger, m *metrics.Metrics) *Population {
	rng := rngstream.New("ue")
	p := &Population{
		ues:     make([]*UE, cfg.Terminals),
		mb:      mb,
		cfg:     cfg,
		clock:   clk,
		log:     logger.Named("ue"),
		metrics: m,
	}
	for i := range p.ues {
		n := rng.RandInt(1, idleSteps)
		if n < 1 {
			n = 1
		} else if n > idleSteps {
			n = idleSteps
		}
		p.ues[i] = NewUE(i, cfg.PermanentIDBase+uint64(i), time.Duration(n)*cfg.IdleStep)
	}
	return p
}

func (p *Population) Len() int {
	return len(p.ues)
}

// UE returns a copy of terminal i. It must not race with Run.
func (p *Population) UE(i int) UE {
	return *p.ues[i]
}

// Run scans the population every tick until ctx ends.
func (p *Population) Run(ctx context.Context) error {
	ticker := p.clock.NewTicker(p.cfg.Tick)
	defer ticker.Stop()

	p.publishAll()
	for {
		select {
		case <-ctx.Done():
			counts := p.Count()
			p.log.Info("terminals stopped",
				zap.Int("idle", counts[state.Idle]),
				zap.Int("registered", counts[state.Registered]),
				zap.Int("connected", counts[state.Connected]))
			return nil
		case now := <-ticker.C():
			p.Tick(now)
		}
	}
}

// Tick makes one pass over all terminals.
func (p *Population) Tick(now time.Time) {
	for _, u := range p.ues {
		if u.InState(state.Connected) {
			continue
		}
		before := u.State()

		if msg, ok := p.mb.TakeDownlink(u.ID); ok {
			if err := u.HandleDownlink(msg, now); err != nil {
				p.metrics.Dropped.WithLabelValues("ue", "unexpected").Inc()
				p.log.Debug("ignoring downlink", zap.Int("ue", u.ID), zap.Error(err))
			}
		}

		if u.Expire(now) {
			p.log.Debug("idle timer expired", zap.Int("ue", u.ID))
		}

		if retried, fallback := u.Retry(now, p.cfg.RetryInterval, p.cfg.MaxServiceRetries); retried {
			if fallback {
				p.log.Info("service request unanswered, re-attaching", zap.Int("ue", u.ID))
			} else {
				p.log.Debug("retrying request", zap.Int("ue", u.ID))
			}
		}

		if u.InState(state.Idle) && u.Pending() {
			req := u.Request()
			if err := p.mb.PostUplink(u.ID, req); err != nil {
				p.log.Warn("uplink not posted", zap.Int("ue", u.ID), zap.Error(err))
			} else {
				u.Sent(req.Flags, now)
			}
		}

		if after := u.State(); after != before {
			p.publish(u)
			p.log.Debug("state change",
				zap.Int("ue", u.ID),
				zap.Stringer("from", before),
				zap.Stringer("to", after))
		}
	}
}

func (p *Population) publish(u *UE) {
	if err := p.mb.PublishState(u.ID, u.State()); err != nil {
		p.log.Warn("state not published", zap.Int("ue", u.ID), zap.Error(err))
	}
}

func (p *Population) publishAll() {
	for _, u := range p.ues {
		p.publish(u)
	}
}

// Count tallies terminals per state.
func (p *Population) Count() map[state.State]int {
	counts := make(map[state.State]int, len(state.All))
	for _, u := range p.ues {
		counts[u.State()]++
	}
	return counts
}
