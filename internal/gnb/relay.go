package gnb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"ransim/internal/io"
	"ransim/internal/mailbox"
	"ransim/internal/metrics"
	"ransim/pkg/ngap"
)

var (
	ErrDuplicateAMF = errors.New("AMF already connected")
	ErrUnknownAMF   = errors.New("AMF id or capacity out of range")
	ErrRelayClosed  = errors.New("relay shut down")
)

const unassigned = -1

// amfLink is the gNB's view of one AMF.
type amfLink struct {
	capacity int
	load     int
	ch       *io.Channel
}

// inbound is a downlink message or the end of an AMF channel.
type inbound struct {
	amf    int
	ch     *io.Channel
	msg    ngap.Message
	closed bool
}

// Relay forwards terminal requests from the mailbox to AMFs and AMF
// responses back to the mailbox. The assignment table, per-AMF loads and the
// balancer share one mutex.
type Relay struct {
	mb *mailbox.Mailbox

	mu       sync.Mutex
	amfs     []amfLink
	assigned []int
	balancer Balancer

	fanin chan inbound
	quit  chan struct{}
	once  sync.Once

	tick    time.Duration
	clock   clock.WithTicker
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewRelay(mb *mailbox.Mailbox, tick time.Duration, clk clock.WithTicker, logger *zap.Logger, m *metrics.Metrics) *Relay {
	assigned := make([]int, mb.Len())
	for i := range assigned {
		assigned[i] = unassigned
	}
	return &Relay{
		mb:       mb,
		assigned: assigned,
		fanin:    make(chan inbound, 256),
		quit:     make(chan struct{}),
		tick:     tick,
		clock:    clk,
		log:      logger.Named("relay"),
		metrics:  m,
	}
}

// AttachAMF adds an AMF after its handshake and starts reading its channel.
// An AMF id may be reused once its previous channel has ended. Nothing is
// attached after Shutdown.
func (r *Relay) AttachAMF(id, capacity int, ch *io.Channel) error {
	if id < 0 || id >= ngap.MaxAMF || capacity <= 0 {
		return fmt.Errorf("AMF %d capacity %d: %w", id, capacity, ErrUnknownAMF)
	}

	r.mu.Lock()
	select {
	case <-r.quit:
		r.mu.Unlock()
		return fmt.Errorf("AMF %d: %w", id, ErrRelayClosed)
	default:
	}
	for len(r.amfs) <= id {
		r.amfs = append(r.amfs, amfLink{})
	}
	if r.amfs[id].ch != nil {
		r.mu.Unlock()
		return fmt.Errorf("AMF %d: %w", id, ErrDuplicateAMF)
	}
	r.amfs[id] = amfLink{capacity: capacity, ch: ch}
	r.balancer.SetWeight(id, capacity)
	r.mu.Unlock()

	label := metrics.AmfLabel(id)
	r.metrics.AmfCapacity.WithLabelValues(label).Set(float64(capacity))
	r.metrics.Assigned.WithLabelValues(label).Set(0)
	r.log.Info("AMF attached",
		zap.Int("amf", id),
		zap.Int("capacity", capacity),
		zap.Stringer("peer", ch.RemoteAddr()))

	ch.Start()
	go r.pump(id, ch)
	return nil
}

func (r *Relay) pump(id int, ch *io.Channel) {
	for msg := range ch.Inbox() {
		select {
		case r.fanin <- inbound{amf: id, ch: ch, msg: msg}:
		case <-r.quit:
			return
		}
	}
	select {
	case r.fanin <- inbound{amf: id, ch: ch, closed: true}:
	case <-r.quit:
	}
}

// DetachAMF removes the AMF reached over ch and releases every terminal
// assigned to it so they can be balanced elsewhere. It returns the number
// of released terminals.
func (r *Relay) DetachAMF(id int, ch *io.Channel) int {
	r.mu.Lock()
	if id < 0 || id >= len(r.amfs) || r.amfs[id].ch != ch {
		r.mu.Unlock()
		return 0
	}
	released := 0
	for t, a := range r.assigned {
		if a == id {
			r.assigned[t] = unassigned
			released++
		}
	}
	r.amfs[id].ch = nil
	r.amfs[id].load = 0
	r.mu.Unlock()

	r.metrics.Assigned.WithLabelValues(metrics.AmfLabel(id)).Set(0)
	r.log.Warn("AMF detached",
		zap.Int("amf", id),
		zap.Int("released", released),
		zap.Error(ch.Err()))
	ch.Close()
	return released
}

// Assignment returns the AMF terminal t is assigned to.
func (r *Relay) Assignment(t int) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t < 0 || t >= len(r.assigned) || r.assigned[t] == unassigned {
		return unassigned, false
	}
	return r.assigned[t], true
}

// route returns the AMF for terminal t, consulting the balancer for
// unassigned terminals.
func (r *Relay) route(t int) (int, *io.Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id := r.assigned[t]; id != unassigned {
		return id, r.amfs[id].ch, true
	}
	id, ok := r.balancer.Pick(func(i int) bool {
		l := &r.amfs[i]
		return l.ch != nil && l.load < l.capacity
	})
	if !ok {
		return unassigned, nil, false
	}
	r.assigned[t] = id
	r.amfs[id].load++
	r.metrics.Assigned.WithLabelValues(metrics.AmfLabel(id)).Set(float64(r.amfs[id].load))
	return id, r.amfs[id].ch, true
}

// unroute rolls back the assignment of terminal t to AMF id.
func (r *Relay) unroute(t, id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.assigned[t] != id {
		return
	}
	r.assigned[t] = unassigned
	if r.amfs[id].load > 0 {
		r.amfs[id].load--
	}
	r.metrics.Assigned.WithLabelValues(metrics.AmfLabel(id)).Set(float64(r.amfs[id].load))
}

// ScanUplink makes one pass over the mailbox and forwards every pending
// request it can route. Requests that cannot be routed stay pending.
func (r *Relay) ScanUplink() int {
	sent := 0
	for t := 0; t < r.mb.Len(); t++ {
		msg, seq, ok := r.mb.PeekUplink(t)
		if !ok {
			continue
		}
		if err := checkUplink(msg); err != nil {
			r.mb.AckUplink(t, seq)
			r.metrics.Dropped.WithLabelValues("gnb", "protocol_violation").Inc()
			r.log.Debug("dropping uplink", zap.Int("ue", t), zap.Error(err))
			continue
		}

		id, ch, ok := r.route(t)
		if !ok {
			continue
		}

		msg.Kind = ngap.RelayedRegistrationRequest
		msg.TerminalID = uint16(t)
		if err := ch.Send(msg); err != nil {
			r.unroute(t, id)
			r.metrics.Dropped.WithLabelValues("gnb", "send_failed").Inc()
			r.log.Warn("uplink send failed", zap.Int("ue", t), zap.Int("amf", id), zap.Error(err))
			continue
		}
		r.mb.AckUplink(t, seq)
		r.metrics.Forwarded.WithLabelValues("uplink").Inc()
		sent++
	}
	return sent
}

func checkUplink(msg ngap.Message) error {
	if msg.Kind != ngap.RegistrationRequest {
		return fmt.Errorf("uplink %s: %w", msg.Kind, ngap.ErrProtocolViolation)
	}
	if msg.Flags != ngap.FlagRandomValue && msg.Flags != ngap.FlagTemporaryID {
		return fmt.Errorf("uplink flags 0x%02x: %w", uint8(msg.Flags), ngap.ErrProtocolViolation)
	}
	return nil
}

// HandleDownlink translates one AMF message and publishes it to the
// addressed terminal.
func (r *Relay) HandleDownlink(amf int, msg ngap.Message) error {
	var kind ngap.MsgType
	switch msg.Kind {
	case ngap.RelayedRegistrationResponse:
		kind = ngap.RegistrationResponse
	case ngap.PagingNotificationInbound:
		kind = ngap.PagingNotificationOutbound
	default:
		return fmt.Errorf("downlink %s from AMF %d: %w", msg.Kind, amf, ngap.ErrProtocolViolation)
	}

	msg.Kind = kind
	msg.TemporaryID &= ngap.DownlinkIDMask
	if err := r.mb.PostDownlink(int(msg.TerminalID), msg); err != nil {
		return err
	}
	r.metrics.Forwarded.WithLabelValues("downlink").Inc()
	return nil
}

// RunUplink scans the mailbox every tick until ctx ends.
func (r *Relay) RunUplink(ctx context.Context) error {
	ticker := r.clock.NewTicker(r.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			r.ScanUplink()
		}
	}
}

// RunDownlink multiplexes all AMF channels until ctx ends.
func (r *Relay) RunDownlink(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case in := <-r.fanin:
			r.dispatch(in)
		}
	}
}

func (r *Relay) dispatch(in inbound) {
	switch {
	case in.closed:
		r.DetachAMF(in.amf, in.ch)
	case in.msg.Kind == ngap.Termination:
		r.log.Info("AMF terminated the link", zap.Int("amf", in.amf))
		r.DetachAMF(in.amf, in.ch)
	default:
		if err := r.HandleDownlink(in.amf, in.msg); err != nil {
			reason := "protocol_violation"
			if errors.Is(err, ngap.ErrUnknownTerminal) {
				reason = "unknown_terminal"
				r.log.Warn("downlink for unknown terminal",
					zap.Int("amf", in.amf), zap.Uint16("ue", in.msg.TerminalID))
			}
			r.metrics.Dropped.WithLabelValues("gnb", reason).Inc()
			r.log.Debug("dropping downlink", zap.Error(err))
		}
	}
}

// Shutdown sends Termination to every connected AMF and closes the links.
// quit is closed before the table is drained so a concurrent AttachAMF
// either lands in the drained set or is refused.
func (r *Relay) Shutdown() {
	r.once.Do(func() { close(r.quit) })

	r.mu.Lock()
	var links []*io.Channel
	for i := range r.amfs {
		if ch := r.amfs[i].ch; ch != nil {
			links = append(links, ch)
			r.amfs[i].ch = nil
		}
	}
	r.mu.Unlock()

	for _, ch := range links {
		if err := ch.Send(ngap.Message{Kind: ngap.Termination}); err != nil {
			r.log.Debug("termination not delivered", zap.Error(err))
		}
		ch.Close()
	}
}

// AMFStatus is the gNB's view of one AMF.
type AMFStatus struct {
	ID        int
	Capacity  int
	Load      int
	Connected bool
}

// AMFs lists every AMF that has attached at least once.
func (r *Relay) AMFs() []AMFStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]AMFStatus, 0, len(r.amfs))
	for i, l := range r.amfs {
		if l.capacity == 0 {
			continue
		}
		out = append(out, AMFStatus{ID: i, Capacity: l.capacity, Load: l.load, Connected: l.ch != nil})
	}
	return out
}
