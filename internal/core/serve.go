package core

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"ransim/internal/io"
	"ransim/pkg/ngap"
)

// Serve answers relayed requests on ch and emits due pagings until ctx is
// cancelled, the gNB terminates the link or the link fails. A Termination
// is sent to the gNB on cancellation.
func (a *Amf) Serve(ctx context.Context, ch *io.Channel) error {
	ticker := a.clock.NewTicker(a.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := ch.Send(ngap.Message{Kind: ngap.Termination}); err != nil {
				a.log.Debug("termination not delivered", zap.Error(err))
			}
			return nil

		case msg, ok := <-ch.Inbox():
			if !ok {
				return ch.Err()
			}
			if msg.Kind == ngap.Termination {
				a.log.Info("gNB terminated the link")
				return nil
			}
			resp, err := a.HandleNGAP(msg)
			if err != nil {
				a.metrics.Dropped.WithLabelValues("amf", dropReason(err)).Inc()
				a.log.Debug("dropping request", zap.Uint16("ue", msg.TerminalID), zap.Error(err))
				continue
			}
			if err := ch.Send(resp); err != nil {
				return err
			}

		case now := <-ticker.C():
			for _, p := range a.DuePagings(now) {
				if err := ch.Send(p); err != nil {
					return err
				}
			}
		}
	}
}

// Run connects to the gNB, announces this AMF and serves the link. Dial
// failures are retried every retry until ctx ends. Loss of an established
// link is reported and ends the run without error.
func (a *Amf) Run(ctx context.Context, transport, gnbAddr string, retry time.Duration) error {
	ch, err := a.connect(ctx, transport, gnbAddr, retry)
	if err != nil {
		return err
	}
	defer ch.Close()

	err = a.Serve(ctx, ch)
	if errors.Is(err, io.ErrChannelClosed) || errors.Is(err, io.ErrChannelBroken) {
		a.log.Warn("lost gNB link", zap.Error(err))
		return nil
	}
	return err
}

func (a *Amf) connect(ctx context.Context, transport, gnbAddr string, retry time.Duration) (*io.Channel, error) {
	for {
		conn, err := io.Dial(ctx, transport, gnbAddr)
		if err == nil {
			ch := io.NewChannel(conn, a.log)
			hello := ngap.InitMsg{AmfID: int32(a.ID), Capacity: int32(a.Capacity)}
			if err := ch.SendInit(&hello); err != nil {
				ch.Close()
				return nil, err
			}
			ch.Start()
			a.log.Info("connected to gNB",
				zap.String("addr", gnbAddr),
				zap.String("name", a.AmfName),
				zap.Int("capacity", a.Capacity))
			return ch, nil
		}
		if retry <= 0 {
			return nil, err
		}
		a.log.Debug("gNB not reachable, retrying", zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-a.clock.After(retry):
		}
	}
}
