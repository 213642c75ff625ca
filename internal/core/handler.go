package core

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ransim/pkg/ngap"
)

var (
	ErrAdmissionRefused  = errors.New("admission refused: capacity exhausted")
	ErrOwnershipMismatch = errors.New("temporary id issued by another AMF")
	ErrNotRegistered     = errors.New("terminal not registered")
)

// HandleNGAP processes one relayed request. Requests that are refused or
// malformed yield an error and no response.
func (a *Amf) HandleNGAP(msg ngap.Message) (ngap.Message, error) {
	if msg.Kind != ngap.RelayedRegistrationRequest {
		return ngap.Message{}, fmt.Errorf("unexpected %s: %w", msg.Kind, ngap.ErrProtocolViolation)
	}
	if int(msg.TerminalID) >= len(a.ues) {
		return ngap.Message{}, fmt.Errorf("terminal %d: %w", msg.TerminalID, ngap.ErrUnknownTerminal)
	}

	switch msg.Flags {
	case ngap.FlagRandomValue:
		return a.handleRegistrationRequest(msg)
	case ngap.FlagTemporaryID:
		return a.handleServiceRequest(msg)
	}
	return ngap.Message{}, fmt.Errorf("flags 0x%02x: %w", uint8(msg.Flags), ngap.ErrProtocolViolation)
}

func (a *Amf) handleRegistrationRequest(msg ngap.Message) (ngap.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ue := &a.ues[msg.TerminalID]
	if !ue.Registered {
		if a.load >= a.Capacity {
			return ngap.Message{}, fmt.Errorf("terminal %d at %d/%d: %w",
				msg.TerminalID, a.load, a.Capacity, ErrAdmissionRefused)
		}
		now := a.clock.Now()
		ue.Registered = true
		ue.TemporaryID = ngap.TemporaryID(a.ID, msg.PermanentID)
		ue.AttachTime = now
		ue.PagingDelay = a.drawPagingDelay()
		a.load++
		a.paging.schedule(pagingEntry{deadline: now.Add(ue.PagingDelay), terminal: msg.TerminalID})

		a.metrics.Registrations.WithLabelValues(a.label).Inc()
		a.metrics.AmfLoad.WithLabelValues(a.label).Set(float64(a.load))
		a.log.Info("registered terminal",
			zap.Uint16("ue", msg.TerminalID),
			zap.String("tmsi", fmt.Sprintf("0x%x", ue.TemporaryID)),
			zap.Int("load", a.load),
			zap.Int("capacity", a.Capacity),
			zap.Duration("paging_delay", ue.PagingDelay))
	} else if ue.AttachTime.IsZero() {
		// paged or served before, the terminal starts over and needs a new paging
		now := a.clock.Now()
		ue.AttachTime = now
		a.paging.schedule(pagingEntry{deadline: now.Add(ue.PagingDelay), terminal: msg.TerminalID})
		a.log.Debug("re-registration, paging re-armed", zap.Uint16("ue", msg.TerminalID))
	}

	return ngap.Message{
		Kind:        ngap.RelayedRegistrationResponse,
		Flags:       ngap.FlagRandomValue,
		TerminalID:  msg.TerminalID,
		PermanentID: msg.PermanentID,
		TemporaryID: ue.TemporaryID,
	}, nil
}

func (a *Amf) handleServiceRequest(msg ngap.Message) (ngap.Message, error) {
	if owner := ngap.OwnerAMF(msg.TemporaryID); owner != a.ID {
		return ngap.Message{}, fmt.Errorf("terminal %d owned by AMF %d: %w",
			msg.TerminalID, owner, ErrOwnershipMismatch)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	ue := &a.ues[msg.TerminalID]
	if !ue.Registered {
		return ngap.Message{}, fmt.Errorf("terminal %d: %w", msg.TerminalID, ErrNotRegistered)
	}
	// the terminal is back, a pending paging must not fire
	ue.AttachTime = time.Time{}

	a.metrics.ServiceRequests.WithLabelValues(a.label).Inc()
	a.log.Debug("service request",
		zap.Uint16("ue", msg.TerminalID),
		zap.Int("load", a.load))

	return ngap.Message{
		Kind:        ngap.RelayedRegistrationResponse,
		Flags:       ngap.FlagTemporaryID,
		TerminalID:  msg.TerminalID,
		PermanentID: msg.PermanentID,
		TemporaryID: ue.TemporaryID,
	}, nil
}

// DuePagings returns the paging notifications that are due at now and marks
// them sent.
func (a *Amf) DuePagings(now time.Time) []ngap.Message {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []ngap.Message
	for {
		e, ok := a.paging.popDue(now)
		if !ok {
			break
		}
		ue := &a.ues[e.terminal]
		if !ue.Registered || ue.AttachTime.IsZero() {
			continue
		}
		if now.Before(ue.AttachTime.Add(ue.PagingDelay)) {
			continue
		}
		ue.AttachTime = time.Time{}
		a.metrics.Pagings.WithLabelValues(a.label).Inc()
		a.log.Debug("paging terminal", zap.Uint16("ue", e.terminal))
		out = append(out, ngap.Message{
			Kind:        ngap.PagingNotificationInbound,
			Flags:       ngap.FlagTemporaryID,
			TerminalID:  e.terminal,
			TemporaryID: ue.TemporaryID,
		})
	}
	return out
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, ErrAdmissionRefused):
		return "admission_refused"
	case errors.Is(err, ErrOwnershipMismatch):
		return "ownership_mismatch"
	case errors.Is(err, ErrNotRegistered):
		return "not_registered"
	case errors.Is(err, ngap.ErrUnknownTerminal):
		return "unknown_terminal"
	}
	return "protocol_violation"
}
