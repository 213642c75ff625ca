package ue

import (
	"errors"
	"fmt"
	"time"

	"ransim/pkg/ngap"
	"ransim/pkg/state"
)

var errUnexpected = errors.New("unexpected downlink")

// HandleDownlink applies one message from the gNB. Messages that do not fit
// the current state are ignored and reported as errUnexpected.
func (u *UE) HandleDownlink(msg ngap.Message, now time.Time) error {
	switch msg.Kind {
	case ngap.RegistrationResponse:
		return u.handleRegistrationResponse(msg, now)
	case ngap.PagingNotificationOutbound:
		return u.handlePaging(msg)
	}
	return fmt.Errorf("%w: %s", errUnexpected, msg.Kind)
}

func (u *UE) handleRegistrationResponse(msg ngap.Message, now time.Time) error {
	tmp := msg.TemporaryID & ngap.DownlinkIDMask

	switch {
	case u.InState(state.Idle) && u.TemporaryID == 0 && msg.Flags == ngap.FlagRandomValue:
		u.TemporaryID = tmp
		u.ToState(state.Registered)
		u.wake = now.Add(u.IdleTimeout)
		u.clearOutstanding()
		return nil

	case u.InState(state.Idle) && u.TemporaryID != 0 && msg.Flags == ngap.FlagTemporaryID && tmp == u.TemporaryID:
		u.ToState(state.Connected)
		u.pending = false
		u.clearOutstanding()
		return nil
	}
	return fmt.Errorf("%w: %s flags 0x%02x in %s", errUnexpected, msg.Kind, uint8(msg.Flags), u.state)
}

func (u *UE) handlePaging(msg ngap.Message) error {
	if u.TemporaryID == 0 || msg.TemporaryID&ngap.DownlinkIDMask != u.TemporaryID {
		return fmt.Errorf("%w: paging for 0x%x", errUnexpected, msg.TemporaryID)
	}
	if u.InState(state.Connected) {
		return nil
	}
	u.pending = true
	if u.InState(state.Registered) {
		u.ToState(state.Idle)
		u.wake = time.Time{}
	}
	return nil
}

// Expire moves a registered terminal back to IDLE once its idle timer ran
// out. It reports whether the state changed.
func (u *UE) Expire(now time.Time) bool {
	if !u.InState(state.Registered) || u.wake.IsZero() || now.Before(u.wake) {
		return false
	}
	u.ToState(state.Idle)
	u.wake = time.Time{}
	u.pending = false
	return true
}

// Sent records that the request built by Request was posted at now.
func (u *UE) Sent(flags ngap.Flags, now time.Time) {
	u.pending = false
	u.sent = flags
	u.sentAt = now
}

// Retry re-arms an unanswered request after interval. A service request
// left unanswered more than maxService times is replaced by a full
// re-attach. It reports whether the request was re-armed and whether the
// terminal fell back to re-attach.
func (u *UE) Retry(now time.Time, interval time.Duration, maxService int) (bool, bool) {
	if interval <= 0 || u.sent == 0 || u.InState(state.Connected) || now.Sub(u.sentAt) < interval {
		return false, false
	}
	if u.sent == ngap.FlagTemporaryID {
		u.retries++
		if u.retries > maxService {
			u.TemporaryID = 0
			u.retries = 0
			u.sent = 0
			u.pending = true
			return true, true
		}
	}
	u.sent = 0
	u.pending = true
	return true, false
}

func (u *UE) clearOutstanding() {
	u.sent = 0
	u.sentAt = time.Time{}
	u.retries = 0
}
