package ue

import (
	"time"

	"ransim/pkg/ngap"
	"ransim/pkg/state"
)

// UE is one simulated terminal. It is owned by the population scanner and
// never shared.
type UE struct {
	ID          int
	PermanentID uint64
	TemporaryID uint64
	IdleTimeout time.Duration

	state   state.State
	wake    time.Time
	pending bool

	// outstanding request, zero flags when none
	sent    ngap.Flags
	sentAt  time.Time
	retries int
}

func NewUE(id int, permanentID uint64, idle time.Duration) *UE {
	return &UE{
		ID:          id,
		PermanentID: permanentID,
		IdleTimeout: idle,
		state:       state.Idle,
		pending:     true,
	}
}

func (u *UE) State() state.State {
	return u.state
}

func (u *UE) ToState(s state.State) {
	u.state = s
}

func (u *UE) InState(s state.State) bool {
	return u.state == s
}

// Pending reports whether the terminal wants to send a request.
func (u *UE) Pending() bool {
	return u.pending
}

// Request builds the next uplink: a registration before the first
// temporary id is known, a service request afterwards.
func (u *UE) Request() ngap.Message {
	msg := ngap.Message{
		Kind:        ngap.RegistrationRequest,
		TerminalID:  uint16(u.ID),
		PermanentID: u.PermanentID,
	}
	if u.TemporaryID == 0 {
		msg.Flags = ngap.FlagRandomValue
	} else {
		msg.Flags = ngap.FlagTemporaryID
		msg.TemporaryID = u.TemporaryID
	}
	return msg
}
