package ngap

import "fmt"

type MsgType uint8

// Terminal-facing kinds travel through the mailbox, AMF-facing kinds over the
// gNB<->AMF channel.
const (
	Init                        MsgType = 0x09
	RegistrationRequest         MsgType = 0x10
	RegistrationResponse        MsgType = 0x11
	RelayedRegistrationRequest  MsgType = 0x12
	RelayedRegistrationResponse MsgType = 0x13
	PagingNotificationInbound   MsgType = 0x14
	PagingNotificationOutbound  MsgType = 0x15
	Termination                 MsgType = 0xFF
)

func (t MsgType) String() string {
	switch t {
	case Init:
		return "Init"
	case RegistrationRequest:
		return "RegistrationRequest"
	case RegistrationResponse:
		return "RegistrationResponse"
	case RelayedRegistrationRequest:
		return "RelayedRegistrationRequest"
	case RelayedRegistrationResponse:
		return "RelayedRegistrationResponse"
	case PagingNotificationInbound:
		return "PagingNotificationInbound"
	case PagingNotificationOutbound:
		return "PagingNotificationOutbound"
	case Termination:
		return "Termination"
	}
	return fmt.Sprintf("MsgType(0x%02x)", uint8(t))
}

// Valid reports whether t is a record kind. Init is excluded, it has its own layout.
func (t MsgType) Valid() bool {
	switch t {
	case RegistrationRequest, RegistrationResponse,
		RelayedRegistrationRequest, RelayedRegistrationResponse,
		PagingNotificationInbound, PagingNotificationOutbound,
		Termination:
		return true
	}
	return false
}

type Flags uint8

const (
	FlagRandomValue Flags = 0x01
	FlagTemporaryID Flags = 0x02
)

// Message is the only payload exchanged between UE, gNB and AMF.
type Message struct {
	Kind        MsgType
	Flags       Flags
	TerminalID  uint16
	PermanentID uint64
	TemporaryID uint64
}

// InitMsg is sent once by an AMF right after connecting to the gNB.
type InitMsg struct {
	AmfID    int32
	Capacity int32
}
