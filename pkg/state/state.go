package state

// State is the terminal state published through the mailbox.
type State uint8

const (
	Idle State = iota
	Registered
	Connected
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Registered:
		return "REGISTERED"
	case Connected:
		return "CONNECTED"
	}
	return "UNKNOWN"
}

// All lists every state in publication order.
var All = []State{Idle, Registered, Connected}
