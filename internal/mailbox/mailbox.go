// Package mailbox holds the slot array shared by the gNB and the terminal
// population. Each slot carries one uplink and one downlink message; a newer
// write replaces an unread one.
package mailbox

import (
	"fmt"
	"sync"

	"ransim/pkg/ngap"
	"ransim/pkg/state"
)

type Slot struct {
	Uplink      ngap.Message
	UplinkReady bool
	uplinkSeq   uint64

	Downlink      ngap.Message
	DownlinkReady bool

	State state.State
}

type Mailbox struct {
	mu    sync.Mutex
	slots []Slot
}

func New(n int) *Mailbox {
	return &Mailbox{slots: make([]Slot, n)}
}

func (m *Mailbox) Len() int {
	return len(m.slots)
}

func (m *Mailbox) check(id int) error {
	if id < 0 || id >= len(m.slots) {
		return fmt.Errorf("slot %d of %d: %w", id, len(m.slots), ngap.ErrUnknownTerminal)
	}
	return nil
}

// PostUplink publishes msg for the gNB, replacing any unread uplink.
func (m *Mailbox) PostUplink(id int, msg ngap.Message) error {
	if err := m.check(id); err != nil {
		return err
	}
	m.mu.Lock()
	s := &m.slots[id]
	s.Uplink = msg
	s.uplinkSeq++
	s.UplinkReady = true
	m.mu.Unlock()
	return nil
}

// PeekUplink returns the pending uplink without consuming it. The sequence
// number must be passed to AckUplink.
func (m *Mailbox) PeekUplink(id int) (ngap.Message, uint64, bool) {
	if m.check(id) != nil {
		return ngap.Message{}, 0, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &m.slots[id]
	if !s.UplinkReady {
		return ngap.Message{}, 0, false
	}
	return s.Uplink, s.uplinkSeq, true
}

// AckUplink consumes the uplink peeked with seq. It is a no-op if the slot
// was overwritten since.
func (m *Mailbox) AckUplink(id int, seq uint64) bool {
	if m.check(id) != nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &m.slots[id]
	if !s.UplinkReady || s.uplinkSeq != seq {
		return false
	}
	s.UplinkReady = false
	return true
}

func (m *Mailbox) PostDownlink(id int, msg ngap.Message) error {
	if err := m.check(id); err != nil {
		return err
	}
	m.mu.Lock()
	s := &m.slots[id]
	s.Downlink = msg
	s.DownlinkReady = true
	m.mu.Unlock()
	return nil
}

func (m *Mailbox) TakeDownlink(id int) (ngap.Message, bool) {
	if m.check(id) != nil {
		return ngap.Message{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &m.slots[id]
	if !s.DownlinkReady {
		return ngap.Message{}, false
	}
	s.DownlinkReady = false
	return s.Downlink, true
}

func (m *Mailbox) PublishState(id int, st state.State) error {
	if err := m.check(id); err != nil {
		return err
	}
	m.mu.Lock()
	m.slots[id].State = st
	m.mu.Unlock()
	return nil
}

// CountStates tallies published states over all slots.
func (m *Mailbox) CountStates() map[state.State]int {
	counts := make(map[state.State]int, len(state.All))
	for _, st := range state.All {
		counts[st] = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.slots {
		counts[m.slots[i].State]++
	}
	return counts
}
