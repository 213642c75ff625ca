package mailbox

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ransim/pkg/ngap"
	"ransim/pkg/state"
)

func TestUplinkPeekAck(t *testing.T) {
	mb := New(4)

	_, _, ok := mb.PeekUplink(1)
	assert.False(t, ok)

	req := ngap.Message{Kind: ngap.RegistrationRequest, Flags: ngap.FlagRandomValue, TerminalID: 1}
	require.NoError(t, mb.PostUplink(1, req))

	got, seq, ok := mb.PeekUplink(1)
	require.True(t, ok)
	assert.Equal(t, req, got)

	// still pending until acknowledged
	_, _, ok = mb.PeekUplink(1)
	assert.True(t, ok)

	assert.True(t, mb.AckUplink(1, seq))
	_, _, ok = mb.PeekUplink(1)
	assert.False(t, ok)
}

func TestAckIgnoresOverwrite(t *testing.T) {
	mb := New(2)
	require.NoError(t, mb.PostUplink(0, ngap.Message{Kind: ngap.RegistrationRequest, Flags: ngap.FlagRandomValue}))
	_, seq, ok := mb.PeekUplink(0)
	require.True(t, ok)

	newer := ngap.Message{Kind: ngap.RegistrationRequest, Flags: ngap.FlagTemporaryID, TemporaryID: 9}
	require.NoError(t, mb.PostUplink(0, newer))

	assert.False(t, mb.AckUplink(0, seq))
	got, seq, ok := mb.PeekUplink(0)
	require.True(t, ok)
	assert.Equal(t, newer, got)
	assert.True(t, mb.AckUplink(0, seq))
	_, _, ok = mb.PeekUplink(0)
	assert.False(t, ok)
}

func TestDownlinkLastWriteWins(t *testing.T) {
	mb := New(2)
	require.NoError(t, mb.PostDownlink(1, ngap.Message{Kind: ngap.RegistrationResponse, TemporaryID: 1}))
	require.NoError(t, mb.PostDownlink(1, ngap.Message{Kind: ngap.PagingNotificationOutbound, TemporaryID: 2}))

	got, ok := mb.TakeDownlink(1)
	require.True(t, ok)
	assert.Equal(t, ngap.PagingNotificationOutbound, got.Kind)

	_, ok = mb.TakeDownlink(1)
	assert.False(t, ok)
}

func TestOutOfRange(t *testing.T) {
	mb := New(2)
	assert.ErrorIs(t, mb.PostUplink(2, ngap.Message{}), ngap.ErrUnknownTerminal)
	assert.ErrorIs(t, mb.PostDownlink(-1, ngap.Message{}), ngap.ErrUnknownTerminal)
	assert.ErrorIs(t, mb.PublishState(5, state.Connected), ngap.ErrUnknownTerminal)
	_, ok := mb.TakeDownlink(9)
	assert.False(t, ok)
}

func TestCountStates(t *testing.T) {
	mb := New(5)
	require.NoError(t, mb.PublishState(0, state.Registered))
	require.NoError(t, mb.PublishState(1, state.Connected))
	require.NoError(t, mb.PublishState(2, state.Connected))

	counts := mb.CountStates()
	assert.Equal(t, 2, counts[state.Idle])
	assert.Equal(t, 1, counts[state.Registered])
	assert.Equal(t, 2, counts[state.Connected])
}

func TestConcurrentAccess(t *testing.T) {
	mb := New(64)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			_ = mb.PostUplink(i%64, ngap.Message{Kind: ngap.RegistrationRequest, TerminalID: uint16(i % 64)})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			if msg, seq, ok := mb.PeekUplink(i % 64); ok {
				assert.Equal(t, uint16(i%64), msg.TerminalID)
				mb.AckUplink(i%64, seq)
			}
		}
	}()
	wg.Wait()
}
