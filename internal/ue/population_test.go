package ue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	testingclock "k8s.io/utils/clock/testing"

	"ransim/internal/mailbox"
	"ransim/internal/metrics"
	"ransim/pkg/ngap"
	"ransim/pkg/state"
)

func newTestPopulation(t *testing.T, n int) (*Population, *mailbox.Mailbox) {
	t.Helper()
	mb := mailbox.New(n)
	p := NewPopulation(Config{
		Terminals:         n,
		PermanentIDBase:   perm0,
		IdleStep:          500 * time.Millisecond,
		Tick:              time.Millisecond,
		MaxServiceRetries: 3,
	}, mb, testingclock.NewFakeClock(t0), zap.NewNop(), metrics.NewNop())
	return p, mb
}

// answer plays the gNB and AMF for every pending uplink.
func answer(t *testing.T, mb *mailbox.Mailbox, amf int) int {
	t.Helper()
	n := 0
	for i := 0; i < mb.Len(); i++ {
		req, seq, ok := mb.PeekUplink(i)
		if !ok {
			continue
		}
		require.True(t, mb.AckUplink(i, seq))
		tmp := req.TemporaryID
		if req.Flags == ngap.FlagRandomValue {
			tmp = ngap.TemporaryID(amf, req.PermanentID)
		}
		require.NoError(t, mb.PostDownlink(i, ngap.Message{
			Kind:        ngap.RegistrationResponse,
			Flags:       req.Flags,
			TerminalID:  uint16(i),
			TemporaryID: tmp,
		}))
		n++
	}
	return n
}

func TestPopulationIdleTimeouts(t *testing.T) {
	p, _ := newTestPopulation(t, 50)
	for i := 0; i < p.Len(); i++ {
		u := p.UE(i)
		assert.Equal(t, perm0+uint64(i), u.PermanentID)
		assert.GreaterOrEqual(t, u.IdleTimeout, 500*time.Millisecond)
		assert.LessOrEqual(t, u.IdleTimeout, 3*time.Second)
		assert.Zero(t, u.IdleTimeout%(500*time.Millisecond))
	}
}

func TestPopulationLifecycle(t *testing.T) {
	p, mb := newTestPopulation(t, 4)

	p.Tick(t0)
	for i := 0; i < 4; i++ {
		req, _, ok := mb.PeekUplink(i)
		require.True(t, ok)
		assert.Equal(t, ngap.FlagRandomValue, req.Flags)
	}

	// no duplicate requests while waiting
	require.Equal(t, 4, answer(t, mb, 1))
	p.Tick(t0.Add(time.Millisecond))
	assert.Equal(t, 4, p.Count()[state.Registered])
	assert.Equal(t, 4, mb.CountStates()[state.Registered])
	assert.Equal(t, 0, answer(t, mb, 1))

	// everyone times out to IDLE, then gets paged
	now := t0.Add(4 * time.Second)
	p.Tick(now)
	assert.Equal(t, 4, p.Count()[state.Idle])
	assert.Equal(t, 0, answer(t, mb, 1))

	for i := 0; i < 4; i++ {
		require.NoError(t, mb.PostDownlink(i, paging(p.UE(i).TemporaryID)))
	}
	p.Tick(now.Add(time.Millisecond))
	for i := 0; i < 4; i++ {
		req, _, ok := mb.PeekUplink(i)
		require.True(t, ok)
		assert.Equal(t, ngap.FlagTemporaryID, req.Flags)
		assert.Equal(t, 1, ngap.OwnerAMF(req.TemporaryID))
	}

	require.Equal(t, 4, answer(t, mb, 1))
	p.Tick(now.Add(2 * time.Millisecond))
	assert.Equal(t, 4, p.Count()[state.Connected])
	assert.Equal(t, 4, mb.CountStates()[state.Connected])
}

func TestPopulationIgnoresForeignPaging(t *testing.T) {
	p, mb := newTestPopulation(t, 2)
	p.Tick(t0)
	answer(t, mb, 0)
	p.Tick(t0)

	require.NoError(t, mb.PostDownlink(0, paging(p.UE(1).TemporaryID)))
	p.Tick(t0.Add(time.Millisecond))

	u0 := p.UE(0)
	assert.True(t, u0.InState(state.Registered))
	_, _, ok := mb.PeekUplink(0)
	assert.False(t, ok)
}
