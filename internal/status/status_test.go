package status

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"ransim/internal/gnb"
	"ransim/pkg/state"
)

type fixedSource gnb.Snapshot

func (f fixedSource) Snapshot() gnb.Snapshot { return gnb.Snapshot(f) }

func TestSnapshot(t *testing.T) {
	src := fixedSource{
		AMFs: []gnb.AMFStatus{
			{ID: 0, Capacity: 10, Load: 4, Connected: true},
			{ID: 1, Capacity: 30, Load: 12, Connected: false},
		},
		States: map[state.State]int{state.Idle: 1, state.Registered: 2, state.Connected: 13},
	}

	lis := bufconn.Listen(1 << 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, lis, src, zap.NewNop()) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	callCtx, callCancel := context.WithTimeout(ctx, 5*time.Second)
	defer callCancel()
	out, err := NewClient(conn).Snapshot(callCtx)
	require.NoError(t, err)

	got := out.AsMap()
	amfs, ok := got["amfs"].([]any)
	require.True(t, ok)
	require.Len(t, amfs, 2)
	second := amfs[1].(map[string]any)
	assert.Equal(t, 30.0, second["capacity"])
	assert.Equal(t, 12.0, second["load"])
	assert.Equal(t, false, second["connected"])

	terminals := got["terminals"].(map[string]any)
	assert.Equal(t, 13.0, terminals["CONNECTED"])
	assert.Equal(t, 1.0, terminals["IDLE"])

	cancel()
	assert.NoError(t, <-done)
}

func TestEncodeEmpty(t *testing.T) {
	out, err := Encode(gnb.Snapshot{})
	require.NoError(t, err)
	got := out.AsMap()
	assert.Empty(t, got["amfs"])
	assert.Equal(t, 0.0, got["terminals"].(map[string]any)["REGISTERED"])
}
