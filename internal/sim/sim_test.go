package sim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"ransim/internal/config"
	"ransim/internal/metrics"
)

func fastConfig(terminals int, capacities ...int) config.Config {
	cfg := config.Default()
	cfg.Gnb.Listen = "127.0.0.1:0"
	cfg.Gnb.Terminals = terminals
	cfg.Gnb.MonitorInterval = 20 * time.Millisecond
	cfg.Amf.Capacities = capacities
	cfg.Amf.PagingStep = 10 * time.Millisecond
	cfg.Amf.RetryInterval = 10 * time.Millisecond
	cfg.UE.IdleStep = 10 * time.Millisecond
	cfg.UE.RetryInterval = 200 * time.Millisecond
	return cfg
}

func testEnv() Env {
	return Env{
		Run:     "test",
		Log:     zap.NewNop(),
		Metrics: metrics.NewNop(),
		Clock:   clock.RealClock{},
	}
}

func TestRunConnectsEveryone(t *testing.T) {
	cfg := fastConfig(40, 10, 30)
	require.NoError(t, cfg.Validate())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	summary, err := Run(ctx, cfg, testEnv())
	require.NoError(t, err)
	require.NoError(t, ctx.Err(), "run did not finish on its own")

	assert.Equal(t, 40, summary.Terminals)
	assert.Equal(t, 40, summary.Connected())
	assert.Equal(t, "test", summary.Run)

	require.Len(t, summary.AMFs, 2)
	for _, a := range summary.AMFs {
		assert.Equal(t, a.Capacity, a.Load, "AMF %d", a.ID)
	}
}

func TestRunWithoutCapacityStopsOnCancel(t *testing.T) {
	cfg := fastConfig(5, 3)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	summary, err := Run(ctx, cfg, testEnv())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Connected())
	require.Len(t, summary.AMFs, 1)
	assert.Equal(t, 3, summary.AMFs[0].Load)
}

func TestNewCoreBuildsInIDOrder(t *testing.T) {
	cfg := fastConfig(4, 3, 5, 7)
	amfs := NewCore(cfg, testEnv(), 2, cfg.Amf.Capacities)
	require.Len(t, amfs, 3)
	for i, a := range amfs {
		assert.Equal(t, 2+i, a.ID)
		assert.Equal(t, cfg.Amf.Capacities[i], a.Capacity)
		assert.Zero(t, a.Load())
	}
}
