package logger

import (
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ransim/internal/config"
)

func TestNew(t *testing.T) {
	log, run, err := New(config.LogConfig{Level: "warn", Development: false})
	require.NoError(t, err)
	defer log.Sync()

	id, err := uuid.FromString(run)
	require.NoError(t, err)
	assert.Equal(t, byte(uuid.V4), id.Version())

	assert.False(t, log.Core().Enabled(zap.InfoLevel))
	assert.True(t, log.Core().Enabled(zap.WarnLevel))
}

func TestNewBadLevel(t *testing.T) {
	_, _, err := New(config.LogConfig{Level: "chatty"})
	assert.Error(t, err)
}
