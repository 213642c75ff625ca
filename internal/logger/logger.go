package logger

import (
	"github.com/gofrs/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"ransim/internal/config"
)

// New builds the process logger and tags it with a fresh run id.
func New(cfg config.LogConfig) (*zap.Logger, string, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, "", err
	}

	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	logger, err := zc.Build()
	if err != nil {
		return nil, "", err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, "", err
	}
	run := id.String()
	return logger.With(zap.String("run", run)), run, nil
}
