package util

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	loggerMu sync.Mutex
	logger   *zap.Logger
)

// InitLogger builds the process logger for env and installs it as the zap
// global. Every entry carries a "service" field naming this process.
//
//	production  JSON, info and above
//	test        discards everything
//	other       console encoder with colored levels, debug and above
func InitLogger(env string) error {
	base, err := buildLogger(env)
	if err != nil {
		return err
	}
	install(base)
	return nil
}

func buildLogger(env string) (*zap.Logger, error) {
	switch env {
	case "production":
		return zap.NewProductionConfig().Build()
	case "test":
		return zap.NewNop(), nil
	}
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return config.Build()
}

func install(base *zap.Logger) {
	l := base.With(zap.String("service", ServiceName))
	loggerMu.Lock()
	logger = l
	loggerMu.Unlock()
	zap.ReplaceGlobals(l)
}

// GetLogger returns the process logger. Before InitLogger runs it falls back
// to the development logger.
func GetLogger() *zap.Logger {
	loggerMu.Lock()
	l := logger
	loggerMu.Unlock()
	if l != nil {
		return l
	}
	if err := InitLogger("development"); err != nil {
		return zap.NewNop()
	}
	return GetLogger()
}

// SyncLogger flushes any buffered log entries
func SyncLogger() {
	_ = GetLogger().Sync()
}
