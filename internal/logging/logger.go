// Package logging provides zap logger helpers.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a zap.Logger configured for development or production.
func New(development bool) (*zap.Logger, error) {
	if development {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		logger, err := cfg.Build()
		if err != nil {
			return nil, fmt.Errorf("build dev logger: %w", err)
		}
		return logger, nil
	}
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = false
	cfg.EncoderConfig.TimeKey = "ts"
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build prod logger: %w", err)
	}
	return logger, nil
}

// NewWithFile builds the console logger from New and, when jsonlPath is set,
// tees every entry at info level and above into an append-only JSON-lines file.
// The returned close function syncs and closes the file.
func NewWithFile(development bool, jsonlPath string) (*zap.Logger, func() error, error) {
	logger, err := New(development)
	if err != nil {
		return nil, nil, err
	}
	if jsonlPath == "" {
		return logger, func() error { _ = logger.Sync(); return nil }, nil
	}
	if dir := filepath.Dir(jsonlPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
	}
	file, err := os.OpenFile(jsonlPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open jsonl log: %w", err)
	}
	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(jsonlEncoderConfig()),
		zapcore.AddSync(file),
		zapcore.InfoLevel,
	)
	teed := logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, fileCore)
	}))
	closeFn := func() error {
		_ = teed.Sync()
		if err := file.Close(); err != nil {
			return fmt.Errorf("close jsonl log: %w", err)
		}
		return nil
	}
	return teed, closeFn, nil
}

func jsonlEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.MessageKey = "action"
	return cfg
}
