// Package logger provides structured logging for the Ember authentication
// core.
//
// This package wraps Uber's zap logger to provide high-performance, structured
// logging with configurable log levels. It initializes a global logger
// instance for use throughout the service.
//
// # Usage
//
// After initialization, use the global Log variable:
//
//	logger.Log.Info("totp verified",
//	    zap.String("uid", uid),
//	)
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Log *zap.Logger

func InitLogger(level string) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zap.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var err error
	Log, err = cfg.Build()
	if err != nil {
		panic(err)
	}
}

func init() {
	// Safe default so packages can log before main wires the real level.
	Log = zap.NewNop()
}
