package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Log = zap.NewNop()

// Init builds the process-wide logger. JSON output is meant for containers,
// console output for local runs.
func Init(json, debug bool) *zap.Logger {
	config := zap.NewProductionConfig()
	if !json {
		config.Encoding = "console"
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.MessageKey = "message"
	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}
	if debug {
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	l, err := config.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		l, _ = zap.NewProduction()
	}
	Log = l
	return l
}

// Named returns a child of the global logger, or a no-op logger before Init.
func Named(name string) *zap.Logger {
	return Log.Named(name)
}

// OrNop guards components that accept an optional logger.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
