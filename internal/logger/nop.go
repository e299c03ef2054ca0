package logger

import "go.uber.org/zap"

// NewNop returns a logger that discards all output. Used in tests and as a
// safe default before the real logger exists.
func NewNop() Logger {
	return &zapLogger{logger: zap.NewNop()}
}
