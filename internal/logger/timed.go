package logger

import (
	"time"

	"go.uber.org/zap"
)

// Timed logs the wall time of a pipeline stage. Usage:
//
//	defer logger.Timed(log, "build_row_index")()
func Timed(l *zap.Logger, stage string, fields ...zap.Field) func() {
	start := time.Now()
	l.Debug("Stage started", append([]zap.Field{zap.String("stage", stage)}, fields...)...)
	return func() {
		l.Info("Stage finished",
			append([]zap.Field{
				zap.String("stage", stage),
				zap.Duration("elapsed", time.Since(start)),
			}, fields...)...,
		)
	}
}
