// Package logging builds the zap loggers used by both pipeline stages.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/orneryd/capitalroutes/pkg/config"
)

// New builds a logger that writes to stdout, so progress narration and
// diagnostics land in the same stream. Format "json" selects the production
// encoder; anything else gets the human console encoder.
func New(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var zcfg zap.Config
	if cfg.Format == "json" {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zcfg.DisableStacktrace = true
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.OutputPaths = []string{"stdout"}
	zcfg.ErrorOutputPaths = []string{"stderr"}

	return zcfg.Build()
}

// MustNew is New for entry points: a broken logging config falls back to a
// production logger instead of aborting the run.
func MustNew(cfg config.LoggingConfig) *zap.Logger {
	logger, err := New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Warning: %v, using default logger\n", err)
		logger, _ = zap.NewProduction()
	}
	return logger
}

// BadgerLogger adapts a zap logger to badger.Logger so embedded store
// internals go through the same sink.
type BadgerLogger struct {
	s *zap.SugaredLogger
}

// NewBadgerLogger wraps l. Badger's chatty info output is demoted to debug.
func NewBadgerLogger(l *zap.Logger) *BadgerLogger {
	return &BadgerLogger{s: l.Named("badger").Sugar()}
}

func (b *BadgerLogger) Errorf(format string, args ...interface{})   { b.s.Errorf(format, args...) }
func (b *BadgerLogger) Warningf(format string, args ...interface{}) { b.s.Warnf(format, args...) }
func (b *BadgerLogger) Infof(format string, args ...interface{})    { b.s.Debugf(format, args...) }
func (b *BadgerLogger) Debugf(format string, args ...interface{})   { b.s.Debugf(format, args...) }
