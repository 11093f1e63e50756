// Package paymentlog defines the structured log sink the payment core emits
// to. The core never writes files, stderr, or metrics itself; everything
// goes through a Sink so collaborators decide where it lands.
package paymentlog

import "go.uber.org/zap"

// Sink is the observability boundary described by the core: info records on
// state transitions and creation, security records on reorg detection.
type Sink interface {
	Info(msg string, fields ...zap.Field)
	Security(msg string, fields ...zap.Field)
}

// zapSink adapts a *zap.Logger to Sink. Security events are tagged with a
// field rather than a distinct zap level, since zap has no security level.
type zapSink struct {
	logger *zap.Logger
}

// New wraps an existing zap logger as a Sink.
func New(logger *zap.Logger) Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &zapSink{logger: logger}
}

func (s *zapSink) Info(msg string, fields ...zap.Field) {
	s.logger.Info(msg, fields...)
}

func (s *zapSink) Security(msg string, fields ...zap.Field) {
	s.logger.Warn(msg, append(fields, zap.String("category", "security"))...)
}

// Nop returns a Sink that discards everything, for tests.
func Nop() Sink {
	return New(zap.NewNop())
}
