package audit

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/gatekeeper/internal/logging"
)

// Sink persists audit records. Implementations may block; the Dispatcher
// keeps them off the request path.
type Sink interface {
	Write(ctx context.Context, r Record) error
}

// LoggerSink writes each record as one structured log entry.
type LoggerSink struct {
	logger logging.Logger
}

func NewLoggerSink(l logging.Logger) *LoggerSink {
	return &LoggerSink{logger: l.With("module", "audit")}
}

func (s *LoggerSink) Write(ctx context.Context, r Record) error {
	args := []any{
		"audit_id", r.ID,
		"method", r.Method,
		"route", r.Route,
		"status", r.Status,
		"kind", r.Kind,
		"trace_id", r.TraceID,
		"client_addr", r.ClientAddr,
	}
	if r.CallerID != nil {
		args = append(args, "caller_id", *r.CallerID)
	}
	if r.Payload != nil {
		args = append(args, "payload", r.Payload)
	}
	s.logger.Warn(ctx, r.Message, args...)
	return nil
}

// MultiSink fans a record out to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Write(ctx context.Context, r Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
