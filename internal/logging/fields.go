package logging

import (
	"context"
	"fmt"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel/trace"
)

// ContextFields extracts correlation ids carried by ctx: the chi request id
// and the OpenTelemetry trace id.
func ContextFields(ctx context.Context) []any {
	if ctx == nil {
		return nil
	}

	var fields []any
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		fields = append(fields, "request_id", reqID)
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		fields = append(fields, "trace_id", sc.TraceID().String())
	}
	return fields
}

// ErrorAttrs renders err as key–value pairs. Errors built with oops also
// contribute their code and context.
func ErrorAttrs(err error) []any {
	if err == nil {
		return nil
	}

	attrs := []any{"error", err.Error()}
	if oopsErr, ok := oops.AsOops(err); ok {
		if code := oopsErr.Code(); code != nil {
			attrs = append(attrs, "error_code", fmt.Sprint(code))
		}
		for k, v := range oopsErr.Context() {
			attrs = append(attrs, k, v)
		}
	}
	return attrs
}
