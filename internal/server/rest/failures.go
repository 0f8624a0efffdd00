package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/audit"
	"github.com/dmitrijs2005/gatekeeper/internal/server/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel/trace"
)

// fallbackBody is written when rendering the real failure body itself fails.
const fallbackBody = `{"status":500,"message":"An error occurred","type":"Internal"}`

// Auditor receives failure records. Emit must not block.
type Auditor interface {
	Emit(r audit.Record)
}

type errorBody struct {
	Status    int           `json:"status"`
	Message   string        `json:"message"`
	Type      string        `json:"type"`
	TraceID   string        `json:"traceId"`
	Timestamp string        `json:"timestamp"`
	Details   *errorDetails `json:"details,omitempty"`
}

type errorDetails struct {
	Error      string         `json:"error"`
	ErrorType  string         `json:"errorType"`
	Code       string         `json:"code,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
	Stacktrace string         `json:"stacktrace,omitempty"`
}

// FailureMapper is the outermost stage of every route. It recovers panics
// and renders the error returned by the pipeline exactly once.
type FailureMapper struct {
	logger      logging.Logger
	auditor     Auditor
	metrics     *metrics.Metrics
	development bool
	now         func() time.Time
}

// NewFailureMapper builds a mapper. auditor and m may be nil.
func NewFailureMapper(logger logging.Logger, auditor Auditor, m *metrics.Metrics, development bool) *FailureMapper {
	return &FailureMapper{
		logger:      logger.With("module", "failure_mapper"),
		auditor:     auditor,
		metrics:     m,
		development: development,
		now:         time.Now,
	}
}

// Wrap adapts h to net/http.
func (m *FailureMapper) Wrap(h Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tw := &trackingWriter{ResponseWriter: w}
		meta := &requestMeta{}
		r = r.WithContext(withMeta(r.Context(), meta))

		if err := m.run(h, tw, r); err != nil {
			m.Map(tw, r, err)
		}
	})
}

func (m *FailureMapper) run(h Handler, w http.ResponseWriter, r *http.Request) (err error) {
	defer func() {
		if p := recover(); p != nil {
			if p == http.ErrAbortHandler {
				panic(p)
			}
			err = oops.Code("HANDLER_PANIC").With("panic", fmt.Sprint(p)).Errorf("panic: %v", p)
		}
	}()
	return h(w, r)
}

// Map renders err on w. A response that has already started is left alone.
func (m *FailureMapper) Map(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	tw, ok := w.(*trackingWriter)
	if !ok {
		tw = &trackingWriter{ResponseWriter: w}
	}

	defer func() {
		if p := recover(); p != nil {
			m.logger.Error(ctx, "failure mapper panicked", "panic", fmt.Sprint(p))
			if !tw.started() {
				tw.Header().Set("Content-Type", "application/json")
				tw.WriteHeader(http.StatusInternalServerError)
				_, _ = tw.Write([]byte(fallbackBody))
			}
		}
	}()

	if tw.started() {
		m.logger.Warn(ctx, "response already started, failure not rendered",
			append(logging.ErrorAttrs(err), "path", r.URL.Path)...)
		return
	}

	kind := common.KindOf(err)
	failure, _ := common.AsFailure(err)
	status := kind.HTTPStatus()
	traceID := TraceID(r)
	msg := m.message(r, kind, failure, err)

	body := errorBody{
		Status:    status,
		Message:   msg,
		Type:      kind.String(),
		TraceID:   traceID,
		Timestamp: m.now().UTC().Format(time.RFC3339),
	}
	if m.development {
		body.Details = details(err)
	}

	render.Status(r, status)
	render.JSON(tw, r, body)

	attrs := append(logging.ErrorAttrs(err), "status", status, "kind", kind.String(), "trace_id", traceID)
	if kind == common.KindInternal {
		m.logger.Error(ctx, "request failed", attrs...)
	} else {
		m.logger.Info(ctx, "request rejected", attrs...)
	}

	m.metrics.ObserveFailure(kind.String())
	m.emit(r, status, kind, msg, failure, traceID)
}

func (m *FailureMapper) message(r *http.Request, kind common.Kind, f *common.Failure, err error) string {
	switch {
	case kind == common.KindUnauthorized:
		return f.Message
	case kind == common.KindInternal && m.development:
		return err.Error()
	case kind == common.KindInternal:
		return localize(requestLanguage(r), "internal", "An error occurred")
	default:
		return localize(requestLanguage(r), f.Key, f.Message)
	}
}

func (m *FailureMapper) emit(r *http.Request, status int, kind common.Kind, msg string, f *common.Failure, traceID string) {
	if m.auditor == nil {
		return
	}

	at := m.now().UTC()
	rec := audit.Record{
		ID:         audit.NewRecordID(at),
		At:         at,
		Method:     r.Method,
		Route:      routeOf(r),
		ClientAddr: r.RemoteAddr,
		Status:     status,
		Kind:       kind.String(),
		Message:    msg,
		TraceID:    traceID,
	}
	if f != nil {
		rec.Payload = f.Payload
	}
	if meta := metaFromContext(r.Context()); meta != nil {
		rec.CallerID = meta.callerID
	}

	m.auditor.Emit(rec)
}

func details(err error) *errorDetails {
	d := &errorDetails{
		Error:     err.Error(),
		ErrorType: fmt.Sprintf("%T", err),
	}
	if oopsErr, ok := oops.AsOops(err); ok {
		if code := oopsErr.Code(); code != nil {
			d.Code = fmt.Sprint(code)
		}
		d.Context = oopsErr.Context()
		d.Stacktrace = oopsErr.Stacktrace()
	}
	return d
}

// TraceID returns the OpenTelemetry trace id of r, else the chi request id,
// else a fresh uuid.
func TraceID(r *http.Request) string {
	return traceIDFromContext(r.Context())
}

func traceIDFromContext(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	if id := middleware.GetReqID(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}

// routeOf prefers the chi route pattern over the raw path.
func routeOf(r *http.Request) string {
	if p := routePattern(r); p != "" {
		return p
	}
	return r.URL.Path
}
