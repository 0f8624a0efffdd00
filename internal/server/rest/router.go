package rest

import (
	"net/http"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Router is the chi mux with every route wrapped as
// mapper(gate(handler)).
type Router struct {
	mux      chi.Router
	mapper   *FailureMapper
	gate     *AccessGate
	unmarked []string
}

// NewRouter registers the gatekeeper routes. m may be nil, in which case
// /metrics is not served.
func NewRouter(mapper *FailureMapper, gate *AccessGate, h *AuthHandlers, m *metrics.Metrics, logger logging.Logger) *Router {
	rt := &Router{mux: chi.NewRouter(), mapper: mapper, gate: gate}

	rt.mux.Use(middleware.RequestID)
	rt.mux.Use(middleware.RealIP)
	rt.mux.Use(accessLog(logger.With("module", "http"), m))

	rt.mux.NotFound(mapper.Wrap(func(http.ResponseWriter, *http.Request) error {
		return common.NotFound("route.not_found", "Resource not found", nil)
	}).ServeHTTP)
	rt.mux.MethodNotAllowed(mapper.Wrap(func(_ http.ResponseWriter, r *http.Request) error {
		return common.NotFound("route.method_not_allowed", "Method not allowed", r.Method)
	}).ServeHTTP)

	rt.mux.Route("/auth", func(r chi.Router) {
		rt.handle(r, http.MethodPost, "/register", AccessPublic, h.Register)
		rt.handle(r, http.MethodPost, "/login", AccessPublic, h.Login)
		rt.handle(r, http.MethodPost, "/refresh-token", AccessPublic, h.Refresh)
		r.Method(http.MethodPost, "/logout", mapper.Wrap(h.ClearingCredentials(gate.Guard(AccessProtected, h.Logout))))
		rt.handle(r, http.MethodGet, "/me", AccessProtected, h.Me)
	})

	rt.handle(rt.mux, http.MethodGet, "/health", AccessUnmarked, health)
	if m != nil {
		rt.handle(rt.mux, http.MethodGet, "/metrics", AccessUnmarked, func(w http.ResponseWriter, r *http.Request) error {
			m.Handler().ServeHTTP(w, r)
			return nil
		})
	}

	return rt
}

func (rt *Router) handle(r chi.Router, method, pattern string, access Access, h Handler) {
	if access == AccessUnmarked {
		rt.unmarked = append(rt.unmarked, method+" "+pattern)
	}
	r.Method(method, pattern, rt.mapper.Wrap(rt.gate.Guard(access, h)))
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt.mux.ServeHTTP(w, r)
}

// Unmarked lists the routes registered without an access marker.
func (rt *Router) Unmarked() []string {
	return rt.unmarked
}

func health(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, err := w.Write([]byte("OK"))
	return err
}
