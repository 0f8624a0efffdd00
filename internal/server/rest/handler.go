// Package rest is the HTTP surface of the gatekeeper server: the auth
// endpoints, the access gate in front of them and the failure mapper that
// turns every error into a response.
package rest

import (
	"context"
	"net/http"
)

// Handler is a pipeline stage. A non-nil error is rendered by the
// FailureMapper; the handler must not have written a response in that case.
type Handler func(w http.ResponseWriter, r *http.Request) error

// Access is the marker a route declares for the AccessGate.
type Access int

const (
	// AccessUnmarked routes follow the configured unmarked-route policy.
	AccessUnmarked Access = iota
	AccessPublic
	AccessProtected
)

func (a Access) String() string {
	switch a {
	case AccessPublic:
		return "public"
	case AccessProtected:
		return "protected"
	default:
		return "unmarked"
	}
}

// requestMeta collects what the failure audit record needs but only inner
// stages learn, such as the authenticated caller.
type requestMeta struct {
	callerID *int64
}

type metaKey struct{}

func withMeta(ctx context.Context, m *requestMeta) context.Context {
	return context.WithValue(ctx, metaKey{}, m)
}

func metaFromContext(ctx context.Context) *requestMeta {
	m, _ := ctx.Value(metaKey{}).(*requestMeta)
	return m
}
