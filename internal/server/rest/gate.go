package rest

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/server/auth"
	"github.com/dmitrijs2005/gatekeeper/internal/server/cookies"
)

// AccessGate authenticates requests to protected routes. It never writes a
// response; failures are returned to the FailureMapper.
type AccessGate struct {
	codec        *auth.TokenCodec
	cookies      *cookies.Transport
	denyUnmarked bool
}

// NewAccessGate builds a gate. denyUnmarked treats routes without a marker
// as protected.
func NewAccessGate(codec *auth.TokenCodec, transport *cookies.Transport, denyUnmarked bool) *AccessGate {
	return &AccessGate{codec: codec, cookies: transport, denyUnmarked: denyUnmarked}
}

// Guard puts the gate in front of next according to access.
func (g *AccessGate) Guard(access Access, next Handler) Handler {
	if !g.protects(access) {
		return next
	}

	return func(w http.ResponseWriter, r *http.Request) error {
		claims, err := g.authenticate(r)
		if err != nil {
			return err
		}

		ctx := auth.WithClaims(r.Context(), claims)
		if meta := metaFromContext(ctx); meta != nil {
			id := claims.SubjectID
			meta.callerID = &id
		}
		return next(w, r.WithContext(ctx))
	}
}

func (g *AccessGate) protects(access Access) bool {
	switch access {
	case AccessPublic:
		return false
	case AccessProtected:
		return true
	default:
		return g.denyUnmarked
	}
}

func (g *AccessGate) authenticate(r *http.Request) (*auth.Claims, error) {
	token, ok := g.cookies.GetAccess(r)
	if !ok {
		return nil, common.Unauthorized(common.ReasonMissingToken)
	}

	claims, err := g.codec.Decode(token)
	if err != nil {
		if errors.Is(err, common.ErrTokenExpired) {
			return nil, common.Unauthorized(common.ReasonTokenExpired).Wrap(err)
		}
		return nil, common.Unauthorized(common.ReasonTokenInvalid).Wrap(err)
	}
	return claims, nil
}
