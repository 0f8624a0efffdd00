// Package cookies is the only place that knows the names and attributes of
// the credential cookies.
package cookies

import (
	"net/http"
	"strings"
	"time"
)

const (
	AccessTokenName  = "accessToken"
	RenewalTokenName = "refreshToken"
)

// Transport reads and writes credential cookies. The Secure attribute is
// fixed at construction: off in development, on otherwise.
type Transport struct {
	development bool
	accessTTL   time.Duration
	renewalTTL  time.Duration
	now         func() time.Time
}

func NewTransport(development bool, accessTTL, renewalTTL time.Duration) *Transport {
	return &Transport{
		development: development,
		accessTTL:   accessTTL,
		renewalTTL:  renewalTTL,
		now:         time.Now,
	}
}

func (t *Transport) cookie(name, value string, ttl time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   !t.development,
		SameSite: http.SameSiteStrictMode,
	}
	if ttl > 0 {
		c.MaxAge = int(ttl / time.Second)
		c.Expires = t.now().Add(ttl)
	} else {
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
	}
	return c
}

// SetCredential installs both cookies.
func (t *Transport) SetCredential(w http.ResponseWriter, accessToken, renewalToken string) {
	http.SetCookie(w, t.cookie(AccessTokenName, accessToken, t.accessTTL))
	http.SetCookie(w, t.cookie(RenewalTokenName, renewalToken, t.renewalTTL))
}

// ClearCredential expires both cookies. Safe to call without a session.
func (t *Transport) ClearCredential(w http.ResponseWriter) {
	http.SetCookie(w, t.cookie(AccessTokenName, "", 0))
	http.SetCookie(w, t.cookie(RenewalTokenName, "", 0))
}

// GetAccess returns the access token from its cookie, falling back to an
// "Authorization: Bearer" header.
func (t *Transport) GetAccess(r *http.Request) (string, bool) {
	if v, ok := read(r, AccessTokenName); ok {
		return v, true
	}

	h := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// GetRenewal returns the renewal token cookie.
func (t *Transport) GetRenewal(r *http.Request) (string, bool) {
	return read(r, RenewalTokenName)
}

func read(r *http.Request, name string) (string, bool) {
	c, err := r.Cookie(name)
	if err != nil {
		return "", false
	}
	v := strings.TrimSpace(c.Value)
	return v, v != ""
}
