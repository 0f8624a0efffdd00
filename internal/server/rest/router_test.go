package rest

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/auth"
	"github.com/dmitrijs2005/gatekeeper/internal/server/cookies"
	"github.com/dmitrijs2005/gatekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/services"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSessions struct {
	registerIn  services.RegisterInput
	registerOut *models.IdentitySummary
	registerErr error

	loginUser, loginPass string
	loginOut             *services.LoginResult
	loginErr             error

	refreshAccess, refreshRenewal string
	refreshOut                    *services.TokenPair
	refreshErr                    error

	logoutCalled  bool
	logoutSubject int64
}

func (s *stubSessions) Register(_ context.Context, in services.RegisterInput) (*models.IdentitySummary, error) {
	s.registerIn = in
	return s.registerOut, s.registerErr
}

func (s *stubSessions) Login(_ context.Context, userName, password string) (*services.LoginResult, error) {
	s.loginUser, s.loginPass = userName, password
	return s.loginOut, s.loginErr
}

func (s *stubSessions) Refresh(_ context.Context, access, renewal string) (*services.TokenPair, error) {
	s.refreshAccess, s.refreshRenewal = access, renewal
	return s.refreshOut, s.refreshErr
}

func (s *stubSessions) Logout(ctx context.Context, _ *int64) bool {
	s.logoutCalled = true
	if c, ok := auth.ClaimsFromContext(ctx); ok {
		s.logoutSubject = c.SubjectID
	}
	return true
}

func (s *stubSessions) Me(ctx context.Context) (*auth.Claims, error) {
	c, ok := auth.ClaimsFromContext(ctx)
	if !ok {
		return nil, common.Unauthorized(common.ReasonMissingToken)
	}
	return c, nil
}

type routerFixture struct {
	router   *Router
	sessions *stubSessions
	codec    *auth.TokenCodec
	metrics  *metrics.Metrics
}

func newRouterFixture(t *testing.T, denyUnmarked bool) *routerFixture {
	t.Helper()
	codec := newTestCodec(t)
	transport := newTestTransport()
	s := &stubSessions{}
	m := metrics.New()

	mapper := NewFailureMapper(logging.Nop(), nil, m, false)
	gate := NewAccessGate(codec, transport, denyUnmarked)
	rt := NewRouter(mapper, gate, NewAuthHandlers(s, transport), m, logging.Nop())

	return &routerFixture{router: rt, sessions: s, codec: codec, metrics: m}
}

func (f *routerFixture) do(r *http.Request) *httptest.ResponseRecorder {
	return serve(f.router, r)
}

func jsonRequest(method, path, body string) *http.Request {
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func cookieByName(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestRouter_Register(t *testing.T) {
	f := newRouterFixture(t, false)
	f.sessions.registerOut = &models.IdentitySummary{ID: 3, UserName: "ann", DisplayName: "Ann", Role: models.RoleUser, Active: true}

	rec := f.do(jsonRequest(http.MethodPost, "/auth/register",
		`{"username":"ann","password":"secret1","displayName":"Ann","email":"ann@example.com","roleId":2}`))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "ann", f.sessions.registerIn.UserName)
	assert.Equal(t, "secret1", f.sessions.registerIn.Password)
	require.NotNil(t, f.sessions.registerIn.Email)
	assert.Equal(t, "ann@example.com", *f.sessions.registerIn.Email)
	assert.Equal(t, 2, f.sessions.registerIn.RoleID)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(3), body["id"])
	assert.Equal(t, "ann", body["username"])
	assert.NotContains(t, body, "passwordVerifier")
}

func TestRouter_RegisterConflict(t *testing.T) {
	f := newRouterFixture(t, false)
	f.sessions.registerErr = common.Conflict("auth.username.taken", "Username is already taken", "ann")

	rec := f.do(jsonRequest(http.MethodPost, "/auth/register", `{"username":"ann"}`))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRouter_MalformedBody(t *testing.T) {
	f := newRouterFixture(t, false)

	for _, path := range []string{"/auth/register", "/auth/login"} {
		rec := f.do(jsonRequest(http.MethodPost, path, `{"username":`))
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
		assert.Equal(t, "Malformed request body", decodeBody(t, rec)["message"], path)
	}
}

func TestRouter_LoginSetsCookies(t *testing.T) {
	f := newRouterFixture(t, false)
	f.sessions.loginOut = &services.LoginResult{
		Tokens: services.TokenPair{AccessToken: "acc", RenewalToken: "ren"},
		User:   models.IdentitySummary{ID: 4, UserName: "bo", DisplayName: "Bo", Role: models.RoleAdmin},
	}

	rec := f.do(jsonRequest(http.MethodPost, "/auth/login", `{"username":"bo","password":"hunter22"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "bo", f.sessions.loginUser)
	assert.Equal(t, "hunter22", f.sessions.loginPass)

	access := cookieByName(rec, cookies.AccessTokenName)
	require.NotNil(t, access)
	assert.Equal(t, "acc", access.Value)
	assert.True(t, access.HttpOnly)
	renewal := cookieByName(rec, cookies.RenewalTokenName)
	require.NotNil(t, renewal)
	assert.Equal(t, "ren", renewal.Value)

	user := decodeBody(t, rec)["user"].(map[string]any)
	assert.Equal(t, float64(4), user["id"])
	assert.Equal(t, "bo", user["username"])
	assert.Equal(t, "Bo", user["displayName"])
	assert.Equal(t, "Admin", user["role"])
}

func TestRouter_LoginFailureSetsNoCookies(t *testing.T) {
	f := newRouterFixture(t, false)
	f.sessions.loginErr = common.Validation("auth.credentials.invalid", "Invalid username or password")

	rec := f.do(jsonRequest(http.MethodPost, "/auth/login", `{"username":"bo","password":"wrong1"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
}

func TestRouter_RefreshFromCookies(t *testing.T) {
	f := newRouterFixture(t, false)
	f.sessions.refreshOut = &services.TokenPair{AccessToken: "acc2", RenewalToken: "ren2"}

	r := httptest.NewRequest(http.MethodPost, "/auth/refresh-token", nil)
	r.AddCookie(&http.Cookie{Name: cookies.AccessTokenName, Value: "acc1"})
	r.AddCookie(&http.Cookie{Name: cookies.RenewalTokenName, Value: "ren1"})
	rec := f.do(r)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "acc1", f.sessions.refreshAccess)
	assert.Equal(t, "ren1", f.sessions.refreshRenewal)
	assert.Equal(t, "token refreshed", decodeBody(t, rec)["message"])
	assert.Equal(t, "acc2", cookieByName(rec, cookies.AccessTokenName).Value)
	assert.Equal(t, "ren2", cookieByName(rec, cookies.RenewalTokenName).Value)
}

func TestRouter_RefreshFromBody(t *testing.T) {
	f := newRouterFixture(t, false)
	f.sessions.refreshOut = &services.TokenPair{AccessToken: "acc2", RenewalToken: "ren2"}

	rec := f.do(jsonRequest(http.MethodPost, "/auth/refresh-token", `{"accessToken":"a","refreshToken":"r"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "a", f.sessions.refreshAccess)
	assert.Equal(t, "r", f.sessions.refreshRenewal)
}

func TestRouter_RefreshEmptyBodyReachesService(t *testing.T) {
	f := newRouterFixture(t, false)
	f.sessions.refreshErr = common.Validation("auth.refresh.tokens_required", "Access token and refresh token are required")

	rec := f.do(httptest.NewRequest(http.MethodPost, "/auth/refresh-token", http.NoBody))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "", f.sessions.refreshAccess)
	assert.Equal(t, "Access token and refresh token are required", decodeBody(t, rec)["message"])
}

func TestRouter_RefreshRejected(t *testing.T) {
	f := newRouterFixture(t, false)
	f.sessions.refreshErr = common.NotFound("auth.refresh.token_invalid", "Invalid or expired refresh token", int64(1))

	rec := f.do(jsonRequest(http.MethodPost, "/auth/refresh-token", `{"accessToken":"a","refreshToken":"r"}`))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Nil(t, cookieByName(rec, cookies.AccessTokenName))
}

func TestRouter_Logout(t *testing.T) {
	f := newRouterFixture(t, false)

	r := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	r.AddCookie(&http.Cookie{Name: cookies.AccessTokenName, Value: mintToken(t, f.codec, 12)})
	rec := f.do(r)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, f.sessions.logoutCalled)
	assert.Equal(t, int64(12), f.sessions.logoutSubject)
	assert.Equal(t, "logged out", decodeBody(t, rec)["message"])

	for _, name := range []string{cookies.AccessTokenName, cookies.RenewalTokenName} {
		c := cookieByName(rec, name)
		require.NotNil(t, c, name)
		assert.Equal(t, "", c.Value)
		assert.Equal(t, -1, c.MaxAge)
	}
}

func TestRouter_LogoutWithoutTokenStillClearsCookies(t *testing.T) {
	f := newRouterFixture(t, false)

	rec := f.do(httptest.NewRequest(http.MethodPost, "/auth/logout", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, f.sessions.logoutCalled)
	require.NotNil(t, cookieByName(rec, cookies.AccessTokenName))
	require.NotNil(t, cookieByName(rec, cookies.RenewalTokenName))
	assert.Equal(t, -1, cookieByName(rec, cookies.AccessTokenName).MaxAge)
}

func TestRouter_Me(t *testing.T) {
	f := newRouterFixture(t, false)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/auth/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, common.ReasonMissingToken, decodeBody(t, rec)["message"])

	r := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	r.Header.Set("Authorization", "Bearer "+mintToken(t, f.codec, 21))
	rec = f.do(r)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(21), body["userId"])
	assert.Equal(t, "user", body["username"])
	assert.Equal(t, "User", body["role"])
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	f := newRouterFixture(t, false)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = f.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	b, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(b), "gatekeeper_http_requests_total")

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.HTTPRequests.WithLabelValues(http.MethodGet, "/health", "200")))
	assert.ElementsMatch(t, []string{"GET /health", "GET /metrics"}, f.router.Unmarked())
}

func TestRouter_DenyUnmarkedGuardsHealth(t *testing.T) {
	f := newRouterFixture(t, true)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_NotFoundAndMethodNotAllowed(t *testing.T) {
	f := newRouterFixture(t, false)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NotFound", decodeBody(t, rec)["type"])
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.HTTPRequests.WithLabelValues(http.MethodGet, "unmatched", "404")))

	rec = f.do(httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Method not allowed", decodeBody(t, rec)["message"])
}

func TestRouter_ResponsesCarryRequestID(t *testing.T) {
	f := newRouterFixture(t, false)

	r := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	r.Header.Set("X-Request-Id", "abc-1")
	rec := f.do(r)

	assert.Equal(t, "abc-1", decodeBody(t, rec)["traceId"])
}
