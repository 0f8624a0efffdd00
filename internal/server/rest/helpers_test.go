package rest

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/audit"
	"github.com/dmitrijs2005/gatekeeper/internal/server/auth"
	"github.com/dmitrijs2005/gatekeeper/internal/server/cookies"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const (
	testSecret   = "rest-secret"
	testIssuer   = "gatekeeper"
	testAudience = "gatekeeper-api"
)

type recordingAuditor struct {
	mu      sync.Mutex
	records []audit.Record
}

func (a *recordingAuditor) Emit(r audit.Record) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, r)
}

func (a *recordingAuditor) all() []audit.Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]audit.Record(nil), a.records...)
}

func newTestCodec(t *testing.T) *auth.TokenCodec {
	t.Helper()
	c, err := auth.NewTokenCodec(testSecret, testIssuer, testAudience, 30*time.Minute)
	require.NoError(t, err)
	return c
}

func newTestTransport() *cookies.Transport {
	return cookies.NewTransport(true, 30*time.Minute, 7*24*time.Hour)
}

func mintToken(t *testing.T, c *auth.TokenCodec, id int64) string {
	t.Helper()
	tok, _, err := c.Encode(auth.Claims{SubjectID: id, UserName: "user", Role: models.RoleUser})
	require.NoError(t, err)
	return tok
}

func expiredToken(t *testing.T, id string) string {
	t.Helper()
	past := time.Now().Add(-time.Hour)
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": id,
		"iss": testIssuer,
		"aud": testAudience,
		"iat": past.Unix(),
		"exp": past.Add(time.Minute).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return tok
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), "body: %s", rec.Body.String())
	return body
}

func newTestMapper(development bool, a Auditor) *FailureMapper {
	return NewFailureMapper(logging.Nop(), a, nil, development)
}

func ctxWithClaims(id int64) context.Context {
	return auth.WithClaims(context.Background(), &auth.Claims{SubjectID: id, UserName: "user", Role: models.RoleUser})
}
