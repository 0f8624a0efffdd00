// Package auth encodes and decodes access tokens and carries the decoded
// claims through request contexts.
package auth

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the caller identity carried by an access token.
type Claims struct {
	SubjectID   int64
	UserName    string
	DisplayName string
	Role        models.Role
	ExpiresAt   time.Time
}

// ClaimsFor builds the claims minted for identity.
func ClaimsFor(i *models.Identity) Claims {
	return Claims{
		SubjectID:   i.ID,
		UserName:    i.UserName,
		DisplayName: i.DisplayName,
		Role:        i.Role,
	}
}

// tokenClaims is the wire form.
type tokenClaims struct {
	jwt.RegisteredClaims
	UserName    string `json:"username"`
	DisplayName string `json:"name"`
	Role        string `json:"role"`
}

var signingMethod = jwt.SigningMethodHS256

// TokenCodec signs and verifies HS256 access tokens for one issuer and
// audience.
type TokenCodec struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

func NewTokenCodec(secretKey, issuer, audience string, ttl time.Duration) (*TokenCodec, error) {
	if secretKey == "" {
		return nil, errors.New("token codec: empty secret key")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token codec: non-positive ttl %v", ttl)
	}
	return &TokenCodec{
		secret:   []byte(secretKey),
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
		now:      time.Now,
	}, nil
}

// TTL is the lifetime of minted tokens.
func (c *TokenCodec) TTL() time.Duration { return c.ttl }

// Encode mints a token for claims and reports its expiry. claims.ExpiresAt
// is ignored.
func (c *TokenCodec) Encode(claims Claims) (string, time.Time, error) {
	now := c.now()
	exp := now.Add(c.ttl)

	token := jwt.NewWithClaims(signingMethod, tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(claims.SubjectID, 10),
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		UserName:    claims.UserName,
		DisplayName: claims.DisplayName,
		Role:        string(claims.Role),
	})

	s, err := token.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return s, exp, nil
}

// Decode fully validates token: signature, algorithm, issuer, audience and
// lifetime. It returns common.ErrTokenExpired for an otherwise valid expired
// token and an error wrapping common.ErrInvalidToken for anything else.
func (c *TokenCodec) Decode(token string) (*Claims, error) {
	tc := &tokenClaims{}
	_, err := jwt.ParseWithClaims(token, tc, c.key,
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	return c.toClaims(tc)
}

// DecodeAllowExpired verifies signature, algorithm, issuer and audience but
// not lifetime. Only the renewal flow may use it.
func (c *TokenCodec) DecodeAllowExpired(token string) (*Claims, error) {
	tc := &tokenClaims{}
	_, err := jwt.ParseWithClaims(token, tc, c.key,
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	if tc.Issuer != c.issuer || !slices.Contains(tc.Audience, c.audience) {
		return nil, fmt.Errorf("%w: issuer or audience mismatch", common.ErrInvalidToken)
	}
	return c.toClaims(tc)
}

func (c *TokenCodec) key(*jwt.Token) (any, error) {
	return c.secret, nil
}

func (c *TokenCodec) toClaims(tc *tokenClaims) (*Claims, error) {
	id, err := strconv.ParseInt(tc.Subject, 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("%w: bad subject %q", common.ErrInvalidToken, tc.Subject)
	}

	claims := &Claims{
		SubjectID:   id,
		UserName:    tc.UserName,
		DisplayName: tc.DisplayName,
		Role:        models.Role(tc.Role),
	}
	if tc.ExpiresAt != nil {
		claims.ExpiresAt = tc.ExpiresAt.Time
	}
	return claims, nil
}
