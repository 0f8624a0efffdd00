// Package services holds the session flows of the gatekeeper server. The
// SessionService is the only writer of an identity's credential fields.
package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/cryptox"
	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/auth"
	"github.com/dmitrijs2005/gatekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/repomanager"
	"github.com/samber/oops"
)

const (
	minRegisterPasswordLen = 6
	minLoginPasswordLen    = 5

	// renewalTokenBytes random bytes, hex encoded.
	renewalTokenBytes = 32
)

// Operation labels reported to metrics.
const (
	OpRegister = "register"
	OpLogin    = "login"
	OpRefresh  = "refresh"
	OpLogout   = "logout"
)

// TokenPair is the bearer credential handed to a client: a short-lived
// access token and the single-use renewal token that replaces it.
type TokenPair struct {
	AccessToken      string
	RenewalToken     string
	AccessExpiresAt  time.Time
	RenewalExpiresAt time.Time
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	Tokens TokenPair
	User   models.IdentitySummary
}

// RegisterInput describes a new identity. RoleID 0 registers a plain user.
type RegisterInput struct {
	UserName    string
	Password    string
	DisplayName string
	Email       *string
	Phone       *string
	RoleID      int
}

type SessionService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	hasher      cryptox.PasswordHasher
	codec       *auth.TokenCodec
	renewalTTL  time.Duration
	logger      logging.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

// NewSessionService wires the session flows. m may be nil.
func NewSessionService(db *sql.DB, rm repomanager.RepositoryManager, hasher cryptox.PasswordHasher,
	codec *auth.TokenCodec, renewalTTL time.Duration, logger logging.Logger, m *metrics.Metrics) *SessionService {
	return &SessionService{
		db:          db,
		repomanager: rm,
		hasher:      hasher,
		codec:       codec,
		renewalTTL:  renewalTTL,
		logger:      logger.With("module", "session"),
		metrics:     m,
		now:         time.Now,
	}
}

func (in RegisterInput) validate() (models.Role, error) {
	if strings.TrimSpace(in.UserName) == "" {
		return "", common.Validation("auth.username.required", "Username is required")
	}
	if len(in.Password) < minRegisterPasswordLen {
		return "", common.Validation("auth.password.too_short", "Password must be at least 6 characters")
	}
	if strings.TrimSpace(in.DisplayName) == "" {
		return "", common.Validation("auth.display_name.required", "Display name is required")
	}
	if in.Email != nil && !strings.Contains(*in.Email, "@") {
		return "", common.Validation("auth.email.invalid", "Email address is invalid")
	}

	if in.RoleID == 0 {
		return models.RoleUser, nil
	}
	role, ok := models.RoleByID(in.RoleID)
	if !ok {
		return "", common.Validation("auth.role.unknown", "Unknown role")
	}
	return role, nil
}

// Register creates an identity with a hashed password. A taken username is
// a Conflict failure.
func (s *SessionService) Register(ctx context.Context, in RegisterInput) (_ *models.IdentitySummary, err error) {
	defer func() { s.metrics.ObserveAuth(OpRegister, err) }()

	role, err := in.validate()
	if err != nil {
		return nil, err
	}
	userName := strings.TrimSpace(in.UserName)

	verifier, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, oops.Code("SESSION_HASH_FAILED").Wrap(err)
	}

	identity := &models.Identity{
		UserName:         userName,
		DisplayName:      strings.TrimSpace(in.DisplayName),
		Email:            in.Email,
		Phone:            in.Phone,
		PasswordVerifier: verifier,
		Role:             role,
		Active:           true,
	}

	err = dbx.WithTx(context.WithoutCancel(ctx), s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Identities(tx)

		exists, err := repo.ExistsByUserName(ctx, userName)
		if err != nil {
			return err
		}
		if exists {
			return usernameTaken(userName)
		}

		applied, err := repo.Upsert(ctx, identity)
		if err != nil {
			if errors.Is(err, common.ErrorAlreadyExists) {
				return usernameTaken(userName).Wrap(err)
			}
			return err
		}
		if !applied {
			return usernameTaken(userName)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "identity registered", "user_id", identity.ID, "username", userName)

	summary := identity.Summary()
	return &summary, nil
}

func usernameTaken(userName string) *common.Failure {
	return common.Conflict("auth.username.taken", "Username is already taken", userName)
}

// Login checks the password and opens a new session, replacing any renewal
// token the identity held before.
func (s *SessionService) Login(ctx context.Context, userName, password string) (_ *LoginResult, err error) {
	defer func() { s.metrics.ObserveAuth(OpLogin, err) }()

	if userName == "" {
		return nil, common.Validation("auth.username.required", "Username is required")
	}
	if password == "" {
		return nil, common.Validation("auth.password.required", "Password is required")
	}
	if len(password) < minLoginPasswordLen {
		return nil, common.Validation("auth.password.invalid", "Password is too short")
	}

	ctx = context.WithoutCancel(ctx)
	repo := s.repomanager.Identities(s.db)

	identity, err := repo.GetByUserName(ctx, userName)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.NotFound("auth.user.not_found", "User not found", userName).Wrap(err)
		}
		return nil, err
	}

	if !identity.Active {
		return nil, common.Validation("auth.account.inactive", "Account is deactivated")
	}

	ok, err := s.hasher.Verify(password, identity.PasswordVerifier)
	if err != nil {
		return nil, oops.Code("SESSION_VERIFY_FAILED").With("user_id", identity.ID).Wrap(err)
	}
	if !ok {
		return nil, common.Validation("auth.credentials.invalid", "Invalid username or password")
	}

	now := s.now()
	identity.LastLoginAt = &now

	pair, err := s.issue(identity, now)
	if err != nil {
		return nil, err
	}

	applied, err := repo.Upsert(ctx, identity)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, common.Conflict("auth.session.conflict", "Session could not be stored", identity.ID)
	}

	s.logger.Info(ctx, "login", "user_id", identity.ID)

	return &LoginResult{Tokens: *pair, User: identity.Summary()}, nil
}

// Refresh exchanges a renewal token for a new pair. The access token may be
// expired but must carry a valid signature; it only names the subject. The
// identity row is locked for the rotation, so a renewal token is accepted
// at most once.
func (s *SessionService) Refresh(ctx context.Context, accessToken, renewalToken string) (_ *TokenPair, err error) {
	defer func() { s.metrics.ObserveAuth(OpRefresh, err) }()

	if accessToken == "" || renewalToken == "" {
		return nil, common.Validation("auth.refresh.tokens_required", "Access token and refresh token are required")
	}

	claims, err := s.codec.DecodeAllowExpired(accessToken)
	if err != nil {
		return nil, common.Validation("auth.refresh.access_token_invalid", "Access token is invalid").Wrap(err)
	}

	var pair *TokenPair

	err = dbx.WithTx(context.WithoutCancel(ctx), s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Identities(tx)

		identity, err := repo.GetByIDForUpdate(ctx, claims.SubjectID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.NotFound("auth.user.not_found", "User not found", claims.SubjectID).Wrap(err)
			}
			return err
		}

		now := s.now()
		if !identity.Active || !identity.HasSession(now) ||
			subtle.ConstantTimeCompare([]byte(*identity.RenewalToken), []byte(renewalToken)) != 1 {
			return common.NotFound("auth.refresh.token_invalid", "Invalid or expired refresh token", claims.SubjectID)
		}

		pair, err = s.issue(identity, now)
		if err != nil {
			return err
		}

		applied, err := repo.Upsert(ctx, identity)
		if err != nil {
			return err
		}
		if !applied {
			return common.Conflict("auth.session.conflict", "Session could not be stored", identity.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug(ctx, "session refreshed", "user_id", claims.SubjectID)

	return pair, nil
}

// Logout ends the session of subjectID, or of the caller in ctx when
// subjectID is nil. Storage errors are logged, never returned; the result
// is always true.
func (s *SessionService) Logout(ctx context.Context, subjectID *int64) bool {
	if subjectID == nil {
		if c, ok := auth.ClaimsFromContext(ctx); ok {
			id := c.SubjectID
			subjectID = &id
		}
	}
	if subjectID == nil {
		return true
	}

	var err error
	defer func() { s.metrics.ObserveAuth(OpLogout, err) }()

	wctx := context.WithoutCancel(ctx)
	repo := s.repomanager.Identities(s.db)

	identity, err := repo.GetByID(wctx, *subjectID)
	if err != nil {
		s.logger.Warn(ctx, "logout: identity lookup failed", append(logging.ErrorAttrs(err), "user_id", *subjectID)...)
		return true
	}
	if identity.RenewalToken == nil {
		return true
	}

	identity.ClearRenewal()
	if _, err = repo.Upsert(wctx, identity); err != nil {
		s.logger.Error(ctx, "logout: clearing session failed", append(logging.ErrorAttrs(err), "user_id", *subjectID)...)
		return true
	}

	s.logger.Info(ctx, "logout", "user_id", *subjectID)
	return true
}

// Me returns the claims of the authenticated caller.
func (s *SessionService) Me(ctx context.Context) (*auth.Claims, error) {
	c, ok := auth.ClaimsFromContext(ctx)
	if !ok {
		return nil, common.Unauthorized(common.ReasonMissingToken)
	}
	return c, nil
}

// issue mints a new pair for identity and installs the renewal token on it.
// The caller persists identity.
func (s *SessionService) issue(identity *models.Identity, now time.Time) (*TokenPair, error) {
	access, accessExp, err := s.codec.Encode(auth.ClaimsFor(identity))
	if err != nil {
		return nil, oops.Code("SESSION_TOKEN_SIGN_FAILED").With("user_id", identity.ID).Wrap(err)
	}

	renewal, err := common.MakeRandHexString(renewalTokenBytes)
	if err != nil {
		return nil, oops.Code("SESSION_TOKEN_RANDOM_FAILED").Wrap(err)
	}
	renewalExp := now.Add(s.renewalTTL)
	identity.SetRenewal(renewal, renewalExp)

	return &TokenPair{
		AccessToken:      access,
		RenewalToken:     renewal,
		AccessExpiresAt:  accessExp,
		RenewalExpiresAt: renewalExp,
	}, nil
}
