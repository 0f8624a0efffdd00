package rest

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/server/auth"
	"github.com/dmitrijs2005/gatekeeper/internal/server/cookies"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/services"
	"github.com/go-chi/render"
)

// Sessions is the session API the handlers drive.
type Sessions interface {
	Register(ctx context.Context, in services.RegisterInput) (*models.IdentitySummary, error)
	Login(ctx context.Context, userName, password string) (*services.LoginResult, error)
	Refresh(ctx context.Context, accessToken, renewalToken string) (*services.TokenPair, error)
	Logout(ctx context.Context, subjectID *int64) bool
	Me(ctx context.Context) (*auth.Claims, error)
}

type registerRequest struct {
	UserName    string  `json:"username"`
	Password    string  `json:"password"`
	DisplayName string  `json:"displayName"`
	Email       *string `json:"email,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	RoleID      int     `json:"roleId,omitempty"`
}

type loginRequest struct {
	UserName string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type loginUser struct {
	ID          int64       `json:"id"`
	UserName    string      `json:"username"`
	DisplayName string      `json:"displayName"`
	Role        models.Role `json:"role"`
}

type loginResponse struct {
	User loginUser `json:"user"`
}

type meResponse struct {
	UserID   int64       `json:"userId"`
	UserName string      `json:"username"`
	Role     models.Role `json:"role"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// AuthHandlers serves the /auth endpoints.
type AuthHandlers struct {
	sessions Sessions
	cookies  *cookies.Transport
}

func NewAuthHandlers(s Sessions, transport *cookies.Transport) *AuthHandlers {
	return &AuthHandlers{sessions: s, cookies: transport}
}

func malformed(err error) error {
	return common.Validation("request.malformed", "Malformed request body").Wrap(err)
}

func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) error {
	var req registerRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		return malformed(err)
	}

	summary, err := h.sessions.Register(r.Context(), services.RegisterInput{
		UserName:    req.UserName,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Email:       req.Email,
		Phone:       req.Phone,
		RoleID:      req.RoleID,
	})
	if err != nil {
		return err
	}

	render.JSON(w, r, summary)
	return nil
}

func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) error {
	var req loginRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		return malformed(err)
	}

	res, err := h.sessions.Login(r.Context(), req.UserName, req.Password)
	if err != nil {
		return err
	}

	h.cookies.SetCredential(w, res.Tokens.AccessToken, res.Tokens.RenewalToken)
	render.JSON(w, r, loginResponse{User: loginUser{
		ID:          res.User.ID,
		UserName:    res.User.UserName,
		DisplayName: res.User.DisplayName,
		Role:        res.User.Role,
	}})
	return nil
}

// Refresh reads both tokens from their cookies. A client without cookies
// may send them in the JSON body instead.
func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) error {
	access, _ := h.cookies.GetAccess(r)
	renewal, _ := h.cookies.GetRenewal(r)

	if access == "" || renewal == "" {
		var req refreshRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
			return malformed(err)
		}
		if access == "" {
			access = req.AccessToken
		}
		if renewal == "" {
			renewal = req.RefreshToken
		}
	}

	pair, err := h.sessions.Refresh(r.Context(), access, renewal)
	if err != nil {
		return err
	}

	h.cookies.SetCredential(w, pair.AccessToken, pair.RenewalToken)
	render.JSON(w, r, messageResponse{Message: "token refreshed"})
	return nil
}

func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) error {
	h.sessions.Logout(r.Context(), nil)
	render.JSON(w, r, messageResponse{Message: "logged out"})
	return nil
}

// ClearingCredentials clears both cookies before next runs, so they are gone
// even when next fails.
func (h *AuthHandlers) ClearingCredentials(next Handler) Handler {
	return func(w http.ResponseWriter, r *http.Request) error {
		h.cookies.ClearCredential(w)
		return next(w, r)
	}
}

func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) error {
	c, err := h.sessions.Me(r.Context())
	if err != nil {
		return err
	}

	render.JSON(w, r, meResponse{UserID: c.SubjectID, UserName: c.UserName, Role: c.Role})
	return nil
}
