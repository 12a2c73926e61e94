package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/user-insights/internal/apperror"
	"github.com/iliyamo/user-insights/internal/middleware"
	"github.com/iliyamo/user-insights/internal/model"
	"github.com/iliyamo/user-insights/internal/service"
)

// AuthAPI is the part of service.AuthService the HTTP layer calls.
type AuthAPI interface {
	Register(ctx context.Context, in service.RegisterInput) (model.User, error)
	Login(ctx context.Context, in service.LoginInput) (model.User, service.IssuedToken, error)
	IssueToken(ctx context.Context, userID uint64) (service.IssuedToken, error)
	Logout(ctx context.Context, p *service.Principal) error
	Refresh(ctx context.Context, p *service.Principal) (service.IssuedToken, error)
}

// AuthHandler serves registration, login and the token lifecycle.
type AuthHandler struct {
	auth AuthAPI
}

func NewAuthHandler(auth AuthAPI) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type authResp struct {
	User      model.User `json:"user"`
	Token     string     `json:"token"`
	TokenType string     `json:"token_type"`
	ExpiresAt time.Time  `json:"expires_at"`
	ExpiresIn int        `json:"expires_in"`
}

func newAuthResp(u model.User, t service.IssuedToken) authResp {
	return authResp{User: u, Token: t.Token, TokenType: t.TokenType, ExpiresAt: t.ExpiresAt, ExpiresIn: t.ExpiresIn}
}

// Register creates the account and returns it with a first token.
func (h *AuthHandler) Register(c echo.Context) error {
	var in service.RegisterInput
	if err := bind(c, &in); err != nil {
		return err
	}
	ctx := c.Request().Context()
	u, err := h.auth.Register(ctx, in)
	if err != nil {
		return err
	}
	tok, err := h.auth.IssueToken(ctx, u.ID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, "user registered", newAuthResp(u, tok))
}

func (h *AuthHandler) Login(c echo.Context) error {
	var in service.LoginInput
	if err := bind(c, &in); err != nil {
		return err
	}
	u, tok, err := h.auth.Login(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "login successful", newAuthResp(u, tok))
}

// Logout revokes the token the request was authenticated with.
func (h *AuthHandler) Logout(c echo.Context) error {
	p, _ := middleware.PrincipalFrom(c)
	if err := h.auth.Logout(c.Request().Context(), p); err != nil {
		return err
	}
	return respond(c, http.StatusOK, "logged out", nil)
}

// Refresh revokes the presented token and returns a new one.
func (h *AuthHandler) Refresh(c echo.Context) error {
	p, _ := middleware.PrincipalFrom(c)
	tok, err := h.auth.Refresh(c.Request().Context(), p)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "token refreshed", tok)
}

func (h *AuthHandler) Me(c echo.Context) error {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return apperror.Unauthenticated("unauthenticated")
	}
	return respond(c, http.StatusOK, "", echo.Map{"user": p.User})
}
