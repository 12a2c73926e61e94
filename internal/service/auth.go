package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/user-insights/internal/apperror"
	"github.com/iliyamo/user-insights/internal/model"
	"github.com/iliyamo/user-insights/internal/queue"
	"github.com/iliyamo/user-insights/internal/repository"
	"github.com/iliyamo/user-insights/internal/utils"
)

// TokenTTL is the fixed validity window of an access token.
const TokenTTL = 5 * time.Minute

var errInvalidCredentials = apperror.Unauthenticated("invalid credentials")

// AuthConfig carries the settings the auth service reads from config.Config.
type AuthConfig struct {
	JWTSecret      string
	BcryptCost     int
	PasswordPolicy string
}

// IssuedToken is what a client receives after login or refresh.
type IssuedToken struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
	ExpiresIn int       `json:"expires_in"`
}

// Principal is the authenticated caller of a request.
type Principal struct {
	User      model.User
	TokenID   uint64
	TokenHash string
}

type AuthService struct {
	users    UserStore
	tokens   TokenStore
	cfg      AuthConfig
	validate *inputValidator
	options
}

func NewAuthService(users UserStore, tokens TokenStore, cfg AuthConfig, opts ...Option) *AuthService {
	return &AuthService{
		users:    users,
		tokens:   tokens,
		cfg:      cfg,
		validate: newInputValidator(cfg.PasswordPolicy),
		options:  buildOptions(opts),
	}
}

// Register validates in, stores the user with a bcrypt hash and returns it.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (model.User, error) {
	u, err := createUser(ctx, s.users, s.validate, s.cfg.BcryptCost, &s.options, in)
	if err != nil {
		return model.User{}, err
	}
	s.publish(ctx, queue.EventUserRegistered, u)
	return u, nil
}

// createUser is shared by registration and admin creation.
func createUser(ctx context.Context, users UserStore, v *inputValidator, cost int, o *options, in RegisterInput) (model.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if err := v.Struct(in); err != nil {
		return model.User{}, err
	}
	hash, err := utils.HashPassword(in.Password, cost)
	if err != nil {
		return model.User{}, apperror.Internal(err)
	}

	sctx, cancel := o.storeCtx(ctx)
	defer cancel()
	u, err := users.Create(sctx, in.Name, in.Email, hash, o.now())
	if err != nil {
		return model.User{}, storeErr(err, "user not found")
	}
	return u, nil
}

// Login checks credentials and issues a token. Unknown email, soft-deleted
// account and wrong password are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (model.User, IssuedToken, error) {
	in.Email = strings.TrimSpace(in.Email)
	if err := s.validate.Struct(in); err != nil {
		return model.User{}, IssuedToken{}, err
	}

	sctx, cancel := s.storeCtx(ctx)
	u, err := s.users.GetByEmail(sctx, in.Email)
	cancel()
	switch {
	case errors.Is(err, repository.ErrNotFound):
		utils.VerifyPassword("", in.Password)
		return model.User{}, IssuedToken{}, errInvalidCredentials
	case err != nil:
		return model.User{}, IssuedToken{}, apperror.Internal(err)
	}
	if !utils.VerifyPassword(u.PasswordHash, in.Password) || u.Trashed() {
		return model.User{}, IssuedToken{}, errInvalidCredentials
	}

	tok, err := s.IssueToken(ctx, u.ID)
	if err != nil {
		return model.User{}, IssuedToken{}, err
	}
	return u, tok, nil
}

// IssueToken signs a new token for userID and stores its hash. Expiry is
// exactly TokenTTL after the issue second.
func (s *AuthService) IssueToken(ctx context.Context, userID uint64) (IssuedToken, error) {
	at, err := utils.NewAccessToken(s.cfg.JWTSecret, userID, s.now(), TokenTTL)
	if err != nil {
		return IssuedToken{}, apperror.Internal(err)
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.tokens.Create(sctx, userID, utils.HashToken(at.Token), at.IssuedAt, at.ExpiresAt); err != nil {
		return IssuedToken{}, apperror.Internal(err)
	}
	return IssuedToken{
		Token:     at.Token,
		TokenType: "Bearer",
		ExpiresAt: at.ExpiresAt,
		ExpiresIn: int(TokenTTL / time.Second),
	}, nil
}

// Authenticate resolves a bearer string to its user. Expired, revoked and
// unknown tokens fail with TokenExpired; malformed ones with
// Unauthenticated.
func (s *AuthService) Authenticate(ctx context.Context, bearer string) (Principal, error) {
	if bearer == "" {
		return Principal{}, apperror.Unauthenticated("unauthenticated")
	}
	sub, err := utils.ParseAccessToken(s.cfg.JWTSecret, bearer, s.now)
	switch {
	case errors.Is(err, utils.ErrTokenExpired):
		return Principal{}, apperror.TokenExpired()
	case err != nil:
		return Principal{}, apperror.Unauthenticated("unauthenticated")
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	hash := utils.HashToken(bearer)
	row, err := s.tokens.GetByHash(sctx, hash)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return Principal{}, apperror.TokenExpired()
	case err != nil:
		return Principal{}, apperror.Internal(err)
	}
	if row.UserID != sub {
		return Principal{}, apperror.Unauthenticated("unauthenticated")
	}
	now := s.now()
	if row.Expired(now) {
		return Principal{}, apperror.TokenExpired()
	}

	u, err := s.users.GetByID(sctx, row.UserID, model.ScopeActive)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return Principal{}, apperror.Unauthenticated("unauthenticated")
	case err != nil:
		return Principal{}, apperror.Internal(err)
	}

	if err := s.tokens.Touch(sctx, row.ID, now); err != nil {
		s.log.Debug("token touch failed", zap.Uint64("token_id", row.ID), zap.Error(err))
	}
	return Principal{User: u, TokenID: row.ID, TokenHash: hash}, nil
}

// Logout revokes the token that authenticated p.
func (s *AuthService) Logout(ctx context.Context, p *Principal) error {
	if p == nil || p.TokenHash == "" {
		return apperror.Unauthenticated("unauthenticated")
	}
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.tokens.DeleteByHash(sctx, p.TokenHash); err != nil {
		return apperror.Internal(err)
	}
	return nil
}

// Refresh revokes the presented token and then issues a replacement, so
// the session never holds two valid tokens.
func (s *AuthService) Refresh(ctx context.Context, p *Principal) (IssuedToken, error) {
	if err := s.Logout(ctx, p); err != nil {
		return IssuedToken{}, err
	}
	return s.IssueToken(ctx, p.User.ID)
}
