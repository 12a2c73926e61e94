package middleware

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/user-insights/internal/apperror"
	"github.com/iliyamo/user-insights/internal/service"
)

// Authenticator resolves a bearer string to the calling principal.
type Authenticator interface {
	Authenticate(ctx context.Context, bearer string) (service.Principal, error)
}

// BearerAuth rejects requests without a valid, unexpired access token and
// stores the principal in the context for handlers. Failures are returned
// as *apperror.Error so the HTTP error handler renders them.
func BearerAuth(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return apperror.Unauthenticated("unauthenticated")
			}
			p, err := auth.Authenticate(c.Request().Context(), raw)
			if err != nil {
				return err
			}
			SetPrincipal(c, &p)
			return next(c)
		}
	}
}

// bearerToken extracts the token from an Authorization header. The scheme
// is matched case-insensitively.
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
