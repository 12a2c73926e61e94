package middleware

// identity.go keeps the authenticated principal on the echo context and
// derives the caller identity used for rate limit keys.

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/user-insights/internal/service"
)

const principalKey = "principal"

// SetPrincipal stores p for the rest of the request.
func SetPrincipal(c echo.Context, p *service.Principal) {
	c.Set(principalKey, p)
}

// PrincipalFrom returns the principal stored by BearerAuth.
func PrincipalFrom(c echo.Context) (*service.Principal, bool) {
	p, ok := c.Get(principalKey).(*service.Principal)
	return p, ok && p != nil
}

// userID returns the authenticated user id, or "anon".
func userID(c echo.Context) string {
	if p, ok := PrincipalFrom(c); ok {
		return strconv.FormatUint(p.User.ID, 10)
	}
	return "anon"
}

func clientIP(c echo.Context) string {
	if ip := c.RealIP(); ip != "" {
		return ip
	}
	return "unknown"
}
