// Package router wires handlers and middleware onto the echo instance.
package router

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/user-insights/internal/config"
	"github.com/iliyamo/user-insights/internal/handler"
	"github.com/iliyamo/user-insights/internal/middleware"
)

// Deps is everything the routes need.
type Deps struct {
	Auth       *handler.AuthHandler
	Users      *handler.UserHandler
	Statistics *handler.StatisticsHandler

	Authenticator middleware.Authenticator
	Limiter       *middleware.RateLimiter
	Limits        config.RateLimits
	Metrics       http.Handler // served at /metrics when non-nil
}

// Register mounts the API under /api. Login and registration are limited
// per IP; authenticated routes per user, with a tighter budget for
// statistics.
func Register(e *echo.Echo, d Deps) {
	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics))
	}

	api := e.Group("/api")
	api.POST("/register", d.Auth.Register, d.Limiter.Bucket("register", d.Limits.Register))
	api.POST("/login", d.Auth.Login, d.Limiter.Bucket("login", d.Limits.Login))

	// Bearer auth is per route or sub-group so unknown /api paths stay 404.
	bearer := middleware.BearerAuth(d.Authenticator)
	apiLimit := d.Limiter.Bucket("api", d.Limits.API)

	api.POST("/logout", d.Auth.Logout, bearer, apiLimit)
	api.POST("/refresh", d.Auth.Refresh, bearer, apiLimit)
	api.POST("/refresh-token", d.Auth.Refresh, bearer, apiLimit)
	api.GET("/me", d.Auth.Me, bearer, apiLimit)

	users := api.Group("/users", bearer, apiLimit)
	users.GET("", d.Users.List)
	users.POST("", d.Users.Create)
	users.GET("/:id", d.Users.Show)
	users.PUT("/:id", d.Users.Update)
	users.PATCH("/:id", d.Users.Update)
	users.DELETE("/:id", d.Users.Delete)
	users.POST("/:id/restore", d.Users.Restore)
	users.PATCH("/:id/restore", d.Users.Restore)
	users.DELETE("/:id/force", d.Users.ForceDelete)

	stats := api.Group("/statistics", bearer, apiLimit, d.Limiter.Bucket("statistics", d.Limits.Statistics))
	stats.GET("/daily", d.Statistics.Daily)
	stats.GET("/weekly", d.Statistics.Weekly)
	stats.GET("/monthly", d.Statistics.Monthly)
	stats.GET("/summary", d.Statistics.Summary)
	stats.GET("/detailed", d.Statistics.Detailed)
}
