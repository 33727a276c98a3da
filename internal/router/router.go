// Package router wires HTTP routes to their handlers and middleware.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ceylon-smart-citizen/auth-service/internal/config"
	"github.com/ceylon-smart-citizen/auth-service/internal/handler"
	"github.com/ceylon-smart-citizen/auth-service/internal/middleware"
	"github.com/ceylon-smart-citizen/auth-service/internal/model"
)

// Register mounts all routes on the provided Echo instance.
//
// Unauthenticated session operations live under /v1/auth and sit behind the
// Redis rate limiter. Protected account endpoints and appointments live
// under /v1 behind the session authenticator; catalog reads are public,
// with optional authentication on the service detail.
func Register(e *echo.Echo, a *handler.AuthHandler, b *handler.BookingHandler, auth *middleware.Authenticator, rlCfg config.RateLimitConfig, rdb *redis.Client, logger *zap.Logger) {
	e.GET("/healthz", handler.Health)

	limited := middleware.RateLimit(rlCfg, rdb, logger)

	g := e.Group("/v1/auth", limited)
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	// Logout operates on the presented token, so it needs the authenticator
	// even though it lives under /v1/auth.
	g.POST("/logout", a.Logout, auth.RequireAuth())
	g.POST("/logout-all", a.LogoutAll, auth.RequireAuth())

	// Public catalog. Service detail carries optional auth so signed-in
	// citizens see their own booking count.
	e.GET("/v1/departments", b.ListDepartments)
	e.GET("/v1/departments/:id/services", b.ListServices)
	e.GET("/v1/services/:id", b.GetService, auth.OptionalAuth())

	protected := e.Group("/v1", auth.RequireAuth())
	protected.GET("/me", a.Me)
	protected.POST("/me/password", a.ChangePassword)
	protected.DELETE("/me", a.Deactivate)

	citizen := protected.Group("", middleware.RequireRole(model.RoleCitizen, model.RoleOfficer, model.RoleAdmin))
	citizen.POST("/appointments", b.Book)
	citizen.GET("/appointments", b.ListMine)
	citizen.DELETE("/appointments/:id", b.Cancel)
}
