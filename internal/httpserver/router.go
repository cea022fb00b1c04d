package httpserver

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/gamelog/internal/logging"
	"github.com/Skotchmaster/gamelog/internal/metrics"
	"github.com/Skotchmaster/gamelog/internal/middleware/auth"
	"github.com/Skotchmaster/gamelog/internal/models"
)

type Deps struct {
	AuthHandler   *AuthHTTP
	AdminHandler  *AdminHTTP
	Authenticator *auth.Authenticator
	Metrics       *metrics.Registry
	// Ready reports whether the backing stores are reachable. Nil means always ready.
	Ready func(ctx context.Context) error
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if d.Ready == nil {
			return c.NoContent(http.StatusOK)
		}
		if err := d.Ready(c.Request().Context()); err != nil {
			logging.FromContext(c.Request().Context()).Warn("not ready", "error", err)
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable"})
		}
		return c.NoContent(http.StatusOK)
	})
	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics.Handler()))
	}

	authMw := d.Authenticator

	authGroup := e.Group("/auth")
	authGroup.POST("/register", d.AuthHandler.Register)
	authGroup.POST("/login", d.AuthHandler.Login)
	authGroup.POST("/refresh", d.AuthHandler.Refresh)
	authGroup.POST("/verify-email", d.AuthHandler.VerifyEmail)

	// Route level middleware: a group on "" would turn every unknown path into a 401.
	authGroup.POST("/logout", d.AuthHandler.LogOut, authMw.RequireAuth)
	authGroup.GET("/me", d.AuthHandler.Me, authMw.RequireAuth)
	authGroup.POST("/verify-email/resend", d.AuthHandler.ResendVerification, authMw.RequireAuth)
	e.DELETE("/users/me", d.AuthHandler.DeleteMe, authMw.RequireAuth)

	admin := e.Group("/admin", authMw.RequireAuth, authMw.RequireRole(models.RoleAdmin))
	admin.GET("/users", d.AdminHandler.ListUsers)
	admin.POST("/users/:id/ban", d.AdminHandler.Ban)
	admin.DELETE("/users/:id/ban", d.AdminHandler.Unban)
	admin.PUT("/users/:id/role", d.AdminHandler.SetRole)
}
