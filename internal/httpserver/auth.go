package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/gamelog/internal/logging"
	"github.com/Skotchmaster/gamelog/internal/middleware/auth"
	"github.com/Skotchmaster/gamelog/internal/service"
)

type AuthHTTP struct {
	Svc *service.AuthService
}

func (h *AuthHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_register")

	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("register_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	u, err := h.Svc.Register(ctx, req.Username, req.Email, req.Password)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toUser(u))
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	res, err := h.Svc.Login(ctx, req.Email, req.Password)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toTokens(res))
}

func (h *AuthHTTP) Refresh(c echo.Context) error {
	ctx := c.Request().Context()

	var req RefreshRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	res, err := h.Svc.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toTokens(res))
}

func (h *AuthHTTP) LogOut(c echo.Context) error {
	ctx := c.Request().Context()
	id, ok := auth.IdentityFrom(c)
	if !ok {
		return echo.ErrUnauthorized
	}

	var req LogoutRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	if err := h.Svc.Logout(ctx, id.UserID, req.RefreshToken, req.All); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

func (h *AuthHTTP) VerifyEmail(c echo.Context) error {
	ctx := c.Request().Context()

	var req VerifyEmailRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Token == "" {
		req.Token = c.QueryParam("token")
	}

	if err := h.Svc.VerifyEmail(ctx, req.Token); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "email verified"})
}

func (h *AuthHTTP) ResendVerification(c echo.Context) error {
	id, ok := auth.IdentityFrom(c)
	if !ok {
		return echo.ErrUnauthorized
	}
	if err := h.Svc.ResendVerification(c.Request().Context(), id.UserID); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusAccepted, echo.Map{"message": "verification mail queued"})
}

func (h *AuthHTTP) Me(c echo.Context) error {
	id, ok := auth.IdentityFrom(c)
	if !ok {
		return echo.ErrUnauthorized
	}
	u, err := h.Svc.Me(c.Request().Context(), id.UserID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toUser(u))
}

func (h *AuthHTTP) DeleteMe(c echo.Context) error {
	id, ok := auth.IdentityFrom(c)
	if !ok {
		return echo.ErrUnauthorized
	}
	if err := h.Svc.DeleteAccount(c.Request().Context(), id.UserID); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
