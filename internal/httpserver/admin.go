package httpserver

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/gamelog/internal/middleware/auth"
	"github.com/Skotchmaster/gamelog/internal/service"
)

type AdminHTTP struct {
	Svc *service.AuthService
}

func (h *AdminHTTP) ListUsers(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("size"))

	res, err := h.Svc.SearchUsers(c.Request().Context(), c.QueryParam("q"), page, size)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toUserList(res))
}

func (h *AdminHTTP) Ban(c echo.Context) error {
	actor, target, err := actorAndTarget(c)
	if err != nil {
		return err
	}

	var req BanRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	u, err := h.Svc.Ban(c.Request().Context(), actor, target, req.Reason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toUser(u))
}

func (h *AdminHTTP) Unban(c echo.Context) error {
	actor, target, err := actorAndTarget(c)
	if err != nil {
		return err
	}

	u, err := h.Svc.Unban(c.Request().Context(), actor, target)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toUser(u))
}

func (h *AdminHTTP) SetRole(c echo.Context) error {
	actor, target, err := actorAndTarget(c)
	if err != nil {
		return err
	}

	var req RoleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	u, err := h.Svc.SetRole(c.Request().Context(), actor, target, req.Role)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toUser(u))
}

func actorAndTarget(c echo.Context) (uuid.UUID, uuid.UUID, error) {
	id, ok := auth.IdentityFrom(c)
	if !ok {
		return uuid.Nil, uuid.Nil, echo.ErrUnauthorized
	}
	target, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}
	return id.UserID, target, nil
}
