package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/gamelog/internal/service"
)

// httpError maps service errors to responses. Anything unknown becomes a bare 500.
func httpError(err error) error {
	switch {
	case errors.Is(err, service.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrDuplicateUser):
		return echo.NewHTTPError(http.StatusConflict, service.ErrDuplicateUser.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, service.ErrInvalidCredentials.Error())
	case errors.Is(err, service.ErrAccountBanned):
		return echo.NewHTTPError(http.StatusForbidden, service.ErrAccountBanned.Error())
	case errors.Is(err, service.ErrInvalidOrExpiredToken):
		return echo.NewHTTPError(http.StatusUnauthorized, service.ErrInvalidOrExpiredToken.Error())
	case errors.Is(err, service.ErrInvalidToken):
		return echo.NewHTTPError(http.StatusBadRequest, service.ErrInvalidToken.Error())
	case errors.Is(err, service.ErrAlreadyVerified):
		return echo.NewHTTPError(http.StatusConflict, service.ErrAlreadyVerified.Error())
	case errors.Is(err, service.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, service.ErrNotFound.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(err)
}
