package auth

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/gamelog/internal/logging"
	"github.com/Skotchmaster/gamelog/internal/tokens"
)

const (
	identityKey = "identity"
	userIDKey   = "user_id"
	roleKey     = "role"
)

// Identity is what a verified access token says about the caller.
type Identity struct {
	UserID   uuid.UUID
	Username string
	Role     string
}

// Authenticator guards routes with bearer access tokens. It never touches the database.
type Authenticator struct {
	Issuer *tokens.Issuer
}

func NewAuthenticator(issuer *tokens.Issuer) *Authenticator {
	return &Authenticator{Issuer: issuer}
}

func (a *Authenticator) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw, ok := bearerToken(c.Request())
		if !ok {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
		}

		claims, err := a.Issuer.ParseAccess(raw)
		if err != nil {
			l := logging.FromContext(c.Request().Context())
			if errors.Is(err, tokens.ErrExpired) {
				l.Debug("access token expired")
				return echo.NewHTTPError(http.StatusUnauthorized, "access token expired")
			}
			l.Warn("access token rejected", "error", err)
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid access token")
		}

		// ParseAccess guarantees a uuid subject.
		id := Identity{
			UserID:   uuid.MustParse(claims.Subject),
			Username: claims.Username,
			Role:     claims.Role,
		}
		setIdentity(c, id)
		return next(c)
	}
}

// RequireRole must run after RequireAuth. Callers without an identity get 401,
// callers with another role get 403.
func (a *Authenticator) RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := IdentityFrom(c)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
			}
			if !slices.Contains(roles, id.Role) {
				logging.FromContext(c.Request().Context()).Warn("forbidden",
					"user_id", id.UserID, "role", id.Role, "required", roles)
				return echo.NewHTTPError(http.StatusForbidden, "insufficient role")
			}
			return next(c)
		}
	}
}

func IdentityFrom(c echo.Context) (Identity, bool) {
	id, ok := c.Get(identityKey).(Identity)
	return id, ok
}

func setIdentity(c echo.Context, id Identity) {
	c.Set(identityKey, id)
	c.Set(userIDKey, id.UserID)
	c.Set(roleKey, id.Role)

	l := logging.FromContext(c.Request().Context()).With("user_id", id.UserID)
	c.SetRequest(c.Request().WithContext(logging.IntoContext(c.Request().Context(), l)))
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get(echo.HeaderAuthorization)
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
