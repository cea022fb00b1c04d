package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/gamelog/internal/tokens"
)

func newTestServer(issuer *tokens.Issuer) *echo.Echo {
	a := NewAuthenticator(issuer)
	e := echo.New()

	e.GET("/me", func(c echo.Context) error {
		id, ok := IdentityFrom(c)
		if !ok {
			return c.NoContent(http.StatusInternalServerError)
		}
		return c.String(http.StatusOK, id.UserID.String()+" "+id.Username+" "+id.Role)
	}, a.RequireAuth)

	e.GET("/admin", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	}, a.RequireAuth, a.RequireRole("Admin"))

	e.GET("/no-auth-admin", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	}, a.RequireRole("Admin"))
	return e
}

func do(e *echo.Echo, path, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authz != "" {
		req.Header.Set(echo.HeaderAuthorization, authz)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRequireAuth(t *testing.T) {
	t.Parallel()

	issuer := tokens.NewIssuer([]byte("test-jwt-secret"), 15*time.Minute, time.Hour)
	e := newTestServer(issuer)
	userID := uuid.New()

	valid, _, err := issuer.IssueAccess(userID, "alice", "User")
	require.NoError(t, err)

	other := tokens.NewIssuer([]byte("other-secret"), 15*time.Minute, time.Hour)
	forged, _, err := other.IssueAccess(userID, "alice", "Admin")
	require.NoError(t, err)

	stale := tokens.NewIssuer([]byte("test-jwt-secret"), 15*time.Minute, time.Hour)
	stale.Now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, _, err := stale.IssueAccess(userID, "alice", "User")
	require.NoError(t, err)

	tests := []struct {
		name       string
		authz      string
		wantStatus int
		wantBody   string
	}{
		{name: "valid", authz: "Bearer " + valid, wantStatus: http.StatusOK, wantBody: userID.String() + " alice User"},
		{name: "lowercase scheme", authz: "bearer " + valid, wantStatus: http.StatusOK},
		{name: "missing header", wantStatus: http.StatusUnauthorized, wantBody: "missing access token"},
		{name: "wrong scheme", authz: "Basic abc", wantStatus: http.StatusUnauthorized, wantBody: "missing access token"},
		{name: "empty bearer", authz: "Bearer ", wantStatus: http.StatusUnauthorized, wantBody: "missing access token"},
		{name: "garbage", authz: "Bearer not.a.jwt", wantStatus: http.StatusUnauthorized, wantBody: "invalid access token"},
		{name: "wrong secret", authz: "Bearer " + forged, wantStatus: http.StatusUnauthorized, wantBody: "invalid access token"},
		{name: "expired", authz: "Bearer " + expired, wantStatus: http.StatusUnauthorized, wantBody: "access token expired"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(e, "/me", tt.authz)
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.Contains(t, rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	t.Parallel()

	issuer := tokens.NewIssuer([]byte("test-jwt-secret"), 15*time.Minute, time.Hour)
	e := newTestServer(issuer)

	user, _, err := issuer.IssueAccess(uuid.New(), "alice", "User")
	require.NoError(t, err)
	admin, _, err := issuer.IssueAccess(uuid.New(), "root", "Admin")
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, do(e, "/admin", "").Code)

	rec := do(e, "/admin", "Bearer "+user)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "insufficient role")

	assert.Equal(t, http.StatusNoContent, do(e, "/admin", "Bearer "+admin).Code)

	// without RequireAuth in front there is no identity at all
	assert.Equal(t, http.StatusUnauthorized, do(e, "/no-auth-admin", "Bearer "+admin).Code)
}
