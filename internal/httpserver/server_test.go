package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Skotchmaster/gamelog/internal/db/dbtest"
	"github.com/Skotchmaster/gamelog/internal/metrics"
	"github.com/Skotchmaster/gamelog/internal/middleware/auth"
	"github.com/Skotchmaster/gamelog/internal/models"
	"github.com/Skotchmaster/gamelog/internal/repo"
	"github.com/Skotchmaster/gamelog/internal/service"
	"github.com/Skotchmaster/gamelog/internal/tokens"
	"github.com/Skotchmaster/gamelog/pkg/authclient"
)

type captureMail struct{ links []string }

func (m *captureMail) Publish(_ context.Context, msg any) error {
	m.links = append(m.links, msg.(service.VerificationMail).Link)
	return nil
}

type testServer struct {
	e    *echo.Echo
	repo *repo.GormRepo
	mail *captureMail
	svc  *service.AuthService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db := dbtest.Open(t)
	r := repo.New(db)
	mail := &captureMail{}
	issuer := tokens.NewIssuer([]byte("test-jwt-secret"), 15*time.Minute, 24*time.Hour)
	reg := metrics.NewRegistry()
	svc := &service.AuthService{
		Repo:          r,
		Verifications: repo.NewVerifications(db),
		Issuer:        issuer,
		Options: service.Options{
			BcryptCost:            bcrypt.MinCost,
			VerifyTTL:             time.Hour,
			VerifyEmailIdempotent: false,
		},
		Mail:    mail,
		Metrics: reg,
	}

	e := echo.New()
	e.Use(reg.Middleware())
	Register(e, &Deps{
		AuthHandler:   &AuthHTTP{Svc: svc},
		AdminHandler:  &AdminHTTP{Svc: svc},
		Authenticator: auth.NewAuthenticator(issuer),
		Metrics:       reg,
		Ready:         func(ctx context.Context) error { return nil },
	})
	return &testServer{e: e, repo: r, mail: mail, svc: svc}
}

func (s *testServer) call(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *testServer) signup(t *testing.T, name string) UserResponse {
	t.Helper()
	rec := s.call(t, http.MethodPost, "/auth/register", "", RegisterRequest{
		Username: name, Email: name + "@example.com", Password: "hunter22",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[UserResponse](t, rec)
}

func (s *testServer) login(t *testing.T, name string) TokenResponse {
	t.Helper()
	rec := s.call(t, http.MethodPost, "/auth/login", "", LoginRequest{
		Email: name + "@example.com", Password: "hunter22",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[TokenResponse](t, rec)
}

func (s *testServer) lastVerifyToken(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, s.mail.links)
	link := s.mail.links[len(s.mail.links)-1]
	_, tok, ok := strings.Cut(link, "token=")
	require.True(t, ok)
	return tok
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	u := s.signup(t, "alice")
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, models.RoleUser, u.Role)
	assert.False(t, u.EmailVerified)
	assert.NotContains(t, s.call(t, http.MethodPost, "/auth/register", "", RegisterRequest{
		Username: "alice", Email: "alice@example.com", Password: "hunter22",
	}).Body.String(), "password")

	pair := s.login(t, "alice")
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, u.ID, pair.User.ID)

	rec := s.call(t, http.MethodGet, "/auth/me", pair.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice@example.com", decode[UserResponse](t, rec).Email)

	rec = s.call(t, http.MethodPost, "/auth/refresh", "", RefreshRequest{RefreshToken: pair.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)
	next := decode[TokenResponse](t, rec)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	rec = s.call(t, http.MethodPost, "/auth/refresh", "", RefreshRequest{RefreshToken: pair.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid or expired refresh token")

	rec = s.call(t, http.MethodPost, "/auth/logout", next.AccessToken, LogoutRequest{RefreshToken: next.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.call(t, http.MethodPost, "/auth/refresh", "", RefreshRequest{RefreshToken: next.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestClientLogoutAfterAccessExpired(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	var skew atomic.Int64
	s.svc.Issuer.Now = func() time.Time { return time.Now().Add(time.Duration(skew.Load())) }
	srv := httptest.NewServer(s.e)
	t.Cleanup(srv.Close)
	s.signup(t, "alice")

	ctx := context.Background()
	c, err := authclient.NewClient(srv.URL)
	require.NoError(t, err)
	_, err = c.Login(ctx, "alice@example.com", "hunter22")
	require.NoError(t, err)
	before := c.Session()

	skew.Store(int64(20 * time.Minute))
	rec := s.call(t, http.MethodGet, "/auth/me", before.AccessToken, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	require.NoError(t, c.Logout(ctx, false))
	assert.Equal(t, authclient.Anonymous, c.State())

	rec = s.call(t, http.MethodPost, "/auth/refresh", "", RefreshRequest{RefreshToken: before.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	user, err := s.repo.UserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	var live int64
	require.NoError(t, s.repo.DB.Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked = ?", user.ID, false).Count(&live).Error)
	assert.Zero(t, live)
}

func TestRegisterAndLoginErrors(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	s.signup(t, "alice")

	tests := []struct {
		name       string
		path       string
		body       any
		wantStatus int
		wantMsg    string
	}{
		{name: "duplicate", path: "/auth/register", body: RegisterRequest{Username: "alice", Email: "a2@example.com", Password: "hunter22"}, wantStatus: http.StatusConflict, wantMsg: "user already exists"},
		{name: "invalid email", path: "/auth/register", body: RegisterRequest{Username: "bob", Email: "nope", Password: "hunter22"}, wantStatus: http.StatusBadRequest, wantMsg: "invalid email"},
		{name: "bad body", path: "/auth/register", body: "not an object", wantStatus: http.StatusBadRequest, wantMsg: "invalid body"},
		{name: "wrong password", path: "/auth/login", body: LoginRequest{Email: "alice@example.com", Password: "nope-nope"}, wantStatus: http.StatusUnauthorized, wantMsg: "invalid email or password"},
		{name: "unknown user", path: "/auth/login", body: LoginRequest{Email: "x@example.com", Password: "hunter22"}, wantStatus: http.StatusUnauthorized, wantMsg: "invalid email or password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.call(t, http.MethodPost, tt.path, "", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantMsg)
		})
	}
}

func TestVerifyEmail(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	s.signup(t, "alice")
	tok := s.lastVerifyToken(t)

	rec := s.call(t, http.MethodPost, "/auth/verify-email", "", VerifyEmailRequest{Token: "bogus"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid verification token")

	rec = s.call(t, http.MethodPost, "/auth/verify-email", "", VerifyEmailRequest{Token: tok})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.call(t, http.MethodPost, "/auth/verify-email", "", VerifyEmailRequest{Token: tok})
	assert.Equal(t, http.StatusConflict, rec.Code)

	pair := s.login(t, "alice")
	assert.True(t, pair.User.EmailVerified)
	rec = s.call(t, http.MethodPost, "/auth/verify-email/resend", pair.AccessToken, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestResendVerification(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	s.signup(t, "alice")
	pair := s.login(t, "alice")

	rec := s.call(t, http.MethodPost, "/auth/verify-email/resend", pair.AccessToken, nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Len(t, s.mail.links, 2)
}

func TestProtectedRoutes(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	for _, r := range []struct{ method, path string }{
		{http.MethodGet, "/auth/me"},
		{http.MethodPost, "/auth/logout"},
		{http.MethodDelete, "/users/me"},
		{http.MethodGet, "/admin/users"},
	} {
		rec := s.call(t, r.method, r.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, r.path)
		rec = s.call(t, r.method, r.path, "garbage", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, r.path)
	}

	assert.Equal(t, http.StatusNotFound, s.call(t, http.MethodGet, "/nope", "", nil).Code)
}

func TestAdminRoutes(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	ctx := context.Background()

	root := s.signup(t, "root")
	alice := s.signup(t, "alice")
	rootID := mustUUID(t, root.ID)
	_, err := s.repo.SetRole(ctx, rootID, models.RoleAdmin)
	require.NoError(t, err)

	userTok := s.login(t, "alice").AccessToken
	adminTok := s.login(t, "root").AccessToken

	rec := s.call(t, http.MethodGet, "/admin/users", userTok, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "insufficient role")

	rec = s.call(t, http.MethodGet, "/admin/users?page=1&size=10", adminTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[UserListResponse](t, rec)
	assert.EqualValues(t, 2, list.Total)

	rec = s.call(t, http.MethodPost, "/admin/users/"+alice.ID+"/ban", adminTok, BanRequest{Reason: "spam"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[UserResponse](t, rec).Banned)

	rec = s.call(t, http.MethodPost, "/auth/login", "", LoginRequest{Email: "alice@example.com", Password: "hunter22"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "account banned")

	rec = s.call(t, http.MethodDelete, "/admin/users/"+alice.ID+"/ban", adminTok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[UserResponse](t, rec).Banned)

	rec = s.call(t, http.MethodPut, "/admin/users/"+alice.ID+"/role", adminTok, RoleRequest{Role: "Admin"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.RoleAdmin, decode[UserResponse](t, rec).Role)

	rec = s.call(t, http.MethodPut, "/admin/users/"+alice.ID+"/role", adminTok, RoleRequest{Role: "God"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.call(t, http.MethodPost, "/admin/users/not-a-uuid/ban", adminTok, BanRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.call(t, http.MethodPost, "/admin/users/"+root.ID+"/ban", adminTok, BanRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.call(t, http.MethodPost, "/admin/users/00000000-0000-0000-0000-000000000001/ban", adminTok, BanRequest{})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteMe(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	s.signup(t, "alice")
	pair := s.login(t, "alice")

	rec := s.call(t, http.MethodDelete, "/users/me", pair.AccessToken, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// the access token is still well formed but the user is gone
	rec = s.call(t, http.MethodGet, "/auth/me", pair.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	assert.Equal(t, http.StatusOK, s.call(t, http.MethodGet, "/health/live", "", nil).Code)
	assert.Equal(t, http.StatusOK, s.call(t, http.MethodGet, "/health/ready", "", nil).Code)

	s.signup(t, "alice")
	rec := s.call(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `auth_registrations_total{status="success"} 1`)
	assert.Contains(t, rec.Body.String(), "auth_http_requests_total")
}

func TestReadyFailure(t *testing.T) {
	t.Parallel()

	e := echo.New()
	Register(e, &Deps{
		AuthHandler:   &AuthHTTP{},
		AdminHandler:  &AdminHTTP{},
		Authenticator: auth.NewAuthenticator(tokens.NewIssuer([]byte("x"), time.Minute, time.Hour)),
		Ready:         func(context.Context) error { return errors.New("db down") },
	})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHTTPErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		code int
	}{
		{service.ErrValidation, http.StatusBadRequest},
		{service.ErrDuplicateUser, http.StatusConflict},
		{service.ErrInvalidCredentials, http.StatusUnauthorized},
		{service.ErrAccountBanned, http.StatusForbidden},
		{service.ErrInvalidOrExpiredToken, http.StatusUnauthorized},
		{service.ErrInvalidToken, http.StatusBadRequest},
		{service.ErrAlreadyVerified, http.StatusConflict},
		{service.ErrNotFound, http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		var he *echo.HTTPError
		require.ErrorAs(t, httpError(tt.err), &he)
		assert.Equal(t, tt.code, he.Code, tt.err.Error())
	}

	var he *echo.HTTPError
	require.ErrorAs(t, httpError(errors.New("db exploded")), &he)
	assert.Equal(t, "internal error", he.Message)
}

func mustUUID(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	require.NoError(t, err)
	return id
}
