package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

// ErrSessionExpired means the refresh token was rejected and the local session is gone.
var ErrSessionExpired = errors.New("session expired, login required")

// APIError is a non-2xx answer from the auth service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("auth service: %d %s", e.StatusCode, e.Message)
}

type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Email         string `json:"email"`
	Role          string `json:"role"`
	EmailVerified bool   `json:"email_verified"`
}

type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	storage    Storage
	onLogout   func()

	mu      sync.Mutex
	state   State
	session *Session

	refreshGroup singleflight.Group
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithStorage(s Storage) Option {
	return func(c *Client) { c.storage = s }
}

// WithOnLogout registers a hook that runs when a failed refresh ends the session.
func WithOnLogout(fn func()) Option {
	return func(c *Client) { c.onLogout = fn }
}

// NewClient restores a stored session if there is one.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		storage: NewMemoryStorage(),
	}
	for _, opt := range opts {
		opt(c)
	}

	s, err := c.storage.Load()
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if s.IsAuthenticated() {
		c.session = s
		c.state = Authenticated
	}
	return c, nil
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns a copy of the current session, nil when anonymous.
func (c *Client) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.clone()
}

func (c *Client) Register(ctx context.Context, username, email, password string) (*User, error) {
	var u User
	err := c.postJSON(ctx, "/auth/register", map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	}, &u)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*Identity, error) {
	var pair tokenPair
	err := c.postJSON(ctx, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &pair)
	if err != nil {
		return nil, err
	}
	s, err := newSession(pair)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
	if _, err := c.applyLocked(EventLoggedIn{}); err != nil {
		return nil, err
	}
	return s.Identity, nil
}

// Logout revokes the refresh token on the server when it can and always clears the local session.
// An expired access token is refreshed first so the rotated refresh token is the one revoked.
func (c *Client) Logout(ctx context.Context, all bool) error {
	c.mu.Lock()
	s := c.session.clone()
	c.mu.Unlock()

	var remoteErr error
	if s.IsAuthenticated() {
		remoteErr = c.revoke(ctx, s, all)
		if isUnauthorized(remoteErr) {
			err := c.refreshAfter(ctx, s.AccessToken)
			switch {
			case err == nil:
				if fresh := c.Session(); fresh.IsAuthenticated() {
					remoteErr = c.revoke(ctx, fresh, all)
				}
			case errors.Is(err, ErrSessionExpired), errors.Is(err, errNoRefresh):
				// the server no longer accepts the refresh token
				remoteErr = nil
			default:
				remoteErr = err
			}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.applyLocked(EventLoggedOut{}); err != nil {
		return err
	}
	return remoteErr
}

func (c *Client) revoke(ctx context.Context, s *Session, all bool) error {
	body, err := json.Marshal(map[string]any{"refresh_token": s.RefreshToken, "all": all})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/logout", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.send(req, s.AccessToken)
	if err != nil {
		return err
	}
	defer drain(resp)
	return readError(resp)
}

func isUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// Do sends req with the current access token. A 401 triggers one shared refresh and
// a single replay of the request. The request body must be replayable through GetBody.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	sent := c.accessToken()
	resp, err := c.send(req, sent)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	if sent == "" {
		return resp, nil
	}
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return resp, nil
	}

	if err := c.refreshAfter(req.Context(), sent); err != nil {
		if errors.Is(err, errNoRefresh) {
			return resp, nil
		}
		drain(resp)
		return nil, err
	}
	drain(resp)

	retry := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("rewind body: %w", err)
		}
		retry.Body = body
	}

	resp, err = c.send(retry, c.accessToken())
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		c.mu.Lock()
		c.state, _ = Transition(c.state, EventUnauthorized{Retried: true})
		c.mu.Unlock()
	}
	return resp, nil
}

var errNoRefresh = errors.New("no refresh possible")

// refreshAfter makes sure the session holds a newer access token than sent.
func (c *Client) refreshAfter(ctx context.Context, sent string) error {
	c.mu.Lock()
	if c.state == Authenticated && c.session != nil && c.session.AccessToken != sent {
		c.mu.Unlock()
		return nil
	}
	var eff Effect
	c.state, eff = Transition(c.state, EventUnauthorized{})
	c.mu.Unlock()

	if eff == EffectFail {
		return errNoRefresh
	}

	_, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		return nil, c.refresh(context.WithoutCancel(ctx), sent)
	})
	return err
}

func (c *Client) refresh(ctx context.Context, sent string) error {
	c.mu.Lock()
	if c.state == Authenticated && c.session != nil && c.session.AccessToken != sent {
		c.mu.Unlock()
		return nil
	}
	var refreshToken string
	if c.session != nil {
		refreshToken = c.session.RefreshToken
	}
	c.mu.Unlock()

	var pair tokenPair
	err := errors.New("no refresh token")
	if refreshToken != "" {
		err = c.postJSON(ctx, "/auth/refresh", map[string]string{"refresh_token": refreshToken}, &pair)
	}
	var s *Session
	if err == nil {
		s, err = newSession(pair)
	}

	c.mu.Lock()
	if err == nil {
		defer c.mu.Unlock()
		if c.state != Refreshing {
			// logged out while the refresh was in flight
			return ErrSessionExpired
		}
		c.session = s
		_, err = c.applyLocked(EventRefreshSucceeded{})
		return err
	}

	eff, clearErr := c.applyLocked(EventRefreshFailed{})
	c.mu.Unlock()
	if eff == EffectClearAndRedirect && c.onLogout != nil {
		c.onLogout()
	}
	if clearErr != nil {
		return errors.Join(ErrSessionExpired, clearErr)
	}
	return fmt.Errorf("%w: %v", ErrSessionExpired, err)
}

// applyLocked runs a transition and its storage side effects. c.mu must be held.
// Redirecting is left to the caller so the hook runs without the lock.
func (c *Client) applyLocked(ev Event) (Effect, error) {
	var eff Effect
	c.state, eff = Transition(c.state, ev)

	switch eff {
	case EffectPersist, EffectRetry:
		if err := c.storage.Save(c.session); err != nil {
			return eff, fmt.Errorf("persist session: %w", err)
		}
	case EffectClear, EffectClearAndRedirect:
		c.session = nil
		if err := c.storage.Clear(); err != nil {
			return eff, fmt.Errorf("clear session: %w", err)
		}
	}
	return eff, nil
}

func (c *Client) accessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.AccessToken
}

func (c *Client) send(req *http.Request, token string) (*http.Response, error) {
	out := req.Clone(req.Context())
	if token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	} else {
		out.Header.Del("Authorization")
	}
	resp, err := c.httpClient.Do(out)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	return resp, nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if err := readError(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func readError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	var body struct {
		Message string `json:"message"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body)
	if body.Message == "" {
		body.Message = http.StatusText(resp.StatusCode)
	}
	return &APIError{StatusCode: resp.StatusCode, Message: body.Message}
}

func newSession(pair tokenPair) (*Session, error) {
	id, err := ParseIdentity(pair.AccessToken)
	if err != nil {
		return nil, err
	}
	return &Session{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken, Identity: id}, nil
}

// ParseIdentity reads the claims of an access token without checking the signature.
func ParseIdentity(accessToken string) (*Identity, error) {
	var claims struct {
		Username string `json:"username"`
		Role     string `json:"role"`
		jwt.RegisteredClaims
	}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return nil, fmt.Errorf("decode access token: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("access token has no subject")
	}
	return &Identity{UserID: claims.Subject, Username: claims.Username, Role: claims.Role}, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	resp.Body.Close()
}
