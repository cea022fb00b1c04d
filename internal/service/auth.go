package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	pkg_hash "github.com/Skotchmaster/gamelog/internal/hash"
	"github.com/Skotchmaster/gamelog/internal/logging"
	"github.com/Skotchmaster/gamelog/internal/metrics"
	"github.com/Skotchmaster/gamelog/internal/models"
	"github.com/Skotchmaster/gamelog/internal/repo"
	"github.com/Skotchmaster/gamelog/internal/tokens"
)

type Options struct {
	BcryptCost int
	VerifyTTL  time.Duration
	VerifyURL  string
	// VerifyEmailIdempotent turns re-verification into a no-op success instead of ErrAlreadyVerified.
	VerifyEmailIdempotent bool
}

type AuthService struct {
	Repo          Store
	Verifications VerificationStore
	Issuer        *tokens.Issuer
	Options       Options

	Events      EventPublisher
	EventsTopic string
	Mail        MailQueue
	Index       UserIndex
	Metrics     *metrics.Registry

	Now func() time.Time
}

type LoginResult struct {
	AccessToken  string
	RefreshToken string
	AccessExp    time.Time
	RefreshExp   time.Time
	User         *models.User
}

var usernameRe = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,32}$`)

const minPasswordLen = 6

func (s *AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *AuthService) sideEffectFailed(kind string) {
	s.Metrics.SideEffectFailed(kind)
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateRegistration(username, email, password string) error {
	if !usernameRe.MatchString(username) {
		return fmt.Errorf("%w: username must be 3-32 letters, digits, '_', '.' or '-'", ErrValidation)
	}
	if len(email) > 254 {
		return fmt.Errorf("%w: email too long", ErrValidation)
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return fmt.Errorf("%w: invalid email", ErrValidation)
	}
	if len(password) < minPasswordLen {
		return fmt.Errorf("%w: password must be at least %d characters", ErrValidation, minPasswordLen)
	}
	if err := pkg_hash.ValidateLength(password); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// Register creates an unverified user and queues the verification mail. No tokens are issued.
func (s *AuthService) Register(ctx context.Context, username, email, password string) (user *models.User, err error) {
	l := logging.FromContext(ctx).With("svc", "auth.register")
	defer func() { s.Metrics.Observe(metrics.OpRegister, err) }()

	username = strings.TrimSpace(username)
	email = NormalizeEmail(email)
	if err := validateRegistration(username, email, password); err != nil {
		l.Warn("register_error", "status", 400, "reason", err.Error())
		return nil, err
	}

	pwHash, err := pkg_hash.HashPassword(password, s.Options.BcryptCost)
	if err != nil {
		l.Error("register_error", "status", 500, "reason", "cannot hash the password", "error", err)
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: pwHash,
		Role:         models.RoleUser,
	}
	if err := s.Repo.CreateUser(ctx, u); err != nil {
		if errors.Is(err, repo.ErrUserAlreadyExist) {
			l.Warn("register_error", "status", 409, "reason", "user already exist", "username", username)
			return nil, ErrDuplicateUser
		}
		l.Error("register_error", "status", 500, "error", err)
		return nil, fmt.Errorf("create user: %w", err)
	}

	if err := s.sendVerification(ctx, u); err != nil {
		l.Warn("verification mail not queued", "user_id", u.ID, "error", err)
		s.sideEffectFailed("mail")
	}
	s.publish(ctx, s.newEvent(EventUserRegistered, u))
	s.indexUser(ctx, u)

	l.Info("user registered", "user_id", u.ID, "username", u.Username)
	return u, nil
}

func (s *AuthService) sendVerification(ctx context.Context, u *models.User) error {
	if s.Verifications == nil {
		return errors.New("verification store is not configured")
	}
	raw, err := tokens.RandomHex(32)
	if err != nil {
		return fmt.Errorf("generate verification token: %w", err)
	}
	exp := s.now().Add(s.Options.VerifyTTL)
	if err := s.Verifications.Create(ctx, u.ID, tokens.HashToken(raw), exp); err != nil {
		return fmt.Errorf("store verification token: %w", err)
	}
	if s.Mail == nil {
		logging.FromContext(ctx).Debug("mail queue disabled, verification link not sent", "user_id", u.ID)
		return nil
	}
	return s.Mail.Publish(ctx, VerificationMail{
		Type:      "verify_email",
		UserID:    u.ID.String(),
		Username:  u.Username,
		Email:     u.Email,
		Link:      s.verificationLink(raw),
		ExpiresAt: exp,
	})
}

// Login checks the ban flag before the password, so banned accounts always get ErrAccountBanned.
func (s *AuthService) Login(ctx context.Context, email, password string) (res *LoginResult, err error) {
	email = NormalizeEmail(email)
	l := logging.FromContext(ctx).With("svc", "auth.login", "email", email)
	defer func() { s.Metrics.Observe(metrics.OpLogin, err) }()

	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.Repo.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			pkg_hash.CompareDummy(password)
			l.Warn("login failed", "status", 401, "reason", "unknown email")
			return nil, ErrInvalidCredentials
		}
		l.Error("login failed", "status", 500, "error", err)
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user.Banned {
		l.Warn("login failed", "status", 403, "reason", "account banned", "user_id", user.ID)
		return nil, ErrAccountBanned
	}
	if !pkg_hash.CheckPassword(user.PasswordHash, password) {
		l.Warn("login failed", "status", 401, "reason", "wrong password", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}

	res, err = s.issuePair(ctx, user)
	if err != nil {
		l.Error("login failed", "status", 500, "error", err)
		return nil, err
	}
	l.Info("login_successful", "user_id", user.ID)
	return res, nil
}

func (s *AuthService) issuePair(ctx context.Context, user *models.User) (*LoginResult, error) {
	access, accessExp, err := s.Issuer.IssueAccess(user.ID, user.Username, user.Role)
	if err != nil {
		return nil, err
	}
	raw, hash, refreshExp, err := s.Issuer.NewRefresh()
	if err != nil {
		return nil, err
	}
	if err := s.Repo.StoreRefresh(ctx, user.ID, hash, refreshExp); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}
	return &LoginResult{
		AccessToken:  access,
		RefreshToken: raw,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
		User:         user,
	}, nil
}

// Refresh exchanges a refresh token for a new pair. The presented token is revoked in the
// same transaction that stores its successor, so it can be used at most once.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (res *LoginResult, err error) {
	l := logging.FromContext(ctx).With("svc", "auth.refresh")
	defer func() { s.Metrics.Observe(metrics.OpRefresh, err) }()

	if refreshToken == "" {
		return nil, ErrInvalidOrExpiredToken
	}

	raw, newHash, newExp, err := s.Issuer.NewRefresh()
	if err != nil {
		l.Error("refresh failed", "status", 500, "error", err)
		return nil, err
	}

	user, err := s.Repo.RotateRefresh(ctx, tokens.HashToken(refreshToken), newHash, newExp, s.now())
	if err != nil {
		switch {
		case errors.Is(err, repo.ErrRefreshNotUsable), errors.Is(err, repo.ErrNotFound):
			l.Warn("refresh failed", "status", 401, "reason", "token expired, revoked or unknown")
			return nil, ErrInvalidOrExpiredToken
		case errors.Is(err, repo.ErrUserBanned):
			l.Warn("refresh failed", "status", 401, "reason", "owner banned")
			return nil, ErrInvalidOrExpiredToken
		}
		l.Error("refresh failed", "status", 500, "error", err)
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	access, accessExp, err := s.Issuer.IssueAccess(user.ID, user.Username, user.Role)
	if err != nil {
		l.Error("refresh failed", "status", 500, "error", err)
		return nil, err
	}

	l.Info("refresh_successful", "user_id", user.ID)
	return &LoginResult{
		AccessToken:  access,
		RefreshToken: raw,
		AccessExp:    accessExp,
		RefreshExp:   newExp,
		User:         user,
	}, nil
}

// Logout revokes one refresh token, or every token of userID when all is set.
// Unknown tokens are ignored.
func (s *AuthService) Logout(ctx context.Context, userID uuid.UUID, refreshToken string, all bool) error {
	l := logging.FromContext(ctx).With("svc", "auth.logout", "user_id", userID)

	if all {
		n, err := s.Repo.RevokeAllForUser(ctx, userID, s.now())
		if err != nil {
			l.Error("logout_failed", "status", 500, "reason", "cannot revoke tokens", "error", err)
			return fmt.Errorf("revoke all: %w", err)
		}
		l.Info("successful_logout", "revoked", n)
		return nil
	}
	if refreshToken == "" {
		return nil
	}
	if err := s.Repo.RevokeRefresh(ctx, tokens.HashToken(refreshToken), s.now()); err != nil {
		l.Error("logout_failed", "status", 500, "reason", "cannot revoke refreshToken", "error", err)
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	l.Info("successful_logout")
	return nil
}

// VerifyEmail consumes a verification token. Whether a repeated verification succeeds
// is governed by Options.VerifyEmailIdempotent.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) (err error) {
	l := logging.FromContext(ctx).With("svc", "auth.verify_email")
	defer func() { s.Metrics.Observe(metrics.OpVerify, err) }()

	if token == "" {
		return ErrInvalidToken
	}
	hash := tokens.HashToken(token)
	now := s.now()

	userID, used, err := s.Verifications.Lookup(ctx, hash, now)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			l.Warn("verify failed", "status", 400, "reason", "unknown or expired token")
			return ErrInvalidToken
		}
		l.Error("verify failed", "status", 500, "error", err)
		return fmt.Errorf("lookup verification: %w", err)
	}
	if used {
		return s.alreadyVerified(ctx, userID)
	}

	already, err := s.Repo.MarkEmailVerified(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrInvalidToken
		}
		l.Error("verify failed", "status", 500, "error", err)
		return fmt.Errorf("mark verified: %w", err)
	}
	if err := s.Verifications.MarkUsed(ctx, hash, now); err != nil {
		l.Error("verify failed", "status", 500, "reason", "cannot mark token used", "error", err)
		return fmt.Errorf("mark token used: %w", err)
	}
	if already {
		return s.alreadyVerified(ctx, userID)
	}

	if u, err := s.Repo.UserByID(ctx, userID); err == nil {
		s.publish(ctx, s.newEvent(EventUserVerified, u))
		s.indexUser(ctx, u)
	}
	l.Info("email verified", "user_id", userID)
	return nil
}

func (s *AuthService) alreadyVerified(ctx context.Context, userID uuid.UUID) error {
	if s.Options.VerifyEmailIdempotent {
		logging.FromContext(ctx).Debug("email already verified", "user_id", userID)
		return nil
	}
	return ErrAlreadyVerified
}

func (s *AuthService) ResendVerification(ctx context.Context, userID uuid.UUID) error {
	l := logging.FromContext(ctx).With("svc", "auth.resend_verification", "user_id", userID)

	u, err := s.Me(ctx, userID)
	if err != nil {
		return err
	}
	if u.EmailVerified {
		return ErrAlreadyVerified
	}
	if err := s.sendVerification(ctx, u); err != nil {
		l.Error("resend failed", "status", 500, "error", err)
		return fmt.Errorf("send verification: %w", err)
	}
	return nil
}

func (s *AuthService) Me(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	u, err := s.Repo.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return u, nil
}

// DeleteAccount removes the user together with its tokens.
func (s *AuthService) DeleteAccount(ctx context.Context, userID uuid.UUID) error {
	l := logging.FromContext(ctx).With("svc", "auth.delete_account", "user_id", userID)

	u, err := s.Me(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.Repo.DeleteUser(ctx, userID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}
		l.Error("delete failed", "status", 500, "error", err)
		return fmt.Errorf("delete user: %w", err)
	}
	if s.Index != nil {
		if err := s.Index.DeleteUser(ctx, userID); err != nil {
			l.Warn("remove from index failed", "error", err)
			s.sideEffectFailed("index")
		}
	}
	s.publish(ctx, s.newEvent(EventUserDeleted, u))
	l.Info("account deleted")
	return nil
}
