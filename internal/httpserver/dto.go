package httpserver

import (
	"time"

	"github.com/Skotchmaster/gamelog/internal/models"
	"github.com/Skotchmaster/gamelog/internal/service"
)

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
	All          bool   `json:"all"`
}

type VerifyEmailRequest struct {
	Token string `json:"token"`
}

type BanRequest struct {
	Reason string `json:"reason"`
}

type RoleRequest struct {
	Role string `json:"role"`
}

type UserResponse struct {
	ID            string     `json:"id"`
	Username      string     `json:"username"`
	Email         string     `json:"email"`
	Role          string     `json:"role"`
	EmailVerified bool       `json:"email_verified"`
	Banned        bool       `json:"banned"`
	BanReason     string     `json:"ban_reason,omitempty"`
	BannedAt      *time.Time `json:"banned_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type TokenResponse struct {
	AccessToken      string       `json:"access_token"`
	RefreshToken     string       `json:"refresh_token"`
	AccessExpiresAt  time.Time    `json:"access_expires_at"`
	RefreshExpiresAt time.Time    `json:"refresh_expires_at"`
	User             UserResponse `json:"user"`
}

type UserListResponse struct {
	Total int64          `json:"total"`
	Users []UserResponse `json:"users"`
}

func toUser(u *models.User) UserResponse {
	return UserResponse{
		ID:            u.ID.String(),
		Username:      u.Username,
		Email:         u.Email,
		Role:          u.Role,
		EmailVerified: u.EmailVerified,
		Banned:        u.Banned,
		BanReason:     u.BanReason,
		BannedAt:      u.BannedAt,
		CreatedAt:     u.CreatedAt,
	}
}

func toTokens(res *service.LoginResult) TokenResponse {
	return TokenResponse{
		AccessToken:      res.AccessToken,
		RefreshToken:     res.RefreshToken,
		AccessExpiresAt:  res.AccessExp,
		RefreshExpiresAt: res.RefreshExp,
		User:             toUser(res.User),
	}
}

func toUserList(p *service.UserPage) UserListResponse {
	out := UserListResponse{Total: p.Total, Users: make([]UserResponse, 0, len(p.Users))}
	for i := range p.Users {
		out.Users = append(out.Users, toUser(&p.Users[i]))
	}
	return out
}
