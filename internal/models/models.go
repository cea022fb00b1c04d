package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser  = "User"
	RoleAdmin = "Admin"
)

type User struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey"           json:"id"`
	Username      string     `gorm:"size:32;uniqueIndex;not null"   json:"username"`
	Email         string     `gorm:"size:254;uniqueIndex;not null"  json:"email"`
	PasswordHash  string     `gorm:"not null"                       json:"-"`
	Role          string     `gorm:"size:16;not null"               json:"role"`
	EmailVerified bool       `gorm:"not null;default:false"         json:"email_verified"`
	Banned        bool       `gorm:"not null;default:false"         json:"banned"`
	BanReason     string     `gorm:"size:512"                       json:"ban_reason,omitempty"`
	BannedAt      *time.Time `json:"banned_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"-"`
}

func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }

type RefreshToken struct {
	ID        uint       `gorm:"primaryKey"`
	TokenHash string     `gorm:"size:64;uniqueIndex;not null"`
	UserID    uuid.UUID  `gorm:"type:uuid;index;not null"`
	ExpiresAt time.Time  `gorm:"index;not null"`
	Revoked   bool       `gorm:"not null;default:false"`
	RevokedAt *time.Time
	CreatedAt time.Time
}

type EmailVerification struct {
	ID        uint      `gorm:"primaryKey"`
	TokenHash string    `gorm:"size:64;uniqueIndex;not null"`
	UserID    uuid.UUID `gorm:"type:uuid;index;not null"`
	ExpiresAt time.Time `gorm:"not null"`
	UsedAt    *time.Time
	CreatedAt time.Time
}

// All lists every persisted model, in migration order.
func All() []any {
	return []any{&User{}, &RefreshToken{}, &EmailVerification{}}
}
