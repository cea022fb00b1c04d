package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/gamelog/internal/models"
)

// Store is the credential store plus refresh token persistence.
type Store interface {
	CreateUser(ctx context.Context, u *models.User) error
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	SetBanned(ctx context.Context, id uuid.UUID, banned bool, reason string, at time.Time) (*models.User, error)
	SetRole(ctx context.Context, id uuid.UUID, role string) (*models.User, error)
	MarkEmailVerified(ctx context.Context, id uuid.UUID) (bool, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error
	ListUsers(ctx context.Context, q string, offset, limit int) ([]models.User, int64, error)

	StoreRefresh(ctx context.Context, userID uuid.UUID, hash string, exp time.Time) error
	RotateRefresh(ctx context.Context, oldHash, newHash string, newExp, now time.Time) (*models.User, error)
	RevokeRefresh(ctx context.Context, hash string, now time.Time) error
	RevokeAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error)
}

type VerificationStore interface {
	Create(ctx context.Context, userID uuid.UUID, hash string, exp time.Time) error
	Lookup(ctx context.Context, hash string, now time.Time) (uuid.UUID, bool, error)
	MarkUsed(ctx context.Context, hash string, now time.Time) error
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, topic, key string, event any) error
}

type MailQueue interface {
	Publish(ctx context.Context, msg any) error
}

type UserIndex interface {
	IndexUser(ctx context.Context, u *models.User) error
	DeleteUser(ctx context.Context, id uuid.UUID) error
	SearchUsers(ctx context.Context, q string, from, size int) (int64, []models.User, error)
}
