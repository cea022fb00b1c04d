package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Skotchmaster/gamelog/internal/models"
)

// Verifications keeps email verification tokens in the SQL database.
type Verifications struct {
	DB *gorm.DB
}

func NewVerifications(db *gorm.DB) *Verifications {
	return &Verifications{DB: db}
}

func (v *Verifications) Create(ctx context.Context, userID uuid.UUID, hash string, exp time.Time) error {
	return v.DB.WithContext(ctx).Create(&models.EmailVerification{
		TokenHash: hash,
		UserID:    userID,
		ExpiresAt: exp.UTC(),
	}).Error
}

// Lookup returns the owner of a verification token and whether it was already used.
// A used token is reported as used even past its expiry; an unused expired one is ErrNotFound.
func (v *Verifications) Lookup(ctx context.Context, hash string, now time.Time) (uuid.UUID, bool, error) {
	var rec models.EmailVerification
	if err := v.DB.WithContext(ctx).
		Where("token_hash = ?", hash).
		First(&rec).Error; err != nil {
		return uuid.Nil, false, notFound(err)
	}
	if rec.UsedAt != nil {
		return rec.UserID, true, nil
	}
	if !rec.ExpiresAt.After(now) {
		return uuid.Nil, false, ErrNotFound
	}
	return rec.UserID, false, nil
}

func (v *Verifications) MarkUsed(ctx context.Context, hash string, now time.Time) error {
	return v.DB.WithContext(ctx).Model(&models.EmailVerification{}).
		Where("token_hash = ? AND used_at IS NULL", hash).
		Update("used_at", now.UTC()).Error
}
