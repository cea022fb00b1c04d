package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Skotchmaster/gamelog/internal/models"
)

func (r *GormRepo) StoreRefresh(ctx context.Context, userID uuid.UUID, hash string, exp time.Time) error {
	return r.DB.WithContext(ctx).Create(&models.RefreshToken{
		TokenHash: hash,
		UserID:    userID,
		ExpiresAt: exp.UTC(),
	}).Error
}

// RotateRefresh consumes oldHash and stores newHash for the same user in one transaction.
// The consume step is a conditional update, so of two concurrent rotations of the
// same token exactly one observes RowsAffected == 1.
func (r *GormRepo) RotateRefresh(ctx context.Context, oldHash, newHash string, newExp, now time.Time) (*models.User, error) {
	now, newExp = now.UTC(), newExp.UTC()
	var user *models.User
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.RefreshToken{}).
			Where("token_hash = ? AND revoked = ? AND expires_at > ?", oldHash, false, now).
			Updates(map[string]any{"revoked": true, "revoked_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return ErrRefreshNotUsable
		}

		var old models.RefreshToken
		if err := tx.Where("token_hash = ?", oldHash).First(&old).Error; err != nil {
			return notFound(err)
		}

		u, err := userByID(tx, old.UserID)
		if err != nil {
			return err
		}
		if u.Banned {
			return ErrUserBanned
		}

		if err := tx.Create(&models.RefreshToken{
			TokenHash: newHash,
			UserID:    u.ID,
			ExpiresAt: newExp,
		}).Error; err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// RevokeRefresh is idempotent: unknown or already revoked tokens are not an error.
func (r *GormRepo) RevokeRefresh(ctx context.Context, hash string, now time.Time) error {
	now = now.UTC()
	return r.DB.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("token_hash = ? AND revoked = ?", hash, false).
		Updates(map[string]any{"revoked": true, "revoked_at": now}).Error
}

func (r *GormRepo) RevokeAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	return revokeAllForUser(r.DB.WithContext(ctx), userID, now)
}

func revokeAllForUser(db *gorm.DB, userID uuid.UUID, now time.Time) (int64, error) {
	now = now.UTC()
	res := db.Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked = ?", userID, false).
		Updates(map[string]any{"revoked": true, "revoked_at": now})
	return res.RowsAffected, res.Error
}

// PurgeExpired removes tokens that can no longer be used.
func (r *GormRepo) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	res := r.DB.WithContext(ctx).
		Where("expires_at <= ? OR revoked = ?", before.UTC(), true).
		Delete(&models.RefreshToken{})
	return res.RowsAffected, res.Error
}
