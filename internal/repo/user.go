package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Skotchmaster/gamelog/internal/models"
)

// CreateUser inserts u unless its username or email is already taken.
func (r *GormRepo) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).
			Where("username = ? OR email = ?", u.Username, u.Email).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrUserAlreadyExist
		}
		if err := tx.Create(u).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrUserAlreadyExist
			}
			return err
		}
		return nil
	})
}

func (r *GormRepo) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (r *GormRepo) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return userByID(r.DB.WithContext(ctx), id)
}

func userByID(db *gorm.DB, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := db.Where("id = ?", id).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// SetBanned flips the ban state. Banning revokes every live refresh token of the user.
func (r *GormRepo) SetBanned(ctx context.Context, id uuid.UUID, banned bool, reason string, at time.Time) (*models.User, error) {
	var out *models.User
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{"banned": banned}
		if banned {
			updates["ban_reason"] = reason
			updates["banned_at"] = at.UTC()
		} else {
			updates["ban_reason"] = ""
			updates["banned_at"] = nil
		}
		res := tx.Model(&models.User{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if banned {
			if _, err := revokeAllForUser(tx, id, at); err != nil {
				return err
			}
		}
		u, err := userByID(tx, id)
		if err != nil {
			return err
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *GormRepo) SetRole(ctx context.Context, id uuid.UUID, role string) (*models.User, error) {
	var out *models.User
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).Where("id = ?", id).Update("role", role)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		u, err := userByID(tx, id)
		if err != nil {
			return err
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MarkEmailVerified sets the verified flag and reports whether it was already set.
func (r *GormRepo) MarkEmailVerified(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND email_verified = ?", id, false).
		Update("email_verified", true)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 1 {
		return false, nil
	}
	if _, err := r.UserByID(ctx, id); err != nil {
		return false, err
	}
	return true, nil
}

func (r *GormRepo) DeleteUser(ctx context.Context, id uuid.UUID) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", id).Delete(&models.RefreshToken{}).Error; err != nil {
			return fmt.Errorf("delete refresh tokens: %w", err)
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.EmailVerification{}).Error; err != nil {
			return fmt.Errorf("delete verifications: %w", err)
		}
		res := tx.Where("id = ?", id).Delete(&models.User{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ListUsers pages through users, optionally filtered by a username or email substring.
func (r *GormRepo) ListUsers(ctx context.Context, q string, offset, limit int) ([]models.User, int64, error) {
	tx := r.DB.WithContext(ctx).Model(&models.User{})
	if q = strings.TrimSpace(strings.ToLower(q)); q != "" {
		like := "%" + q + "%"
		tx = tx.Where("LOWER(username) LIKE ? OR email LIKE ?", like, like)
	}

	var total int64
	if err := tx.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	users := make([]models.User, 0, limit)
	if err := tx.Order("created_at ASC").Offset(offset).Limit(limit).Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}
