package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Skotchmaster/gamelog/internal/logging"
	"github.com/Skotchmaster/gamelog/internal/models"
	"github.com/Skotchmaster/gamelog/internal/repo"
	"github.com/Skotchmaster/gamelog/internal/util"
)

type UserPage struct {
	Total int64
	Users []models.User
}

func (s *AuthService) Ban(ctx context.Context, actorID, userID uuid.UUID, reason string) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "admin.ban", "actor_id", actorID, "user_id", userID)
	if actorID == userID {
		return nil, fmt.Errorf("%w: cannot ban yourself", ErrValidation)
	}
	if len(reason) > 512 {
		return nil, fmt.Errorf("%w: reason too long", ErrValidation)
	}

	u, err := s.Repo.SetBanned(ctx, userID, true, reason, s.now())
	if err != nil {
		return nil, s.adminError(l, err)
	}

	ev := s.newEvent(EventUserBanned, u)
	ev.Reason, ev.ActorID = reason, actorID.String()
	s.publish(ctx, ev)
	s.indexUser(ctx, u)
	l.Info("user banned", "reason", reason)
	return u, nil
}

func (s *AuthService) Unban(ctx context.Context, actorID, userID uuid.UUID) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "admin.unban", "actor_id", actorID, "user_id", userID)

	u, err := s.Repo.SetBanned(ctx, userID, false, "", s.now())
	if err != nil {
		return nil, s.adminError(l, err)
	}

	ev := s.newEvent(EventUserUnbanned, u)
	ev.ActorID = actorID.String()
	s.publish(ctx, ev)
	s.indexUser(ctx, u)
	l.Info("user unbanned")
	return u, nil
}

// SetRole changes a user's role. Already issued access tokens keep the old role until they expire.
func (s *AuthService) SetRole(ctx context.Context, actorID, userID uuid.UUID, role string) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "admin.set_role", "actor_id", actorID, "user_id", userID)
	if role != models.RoleUser && role != models.RoleAdmin {
		return nil, fmt.Errorf("%w: role must be %q or %q", ErrValidation, models.RoleUser, models.RoleAdmin)
	}
	if actorID == userID {
		return nil, fmt.Errorf("%w: cannot change your own role", ErrValidation)
	}

	u, err := s.Repo.SetRole(ctx, userID, role)
	if err != nil {
		return nil, s.adminError(l, err)
	}

	ev := s.newEvent(EventUserRoleChanged, u)
	ev.ActorID = actorID.String()
	s.publish(ctx, ev)
	s.indexUser(ctx, u)
	l.Info("role changed", "role", role)
	return u, nil
}

// SearchUsers uses the search index for free-text queries when one is configured and
// falls back to the database otherwise.
func (s *AuthService) SearchUsers(ctx context.Context, q string, page, size int) (*UserPage, error) {
	l := logging.FromContext(ctx).With("svc", "admin.search_users")
	offset, limit := util.Calculate(page, size)

	if q != "" && s.Index != nil {
		total, users, err := s.Index.SearchUsers(ctx, q, offset, limit)
		if err == nil {
			return &UserPage{Total: total, Users: users}, nil
		}
		l.Warn("index search failed, falling back to database", "error", err)
		s.sideEffectFailed("index")
	}

	users, total, err := s.Repo.ListUsers(ctx, q, offset, limit)
	if err != nil {
		l.Error("list users failed", "status", 500, "error", err)
		return nil, fmt.Errorf("list users: %w", err)
	}
	return &UserPage{Total: total, Users: users}, nil
}

func (s *AuthService) adminError(l *slog.Logger, err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return ErrNotFound
	}
	l.Error("admin operation failed", "status", 500, "error", err)
	return err
}
