package service

import (
	"context"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/gamelog/internal/logging"
	"github.com/Skotchmaster/gamelog/internal/models"
)

const (
	EventUserRegistered  = "user_registered"
	EventUserVerified    = "user_verified"
	EventUserBanned      = "user_banned"
	EventUserUnbanned    = "user_unbanned"
	EventUserRoleChanged = "user_role_changed"
	EventUserDeleted     = "user_deleted"
)

type UserEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	UserID     string    `json:"user_id"`
	Username   string    `json:"username,omitempty"`
	Role       string    `json:"role,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	ActorID    string    `json:"actor_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// VerificationMail is the job consumed by the mail sender.
type VerificationMail struct {
	Type      string    `json:"type"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Link      string    `json:"link"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *AuthService) newEvent(typ string, u *models.User) UserEvent {
	return UserEvent{
		ID:         uuid.NewString(),
		Type:       typ,
		UserID:     u.ID.String(),
		Username:   u.Username,
		Role:       u.Role,
		OccurredAt: s.now(),
	}
}

// publish is best effort: the operation that produced the event has already committed.
func (s *AuthService) publish(ctx context.Context, ev UserEvent) {
	if s.Events == nil {
		return
	}
	if err := s.Events.PublishEvent(ctx, s.EventsTopic, ev.UserID, ev); err != nil {
		logging.FromContext(ctx).Warn("publish event failed", "event", ev.Type, "user_id", ev.UserID, "error", err)
		s.sideEffectFailed("event")
	}
}

func (s *AuthService) indexUser(ctx context.Context, u *models.User) {
	if s.Index == nil {
		return
	}
	if err := s.Index.IndexUser(ctx, u); err != nil {
		logging.FromContext(ctx).Warn("index user failed", "user_id", u.ID, "error", err)
		s.sideEffectFailed("index")
	}
}

func (s *AuthService) verificationLink(raw string) string {
	base := s.Options.VerifyURL
	if base == "" {
		base = "/verify-email"
	}
	return base + "?token=" + url.QueryEscape(raw)
}
