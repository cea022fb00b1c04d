// Package verifystore keeps email verification tokens in Redis with a TTL.
package verifystore

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Skotchmaster/gamelog/internal/repo"
)

const keyPrefix = "verify:"

// UsedRetention is how long a consumed token is remembered after it is used.
const UsedRetention = 30 * 24 * time.Hour

type record struct {
	UserID    uuid.UUID  `json:"user_id"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
}

type RedisStore struct {
	Client redis.UniversalClient
}

func NewRedisStore(c redis.UniversalClient) *RedisStore {
	return &RedisStore{Client: c}
}

type Options struct {
	Addr     string
	Password string
	DB       int
	TLS      bool
}

// NewClient dials Redis and pings it with a short timeout.
func NewClient(ctx context.Context, o Options) (*redis.Client, error) {
	var tlsConf *tls.Config
	if o.TLS {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(&redis.Options{
		Addr:      o.Addr,
		Password:  o.Password,
		DB:        o.DB,
		TLSConfig: tlsConf,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func key(hash string) string { return keyPrefix + hash }

func (s *RedisStore) Create(ctx context.Context, userID uuid.UUID, hash string, exp time.Time) error {
	ttl := time.Until(exp)
	if ttl <= 0 {
		return fmt.Errorf("verification token already expired")
	}
	data, err := json.Marshal(record{UserID: userID, ExpiresAt: exp.UTC()})
	if err != nil {
		return err
	}
	return s.Client.Set(ctx, key(hash), data, ttl).Err()
}

func (s *RedisStore) load(ctx context.Context, hash string) (*record, error) {
	data, err := s.Client.Get(ctx, key(hash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repo.ErrNotFound
		}
		return nil, err
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode verification record: %w", err)
	}
	return &rec, nil
}

func (s *RedisStore) Lookup(ctx context.Context, hash string, now time.Time) (uuid.UUID, bool, error) {
	rec, err := s.load(ctx, hash)
	if err != nil {
		return uuid.Nil, false, err
	}
	if rec.UsedAt != nil {
		return rec.UserID, true, nil
	}
	if !rec.ExpiresAt.After(now) {
		return uuid.Nil, false, repo.ErrNotFound
	}
	return rec.UserID, false, nil
}

// MarkUsed keeps the record for at least UsedRetention so a repeated verification can be recognised.
func (s *RedisStore) MarkUsed(ctx context.Context, hash string, now time.Time) error {
	rec, err := s.load(ctx, hash)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		return err
	}
	if rec.UsedAt != nil {
		return nil
	}
	used := now.UTC()
	rec.UsedAt = &used
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.Client.Set(ctx, key(hash), data, max(UsedRetention, time.Until(rec.ExpiresAt))).Err()
}
