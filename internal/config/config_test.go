package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("ACCESS_TTL", "")
	t.Setenv("VERIFY_EMAIL_IDEMPOTENT", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg := Load()

	assert.Equal(t, []byte("s3cret"), cfg.JWTSecret)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTTL)
	assert.True(t, cfg.VerifyEmailIdempotent)
	assert.Equal(t, bcrypt.DefaultCost, cfg.BcryptCost)
	assert.Nil(t, cfg.KafkaBrokers)
	assert.Equal(t, VerificationStoreDB, cfg.VerificationStore)
	require.NoError(t, cfg.Validate())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "x")
	t.Setenv("ACCESS_TTL", "2m")
	t.Setenv("VERIFY_EMAIL_IDEMPOTENT", "false")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")

	cfg := Load()

	assert.Equal(t, 2*time.Minute, cfg.AccessTTL)
	assert.False(t, cfg.VerifyEmailIdempotent)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := Config{
		JWTSecret:         []byte("k"),
		AccessTTL:         time.Minute,
		RefreshTTL:        time.Hour,
		VerifyTTL:         time.Hour,
		BcryptCost:        bcrypt.MinCost,
		VerificationStore: VerificationStoreDB,
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "ok", mutate: func(c *Config) {}},
		{name: "empty secret", mutate: func(c *Config) { c.JWTSecret = nil }, wantErr: "JWT_SECRET"},
		{name: "zero access ttl", mutate: func(c *Config) { c.AccessTTL = 0 }, wantErr: "ACCESS_TTL"},
		{name: "redis without addr", mutate: func(c *Config) { c.VerificationStore = VerificationStoreRedis }, wantErr: "REDIS_ADDR"},
		{name: "unknown store", mutate: func(c *Config) { c.VerificationStore = "mongo" }, wantErr: "VERIFICATION_STORE"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCSV(t *testing.T) {
	t.Parallel()
	assert.Nil(t, CSV(""))
	assert.Equal(t, []string{"a", "b"}, CSV(" a ,, b "))
}
