package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

const (
	VerificationStoreDB    = "db"
	VerificationStoreRedis = "redis"
)

// Config is loaded once at startup and handed to every component that needs it.
type Config struct {
	ServiceName string
	HTTPAddr    string
	LogLevel    string
	AppBaseURL  string

	DatabaseURL string

	JWTSecret  []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	VerifyTTL  time.Duration
	BcryptCost int

	// VerifyEmailIdempotent makes re-verifying an already verified address a no-op success.
	VerifyEmailIdempotent bool

	KafkaBrokers    []string
	KafkaUsersTopic string

	AMQPURL   string
	MailQueue string

	ESURL        string
	ESUser       string
	ESPassword   string
	ESUsersIndex string

	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	VerificationStore string
}

func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("notice: .env file not found: %v. Using system environment variables", err)
	}

	return Config{
		ServiceName: EnvDefault("SERVICE_NAME", "auth"),
		HTTPAddr:    EnvDefault("HTTP_ADDR", ":8080"),
		LogLevel:    EnvDefault("LOG_LEVEL", "info"),
		AppBaseURL:  EnvDefault("APP_BASE_URL", "http://localhost:3000"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		JWTSecret:  []byte(os.Getenv("JWT_SECRET")),
		AccessTTL:  EnvDurationDefault("ACCESS_TTL", 15*time.Minute),
		RefreshTTL: EnvDurationDefault("REFRESH_TTL", 7*24*time.Hour),
		VerifyTTL:  EnvDurationDefault("VERIFY_TTL", 48*time.Hour),
		BcryptCost: EnvIntDefault("BCRYPT_COST", bcrypt.DefaultCost),

		VerifyEmailIdempotent: EnvBoolDefault("VERIFY_EMAIL_IDEMPOTENT", true),

		KafkaBrokers:    CSV(os.Getenv("KAFKA_BROKERS")),
		KafkaUsersTopic: EnvDefault("KAFKA_TOPIC_USERS", "user_events"),

		AMQPURL:   os.Getenv("AMQP_URL"),
		MailQueue: EnvDefault("MAIL_QUEUE", "email.verification"),

		ESURL:        os.Getenv("ES_URL"),
		ESUser:       os.Getenv("ES_USER"),
		ESPassword:   os.Getenv("ES_PASSWORD"),
		ESUsersIndex: EnvDefault("ES_INDEX_USERS", "users"),

		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisDB:           EnvIntDefault("REDIS_DB", 0),
		VerificationStore: EnvDefault("VERIFICATION_STORE", VerificationStoreDB),
	}
}

// Validate reports configuration that would make token issuance unsafe or impossible.
func (c Config) Validate() error {
	var errs []error
	if len(c.JWTSecret) == 0 {
		errs = append(errs, errors.New("JWT_SECRET is empty"))
	}
	if c.AccessTTL <= 0 {
		errs = append(errs, fmt.Errorf("ACCESS_TTL must be positive, got %s", c.AccessTTL))
	}
	if c.RefreshTTL <= 0 {
		errs = append(errs, fmt.Errorf("REFRESH_TTL must be positive, got %s", c.RefreshTTL))
	}
	if c.VerifyTTL <= 0 {
		errs = append(errs, fmt.Errorf("VERIFY_TTL must be positive, got %s", c.VerifyTTL))
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("BCRYPT_COST out of range: %d", c.BcryptCost))
	}
	switch c.VerificationStore {
	case VerificationStoreDB:
	case VerificationStoreRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("VERIFICATION_STORE=redis requires REDIS_ADDR"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown VERIFICATION_STORE %q", c.VerificationStore))
	}
	return errors.Join(errs...)
}
