package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/Skotchmaster/gamelog/internal/config"
	"github.com/Skotchmaster/gamelog/internal/db"
	"github.com/Skotchmaster/gamelog/internal/es"
	"github.com/Skotchmaster/gamelog/internal/httpserver"
	"github.com/Skotchmaster/gamelog/internal/logging"
	"github.com/Skotchmaster/gamelog/internal/mailqueue"
	"github.com/Skotchmaster/gamelog/internal/metrics"
	authmw "github.com/Skotchmaster/gamelog/internal/middleware/auth"
	loggingmw "github.com/Skotchmaster/gamelog/internal/middleware/logging"
	"github.com/Skotchmaster/gamelog/internal/mykafka"
	"github.com/Skotchmaster/gamelog/internal/repo"
	"github.com/Skotchmaster/gamelog/internal/service"
	"github.com/Skotchmaster/gamelog/internal/tokens"
	"github.com/Skotchmaster/gamelog/internal/verifystore"
)

func serveCmd() *cobra.Command {
	var noBanner bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !noBanner {
				printBanner()
			}
			return serve(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&noBanner, "no-banner", false, "Do not print the startup banner")
	return cmd
}

func printBanner() {
	figure.NewFigure(appName, "cybermedium", true).Print()
	fmt.Println()
}

func serve(ctx context.Context) error {
	cfg := config.Load()
	config.MustValid(cfg)

	log := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)
	slog.SetDefault(log)
	ctx = logging.IntoContext(ctx, log)

	gdb, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close(gdb)

	reg := metrics.NewRegistry()
	issuer := tokens.NewIssuer(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL)
	svc := &service.AuthService{
		Repo:          repo.New(gdb),
		Verifications: repo.NewVerifications(gdb),
		Issuer:        issuer,
		Options: service.Options{
			BcryptCost:            cfg.BcryptCost,
			VerifyTTL:             cfg.VerifyTTL,
			VerifyURL:             strings.TrimRight(cfg.AppBaseURL, "/") + "/verify-email",
			VerifyEmailIdempotent: cfg.VerifyEmailIdempotent,
		},
		EventsTopic: cfg.KafkaUsersTopic,
		Metrics:     reg,
	}

	closers, err := wireOptional(ctx, cfg, log, svc)
	defer func() {
		for _, c := range closers {
			if err := c(); err != nil {
				log.Warn("close failed", "error", err)
			}
		}
	}()
	if err != nil {
		return err
	}

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(loggingmw.RequestLogger(log))
	e.Use(reg.Middleware())

	httpserver.Register(e, &httpserver.Deps{
		AuthHandler:   &httpserver.AuthHTTP{Svc: svc},
		AdminHandler:  &httpserver.AdminHTTP{Svc: svc},
		Authenticator: authmw.NewAuthenticator(issuer),
		Metrics:       reg,
		Ready:         readiness(gdb),
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server starting", "addr", cfg.HTTPAddr, "version", Version)
		if err := e.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case <-stop:
	case err := <-errCh:
		return fmt.Errorf("echo start: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("echo shutdown", "error", err)
	}
	log.Info("http server stopped")
	return nil
}

// wireOptional connects the integrations that are configured. Kafka, RabbitMQ and
// Elasticsearch are best effort; Redis is required once selected as verification store.
func wireOptional(ctx context.Context, cfg config.Config, log *slog.Logger, svc *service.AuthService) ([]func() error, error) {
	var closers []func() error

	if len(cfg.KafkaBrokers) > 0 {
		p, err := mykafka.NewProducer(cfg.KafkaBrokers)
		if err != nil {
			log.Warn("kafka disabled", "error", err)
		} else {
			svc.Events = p
			closers = append(closers, p.Close)
			log.Info("kafka producer ready", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaUsersTopic)
		}
	}

	if cfg.AMQPURL != "" {
		pub := mailqueue.New(cfg.AMQPURL, cfg.MailQueue)
		svc.Mail = pub
		closers = append(closers, pub.Close)
		log.Info("mail queue ready", "queue", cfg.MailQueue)
	}

	if cfg.ESURL != "" {
		esCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		client, err := es.NewClient(esCtx, es.Options{URL: cfg.ESURL, Username: cfg.ESUser, Password: cfg.ESPassword})
		cancel()
		if err != nil {
			log.Warn("elasticsearch disabled", "error", err)
		} else {
			svc.Index = es.NewUserIndex(client, cfg.ESUsersIndex)
			log.Info("elasticsearch ready", "index", cfg.ESUsersIndex)
		}
	}

	if cfg.VerificationStore == config.VerificationStoreRedis {
		client, err := verifystore.NewClient(ctx, verifystore.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return closers, err
		}
		svc.Verifications = verifystore.NewRedisStore(client)
		closers = append(closers, client.Close)
		log.Info("verification tokens stored in redis", "addr", cfg.RedisAddr)
	}

	return closers, nil
}

func readiness(gdb *gorm.DB) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return db.Ping(ctx, gdb)
	}
}
