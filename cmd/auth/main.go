package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/Skotchmaster/gamelog/internal/config"
	"github.com/Skotchmaster/gamelog/internal/db"
	"github.com/Skotchmaster/gamelog/internal/logging"
	"github.com/Skotchmaster/gamelog/internal/models"
	"github.com/Skotchmaster/gamelog/internal/repo"
	"github.com/Skotchmaster/gamelog/internal/service"
	"github.com/Skotchmaster/gamelog/internal/tokens"
)

const appName = "gamelog-auth"

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "auth",
		Short:         "Account and session service of gamelog",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(serveCmd(), migrateCmd(), createAdminCmd(), purgeTokensCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})
	return cmd
}

// openDB connects and migrates. Every command that touches the database goes through here.
func openDB(ctx context.Context, cfg config.Config) (*gorm.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	gdb, err := db.Open(initCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db init: %w", err)
	}
	if err := db.Migrate(initCtx, gdb); err != nil {
		_ = db.Close(gdb)
		return nil, fmt.Errorf("db migrate: %w", err)
	}
	return gdb, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			log := logging.New(cfg.LogLevel)

			gdb, err := openDB(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close(gdb)
			log.Info("schema migrated")
			return nil
		},
	}
}

func createAdminCmd() *cobra.Command {
	var username, email, password string

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create a verified account with the Admin role",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			log := logging.New(cfg.LogLevel)
			ctx := logging.IntoContext(cmd.Context(), log)

			gdb, err := openDB(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close(gdb)

			r := repo.New(gdb)
			svc := &service.AuthService{
				Repo:          r,
				Verifications: repo.NewVerifications(gdb),
				Issuer:        tokens.NewIssuer(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL),
				Options:       service.Options{BcryptCost: cfg.BcryptCost, VerifyTTL: cfg.VerifyTTL},
			}

			u, err := svc.Register(ctx, username, email, password)
			if err != nil {
				return fmt.Errorf("create user: %w", err)
			}
			if _, err := r.SetRole(ctx, u.ID, models.RoleAdmin); err != nil {
				return fmt.Errorf("grant admin: %w", err)
			}
			if _, err := r.MarkEmailVerified(ctx, u.ID); err != nil {
				return fmt.Errorf("verify email: %w", err)
			}

			log.Info("admin created", "user_id", u.ID, "username", u.Username)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Username of the new admin")
	cmd.Flags().StringVar(&email, "email", "", "Email of the new admin")
	cmd.Flags().StringVar(&password, "password", "", "Password of the new admin")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func purgeTokensCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "purge-tokens",
		Short: "Delete revoked refresh tokens and tokens expired longer than --older-than",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			log := logging.New(cfg.LogLevel)

			gdb, err := openDB(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close(gdb)

			n, err := repo.New(gdb).PurgeExpired(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return fmt.Errorf("purge: %w", err)
			}
			log.Info("expired refresh tokens purged", "deleted", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 24*time.Hour, "Keep tokens that expired within this window")
	return cmd
}
