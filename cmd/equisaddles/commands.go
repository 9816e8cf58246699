package main

import (
	"errors"
	"fmt"

	"EquiSaddles/models"
	"EquiSaddles/notify"
	"EquiSaddles/server"
	"EquiSaddles/services"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func buildServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and WebSocket server",
		Long: `Start the chat relay. Migrations run on startup. Redis and Kafka are
used when configured; without an email API key escalations are skipped.

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			db, err := server.OpenDB(cfg.Database)
			if err != nil {
				return err
			}
			srv, err := server.NewServer(&cfg, db, log)
			if err != nil {
				return err
			}
			defer func() {
				if err := srv.Close(); err != nil {
					log.Warn("shutdown", zap.Error(err))
				}
			}()
			return srv.Start(cmd.Context(), cfg.Server.Addr)
		},
	}
}

func buildMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			db, err := server.OpenDB(cfg.Database)
			if err != nil {
				return err
			}
			defer closeDB(db)
			if err := models.AutoMigrateAll(db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			log.Info("database schema up to date")
			return nil
		},
	}
}

func buildAdminCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage back office accounts",
	}

	var email, name, password string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an admin with a local password",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			db, err := server.OpenDB(cfg.Database)
			if err != nil {
				return err
			}
			defer closeDB(db)
			if err := models.AutoMigrateAll(db); err != nil {
				return err
			}
			admin, err := services.NewAuthService(db, &cfg.Auth).CreateAdmin(cmd.Context(), email, name, password)
			if err != nil {
				return fmt.Errorf("create admin: %w", err)
			}
			log.Info("admin created", zap.Uint("id", admin.ID), zap.String("email", admin.Email))
			return nil
		},
	}
	create.Flags().StringVar(&email, "email", "", "Admin email address")
	create.Flags().StringVar(&name, "name", "", "Display name")
	create.Flags().StringVar(&password, "password", "", "Initial password")
	_ = create.MarkFlagRequired("email")
	_ = create.MarkFlagRequired("password")

	cmd.AddCommand(create)
	return cmd
}

func buildSendTestEmailCmd(opts *rootOptions) *cobra.Command {
	var to string
	cmd := &cobra.Command{
		Use:   "send-test-email",
		Short: "Send a sample chat notification to check the mail setup",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			if to != "" {
				cfg.Mail.AdminEmail = to
			}
			n := notify.NewNotifier(cfg.Mail, cfg.Server.PublicURL, log)
			err = n.NotifyAdminOfCustomerMessage(cmd.Context(), "Test Client", "test@example.com", "Test message", "test-session-123")
			if errors.Is(err, notify.ErrMailDisabled) {
				return errors.New("mail.api_key (or BREVO_API_KEY) is not set")
			}
			if err != nil {
				return err
			}
			log.Info("test email sent", zap.String("to", cfg.Mail.AdminEmail))
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "Override the recipient (defaults to mail.admin_email)")
	return cmd
}
