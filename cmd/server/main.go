// Copyright 2026 The OpenAgency Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openagency/openagency/internal/audit"
	"github.com/openagency/openagency/internal/config"
	"github.com/openagency/openagency/internal/identity"
	"github.com/openagency/openagency/internal/invitation"
	"github.com/openagency/openagency/internal/notify"
	"github.com/openagency/openagency/internal/observability/logger"
	"github.com/openagency/openagency/internal/observability/metrics"
	"github.com/openagency/openagency/internal/observability/tracing"
	"github.com/openagency/openagency/internal/provision"
	"github.com/openagency/openagency/internal/reminder"
	"github.com/openagency/openagency/internal/store/postgres"
	"github.com/openagency/openagency/internal/token"
	transportHTTP "github.com/openagency/openagency/internal/transport/http"
	"github.com/robfig/cron"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.InitLogger(logger.Config{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})
	slog.Info("starting openagency onboarding service")

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrate(cfg); err != nil {
			fmt.Printf("Migration failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	ctx := context.Background()

	// Initialize tracer
	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   1.0,
	})
	if err != nil {
		slog.Error("failed to initialize tracer", logger.Error(err))
	}
	defer tracer.Shutdown(ctx)

	// Initialize meter
	meter, err := metrics.New(ctx, metrics.Config{
		Enabled: cfg.Observability.OTELEnabled,
	}, cfg.Observability.ServiceName)
	if err != nil {
		slog.Error("failed to initialize meter", logger.Error(err))
		os.Exit(1)
	}

	// Initialize database
	db, err := postgres.New(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		slog.Error("failed to connect to database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to database")

	// Initialize repositories
	userRepo := postgres.NewUserRepository(db)
	tenantRepo := postgres.NewTenantRepository(db)
	invitationRepo := postgres.NewInvitationRepository(db)
	reminderLog := postgres.NewReminderLogRepository(db)
	onboardingStore := postgres.NewOnboardingStore(db)

	// Initialize helpers
	auditLogger := audit.NewSlogLogger()
	passwordHasher := identity.NewPasswordHasher(
		cfg.Security.Argon2Memory,
		cfg.Security.Argon2Iterations,
		cfg.Security.Argon2Parallelism,
		cfg.Security.Argon2SaltLength,
		cfg.Security.Argon2KeyLength,
	)
	tokenGen := token.NewGenerator()
	tokenPolicy := token.Policy{
		AdminWindow:  cfg.Invitations.AdminTTL,
		MemberWindow: cfg.Invitations.MemberTTL,
	}

	// Outbound collaborators
	gateway := notify.NewWebhookGateway(cfg.Notifier.Endpoint, cfg.Notifier.Timeout)
	provisioner := provision.NewHTTPProvisioner(cfg.Provisioner.BaseURL, cfg.Provisioner.Timeout)

	// Initialize services
	invitationService := invitation.NewService(
		invitationRepo,
		userRepo,
		onboardingStore,
		tokenGen,
		tokenPolicy,
		passwordHasher,
		gateway,
		cfg.Invitations.SetupBaseURL,
		auditLogger,
	)
	saga := provision.NewSaga(
		provisioner,
		onboardingStore,
		userRepo,
		tokenGen,
		tokenPolicy,
		gateway,
		cfg.Invitations.SetupBaseURL,
		auditLogger,
	)

	scheduler, err := reminder.NewScheduler(
		invitationRepo,
		reminderLog,
		gateway,
		reminder.Policy{
			FirstAfter:  cfg.Reminders.FirstAfter,
			SecondAfter: cfg.Reminders.SecondAfter,
			FinalWindow: cfg.Reminders.FinalWindow,
		},
		cfg.Invitations.SetupBaseURL,
		auditLogger,
		meter,
	)
	if err != nil {
		slog.Error("failed to initialize reminder scheduler", logger.Error(err))
		os.Exit(1)
	}

	// Reminder escalation runs on a fixed interval; each run is
	// self-contained and idempotent, so a missed or doubled tick is safe.
	c := cron.New()
	if err := c.AddFunc(fmt.Sprintf("@every %s", cfg.Reminders.Interval), func() {
		scheduler.Run(ctx)
	}); err != nil {
		slog.Error("failed to schedule reminder job", logger.Error(err))
		os.Exit(1)
	}
	c.Start()
	defer c.Stop()

	// First scan shortly after startup so a restart doesn't wait a full
	// interval.
	initialRun := time.AfterFunc(cfg.Reminders.InitialDelay, func() {
		scheduler.Run(ctx)
	})
	defer initialRun.Stop()

	// Rate limiter
	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	// Initialize HTTP handler
	handler := transportHTTP.NewHandler(
		saga,
		invitationService,
		tenantRepo,
		userRepo,
		auditLogger,
		transportHTTP.AuthConfig{
			JWTSecret: cfg.Auth.JWTSecret,
			Issuer:    cfg.Auth.Issuer,
		},
		db,
	)

	// Create router
	router := transportHTTP.NewRouter(handler, rateLimiter)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server
	go func() {
		slog.Info("starting http server", logger.Component("server"), logger.Operation("listen"))
		slog.Info(fmt.Sprintf("listening on %s", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", logger.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")

	// Graceful shutdown: stop taking requests, then stop the scheduler
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", logger.Error(err))
	}

	slog.Info("server stopped")
}

func runMigrate(cfg *config.Config) error {
	ctx := context.Background()
	db, err := postgres.New(ctx, postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx, postgres.InitialSchema); err != nil {
		return fmt.Errorf("failed to apply initial schema: %w", err)
	}

	slog.Info("database schema applied")
	return nil
}
