package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/encorehub/authd/internal/auth"
	"github.com/encorehub/authd/internal/config"
	"github.com/encorehub/authd/internal/csrf"
	"github.com/encorehub/authd/internal/email"
	"github.com/encorehub/authd/internal/metrics"
	"github.com/encorehub/authd/internal/server"
	"github.com/encorehub/authd/internal/server/handlers"
	"github.com/encorehub/authd/internal/server/middleware"
	"github.com/encorehub/authd/internal/server/storage/sqlite"
	"github.com/encorehub/authd/internal/session"
	"github.com/encorehub/authd/internal/token"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if err := run(); err != nil {
		slog.Error("server exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	// .env опционален: в проде переменные приходят из окружения
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting authd",
		slog.String("version", Version),
		slog.String("port", cfg.ServerPort),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.New(ctx, cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	codec, err := token.NewCodec(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	if err != nil {
		return fmt.Errorf("failed to create token codec: %w", err)
	}

	sessions := session.NewManager(codec, cfg.CookieSecure, cfg.CSRFTokenTTL)
	guard := csrf.NewGuard(sessions)
	authService := auth.NewService(codec, sessions, logger)

	mailer := email.NewSMTPSender(email.SMTPConfig{
		Host:        cfg.SMTPHost,
		Port:        cfg.SMTPPort,
		Username:    cfg.SMTPUsername,
		Password:    cfg.SMTPPassword,
		From:        cfg.SMTPFrom,
		AppName:     cfg.AppName,
		FrontendURL: cfg.FrontendURL,
	}, logger)

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	loginLimiter := middleware.NewRateLimiter("/api/auth/email/login", cfg.RateLimitLogin, collector, logger)
	defer loginLimiter.Stop()
	signupLimiter := middleware.NewRateLimiter("/api/auth/email/signup", cfg.RateLimitSignup, collector, logger)
	defer signupLimiter.Stop()
	resendLimiter := middleware.NewRateLimiter("/api/auth/email/resend", cfg.RateLimitResend, collector, logger)
	defer resendLimiter.Stop()

	router := server.NewRouter(&server.RouterDeps{
		Logger:      logger,
		AuthService: authService,
		Guard:       guard,
		EmailHandler: handlers.NewEmailAuthHandler(
			logger, store, mailer, authService, collector,
			cfg.VerificationTTL, cfg.ResendCooldown,
		),
		SessionHandler: handlers.NewSessionHandler(logger, authService, guard, collector),
		SystemHandler:  handlers.NewSystemHandler(logger, cfg.AppName, cfg.AccessTokenTTL, cfg.RefreshTokenTTL),
		Metrics:        collector,
		Registry:       registry,
		LoginLimiter:   loginLimiter,
		SignupLimiter:  signupLimiter,
		ResendLimiter:  resendLimiter,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func printVersion() {
	fmt.Printf("Authd Server\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
