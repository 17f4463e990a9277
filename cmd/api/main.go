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

	"github.com/go-auth-api/internal/application/notify"
	"github.com/go-auth-api/internal/config"
	"github.com/go-auth-api/internal/infrastructure/dynamo"
	"github.com/go-auth-api/internal/infrastructure/smtp"
	"github.com/go-auth-api/internal/infrastructure/sns"
	"github.com/go-auth-api/internal/infrastructure/token"
	"github.com/go-auth-api/internal/metrics"
	transporthttp "github.com/go-auth-api/internal/transport/http"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, reading from environment")
	}

	cfg := config.Load()
	metrics.Init()

	// Bootstrap DynamoDB tables (creates them if they don't exist) and seed
	// the role/permission matrix.
	dynamoClient := dynamo.NewClient(cfg)
	dynamo.Bootstrap(context.Background(), dynamoClient, cfg.DynamoTables)

	roleRepo := dynamo.NewRoleRepo(dynamoClient, cfg.DynamoTables.Roles)
	dynamo.SeedRoles(context.Background(), roleRepo)

	tokenProvider, err := token.NewProvider(cfg)
	if err != nil {
		slog.Error("token provider init failed", "err", err)
		os.Exit(1)
	}

	// SMTP mailer.
	mailer := smtp.NewMailer(cfg)

	// SNS SMS sender (optional — passcodes fall back to email only).
	var smsSender sns.SMSSender
	if sender, err := sns.NewSender(cfg); err == nil {
		smsSender = sender
	} else {
		slog.Warn("SNS sender not available", "err", err)
	}

	worker := notify.NewWorker(mailer, smsSender, 10)
	workerCtx, stopWorker := context.WithCancel(context.Background())
	worker.Start(workerCtx)

	revocationRepo := dynamo.NewRevocationRepo(dynamoClient, cfg.DynamoTables.Revocations)

	// Periodic sweep of expired revocation entries. The ledger only needs
	// entries that could still match a live token.
	pruneCtx, stopPrune := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(cfg.RevocationPrune)
		defer ticker.Stop()
		for {
			select {
			case <-pruneCtx.Done():
				return
			case <-ticker.C:
				n, err := revocationRepo.PruneExpired(pruneCtx)
				if err != nil {
					slog.Error("revocation prune failed", "err", err)
					continue
				}
				if n > 0 {
					metrics.RevocationsPruned.Add(float64(n))
					slog.Info("pruned expired revocations", "count", n)
				}
			}
		}
	}()

	deps := &transporthttp.Deps{
		UserRepo:       dynamo.NewUserRepo(dynamoClient, cfg.DynamoTables.Users),
		PasscodeRepo:   dynamo.NewPasscodeRepo(dynamoClient, cfg.DynamoTables.Passcodes),
		RevocationRepo: revocationRepo,
		RoleRepo:       roleRepo,
		AuditLogRepo:   dynamo.NewAuditLogRepo(dynamoClient, cfg.DynamoTables.AuditLogs),
		TokenProvider:  tokenProvider,
		Notifier:       worker,
	}

	router := transporthttp.NewRouter(cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("forced shutdown", "err", err)
	}

	stopPrune()
	stopWorker()
	worker.Close()
	slog.Info("server stopped")
}
