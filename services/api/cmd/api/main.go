package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"polygram/internal/util"
	"polygram/pkg/linkpreview"
	"polygram/pkg/mailer"
	"polygram/pkg/queue"
	"polygram/pkg/storage"
	"polygram/pkg/store"
	"polygram/services/api/internal/app"
	"polygram/services/api/internal/config"
	"polygram/services/api/internal/server"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "WARN: failed to load .env: %v\n", err)
	}

	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := util.InitLogger(cfg.LogLevel, "api")

	sessionTTL, err := config.ParseDuration(cfg.SessionTTL, 7*24*time.Hour)
	if err != nil {
		util.Fatal("failed to parse session TTL", "err", err)
	}
	jwtLeeway, err := config.ParseDuration(cfg.JWTLeeway, 0)
	if err != nil {
		util.Fatal("failed to parse jwt leeway", "err", err)
	}
	notificationTTL, err := config.ParseDuration(cfg.NotificationTTL, 30*24*time.Hour)
	if err != nil {
		util.Fatal("failed to parse notification TTL", "err", err)
	}
	janitorInterval, err := config.ParseDuration(cfg.JanitorInterval, time.Hour)
	if err != nil {
		util.Fatal("failed to parse janitor interval", "err", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer redisClient.Close()

	dataStore, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		util.Fatal("failed to init store", "err", err)
	}
	defer dataStore.Close()

	sessions, err := store.NewJWTSessionStore(cfg.JWTSecret, sessionTTL, store.NewRedisTokenRevoker(redisClient, sessionTTL), store.JWTOptions{
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		Leeway:   jwtLeeway,
	})
	if err != nil {
		util.Fatal("failed to init sessions", "err", err)
	}

	objects, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	if err != nil {
		util.Fatal("failed to init object storage", "err", err)
	}

	pushQueue, err := queue.NewRedisJobQueue(queue.RedisQueueConfig{
		Client: redisClient,
		Stream: cfg.PushStream,
		Group:  cfg.PushGroup,
	})
	if err != nil {
		util.Fatal("failed to init push queue", "err", err)
	}
	defer pushQueue.Close()

	appCore, err := app.New(app.Config{
		Store:           dataStore,
		Sessions:        sessions,
		Objects:         objects,
		Push:            pushQueue,
		Mailer:          mailer.LogMailer{Logger: logger, RevealCodes: cfg.RevealOTPCodes},
		Previews:        linkpreview.NewFetcher(linkpreview.Options{}),
		MasterPassword:  cfg.MasterPassword,
		PublicURL:       cfg.PublicURL,
		NotificationTTL: notificationTTL,
	})
	if err != nil {
		util.Fatal("failed to init app", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := appCore.SeedTopics(ctx, cfg.Topics); err != nil {
		util.Fatal("failed to seed topics", "err", err)
	}
	go appCore.RunJanitor(ctx, janitorInterval)

	httpServer, err := server.New(server.Config{
		App:                        appCore,
		Redis:                      redisClient,
		SessionTTL:                 sessionTTL,
		CookieSecure:               cfg.CookieSecure,
		AllowedOrigins:             cfg.AllowedOrigins,
		TrustedProxyCIDRs:          cfg.TrustedProxyCIDRs,
		RegisterRateLimitPerMinute: cfg.RegisterRateLimitPerMinute,
		LoginRateLimitPerMinute:    cfg.LoginRateLimitPerMinute,
		VerifyRateLimitPerMinute:   cfg.VerifyRateLimitPerMinute,
		OTPRateLimitPerMinute:      cfg.OTPRateLimitPerMinute,
		PasswordRateLimitPerMinute: cfg.PasswordRateLimitPerMinute,
	})
	if err != nil {
		util.Fatal("failed to init server", "err", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "err", err)
		}
	}()

	slog.Info("api server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
	appCore.Wait()
}
