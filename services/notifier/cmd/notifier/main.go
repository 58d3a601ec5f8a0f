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
	"polygram/pkg/push"
	"polygram/pkg/queue"
	"polygram/services/notifier/internal/app"
	"polygram/services/notifier/internal/config"
	"polygram/services/notifier/internal/server"
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
	logger := util.InitLogger(cfg.LogLevel, "notifier")

	retryDelay, err := config.ParseDuration(cfg.RetryDelay, 0)
	if err != nil {
		util.Fatal("failed to parse retry delay", "err", err)
	}
	sendTimeout, err := config.ParseDuration(cfg.SendTimeout, 0)
	if err != nil {
		util.Fatal("failed to parse send timeout", "err", err)
	}
	pushTTL, err := config.ParseDuration(cfg.PushTTL, 0)
	if err != nil {
		util.Fatal("failed to parse push TTL", "err", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer redisClient.Close()

	jobs, err := queue.NewRedisJobQueue(queue.RedisQueueConfig{
		Client:     redisClient,
		Stream:     cfg.PushStream,
		Group:      cfg.PushGroup,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: retryDelay,
	})
	if err != nil {
		util.Fatal("failed to init push queue", "err", err)
	}

	sender, err := push.NewWebPushSender(push.Config{
		Subscriber:      cfg.VAPIDSubscriber,
		VAPIDPublicKey:  cfg.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.VAPIDPrivateKey,
		TTL:             pushTTL,
	})
	if err != nil {
		util.Fatal("failed to init push sender", "err", err)
	}

	appCore, err := app.New(app.Config{
		Jobs:        jobs,
		Sender:      sender,
		Concurrency: cfg.Concurrency,
		SendTimeout: sendTimeout,
	})
	if err != nil {
		util.Fatal("failed to init app", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	appCore.Run(util.ContextWithLogger(ctx, logger))

	httpServer, err := server.New(server.Config{Redis: redisClient})
	if err != nil {
		util.Fatal("failed to init server", "err", err)
	}
	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("notifier listening", "addr", addr, "stream", cfg.PushStream, "group", cfg.PushGroup)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
