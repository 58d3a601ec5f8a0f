// Package app delivers queued push jobs to browser subscriptions.
package app

import (
	"context"
	"errors"
	"time"

	"polygram/internal/util"
	"polygram/pkg/push"
	"polygram/pkg/queue"
)

// JobSource feeds push jobs to a handler until ctx is done.
type JobSource interface {
	Start(ctx context.Context, concurrency int, handler queue.Handler)
}

type Config struct {
	Jobs        JobSource
	Sender      push.Sender
	Concurrency int
	SendTimeout time.Duration
}

type App struct {
	jobs        JobSource
	sender      push.Sender
	concurrency int
	sendTimeout time.Duration
}

func New(cfg Config) (*App, error) {
	if cfg.Jobs == nil {
		return nil, errors.New("job source required")
	}
	if cfg.Sender == nil {
		return nil, errors.New("push sender required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	return &App{
		jobs:        cfg.Jobs,
		sender:      cfg.Sender,
		concurrency: cfg.Concurrency,
		sendTimeout: cfg.SendTimeout,
	}, nil
}

// Run starts the consumers. It returns immediately; workers stop with ctx.
func (a *App) Run(ctx context.Context) {
	a.jobs.Start(ctx, a.concurrency, a.Deliver)
}

// Deliver sends one job. Expired subscriptions are dropped rather than
// retried.
func (a *App) Deliver(ctx context.Context, job queue.PushJob) error {
	ctx, cancel := context.WithTimeout(ctx, a.sendTimeout)
	defer cancel()
	logger := util.LoggerFromContext(ctx).With("job_id", job.ID, "receiver", job.Receiver)
	err := a.sender.Send(ctx, job.Subscription, push.Message{Title: job.Title, Body: job.Body})
	switch {
	case err == nil:
		logger.Info("push_delivered")
		return nil
	case errors.Is(err, push.ErrSubscriptionGone):
		logger.Warn("push_subscription_gone")
		return nil
	default:
		logger.Warn("push_failed", "err", err)
		return err
	}
}
