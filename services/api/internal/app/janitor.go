package app

import (
	"context"
	"log/slog"
	"time"

	"polygram/pkg/apperr"
)

// PurgeExpiredNotifications deletes notifications older than the
// configured TTL.
func (a *App) PurgeExpiredNotifications(ctx context.Context) (int64, error) {
	cutoff := a.clock().Add(-a.notificationTTL)
	n, err := a.store.DeleteNotificationsBefore(ctx, cutoff)
	if err != nil {
		return 0, apperr.Internal("Error purging notifications", err)
	}
	return n, nil
}

// RunJanitor purges expired notifications every interval until ctx ends.
func (a *App) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		n, err := a.PurgeExpiredNotifications(ctx)
		if err != nil {
			slog.Warn("notification_janitor_failed", "err", err)
		} else if n > 0 {
			slog.Info("notification_janitor", "deleted", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
