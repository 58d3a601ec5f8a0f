package app

import (
	"context"

	"polygram/internal/util"
	"polygram/pkg/domain"
	"polygram/pkg/push"
	"polygram/pkg/queue"
)

// dispatchToUsers enqueues msg for every subscribed device of userIDs.
// It runs after the caller's transaction committed, never blocks the
// request and only logs failures.
func (a *App) dispatchToUsers(ctx context.Context, userIDs []string, msg push.Message) {
	if a.push == nil || len(userIDs) == 0 {
		return
	}
	logger := util.LoggerFromContext(ctx)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.pushTimeout)
	a.pending.Add(1)
	go func() {
		defer a.pending.Done()
		defer cancel()
		users, err := a.store.ListUsersByIDs(ctx, userIDs)
		if err != nil {
			logger.Warn("push_dispatch_failed", "err", err)
			return
		}
		for _, u := range users {
			if u.PushSubscription == "" {
				continue
			}
			if _, err := a.enqueuePush(ctx, u, msg); err != nil {
				logger.Warn("push_enqueue_failed", "receiver", u.ID, "err", err)
			}
		}
	}()
}

func (a *App) enqueuePush(ctx context.Context, u domain.User, msg push.Message) (queue.JobStatus, error) {
	return a.push.Enqueue(ctx, queue.PushJob{
		Receiver:     u.ID,
		Subscription: u.PushSubscription,
		Title:        msg.Title,
		Body:         msg.Body,
	})
}
