package app

import (
	"context"
	"crypto/subtle"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"polygram/internal/util"
	"polygram/pkg/apperr"
	"polygram/pkg/domain"
	"polygram/pkg/pagination"
	"polygram/pkg/push"
	"polygram/pkg/store"
	"polygram/pkg/validate"
)

const broadcastConcurrency = 8

type SetReadInput struct {
	HasRead *bool `json:"hasRead" validate:"required"`
}

type BroadcastInput struct {
	MasterPassword string   `json:"masterPassword" validate:"required"`
	Usernames      []string `json:"usernames" validate:"required,min=1,max=100,dive,required,min=4,max=15"`
	Title          string   `json:"title" validate:"required,min=3,max=50"`
	Body           string   `json:"body" validate:"required,min=3,max=150"`
}

// ListNotifications returns a page of the caller's notifications.
func (a *App) ListNotifications(ctx context.Context, user domain.User, page pagination.Page) ([]domain.Notification, error) {
	items, err := a.store.ListNotifications(ctx, store.NotificationFilter{Page: page, ReceiverID: user.ID})
	if err != nil {
		return nil, apperr.Internal("Error fetching notifications", err)
	}
	return items, nil
}

// CountUnread returns how many of the caller's notifications are unread.
func (a *App) CountUnread(ctx context.Context, user domain.User) (int, error) {
	n, err := a.store.CountUnreadNotifications(ctx, user.ID)
	if err != nil {
		return 0, apperr.Internal("Error counting notifications", err)
	}
	return n, nil
}

// ownNotification loads a notification addressed to user. Notifications
// of other users are reported as missing.
func (a *App) ownNotification(ctx context.Context, user domain.User, id string) (domain.Notification, error) {
	if !util.IsID(id) {
		return domain.Notification{}, invalidID("notification id")
	}
	n, ok, err := a.store.GetNotification(ctx, strings.ToLower(id))
	if err != nil {
		return domain.Notification{}, apperr.Internal("Error fetching notification", err)
	}
	if !ok || n.ReceiverID != user.ID {
		return domain.Notification{}, ErrNotificationNotFound
	}
	return n, nil
}

// SetRead toggles the read flag of one of the caller's notifications.
func (a *App) SetRead(ctx context.Context, user domain.User, id string, in SetReadInput) (domain.Notification, error) {
	if err := validate.Struct(in); err != nil {
		return domain.Notification{}, err
	}
	n, err := a.ownNotification(ctx, user, id)
	if err != nil {
		return domain.Notification{}, err
	}
	if err := a.store.SetNotificationRead(ctx, n.ID, *in.HasRead); err != nil {
		return domain.Notification{}, notFoundOr(err, ErrNotificationNotFound, "Error updating notification")
	}
	n.HasRead = *in.HasRead
	return n, nil
}

// MarkAllRead marks every notification of the caller as read.
func (a *App) MarkAllRead(ctx context.Context, user domain.User) error {
	if err := a.store.MarkAllNotificationsRead(ctx, user.ID); err != nil {
		return apperr.Internal("Error updating notifications", err)
	}
	return nil
}

// DeleteNotification removes one of the caller's notifications.
func (a *App) DeleteNotification(ctx context.Context, user domain.User, id string) error {
	n, err := a.ownNotification(ctx, user, id)
	if err != nil {
		return err
	}
	if err := a.store.DeleteNotification(ctx, n.ID); err != nil {
		return notFoundOr(err, ErrNotificationNotFound, "Error deleting notification")
	}
	return nil
}

// Subscribe stores the browser push subscription of the caller.
func (a *App) Subscribe(ctx context.Context, user domain.User, subscription string) error {
	subscription = strings.TrimSpace(subscription)
	if _, err := push.ParseSubscription(subscription); err != nil {
		return ErrInvalidSubscriber
	}
	upd := store.UserUpdate{PushSubscription: &subscription, UpdatedAt: a.clock()}
	if _, err := a.store.UpdateUser(ctx, user.ID, upd); err != nil {
		return notFoundOr(err, ErrUserNotFound, "Error saving subscription")
	}
	return nil
}

// Unsubscribe forgets the caller's push subscription.
func (a *App) Unsubscribe(ctx context.Context, user domain.User) error {
	none := ""
	upd := store.UserUpdate{PushSubscription: &none, UpdatedAt: a.clock()}
	if _, err := a.store.UpdateUser(ctx, user.ID, upd); err != nil {
		return notFoundOr(err, ErrUserNotFound, "Error removing subscription")
	}
	return nil
}

// Broadcast enqueues a push message for every subscribed user among
// the usernames. It returns the number of queued deliveries.
func (a *App) Broadcast(ctx context.Context, in BroadcastInput) (int, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Body = strings.TrimSpace(in.Body)
	for i, u := range in.Usernames {
		in.Usernames[i] = normalizeUsername(u)
	}
	if err := validate.Struct(in); err != nil {
		return 0, err
	}
	if subtle.ConstantTimeCompare([]byte(in.MasterPassword), []byte(a.masterPassword)) != 1 {
		return 0, ErrMasterPassword
	}
	if a.push == nil {
		return 0, apperr.Internal("Push delivery is not configured", nil)
	}
	users, err := a.store.ListPushSubscribers(ctx, dedupe(in.Usernames))
	if err != nil {
		return 0, apperr.Internal("Error sending push notifications", err)
	}
	if len(users) == 0 {
		return 0, ErrUserNotFound
	}
	msg := push.Message{Title: in.Title, Body: in.Body}
	var queued atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(broadcastConcurrency)
	for _, u := range users {
		g.Go(func() error {
			if _, err := a.enqueuePush(gctx, u, msg); err != nil {
				return err
			}
			queued.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(queued.Load()), apperr.Internal("Error sending push notifications", err)
	}
	return int(queued.Load()), nil
}
