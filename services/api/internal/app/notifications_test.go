package app

import (
	"context"
	"errors"
	"testing"

	"polygram/pkg/apperr"
	"polygram/pkg/pagination"
)

func TestNotificationReadStateIsReceiverOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice")
	bob := env.user(t, "bobby")
	q := env.question(t, alice)
	env.opinion(t, bob, q.ID, "Go")

	notes, err := env.app.ListNotifications(ctx, alice, pagination.First(pagination.Notifications))
	if err != nil || len(notes) != 1 {
		t.Fatalf("list = %+v, %v", notes, err)
	}
	id := notes[0].ID
	yes := true

	if _, err := env.app.SetRead(ctx, bob, id, SetReadInput{HasRead: &yes}); !errors.Is(err, ErrNotificationNotFound) {
		t.Fatalf("expected not found for other user, got %v", err)
	}
	if err := env.app.DeleteNotification(ctx, bob, id); !errors.Is(err, ErrNotificationNotFound) {
		t.Fatalf("expected not found for other user, got %v", err)
	}
	_, err = env.app.SetRead(ctx, alice, id, SetReadInput{})
	requireCode(t, err, apperr.CodeInvalidArgument)

	n, err := env.app.SetRead(ctx, alice, id, SetReadInput{HasRead: &yes})
	if err != nil || !n.HasRead {
		t.Fatalf("set read = %+v, %v", n, err)
	}
	if count, _ := env.app.CountUnread(ctx, alice); count != 0 {
		t.Fatalf("unread = %d, want 0", count)
	}
	no := false
	if _, err := env.app.SetRead(ctx, alice, id, SetReadInput{HasRead: &no}); err != nil {
		t.Fatalf("set unread: %v", err)
	}
	if err := env.app.MarkAllRead(ctx, bob); err != nil {
		t.Fatalf("mark all (bob): %v", err)
	}
	if count, _ := env.app.CountUnread(ctx, alice); count != 1 {
		t.Fatalf("bob's mark-all must not touch alice's notifications")
	}
	if err := env.app.MarkAllRead(ctx, alice); err != nil {
		t.Fatalf("mark all: %v", err)
	}
	if count, _ := env.app.CountUnread(ctx, alice); count != 0 {
		t.Fatalf("unread after mark all = %d", count)
	}
	if err := env.app.DeleteNotification(ctx, alice, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := env.app.DeleteNotification(ctx, alice, id); !errors.Is(err, ErrNotificationNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestSubscribeValidatesEndpoint(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice")
	if err := env.app.Subscribe(ctx, alice, `{"keys":{}}`); !errors.Is(err, ErrInvalidSubscriber) {
		t.Fatalf("expected invalid subscription, got %v", err)
	}
	if err := env.app.Subscribe(ctx, alice, `{"endpoint":"https://push.example/a"}`); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	stored, _, _ := env.store.GetUserByID(ctx, alice.ID)
	if stored.PushSubscription == "" {
		t.Fatalf("subscription not stored")
	}
	if err := env.app.Unsubscribe(ctx, stored); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	stored, _, _ = env.store.GetUserByID(ctx, alice.ID)
	if stored.PushSubscription != "" {
		t.Fatalf("subscription not cleared")
	}
}

func TestBroadcastRequiresMasterPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice")
	bob := env.user(t, "bobby")
	env.user(t, "carol")
	for _, u := range []string{alice.ID, bob.ID} {
		stored, _, _ := env.store.GetUserByID(ctx, u)
		if err := env.app.Subscribe(ctx, stored, `{"endpoint":"https://push.example/`+stored.Username+`"}`); err != nil {
			t.Fatalf("subscribe: %v", err)
		}
	}
	in := BroadcastInput{
		MasterPassword: "wrong",
		Usernames:      []string{"alice", "bobby", "carol"},
		Title:          "Maintenance",
		Body:           "Polygram will be offline tonight.",
	}
	if _, err := env.app.Broadcast(ctx, in); !errors.Is(err, ErrMasterPassword) {
		t.Fatalf("expected master password error, got %v", err)
	}
	in.MasterPassword = "master-secret"
	n, err := env.app.Broadcast(ctx, in)
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if n != 2 || len(env.queue.Jobs()) != 2 {
		t.Fatalf("queued = %d (%d jobs), want 2", n, len(env.queue.Jobs()))
	}

	in.Usernames = []string{"carol"}
	if _, err := env.app.Broadcast(ctx, in); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected no subscribers error, got %v", err)
	}
}

func TestPushFailureDoesNotFailRequest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.queue.err = errors.New("redis unavailable")
	alice := env.user(t, "alice")
	bob := env.user(t, "bobby")
	if err := env.app.Subscribe(ctx, alice, `{"endpoint":"https://push.example/alice"}`); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	q := env.question(t, alice)
	env.opinion(t, bob, q.ID, "Go")
	env.app.Wait()
	if has, _ := env.store.HasOpinion(ctx, q.ID, bob.ID); !has {
		t.Fatalf("opinion should be committed even when push fails")
	}
}
