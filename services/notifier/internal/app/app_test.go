package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"polygram/pkg/push"
	"polygram/pkg/queue"
)

type fakeSender struct {
	mu   sync.Mutex
	err  error
	sent []push.Message
}

func (f *fakeSender) Send(_ context.Context, _ string, msg push.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return f.err
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type noopSource struct{}

func (noopSource) Start(context.Context, int, queue.Handler) {}

func testJob() queue.PushJob {
	return queue.PushJob{
		ID:           "job-1",
		Receiver:     "alice",
		Subscription: `{"endpoint":"https://push.example.com/alice"}`,
		Title:        "Received an Opinion",
		Body:         "bob responded to your question",
	}
}

func TestDeliverSendsMessage(t *testing.T) {
	sender := &fakeSender{}
	a, err := New(Config{Jobs: noopSource{}, Sender: sender})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	if err := a.Deliver(context.Background(), testJob()); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if sender.count() != 1 || sender.sent[0].Title != "Received an Opinion" {
		t.Fatalf("unexpected sends: %+v", sender.sent)
	}
}

func TestDeliverDropsGoneSubscription(t *testing.T) {
	a, _ := New(Config{Jobs: noopSource{}, Sender: &fakeSender{err: push.ErrSubscriptionGone}})
	if err := a.Deliver(context.Background(), testJob()); err != nil {
		t.Fatalf("expected gone subscription to be dropped, got %v", err)
	}
}

func TestDeliverReturnsTransientErrors(t *testing.T) {
	a, _ := New(Config{Jobs: noopSource{}, Sender: &fakeSender{err: errors.New("push service returned 500")}})
	if err := a.Deliver(context.Background(), testJob()); err == nil {
		t.Fatalf("expected error for retry")
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Config{Sender: &fakeSender{}}); err == nil {
		t.Fatalf("expected missing job source to fail")
	}
	if _, err := New(Config{Jobs: noopSource{}}); err == nil {
		t.Fatalf("expected missing sender to fail")
	}
}

func TestRunDeliversQueuedJobs(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	q, err := queue.NewRedisJobQueue(queue.RedisQueueConfig{
		Client: client,
		Stream: "polygram:push:test",
		Group:  "notifier",
		Block:  20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if _, err := q.Enqueue(ctx, testJob()); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	sender := &fakeSender{}
	a, err := New(Config{Jobs: q, Sender: sender, Concurrency: 2})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	a.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for sender.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("job was not delivered")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
