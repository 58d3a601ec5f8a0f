package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestQueue(t *testing.T, cfg RedisQueueConfig) *RedisJobQueue {
	t.Helper()
	redisSrv := miniredis.RunT(t)
	cfg.Addr = redisSrv.Addr()
	if cfg.Stream == "" {
		cfg.Stream = "test:push"
	}
	if cfg.Group == "" {
		cfg.Group = "test-group"
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "consumer-1"
	}
	q, err := NewRedisJobQueue(cfg)
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func testJob() PushJob {
	return PushJob{
		Receiver:     "alice",
		Subscription: `{"endpoint":"https://push.example.com/abc"}`,
		Title:        "Received an Opinion",
		Body:         `Bob responded to your question "Why?"`,
	}
}

func TestRedisJobQueueRequeueAndAckSuccess(t *testing.T) {
	q, ctx, msgID, job := newPendingQueueMessage(t)

	if err := q.requeueAndAck(ctx, msgID, job); err != nil {
		t.Fatalf("requeue and ack: %v", err)
	}

	pending, err := q.client.XPending(ctx, q.stream, q.group).Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	if pending.Count != 0 {
		t.Fatalf("expected no pending messages, got %d", pending.Count)
	}

	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: "consumer-2",
		Streams:  []string{q.stream, ">"},
		Count:    1,
		Block:    0,
	}).Result()
	if err != nil {
		t.Fatalf("read requeued message: %v", err)
	}
	if len(streams) != 1 || len(streams[0].Messages) != 1 {
		t.Fatalf("expected one requeued message, got %+v", streams)
	}
	got, err := decodePushJob(streams[0].Messages[0].Values)
	if err != nil {
		t.Fatalf("decode requeued payload: %v", err)
	}
	if got.ID != job.ID || got.Subscription != job.Subscription || got.Title != job.Title {
		t.Fatalf("unexpected requeued payload: %+v", got)
	}
}

func TestRedisJobQueueRequeueAndAckFailureKeepsPendingMessage(t *testing.T) {
	q, ctx, msgID, job := newPendingQueueMessage(t)

	canceledCtx, cancel := context.WithCancel(ctx)
	cancel()
	if err := q.requeueAndAck(canceledCtx, msgID, job); err == nil {
		t.Fatalf("expected requeueAndAck to fail on canceled context")
	}

	pending, err := q.client.XPending(ctx, q.stream, q.group).Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	if pending.Count != 1 {
		t.Fatalf("expected original message to remain pending, got %d", pending.Count)
	}
}

func TestRedisJobQueueDeliversAndMarksDone(t *testing.T) {
	q := newTestQueue(t, RedisQueueConfig{Block: 50 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	status, err := q.Enqueue(ctx, testJob())
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	delivered := make(chan PushJob, 1)
	q.Start(ctx, 1, func(_ context.Context, job PushJob) error {
		delivered <- job
		return nil
	})

	select {
	case job := <-delivered:
		if job.ID != status.ID || job.Receiver != "alice" || job.Attempts != 1 {
			t.Fatalf("unexpected job: %+v", job)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for delivery")
	}

	waitForStatus(t, q, status.ID, StatusDone)
}

func TestRedisJobQueueRetriesThenFails(t *testing.T) {
	q := newTestQueue(t, RedisQueueConfig{
		Block:      50 * time.Millisecond,
		RetryDelay: time.Millisecond,
		MaxRetries: 2,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	status, err := q.Enqueue(ctx, testJob())
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	var calls atomic.Int32
	q.Start(ctx, 1, func(context.Context, PushJob) error {
		calls.Add(1)
		return errors.New("push service unavailable")
	})

	got := waitForStatus(t, q, status.ID, StatusFailed)
	if got.Attempts != 2 || calls.Load() != 2 {
		t.Fatalf("expected 2 attempts, status=%+v calls=%d", got, calls.Load())
	}
	if got.ErrorMessage != "push service unavailable" {
		t.Fatalf("unexpected error message: %q", got.ErrorMessage)
	}
}

func TestEnqueueRequiresSubscription(t *testing.T) {
	q := newTestQueue(t, RedisQueueConfig{})
	job := testJob()
	job.Subscription = " "
	if _, err := q.Enqueue(context.Background(), job); err == nil {
		t.Fatalf("expected missing subscription to be rejected")
	}
}

func TestDecodePushJobRejectsIncompleteMessage(t *testing.T) {
	if _, err := decodePushJob(map[string]any{"job_id": "1"}); err == nil {
		t.Fatalf("expected error for message without subscription")
	}
}

func waitForStatus(t *testing.T, q *RedisJobQueue, jobID, want string) JobStatus {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		job, ok, err := q.GetJob(context.Background(), jobID)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if ok && job.Status == want {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach status %s", jobID, want)
	return JobStatus{}
}

func newPendingQueueMessage(t *testing.T) (*RedisJobQueue, context.Context, string, PushJob) {
	t.Helper()

	q := newTestQueue(t, RedisQueueConfig{RetryDelay: time.Millisecond})
	ctx := context.Background()
	q.ensureGroup(ctx)

	status, err := q.Enqueue(ctx, testJob())
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: "consumer-1",
		Streams:  []string{q.stream, ">"},
		Count:    1,
		Block:    0,
	}).Result()
	if err != nil {
		t.Fatalf("readgroup: %v", err)
	}
	if len(streams) != 1 || len(streams[0].Messages) != 1 {
		t.Fatalf("expected one pending message, got %+v", streams)
	}

	job := testJob()
	job.ID = status.ID
	return q, ctx, streams[0].Messages[0].ID, job
}
