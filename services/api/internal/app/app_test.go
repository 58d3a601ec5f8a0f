package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"polygram/internal/util"
	"polygram/pkg/apperr"
	"polygram/pkg/auth"
	"polygram/pkg/domain"
	"polygram/pkg/queue"
	"polygram/pkg/storage"
	"polygram/pkg/store"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fakeQueue struct {
	mu   sync.Mutex
	jobs []queue.PushJob
	err  error
}

func (q *fakeQueue) Enqueue(_ context.Context, job queue.PushJob) (queue.JobStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return queue.JobStatus{}, q.err
	}
	q.jobs = append(q.jobs, job)
	return queue.JobStatus{ID: util.NewID(), Receiver: job.Receiver, Status: queue.StatusQueued}, nil
}

func (q *fakeQueue) Jobs() []queue.PushJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]queue.PushJob(nil), q.jobs...)
}

type captureMailer struct {
	mu    sync.Mutex
	codes map[string]string
	err   error
}

func (m *captureMailer) SendOTP(_ context.Context, to, _, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.codes == nil {
		m.codes = make(map[string]string)
	}
	m.codes[to] = code
	return nil
}

func (m *captureMailer) Code(to string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[to]
}

type testEnv struct {
	app     *App
	store   *store.MemoryStore
	objects *storage.MemoryStore
	queue   *fakeQueue
	mailer  *captureMailer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:   store.NewMemoryStore(),
		objects: storage.NewMemoryStore(),
		queue:   &fakeQueue{},
		mailer:  &captureMailer{},
	}
	env.app = newTestApp(t, env.store, env)
	if err := env.app.SeedTopics(context.Background(), []string{"technology", "sports", "music"}); err != nil {
		t.Fatalf("seed topics: %v", err)
	}
	return env
}

func newTestApp(t *testing.T, s store.Store, env *testEnv) *App {
	t.Helper()
	sessions, err := store.NewJWTSessionStore(testSecret, time.Hour, store.NewMemoryTokenRevoker(), store.JWTOptions{})
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	a, err := New(Config{
		Store:          s,
		Sessions:       sessions,
		Objects:        env.objects,
		Push:           env.queue,
		Mailer:         env.mailer,
		MasterPassword: "master-secret",
		PublicURL:      "http://polygram.test/",
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a
}

func (env *testEnv) user(t *testing.T, username string) domain.User {
	t.Helper()
	hash, err := auth.HashPassword("secret-pw1!")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	now := time.Now().UTC()
	u := domain.User{
		ID:             util.NewID(),
		Username:       username,
		FirstName:      "Test",
		Email:          username + "@example.com",
		PasswordHash:   hash,
		Verified:       true,
		FollowedTopics: []string{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := env.store.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func (env *testEnv) question(t *testing.T, author domain.User) QuestionView {
	t.Helper()
	q, err := env.app.CreateQuestion(context.Background(), author, CreateQuestionInput{
		Title:   "Which language do you reach for first?",
		Content: "Tell us which language you pick when starting a new backend service.",
		Options: []string{"Go", "Rust", "Java"},
		Topics:  []string{"technology"},
	})
	if err != nil {
		t.Fatalf("create question: %v", err)
	}
	return q
}

func (env *testEnv) opinion(t *testing.T, author domain.User, questionID, option string) OpinionView {
	t.Helper()
	o, err := env.app.CreateOpinion(context.Background(), author, CreateOpinionInput{
		QuestionID: questionID,
		Content:    "I pick " + option + " for most things.",
		Option:     option,
	})
	if err != nil {
		t.Fatalf("create opinion: %v", err)
	}
	return o
}

func requireCode(t *testing.T, err error, code apperr.Code) {
	t.Helper()
	if !apperr.Is(err, code) {
		t.Fatalf("expected %s, got %v (%s)", code, err, apperr.CodeOf(err))
	}
}

// failingStore fails one write made inside a transaction. The zero
// failOn breaks notification inserts.
type failingStore struct {
	store.Store
	failOn string
}

func (f failingStore) Transaction(ctx context.Context, fn func(store.Store) error) error {
	return f.Store.Transaction(ctx, func(tx store.Store) error {
		return fn(failingTx{Store: tx, failOn: f.failOn})
	})
}

type failingTx struct {
	store.Store
	failOn string
}

var errConnReset = errors.New("connection reset")

func (f failingTx) CreateNotification(ctx context.Context, n domain.Notification) error {
	if f.failOn == "" || f.failOn == "CreateNotification" {
		return fmt.Errorf("insert notification: %w", errConnReset)
	}
	return f.Store.CreateNotification(ctx, n)
}

func (f failingTx) DeleteNotificationsByUser(ctx context.Context, userID string) error {
	if f.failOn == "DeleteNotificationsByUser" {
		return fmt.Errorf("delete notifications: %w", errConnReset)
	}
	return f.Store.DeleteNotificationsByUser(ctx, userID)
}

func (f failingTx) DeleteUser(ctx context.Context, id string) error {
	if f.failOn == "DeleteUser" {
		return fmt.Errorf("delete user: %w", errConnReset)
	}
	return f.Store.DeleteUser(ctx, id)
}
