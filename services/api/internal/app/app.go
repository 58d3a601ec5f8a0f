package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"polygram/pkg/linkpreview"
	"polygram/pkg/mailer"
	"polygram/pkg/queue"
	"polygram/pkg/storage"
	"polygram/pkg/store"
)

const (
	defaultNotificationTTL = 30 * 24 * time.Hour
	defaultPushTimeout     = 10 * time.Second
)

// PushQueue accepts push deliveries for the notifier.
type PushQueue interface {
	Enqueue(ctx context.Context, job queue.PushJob) (queue.JobStatus, error)
}

// Previewer fetches link preview metadata.
type Previewer interface {
	Fetch(ctx context.Context, rawURL string) (linkpreview.Preview, error)
}

// Config holds runtime configuration for the core application.
type Config struct {
	Store           store.Store
	Sessions        store.SessionStore
	Objects         storage.ObjectStore
	Push            PushQueue
	Mailer          mailer.Mailer
	Previews        Previewer
	MasterPassword  string
	PublicURL       string
	NotificationTTL time.Duration
	PushTimeout     time.Duration
	Now             func() time.Time
}

// App implements the polling application on top of the store and its
// collaborators. Handlers pass the resolved caller into each operation.
type App struct {
	store           store.Store
	sessions        store.SessionStore
	objects         storage.ObjectStore
	push            PushQueue
	mailer          mailer.Mailer
	previews        Previewer
	masterPassword  string
	publicURL       string
	notificationTTL time.Duration
	pushTimeout     time.Duration
	now             func() time.Time
	pending         sync.WaitGroup
}

// New constructs the application. Store, Sessions and Objects are required.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session store required")
	}
	if cfg.Objects == nil {
		return nil, errors.New("object store required")
	}
	if strings.TrimSpace(cfg.MasterPassword) == "" {
		return nil, errors.New("master password required")
	}
	if cfg.NotificationTTL <= 0 {
		cfg.NotificationTTL = defaultNotificationTTL
	}
	if cfg.PushTimeout <= 0 {
		cfg.PushTimeout = defaultPushTimeout
	}
	if cfg.Mailer == nil {
		cfg.Mailer = mailer.LogMailer{}
	}
	if cfg.Previews == nil {
		cfg.Previews = linkpreview.NewFetcher(linkpreview.Options{})
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &App{
		store:           cfg.Store,
		sessions:        cfg.Sessions,
		objects:         cfg.Objects,
		push:            cfg.Push,
		mailer:          cfg.Mailer,
		previews:        cfg.Previews,
		masterPassword:  cfg.MasterPassword,
		publicURL:       strings.TrimRight(cfg.PublicURL, "/"),
		notificationTTL: cfg.NotificationTTL,
		pushTimeout:     cfg.PushTimeout,
		now:             cfg.Now,
	}, nil
}

// Ready reports whether the store and object storage answer.
func (a *App) Ready(ctx context.Context) error {
	type pinger interface {
		Ping(ctx context.Context) error
	}
	if p, ok := a.store.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("store: %w", err)
		}
	}
	if p, ok := a.objects.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("object storage: %w", err)
		}
	}
	return nil
}

// Wait blocks until in-flight push dispatches have finished.
func (a *App) Wait() {
	a.pending.Wait()
}

func (a *App) clock() time.Time {
	return a.now().UTC()
}
