// Package push delivers Web Push messages signed with VAPID keys.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// ErrSubscriptionGone means the push service no longer knows the
// subscription and retrying is pointless.
var ErrSubscriptionGone = errors.New("push subscription expired")

// Message is the JSON payload shown by the service worker.
type Message struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Sender delivers a message to one browser subscription.
type Sender interface {
	Send(ctx context.Context, subscription string, msg Message) error
}

type Config struct {
	Subscriber      string
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	TTL             time.Duration
	HTTPClient      *http.Client
}

// WebPushSender implements Sender on top of webpush-go.
type WebPushSender struct {
	cfg Config
}

func NewWebPushSender(cfg Config) (*WebPushSender, error) {
	if strings.TrimSpace(cfg.VAPIDPublicKey) == "" || strings.TrimSpace(cfg.VAPIDPrivateKey) == "" {
		return nil, errors.New("vapid keys required")
	}
	if strings.TrimSpace(cfg.Subscriber) == "" {
		return nil, errors.New("vapid subscriber required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebPushSender{cfg: cfg}, nil
}

// ParseSubscription decodes a browser PushSubscription JSON document.
func ParseSubscription(raw string) (*webpush.Subscription, error) {
	var sub webpush.Subscription
	if err := json.Unmarshal([]byte(raw), &sub); err != nil {
		return nil, fmt.Errorf("decode subscription: %w", err)
	}
	if strings.TrimSpace(sub.Endpoint) == "" {
		return nil, errors.New("subscription endpoint missing")
	}
	return &sub, nil
}

func (s *WebPushSender) Send(ctx context.Context, subscription string, msg Message) error {
	sub, err := ParseSubscription(subscription)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	resp, err := webpush.SendNotificationWithContext(ctx, payload, sub, &webpush.Options{
		HTTPClient:      s.cfg.HTTPClient,
		Subscriber:      s.cfg.Subscriber,
		VAPIDPublicKey:  s.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: s.cfg.VAPIDPrivateKey,
		TTL:             int(s.cfg.TTL / time.Second),
		Urgency:         webpush.UrgencyNormal,
	})
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return ErrSubscriptionGone
	case resp.StatusCode >= 400:
		return fmt.Errorf("push service returned %d", resp.StatusCode)
	}
	return nil
}
