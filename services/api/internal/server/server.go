package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"polygram/internal/ratelimit"
	"polygram/internal/util"
	"polygram/pkg/apperr"
	"polygram/pkg/domain"
	"polygram/services/api/internal/app"
)

const (
	sessionCookie   = "jwt"
	maxBodyBytes    = 1 << 20
	maxPictureBytes = 4 << 20
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                        *app.App
	Redis                      redis.UniversalClient
	SessionTTL                 time.Duration
	CookieSecure               bool
	AllowedOrigins             []string
	TrustedProxyCIDRs          []string
	RegisterRateLimitPerMinute int
	LoginRateLimitPerMinute    int
	VerifyRateLimitPerMinute   int
	OTPRateLimitPerMinute      int
	PasswordRateLimitPerMinute int
}

// Server exposes the polygram REST API.
type Server struct {
	app             *app.App
	mux             *http.ServeMux
	sessionTTL      time.Duration
	cookieSecure    bool
	allowedOrigins  []string
	trustedProxies  *util.TrustedProxies
	registerLimiter *ratelimit.FixedWindowLimiter
	loginLimiter    *ratelimit.FixedWindowLimiter
	verifyLimiter   *ratelimit.FixedWindowLimiter
	otpLimiter      *ratelimit.FixedWindowLimiter
	passwordLimiter *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 7 * 24 * time.Hour
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		return nil, fmt.Errorf("parse trusted proxies: %w", err)
	}
	rateWindow := time.Minute
	newLimiter := func(name string, limit, fallback int) (*ratelimit.FixedWindowLimiter, error) {
		if limit <= 0 {
			limit = fallback
		}
		prefix := "polygram:api:ratelimit:" + name
		limiter, err := ratelimit.NewFixedWindowLimiter(cfg.Redis, prefix, limit, rateWindow)
		if err != nil {
			return nil, fmt.Errorf("init %s limiter: %w", name, err)
		}
		return limiter, nil
	}
	registerLimiter, err := newLimiter("register", cfg.RegisterRateLimitPerMinute, 5)
	if err != nil {
		return nil, err
	}
	loginLimiter, err := newLimiter("login", cfg.LoginRateLimitPerMinute, 10)
	if err != nil {
		return nil, err
	}
	verifyLimiter, err := newLimiter("verify", cfg.VerifyRateLimitPerMinute, 10)
	if err != nil {
		return nil, err
	}
	otpLimiter, err := newLimiter("otp", cfg.OTPRateLimitPerMinute, 3)
	if err != nil {
		return nil, err
	}
	passwordLimiter, err := newLimiter("password", cfg.PasswordRateLimitPerMinute, 10)
	if err != nil {
		return nil, err
	}
	s := &Server{
		app:             cfg.App,
		mux:             http.NewServeMux(),
		sessionTTL:      cfg.SessionTTL,
		cookieSecure:    cfg.CookieSecure,
		allowedOrigins:  cfg.AllowedOrigins,
		trustedProxies:  trusted,
		registerLimiter: registerLimiter,
		loginLimiter:    loginLimiter,
		verifyLimiter:   verifyLimiter,
		otpLimiter:      otpLimiter,
		passwordLimiter: passwordLimiter,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("api", util.WithSecurityHeaders(util.WithCORS(s.allowedOrigins, s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	// users
	s.mux.HandleFunc("POST /api/users/register", s.handleRegister)
	s.mux.HandleFunc("POST /api/users/verify", s.handleVerify)
	s.mux.HandleFunc("POST /api/users/login", s.handleLogin)
	s.mux.HandleFunc("POST /api/users/logout", s.handleLogout)
	s.mux.HandleFunc("GET /api/users/is-logged-in", s.handleIsLoggedIn)
	s.mux.HandleFunc("POST /api/users/otp", s.handleSendOTP)
	s.mux.HandleFunc("POST /api/users/forgot-password", s.handleForgotPassword)
	s.mux.Handle("GET /api/users/me", s.authenticated(s.handleMe))
	s.mux.Handle("PATCH /api/users/me", s.authenticated(s.handleUpdateMe))
	s.mux.Handle("DELETE /api/users/me", s.authenticated(s.handleDeleteMe))
	s.mux.Handle("POST /api/users/me/password", s.authenticated(s.handleChangePassword))
	s.mux.Handle("PUT /api/users/me/profile-picture", s.authenticated(s.handleProfilePicture))
	s.mux.HandleFunc("GET /api/users/{username}", s.handleProfile)

	// questions & opinions
	s.mux.Handle("GET /api/questions", s.withViewer(s.handleListQuestions))
	s.mux.Handle("POST /api/questions", s.authenticated(s.handleCreateQuestion))
	s.mux.HandleFunc("GET /api/questions/{id}", s.handleGetQuestion)
	s.mux.Handle("DELETE /api/questions/{id}", s.authenticated(s.handleDeleteQuestion))
	s.mux.Handle("GET /api/opinions", s.withViewer(s.handleListOpinions))
	s.mux.Handle("POST /api/opinions", s.authenticated(s.handleCreateOpinion))
	s.mux.Handle("DELETE /api/opinions/{id}", s.authenticated(s.handleDeleteOpinion))
	s.mux.Handle("POST /api/opinions/{id}/upvote", s.authenticated(s.voteHandler(s.app.Upvote)))
	s.mux.Handle("DELETE /api/opinions/{id}/upvote", s.authenticated(s.voteHandler(s.app.RemoveUpvote)))
	s.mux.Handle("POST /api/opinions/{id}/downvote", s.authenticated(s.voteHandler(s.app.Downvote)))
	s.mux.Handle("DELETE /api/opinions/{id}/downvote", s.authenticated(s.voteHandler(s.app.RemoveDownvote)))

	// topics
	s.mux.Handle("GET /api/topics", s.withViewer(s.handleListTopics))
	s.mux.Handle("GET /api/topics/{id}", s.withViewer(s.handleGetTopic))
	s.mux.Handle("POST /api/topics/follow", s.authenticated(s.handleFollowTopics))
	s.mux.Handle("POST /api/topics/unfollow", s.authenticated(s.handleUnfollowTopics))

	// notifications
	s.mux.Handle("GET /api/notifications", s.authenticated(s.handleListNotifications))
	s.mux.Handle("GET /api/notifications/count", s.authenticated(s.handleCountNotifications))
	s.mux.Handle("DELETE /api/notifications/{id}", s.authenticated(s.handleDeleteNotification))
	s.mux.Handle("POST /api/notifications/{id}/has-read", s.authenticated(s.handleSetRead))
	s.mux.Handle("POST /api/notifications/mark-all-as-read", s.authenticated(s.handleMarkAllRead))
	s.mux.Handle("POST /api/notifications/subscribe", s.authenticated(s.handleSubscribe))
	s.mux.Handle("POST /api/notifications/unsubscribe", s.authenticated(s.handleUnsubscribe))
	s.mux.HandleFunc("POST /api/notifications/push", s.handleBroadcast)

	// pictures & utils
	s.mux.HandleFunc("GET /api/pictures/{id}", s.handlePicture)
	s.mux.HandleFunc("GET /api/utils/link-preview", s.handleLinkPreview)

	s.mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "The requested route does not exist")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.app.Ready(ctx); err != nil {
		util.LoggerFromContext(r.Context()).Warn("health_check_failed", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, domain.User)

type viewerHandler func(http.ResponseWriter, *http.Request, *domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.authorize(r)
		if err != nil {
			if apperr.Is(err, apperr.CodeUnauthenticated) {
				s.audit(r, "session.authorize", "fail")
			}
			s.writeAppError(w, r, err)
			return
		}
		next(w, r, user)
	})
}

// withViewer resolves the session when present. A missing or invalid
// session yields an anonymous viewer.
func (s *Server) withViewer(next viewerHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.authorize(r)
		if err != nil {
			next(w, r, nil)
			return
		}
		next(w, r, &user)
	})
}

func (s *Server) authorize(r *http.Request) (domain.User, error) {
	token := sessionToken(r)
	if token == "" {
		return domain.User{}, app.ErrLoginRequired
	}
	return s.app.Authenticate(r.Context(), token)
}

func sessionToken(r *http.Request) string {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return ""
	}
	return c.Value
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, s.sessionCookie(token, int(s.sessionTTL/time.Second)))
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, s.sessionCookie("", -1))
}

func (s *Server) sessionCookie(value string, maxAge int) *http.Cookie {
	c := &http.Cookie{
		Name:     sessionCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	if s.cookieSecure {
		c.SameSite = http.SameSiteNoneMode
	}
	return c
}

func decodeJSON(r *http.Request, limit int64, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, limit)).Decode(v); err != nil {
		return apperr.InvalidArg("Invalid JSON body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorBody struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]errorBody{"error": {Status: status, Message: msg}})
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"msg": msg})
}

// writeAppError maps err to its public status and message. Causes of
// internal errors are logged, never returned.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := apperr.Public(err)
	if status >= http.StatusInternalServerError {
		util.LoggerFromContext(r.Context()).Error("request_failed", "err", err)
	}
	writeError(w, status, msg)
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", s.clientIP(r),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	key := r.URL.Path + "|" + s.clientIP(r)
	if limiter.Allow(r.Context(), key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

func (s *Server) clientIP(r *http.Request) string {
	return util.ClientIP(r, s.trustedProxies)
}

func auditReason(err error) string {
	return string(apperr.CodeOf(err))
}
