package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"polygram/internal/util"
)

type Config struct {
	Redis redis.UniversalClient
}

// Server exposes the notifier health endpoint.
type Server struct {
	redis redis.UniversalClient
	mux   *http.ServeMux
}

func New(cfg Config) (*Server, error) {
	if cfg.Redis == nil {
		return nil, errors.New("redis client required")
	}
	s := &Server{redis: cfg.Redis, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	return s, nil
}

func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("notifier", util.WithSecurityHeaders(s.mux)))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	status, code := "ok", http.StatusOK
	if err := s.redis.Ping(ctx).Err(); err != nil {
		util.LoggerFromContext(r.Context()).Warn("health_check_failed", "err", err)
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}
