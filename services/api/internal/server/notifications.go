package server

import (
	"encoding/json"
	"net/http"

	"polygram/pkg/domain"
	"polygram/pkg/pagination"
	"polygram/services/api/internal/app"
)

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request, user domain.User) {
	page, err := pagination.FromQuery(r.URL.Query(), pagination.Notifications)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	items, err := s.app.ListNotifications(r.Context(), user, page)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleCountNotifications(w http.ResponseWriter, r *http.Request, user domain.User) {
	n, err := s.app.CountUnread(r.Context(), user)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (s *Server) handleDeleteNotification(w http.ResponseWriter, r *http.Request, user domain.User) {
	if err := s.app.DeleteNotification(r.Context(), user, r.PathValue("id")); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Notification deleted successfully")
}

func (s *Server) handleSetRead(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req app.SetReadInput
	if err := decodeJSON(r, maxBodyBytes, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	n, err := s.app.SetRead(r.Context(), user, r.PathValue("id"), req)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request, user domain.User) {
	if err := s.app.MarkAllRead(r.Context(), user); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "All notifications marked as Read")
}

type subscribeRequest struct {
	Subscription json.RawMessage `json:"subscription"`
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req subscribeRequest
	if err := decodeJSON(r, maxBodyBytes, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if err := s.app.Subscribe(r.Context(), user, string(req.Subscription)); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"subscribed": true, "msg": "Subscribed to push notifications"})
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request, user domain.User) {
	if err := s.app.Unsubscribe(r.Context(), user); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"subscribed": false, "msg": "Unsubscribed from push notifications"})
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req app.BroadcastInput
	if err := decodeJSON(r, maxBodyBytes, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	queued, err := s.app.Broadcast(r.Context(), req)
	if err != nil {
		s.audit(r, "notifications.broadcast", "fail", "reason", auditReason(err))
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "notifications.broadcast", "success", "queued", queued)
	writeJSON(w, http.StatusOK, map[string]any{"msg": "All push notifications send successfully", "queued": queued})
}
