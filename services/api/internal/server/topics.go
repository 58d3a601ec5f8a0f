package server

import (
	"net/http"

	"polygram/pkg/domain"
	"polygram/pkg/pagination"
	"polygram/services/api/internal/app"
)

func (s *Server) handleListTopics(w http.ResponseWriter, r *http.Request, viewer *domain.User) {
	q := r.URL.Query()
	page, err := pagination.FromQuery(q, pagination.Topics)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	count, err := queryBool(q, "count")
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	topics, err := s.app.ListTopics(r.Context(), viewer, app.ListTopicsInput{Page: page, Search: q.Get("search"), Count: count})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, topics)
}

func (s *Server) handleGetTopic(w http.ResponseWriter, r *http.Request, viewer *domain.User) {
	topic, err := s.app.GetTopic(r.Context(), viewer, r.PathValue("id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, topic)
}

func (s *Server) handleFollowTopics(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req app.FollowTopicsInput
	if err := decodeJSON(r, maxBodyBytes, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	followed, err := s.app.FollowTopics(r.Context(), user, req)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"followedTopics": followed})
}

func (s *Server) handleUnfollowTopics(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req app.FollowTopicsInput
	if err := decodeJSON(r, maxBodyBytes, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	followed, err := s.app.UnfollowTopics(r.Context(), user, req)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"followedTopics": followed})
}
