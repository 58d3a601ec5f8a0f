package server

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"polygram/pkg/apperr"
	"polygram/pkg/domain"
	"polygram/pkg/pagination"
	"polygram/services/api/internal/app"
)

func (s *Server) handleListQuestions(w http.ResponseWriter, r *http.Request, viewer *domain.User) {
	q := r.URL.Query()
	page, err := pagination.FromQuery(q, pagination.Questions)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	following, err := queryBool(q, "following")
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	questions, err := s.app.ListQuestions(r.Context(), viewer, app.ListQuestionsInput{
		Page:      page,
		Search:    q.Get("search"),
		Topic:     q.Get("topic"),
		Following: following,
		UserID:    q.Get("user_id"),
	})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, questions)
}

func (s *Server) handleGetQuestion(w http.ResponseWriter, r *http.Request) {
	question, err := s.app.GetQuestion(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, question)
}

func (s *Server) handleCreateQuestion(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req app.CreateQuestionInput
	if err := decodeJSON(r, maxBodyBytes, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	question, err := s.app.CreateQuestion(r.Context(), user, req)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, question)
}

func (s *Server) handleDeleteQuestion(w http.ResponseWriter, r *http.Request, user domain.User) {
	if err := s.app.DeleteQuestion(r.Context(), user, r.PathValue("id")); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Question deleted successfully")
}

func (s *Server) handleListOpinions(w http.ResponseWriter, r *http.Request, viewer *domain.User) {
	q := r.URL.Query()
	page, err := pagination.FromQuery(q, pagination.Opinions)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	opinions, err := s.app.ListOpinions(r.Context(), viewer, q.Get("question_id"), page)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, opinions)
}

func (s *Server) handleCreateOpinion(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req app.CreateOpinionInput
	if err := decodeJSON(r, maxBodyBytes, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	opinion, err := s.app.CreateOpinion(r.Context(), user, req)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, opinion)
}

func (s *Server) handleDeleteOpinion(w http.ResponseWriter, r *http.Request, user domain.User) {
	if err := s.app.DeleteOpinion(r.Context(), user, r.PathValue("id")); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Opinion deleted successfully")
}

type voteFunc func(ctx context.Context, user domain.User, opinionID string) (domain.VoteCounts, error)

func (s *Server) voteHandler(vote voteFunc) authHandler {
	return func(w http.ResponseWriter, r *http.Request, user domain.User) {
		counts, err := vote(r.Context(), user, r.PathValue("id"))
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, counts)
	}
}

func queryBool(q url.Values, name string) (bool, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, apperr.InvalidArgf("%s must be true or false", name)
	}
	return v, nil
}
