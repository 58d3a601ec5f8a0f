package app

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"
	"polygram/internal/util"
	"polygram/pkg/apperr"
	"polygram/pkg/domain"
	"polygram/pkg/pagination"
	"polygram/pkg/store"
	"polygram/pkg/validate"
	"polygram/pkg/weightage"
)

// QuestionView is a question with its author attached.
type QuestionView struct {
	domain.Question
	Author *domain.UserSummary `json:"author,omitempty"`
}

// QuestionDetail replaces the option list with each option's share of
// the opinion weightage.
type QuestionDetail struct {
	domain.Question
	Options []weightage.Result  `json:"options"`
	Author  *domain.UserSummary `json:"author,omitempty"`
}

type ListQuestionsInput struct {
	Page      pagination.Page `json:"-"`
	Search    string          `json:"search" validate:"max=50"`
	Topic     string          `json:"topic" validate:"omitempty,min=2,max=30"`
	Following bool            `json:"following"`
	UserID    string          `json:"user_id"`
}

type CreateQuestionInput struct {
	Title   string   `json:"title" validate:"required,min=15,max=150"`
	Content string   `json:"content" validate:"required,min=30,max=1000"`
	Options []string `json:"options" validate:"required,min=2,max=5,unique,dive,required,min=1,max=30"`
	Topics  []string `json:"topics" validate:"required,min=1,max=5,unique,dive,required,min=2,max=30"`
}

// ListQuestions returns a page of questions. Following narrows to the
// viewer's followed topics and needs a viewer.
func (a *App) ListQuestions(ctx context.Context, viewer *domain.User, in ListQuestionsInput) ([]QuestionView, error) {
	in.Search = strings.TrimSpace(in.Search)
	in.Topic = strings.TrimSpace(in.Topic)
	in.UserID = strings.TrimSpace(in.UserID)
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	if in.UserID != "" && !util.IsID(in.UserID) {
		return nil, invalidID("user_id")
	}
	filter := store.QuestionFilter{
		Page:     in.Page,
		AuthorID: strings.ToLower(in.UserID),
		Topic:    in.Topic,
		Search:   in.Search,
	}
	if in.Following && in.Topic == "" {
		if viewer == nil {
			return nil, ErrLoginRequired
		}
		filter.FollowedOnly = true
		filter.AnyTopics = viewer.FollowedTopics
	}
	questions, err := a.store.ListQuestions(ctx, filter)
	if err != nil {
		return nil, apperr.Internal("Error fetching questions", err)
	}
	authors, err := summaries(ctx, a.store, questions, func(q domain.Question) string { return q.AuthorID })
	if err != nil {
		return nil, apperr.Internal("Error fetching questions", err)
	}
	out := make([]QuestionView, 0, len(questions))
	for _, q := range questions {
		out = append(out, QuestionView{Question: q, Author: authors[q.AuthorID]})
	}
	return out, nil
}

// GetQuestion returns a question with the option percentages computed
// from its opinions' votes.
func (a *App) GetQuestion(ctx context.Context, id string) (QuestionDetail, error) {
	id = strings.TrimSpace(id)
	if !util.IsID(id) {
		return QuestionDetail{}, invalidID("question id")
	}
	id = strings.ToLower(id)
	var (
		question domain.Question
		found    bool
		tallies  []weightage.Tally
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		question, found, err = a.store.GetQuestion(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		tallies, err = a.store.ListTallies(gctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		return QuestionDetail{}, apperr.Internal("Error fetching question", err)
	}
	if !found {
		return QuestionDetail{}, ErrQuestionNotFound
	}
	detail := QuestionDetail{
		Question: question,
		Options:  weightage.Percentages(question.Options, tallies),
	}
	author, ok, err := a.store.GetUserByID(ctx, question.AuthorID)
	if err != nil {
		return QuestionDetail{}, apperr.Internal("Error fetching question", err)
	}
	if ok {
		summary := author.Summary()
		detail.Author = &summary
	}
	return detail, nil
}

// CreateQuestion stores a question. Every topic must already exist.
func (a *App) CreateQuestion(ctx context.Context, user domain.User, in CreateQuestionInput) (QuestionView, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Content = strings.TrimSpace(in.Content)
	in.Options = trimAll(in.Options)
	in.Topics = trimAll(in.Topics)
	if err := validate.Struct(in); err != nil {
		return QuestionView{}, err
	}
	count, err := a.store.CountTopicsByName(ctx, in.Topics)
	if err != nil {
		return QuestionView{}, apperr.Internal("Error creating question", err)
	}
	if count != len(in.Topics) {
		return QuestionView{}, ErrInvalidTopics
	}
	question := domain.Question{
		ID:        util.NewID(),
		AuthorID:  user.ID,
		Title:     in.Title,
		Content:   in.Content,
		Options:   in.Options,
		Topics:    in.Topics,
		CreatedAt: a.clock(),
	}
	if err := a.store.CreateQuestion(ctx, question); err != nil {
		return QuestionView{}, apperr.Internal("Error creating question", err)
	}
	summary := user.Summary()
	return QuestionView{Question: question, Author: &summary}, nil
}

// summaries loads the public projection of every user referenced by items.
func summaries[T any](ctx context.Context, s store.Store, items []T, userID func(T) string) (map[string]*domain.UserSummary, error) {
	out := make(map[string]*domain.UserSummary, len(items))
	if len(items) == 0 {
		return out, nil
	}
	ids := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		id := userID(item)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	users, err := s.ListUsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		summary := u.Summary()
		out[u.ID] = &summary
	}
	return out, nil
}

func trimAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.TrimSpace(v)
	}
	return out
}
