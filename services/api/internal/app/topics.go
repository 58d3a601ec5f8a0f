package app

import (
	"context"
	"slices"
	"strings"

	"polygram/internal/util"
	"polygram/pkg/apperr"
	"polygram/pkg/domain"
	"polygram/pkg/pagination"
	"polygram/pkg/store"
	"polygram/pkg/validate"
)

type TopicView struct {
	domain.Topic
	IsFollowed    *bool `json:"isFollowed,omitempty"`
	QuestionCount *int  `json:"questionCount,omitempty"`
}

type ListTopicsInput struct {
	Page   pagination.Page `json:"-"`
	Search string          `json:"search" validate:"max=30"`
	Count  bool            `json:"count"`
}

type FollowTopicsInput struct {
	Topics []string `json:"topics" validate:"required,min=1,max=50,dive,required,min=2,max=30"`
}

// SeedTopics makes sure every configured topic exists.
func (a *App) SeedTopics(ctx context.Context, names []string) error {
	names = dedupe(trimAll(names))
	names = slices.DeleteFunc(names, func(s string) bool { return s == "" })
	if len(names) == 0 {
		return nil
	}
	return a.store.EnsureTopics(ctx, names)
}

// ListTopics returns a page of topics matching the search.
func (a *App) ListTopics(ctx context.Context, viewer *domain.User, in ListTopicsInput) ([]TopicView, error) {
	in.Search = strings.TrimSpace(in.Search)
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	topics, err := a.store.ListTopics(ctx, store.TopicFilter{Page: in.Page, Search: in.Search})
	if err != nil {
		return nil, apperr.Internal("Error fetching topics", err)
	}
	var counts map[string]int
	if in.Count && len(topics) > 0 {
		names := make([]string, 0, len(topics))
		for _, t := range topics {
			names = append(names, t.Name)
		}
		counts, err = a.store.CountQuestionsByTopic(ctx, names)
		if err != nil {
			return nil, apperr.Internal("Error fetching topics", err)
		}
	}
	out := make([]TopicView, 0, len(topics))
	for _, t := range topics {
		view := topicView(viewer, t)
		if in.Count {
			n := counts[t.Name]
			view.QuestionCount = &n
		}
		out = append(out, view)
	}
	return out, nil
}

// GetTopic returns one topic.
func (a *App) GetTopic(ctx context.Context, viewer *domain.User, id string) (TopicView, error) {
	if !util.IsID(id) {
		return TopicView{}, invalidID("topic id")
	}
	topic, ok, err := a.store.GetTopic(ctx, strings.ToLower(id))
	if err != nil {
		return TopicView{}, apperr.Internal("Error fetching topic", err)
	}
	if !ok {
		return TopicView{}, ErrTopicNotFound
	}
	return topicView(viewer, topic), nil
}

// FollowTopics adds topics to the caller's followed set.
func (a *App) FollowTopics(ctx context.Context, user domain.User, in FollowTopicsInput) ([]string, error) {
	in.Topics = dedupe(trimAll(in.Topics))
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	count, err := a.store.CountTopicsByName(ctx, in.Topics)
	if err != nil {
		return nil, apperr.Internal("Error following topics", err)
	}
	if count != len(in.Topics) {
		return nil, ErrInvalidTopics
	}
	followed, err := a.store.FollowTopics(ctx, user.ID, in.Topics, a.clock())
	if err != nil {
		return nil, notFoundOr(err, ErrUserNotFound, "Error updating followed topics")
	}
	return followed, nil
}

// UnfollowTopics removes topics from the caller's followed set.
func (a *App) UnfollowTopics(ctx context.Context, user domain.User, in FollowTopicsInput) ([]string, error) {
	in.Topics = dedupe(trimAll(in.Topics))
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	followed, err := a.store.UnfollowTopics(ctx, user.ID, in.Topics, a.clock())
	if err != nil {
		return nil, notFoundOr(err, ErrUserNotFound, "Error updating followed topics")
	}
	return followed, nil
}

func topicView(viewer *domain.User, t domain.Topic) TopicView {
	view := TopicView{Topic: t}
	if viewer != nil {
		followed := slices.Contains(viewer.FollowedTopics, t.Name)
		view.IsFollowed = &followed
	}
	return view
}

func dedupe(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
