package app

import (
	"context"
	"errors"
	"strings"

	"polygram/internal/util"
	"polygram/pkg/apperr"
	"polygram/pkg/domain"
	"polygram/pkg/pagination"
	"polygram/pkg/store"
)

// OpinionView is an opinion with its vote counts. IsUpvoted and
// IsDownvoted are only set when the request has a viewer.
type OpinionView struct {
	domain.Opinion
	domain.VoteCounts
	Author      *domain.UserSummary `json:"author,omitempty"`
	IsUpvoted   *bool               `json:"isUpvoted,omitempty"`
	IsDownvoted *bool               `json:"isDownvoted,omitempty"`
}

// ListOpinions returns a page of a question's opinions.
func (a *App) ListOpinions(ctx context.Context, viewer *domain.User, questionID string, page pagination.Page) ([]OpinionView, error) {
	questionID = strings.TrimSpace(questionID)
	if questionID == "" {
		return nil, apperr.InvalidArg("question_id field cannot be empty")
	}
	if !util.IsID(questionID) {
		return nil, invalidID("question_id")
	}
	filter := store.OpinionFilter{Page: page, QuestionID: strings.ToLower(questionID)}
	if viewer != nil {
		filter.ViewerID = viewer.ID
	}
	opinions, err := a.store.ListOpinions(ctx, filter)
	if err != nil {
		return nil, apperr.Internal("Error fetching opinions", err)
	}
	authors, err := summaries(ctx, a.store, opinions, func(o domain.OpinionStats) string { return o.AuthorID })
	if err != nil {
		return nil, apperr.Internal("Error fetching opinions", err)
	}
	out := make([]OpinionView, 0, len(opinions))
	for _, o := range opinions {
		view := OpinionView{Opinion: o.Opinion, VoteCounts: o.VoteCounts, Author: authors[o.AuthorID]}
		if viewer != nil {
			up, down := o.ViewerVote == domain.VoteUp, o.ViewerVote == domain.VoteDown
			view.IsUpvoted, view.IsDownvoted = &up, &down
		}
		out = append(out, view)
	}
	return out, nil
}

// DeleteOpinion removes an owned opinion and its votes.
func (a *App) DeleteOpinion(ctx context.Context, user domain.User, id string) error {
	if !util.IsID(id) {
		return invalidID("opinion id")
	}
	opinion, ok, err := a.store.GetOpinion(ctx, id)
	if err != nil {
		return apperr.Internal("Error deleting opinion", err)
	}
	if !ok {
		return ErrOpinionNotFound
	}
	if opinion.AuthorID != user.ID {
		return ErrDeleteOpinion
	}
	if err := a.store.DeleteOpinion(ctx, id); err != nil {
		return notFoundOr(err, ErrOpinionNotFound, "Error deleting opinion")
	}
	return nil
}

// Upvote records the caller's upvote, replacing a downvote.
func (a *App) Upvote(ctx context.Context, user domain.User, opinionID string) (domain.VoteCounts, error) {
	return a.vote(ctx, user, opinionID, domain.VoteUp, true)
}

// Downvote records the caller's downvote, replacing an upvote.
func (a *App) Downvote(ctx context.Context, user domain.User, opinionID string) (domain.VoteCounts, error) {
	return a.vote(ctx, user, opinionID, domain.VoteDown, true)
}

// RemoveUpvote withdraws the caller's upvote if present.
func (a *App) RemoveUpvote(ctx context.Context, user domain.User, opinionID string) (domain.VoteCounts, error) {
	return a.vote(ctx, user, opinionID, domain.VoteUp, false)
}

// RemoveDownvote withdraws the caller's downvote if present.
func (a *App) RemoveDownvote(ctx context.Context, user domain.User, opinionID string) (domain.VoteCounts, error) {
	return a.vote(ctx, user, opinionID, domain.VoteDown, false)
}

func (a *App) vote(ctx context.Context, user domain.User, opinionID string, kind domain.VoteKind, cast bool) (domain.VoteCounts, error) {
	opinionID = strings.TrimSpace(opinionID)
	if !util.IsID(opinionID) {
		return domain.VoteCounts{}, invalidID("opinion id")
	}
	var (
		counts domain.VoteCounts
		err    error
	)
	if cast {
		counts, err = a.store.CastVote(ctx, strings.ToLower(opinionID), user.ID, kind)
	} else {
		counts, err = a.store.RetractVote(ctx, strings.ToLower(opinionID), user.ID, kind)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.VoteCounts{}, ErrOpinionNotFound
		}
		return domain.VoteCounts{}, apperr.Internal("Error updating vote", err)
	}
	return counts, nil
}
