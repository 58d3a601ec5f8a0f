package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"polygram/internal/util"
	"polygram/pkg/apperr"
	"polygram/pkg/auth"
	"polygram/pkg/domain"
	"polygram/pkg/push"
	"polygram/pkg/store"
	"polygram/pkg/validate"
)

const passwordChangedMessage = "The password of your account was changed recently"

type CreateOpinionInput struct {
	QuestionID string `json:"questionId" validate:"required"`
	Content    string `json:"content" validate:"required,notblank,min=5,max=1600"`
	Option     string `json:"option" validate:"required,min=1,max=30"`
}

// CreateOpinion stores the caller's opinion on a question together with
// the author's own upvote and a notification for the question author.
func (a *App) CreateOpinion(ctx context.Context, user domain.User, in CreateOpinionInput) (OpinionView, error) {
	in.QuestionID = strings.TrimSpace(in.QuestionID)
	in.Content = strings.TrimSpace(in.Content)
	in.Option = strings.TrimSpace(in.Option)
	if err := validate.Struct(in); err != nil {
		return OpinionView{}, err
	}
	if !util.IsID(in.QuestionID) {
		return OpinionView{}, invalidID("questionId")
	}
	question, ok, err := a.store.GetQuestion(ctx, in.QuestionID)
	if err != nil {
		return OpinionView{}, apperr.Internal("Error creating opinion", err)
	}
	if !ok {
		return OpinionView{}, ErrQuestionNotFound
	}
	if !slices.Contains(question.Options, in.Option) {
		return OpinionView{}, ErrInvalidOption
	}
	exists, err := a.store.HasOpinion(ctx, question.ID, user.ID)
	if err != nil {
		return OpinionView{}, apperr.Internal("Error creating opinion", err)
	}
	if exists {
		return OpinionView{}, ErrOpinionExists
	}

	now := a.clock()
	opinion := domain.Opinion{
		ID:         util.NewID(),
		QuestionID: question.ID,
		AuthorID:   user.ID,
		Content:    in.Content,
		Option:     in.Option,
		CreatedAt:  now,
	}
	var counts domain.VoteCounts
	err = a.store.Transaction(ctx, func(tx store.Store) error {
		if err := tx.CreateOpinion(ctx, opinion); err != nil {
			return err
		}
		var err error
		counts, err = tx.CastVote(ctx, opinion.ID, user.ID, domain.VoteUp)
		if err != nil {
			return fmt.Errorf("auto upvote: %w", err)
		}
		return tx.CreateNotification(ctx, domain.Notification{
			ID:              util.NewID(),
			ReceiverID:      question.AuthorID,
			SenderID:        user.ID,
			Type:            domain.NotificationAddedOpinion,
			Message:         notificationMessage(question.Title),
			TargetContentID: question.ID,
			CreatedAt:       now,
		})
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return OpinionView{}, ErrOpinionExists
		}
		return OpinionView{}, apperr.Internal("Error creating opinion", err)
	}

	if question.AuthorID != user.ID {
		a.dispatchToUsers(ctx, []string{question.AuthorID}, push.Message{
			Title: "Received an Opinion",
			Body:  fmt.Sprintf("%s responded to your question %q", user.FirstName, question.Title),
		})
	}

	upvoted, downvoted := true, false
	summary := user.Summary()
	return OpinionView{
		Opinion:     opinion,
		VoteCounts:  counts,
		Author:      &summary,
		IsUpvoted:   &upvoted,
		IsDownvoted: &downvoted,
	}, nil
}

// DeleteQuestion removes an owned question with its opinions and votes.
func (a *App) DeleteQuestion(ctx context.Context, user domain.User, id string) error {
	if !util.IsID(id) {
		return invalidID("question id")
	}
	id = strings.ToLower(id)
	question, ok, err := a.store.GetQuestion(ctx, id)
	if err != nil {
		return apperr.Internal("Error deleting question", err)
	}
	if !ok {
		return ErrQuestionNotFound
	}
	if question.AuthorID != user.ID {
		return ErrDeleteQuestion
	}
	err = a.store.Transaction(ctx, func(tx store.Store) error {
		if err := tx.DeleteOpinionsByQuestions(ctx, []string{id}); err != nil {
			return err
		}
		return tx.DeleteQuestion(ctx, id)
	})
	if err != nil {
		return notFoundOr(err, ErrQuestionNotFound, "Error deleting question")
	}
	return nil
}

// DeleteAccount removes the caller and everything they own. Picture blobs
// are deleted after the rows are gone.
func (a *App) DeleteAccount(ctx context.Context, user domain.User, in DeleteAccountInput) error {
	if err := validate.Struct(in); err != nil {
		return err
	}
	if !auth.CheckPassword(in.Password, user.PasswordHash) {
		return ErrWrongPassword
	}
	var pictures []domain.Picture
	err := a.store.Transaction(ctx, func(tx store.Store) error {
		if err := tx.DeleteVotesByUser(ctx, user.ID); err != nil {
			return fmt.Errorf("delete votes: %w", err)
		}
		if err := tx.DeleteOpinionsByAuthor(ctx, user.ID); err != nil {
			return fmt.Errorf("delete opinions: %w", err)
		}
		questionIDs, err := tx.ListQuestionIDsByAuthor(ctx, user.ID)
		if err != nil {
			return fmt.Errorf("list questions: %w", err)
		}
		if err := tx.DeleteOpinionsByQuestions(ctx, questionIDs); err != nil {
			return fmt.Errorf("delete question opinions: %w", err)
		}
		if err := tx.DeleteQuestionsByAuthor(ctx, user.ID); err != nil {
			return fmt.Errorf("delete questions: %w", err)
		}
		pictures, err = tx.DeletePicturesByOwner(ctx, user.Username)
		if err != nil {
			return fmt.Errorf("delete pictures: %w", err)
		}
		if err := tx.DeleteNotificationsByUser(ctx, user.ID); err != nil {
			return fmt.Errorf("delete notifications: %w", err)
		}
		return tx.DeleteUser(ctx, user.ID)
	})
	if err != nil {
		return apperr.Internal("Error deleting account", err)
	}
	for _, p := range pictures {
		if err := a.objects.Delete(ctx, p.ObjectKey); err != nil {
			util.LoggerFromContext(ctx).Warn("picture_blob_delete_failed", "picture_id", p.ID, "key", p.ObjectKey, "err", err)
		}
	}
	a.revokeSessions(ctx, user.ID)
	return nil
}

// replacePassword stores a new password hash and tells the owner about it.
// A consumed reset OTP is cleared in the same write.
func (a *App) replacePassword(ctx context.Context, userID, newPassword string, clearOTP bool) error {
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return apperr.Internal("Error changing password", err)
	}
	now := a.clock()
	upd := store.UserUpdate{PasswordHash: &hash, UpdatedAt: now}
	if clearOTP {
		upd.OTP = &domain.OTP{}
	}
	err = a.store.Transaction(ctx, func(tx store.Store) error {
		if _, err := tx.UpdateUser(ctx, userID, upd); err != nil {
			return err
		}
		return tx.CreateNotification(ctx, domain.Notification{
			ID:         util.NewID(),
			ReceiverID: userID,
			Type:       domain.NotificationChangedPassword,
			Message:    passwordChangedMessage,
			CreatedAt:  now,
		})
	})
	if err != nil {
		return apperr.Internal("Error changing password", err)
	}
	a.dispatchToUsers(ctx, []string{userID}, push.Message{
		Title: "Password changed",
		Body:  passwordChangedMessage,
	})
	return nil
}

// notificationMessage fits a question title into the 2–160 character
// notification message bounds.
func notificationMessage(title string) string {
	r := []rune(title)
	if len(r) > 160 {
		return string(r[:157]) + "..."
	}
	return title
}
