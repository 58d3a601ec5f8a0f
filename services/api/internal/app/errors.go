package app

import (
	"errors"

	"polygram/pkg/apperr"
	"polygram/pkg/store"
)

var (
	ErrLoginRequired   = apperr.Unauthorized("Please login to continue")
	ErrUserNotFound    = apperr.NotFound("No user found")
	ErrWrongPassword   = apperr.Unauthorized("Incorrect password")
	ErrMasterPassword  = apperr.Unauthorized("Invalid master password")
	ErrUsernameTaken   = apperr.AlreadyExists("Username already exists")
	ErrEmailTaken      = apperr.AlreadyExists("Email already exists")
	ErrAlreadyVerified = apperr.AlreadyExists("User is already verified")

	ErrQuestionNotFound     = apperr.NotFound("Question not found")
	ErrOpinionNotFound      = apperr.NotFound("Opinion not found")
	ErrTopicNotFound        = apperr.NotFound("Topic not found")
	ErrNotificationNotFound = apperr.NotFound("Notification not found")
	ErrPictureNotFound      = apperr.NotFound("Picture not found")

	ErrInvalidTopics     = apperr.InvalidArg("One or more topics do not exist")
	ErrInvalidOption     = apperr.InvalidArg("Option is not one of the question's options")
	ErrOpinionExists     = apperr.AlreadyExists("You have already given your opinion on this question")
	ErrDeleteQuestion    = apperr.Forbidden("You don't have the permission to delete this question")
	ErrDeleteOpinion     = apperr.Forbidden("You don't have the permission to delete this opinion")
	ErrInvalidImage      = apperr.InvalidArg("Image must be a png, jpg or jpeg data URL")
	ErrImageSize         = apperr.InvalidArg("Image size must be between 600B and 2MB")
	ErrInvalidURL        = apperr.InvalidArg("Invalid url")
	ErrLinkPreview       = apperr.InvalidArg("Unable to get link preview")
	ErrInvalidSubscriber = apperr.InvalidArg("Invalid push subscription")
)

func invalidID(name string) error {
	return apperr.InvalidArgf("Invalid %s", name)
}

// notFoundOr maps store.ErrNotFound to notFound and anything else to an
// internal error carrying msg.
func notFoundOr(err, notFound error, msg string) error {
	if errors.Is(err, store.ErrNotFound) {
		return notFound
	}
	return apperr.Internal(msg, err)
}
