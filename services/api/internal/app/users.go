package app

import (
	"context"
	"errors"
	"strings"

	"polygram/internal/util"
	"polygram/pkg/apperr"
	"polygram/pkg/auth"
	"polygram/pkg/domain"
	"polygram/pkg/store"
	"polygram/pkg/validate"
)

type RegisterInput struct {
	FirstName string `json:"firstName" validate:"required,min=3,max=30,name"`
	LastName  string `json:"lastName" validate:"omitempty,min=1,max=30,name"`
	Username  string `json:"username" validate:"required,min=4,max=15,username"`
	Email     string `json:"email" validate:"required,min=5,max=50,email"`
	Password  string `json:"password" validate:"required,password"`
}

type VerifyInput struct {
	Username string `json:"username" validate:"required,min=4,max=15,username"`
	OTP      string `json:"otp" validate:"required,len=6,numeric"`
}

type LoginInput struct {
	Username string `json:"username" validate:"required,min=4,max=15"`
	Password string `json:"password" validate:"required"`
}

type UpdateProfileInput struct {
	FirstName *string `json:"firstName" validate:"omitempty,min=3,max=30,name"`
	LastName  *string `json:"lastName" validate:"omitempty,max=30"`
	Bio       *string `json:"bio" validate:"omitempty,min=5,max=160"`
}

type SendOTPInput struct {
	Email string `json:"email" validate:"required,min=5,max=50,email"`
}

type ForgotPasswordInput struct {
	Email       string `json:"email" validate:"required,min=5,max=50,email"`
	OTP         string `json:"otp" validate:"required,len=6,numeric"`
	NewPassword string `json:"newPassword" validate:"required,password"`
}

type ChangePasswordInput struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,password"`
}

type DeleteAccountInput struct {
	Password string `json:"password" validate:"required"`
}

func normalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Register creates an unverified account and mails it an OTP. Pending
// registrations holding the same username or email are discarded.
func (a *App) Register(ctx context.Context, in RegisterInput) (domain.User, error) {
	in.Username = normalizeUsername(in.Username)
	in.Email = normalizeEmail(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	if err := validate.Struct(in); err != nil {
		return domain.User{}, err
	}
	taken, err := a.store.HasVerifiedUsername(ctx, in.Username)
	if err != nil {
		return domain.User{}, apperr.Internal("Error registering user", err)
	}
	if taken {
		return domain.User{}, ErrUsernameTaken
	}
	taken, err = a.store.HasVerifiedEmail(ctx, in.Email)
	if err != nil {
		return domain.User{}, apperr.Internal("Error registering user", err)
	}
	if taken {
		return domain.User{}, ErrEmailTaken
	}
	if err := a.store.DeleteUnverifiedUsers(ctx, in.Username, in.Email); err != nil {
		return domain.User{}, apperr.Internal("Error registering user", err)
	}
	passwordHash, err := auth.HashPassword(in.Password)
	if err != nil {
		return domain.User{}, apperr.Internal("Error registering user", err)
	}
	code, otpHash, err := auth.NewOTP()
	if err != nil {
		return domain.User{}, apperr.Internal("Error registering user", err)
	}
	now := a.clock()
	user := domain.User{
		ID:             util.NewID(),
		Username:       in.Username,
		FirstName:      in.FirstName,
		LastName:       in.LastName,
		Email:          in.Email,
		PasswordHash:   passwordHash,
		OTP:            domain.OTP{Hash: otpHash, GeneratedAt: now},
		FollowedTopics: []string{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := a.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.User{}, ErrUsernameTaken
		}
		return domain.User{}, apperr.Internal("Error registering user", err)
	}
	if err := a.mailer.SendOTP(ctx, user.Email, user.FirstName, code); err != nil {
		return domain.User{}, apperr.Internal("Error sending OTP", err)
	}
	return user, nil
}

// Verify consumes the registration OTP and opens a session.
func (a *App) Verify(ctx context.Context, in VerifyInput) (domain.User, string, error) {
	in.Username = normalizeUsername(in.Username)
	in.OTP = strings.TrimSpace(in.OTP)
	if err := validate.Struct(in); err != nil {
		return domain.User{}, "", err
	}
	user, ok, err := a.store.GetUserByUsername(ctx, in.Username)
	if err != nil {
		return domain.User{}, "", apperr.Internal("Error verifying user", err)
	}
	if !ok {
		return domain.User{}, "", ErrUserNotFound
	}
	if user.Verified {
		return domain.User{}, "", ErrAlreadyVerified
	}
	if err := auth.VerifyOTP(in.OTP, user.OTP.Hash, user.OTP.GeneratedAt, a.clock()); err != nil {
		return domain.User{}, "", apperr.InvalidArg(err.Error())
	}
	verified := true
	user, err = a.store.UpdateUser(ctx, user.ID, store.UserUpdate{Verified: &verified, OTP: &domain.OTP{}, UpdatedAt: a.clock()})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.User{}, "", ErrUsernameTaken
		}
		return domain.User{}, "", apperr.Internal("Error verifying user", err)
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", apperr.Internal("Error verifying user", err)
	}
	return user, token, nil
}

// Login checks the password of a verified user and opens a session.
func (a *App) Login(ctx context.Context, in LoginInput) (domain.User, string, error) {
	in.Username = normalizeUsername(in.Username)
	if err := validate.Struct(in); err != nil {
		return domain.User{}, "", err
	}
	user, ok, err := a.store.GetUserByUsername(ctx, in.Username)
	if err != nil {
		return domain.User{}, "", apperr.Internal("Error logging in", err)
	}
	if !ok || !user.Verified {
		return domain.User{}, "", ErrUserNotFound
	}
	if !auth.CheckPassword(in.Password, user.PasswordHash) {
		return domain.User{}, "", ErrWrongPassword
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", apperr.Internal("Error logging in", err)
	}
	return user, token, nil
}

// Logout revokes the session token.
func (a *App) Logout(token string) error {
	if strings.TrimSpace(token) == "" {
		return nil
	}
	if err := a.sessions.DeleteSession(token); err != nil {
		return apperr.Internal("Error logging out", err)
	}
	return nil
}

// Authenticate resolves a session token to its verified user.
func (a *App) Authenticate(ctx context.Context, token string) (domain.User, error) {
	if strings.TrimSpace(token) == "" {
		return domain.User{}, ErrLoginRequired
	}
	userID, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil || !ok {
		return domain.User{}, ErrLoginRequired
	}
	user, ok, err := a.store.GetUserByID(ctx, userID)
	if err != nil {
		return domain.User{}, apperr.Internal("Error loading user", err)
	}
	if !ok || !user.Verified {
		return domain.User{}, ErrLoginRequired
	}
	return user, nil
}

// UpdateProfile applies the supplied profile fields.
func (a *App) UpdateProfile(ctx context.Context, user domain.User, in UpdateProfileInput) (domain.User, error) {
	trim := func(p *string) {
		if p != nil {
			*p = strings.TrimSpace(*p)
		}
	}
	trim(in.FirstName)
	trim(in.LastName)
	trim(in.Bio)
	if err := validate.Struct(in); err != nil {
		return domain.User{}, err
	}
	updated, err := a.store.UpdateUser(ctx, user.ID, store.UserUpdate{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Bio:       in.Bio,
		UpdatedAt: a.clock(),
	})
	if err != nil {
		return domain.User{}, notFoundOr(err, ErrUserNotFound, "Error updating profile")
	}
	return updated, nil
}

// GetProfile returns a verified user's public profile.
func (a *App) GetProfile(ctx context.Context, username string) (domain.User, error) {
	username = normalizeUsername(username)
	if !validate.Username(username) {
		return domain.User{}, ErrUserNotFound
	}
	user, ok, err := a.store.GetUserByUsername(ctx, username)
	if err != nil {
		return domain.User{}, apperr.Internal("Error loading user", err)
	}
	if !ok || !user.Verified {
		return domain.User{}, ErrUserNotFound
	}
	return user, nil
}

// SendOTP issues a fresh OTP to a verified account, for password resets.
func (a *App) SendOTP(ctx context.Context, in SendOTPInput) error {
	in.Email = normalizeEmail(in.Email)
	if err := validate.Struct(in); err != nil {
		return err
	}
	user, ok, err := a.store.GetVerifiedUserByEmail(ctx, in.Email)
	if err != nil {
		return apperr.Internal("Error sending OTP", err)
	}
	if !ok {
		return ErrUserNotFound
	}
	code, otpHash, err := auth.NewOTP()
	if err != nil {
		return apperr.Internal("Error sending OTP", err)
	}
	otp := domain.OTP{Hash: otpHash, GeneratedAt: a.clock()}
	if _, err := a.store.UpdateUser(ctx, user.ID, store.UserUpdate{OTP: &otp, UpdatedAt: a.clock()}); err != nil {
		return apperr.Internal("Error sending OTP", err)
	}
	if err := a.mailer.SendOTP(ctx, user.Email, user.FirstName, code); err != nil {
		return apperr.Internal("Error sending OTP", err)
	}
	return nil
}

// ForgotPassword resets the password of the account owning the email
// once the OTP checks out.
func (a *App) ForgotPassword(ctx context.Context, in ForgotPasswordInput) error {
	in.Email = normalizeEmail(in.Email)
	in.OTP = strings.TrimSpace(in.OTP)
	if err := validate.Struct(in); err != nil {
		return err
	}
	user, ok, err := a.store.GetVerifiedUserByEmail(ctx, in.Email)
	if err != nil {
		return apperr.Internal("Error resetting password", err)
	}
	if !ok {
		return ErrUserNotFound
	}
	if err := auth.VerifyOTP(in.OTP, user.OTP.Hash, user.OTP.GeneratedAt, a.clock()); err != nil {
		return apperr.InvalidArg(err.Error())
	}
	if err := a.replacePassword(ctx, user.ID, in.NewPassword, true); err != nil {
		return err
	}
	a.revokeSessions(ctx, user.ID)
	return nil
}

// ChangePassword replaces the caller's password, revokes every session
// issued so far and returns a fresh session token.
func (a *App) ChangePassword(ctx context.Context, user domain.User, in ChangePasswordInput) (string, error) {
	if err := validate.Struct(in); err != nil {
		return "", err
	}
	if !auth.CheckPassword(in.OldPassword, user.PasswordHash) {
		return "", ErrWrongPassword
	}
	if err := a.replacePassword(ctx, user.ID, in.NewPassword, false); err != nil {
		return "", err
	}
	a.revokeSessions(ctx, user.ID)
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return "", apperr.Internal("Error changing password", err)
	}
	return token, nil
}

func (a *App) revokeSessions(ctx context.Context, userID string) {
	revoker, ok := a.sessions.(store.UserSessionRevoker)
	if !ok {
		return
	}
	if err := revoker.RevokeUserSessions(userID, a.clock()); err != nil {
		util.LoggerFromContext(ctx).Warn("session_revoke_failed", "user_id", userID, "err", err)
	}
}
