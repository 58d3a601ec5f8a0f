package server

import (
	"net/http"

	"polygram/pkg/domain"
	"polygram/services/api/internal/app"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.registerLimiter, "Too many registration attempts, try again later") {
		s.audit(r, "users.register", "rate_limited")
		return
	}
	var req app.RegisterInput
	if err := decodeJSON(r, maxBodyBytes, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	user, err := s.app.Register(r.Context(), req)
	if err != nil {
		s.audit(r, "users.register", "fail", "reason", auditReason(err))
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "users.register", "success", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, map[string]any{
		"msg":  "An OTP has been sent to your email address",
		"user": user,
	})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.verifyLimiter, "Too many verification attempts, try again later") {
		s.audit(r, "users.verify", "rate_limited")
		return
	}
	var req app.VerifyInput
	if err := decodeJSON(r, maxBodyBytes, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	user, token, err := s.app.Verify(r.Context(), req)
	if err != nil {
		s.audit(r, "users.verify", "fail", "reason", auditReason(err))
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "users.verify", "success", "user_id", user.ID)
	s.setSessionCookie(w, token)
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.loginLimiter, "Too many login attempts, try again later") {
		s.audit(r, "users.login", "rate_limited")
		return
	}
	var req app.LoginInput
	if err := decodeJSON(r, maxBodyBytes, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	user, token, err := s.app.Login(r.Context(), req)
	if err != nil {
		s.audit(r, "users.login", "fail", "reason", auditReason(err))
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "users.login", "success", "user_id", user.ID)
	s.setSessionCookie(w, token)
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Logout(sessionToken(r)); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	s.clearSessionCookie(w)
	writeMessage(w, http.StatusOK, "Logged out successfully")
}

func (s *Server) handleIsLoggedIn(w http.ResponseWriter, r *http.Request) {
	token := sessionToken(r)
	if token == "" {
		writeJSON(w, http.StatusOK, map[string]bool{"isUserLoggedIn": false})
		return
	}
	if _, err := s.app.Authenticate(r.Context(), token); err != nil {
		s.clearSessionCookie(w)
		writeJSON(w, http.StatusOK, map[string]bool{"isUserLoggedIn": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"isUserLoggedIn": true})
}

func (s *Server) handleSendOTP(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.otpLimiter, "Too many OTP requests, try again later") {
		s.audit(r, "users.otp", "rate_limited")
		return
	}
	var req app.SendOTPInput
	if err := decodeJSON(r, maxBodyBytes, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if err := s.app.SendOTP(r.Context(), req); err != nil {
		s.audit(r, "users.otp", "fail", "reason", auditReason(err))
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "users.otp", "success")
	writeMessage(w, http.StatusOK, "An OTP has been sent to your email address")
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.passwordLimiter, "Too many password attempts, try again later") {
		s.audit(r, "users.password.reset", "rate_limited")
		return
	}
	var req app.ForgotPasswordInput
	if err := decodeJSON(r, maxBodyBytes, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if err := s.app.ForgotPassword(r.Context(), req); err != nil {
		s.audit(r, "users.password.reset", "fail", "reason", auditReason(err))
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "users.password.reset", "success")
	writeMessage(w, http.StatusOK, "Password changed successfully")
}

func (s *Server) handleMe(w http.ResponseWriter, _ *http.Request, user domain.User) {
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req app.UpdateProfileInput
	if err := decodeJSON(r, maxBodyBytes, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	updated, err := s.app.UpdateProfile(r.Context(), user, req)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request, user domain.User) {
	if !s.allowRate(w, r, s.passwordLimiter, "Too many password attempts, try again later") {
		s.audit(r, "users.password.change", "rate_limited", "user_id", user.ID)
		return
	}
	var req app.ChangePasswordInput
	if err := decodeJSON(r, maxBodyBytes, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	token, err := s.app.ChangePassword(r.Context(), user, req)
	if err != nil {
		s.audit(r, "users.password.change", "fail", "user_id", user.ID, "reason", auditReason(err))
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "users.password.change", "success", "user_id", user.ID)
	s.setSessionCookie(w, token)
	writeMessage(w, http.StatusOK, "Password changed successfully")
}

func (s *Server) handleDeleteMe(w http.ResponseWriter, r *http.Request, user domain.User) {
	if !s.allowRate(w, r, s.passwordLimiter, "Too many password attempts, try again later") {
		s.audit(r, "users.delete", "rate_limited", "user_id", user.ID)
		return
	}
	var req app.DeleteAccountInput
	if err := decodeJSON(r, maxBodyBytes, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if err := s.app.DeleteAccount(r.Context(), user, req); err != nil {
		s.audit(r, "users.delete", "fail", "user_id", user.ID, "reason", auditReason(err))
		s.writeAppError(w, r, err)
		return
	}
	s.audit(r, "users.delete", "success", "user_id", user.ID)
	s.clearSessionCookie(w)
	writeMessage(w, http.StatusOK, "Account deleted successfully")
}

func (s *Server) handleProfilePicture(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req app.ProfilePictureInput
	if err := decodeJSON(r, maxPictureBytes, &req); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	updated, err := s.app.SetProfilePicture(r.Context(), user, req)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	user, err := s.app.GetProfile(r.Context(), r.PathValue("username"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user.Public())
}
