// Package services implements the traveler auth flow controller: the
// two-phase OTP login and registration handshakes, password flows and
// profile mutations, each as a single request/response cycle with a
// terminal outcome.
package services

import (
	"context"
	"strings"

	"github.com/tourverse/traveler/domain"
	"github.com/tourverse/traveler/internal/httpclient"
	"github.com/tourverse/traveler/internal/session"
)

// Traveler API paths.
const (
	pathLoginInit      = "/traveler/login/init"
	pathLoginVerify    = "/traveler/login/verify"
	pathRegisterInit   = "/traveler/register/init"
	pathRegisterVerify = "/traveler/register/verify"
	pathDashboard      = "/traveler/dashboard"
	pathProfileUpdate  = "/traveler/profile/update"
	pathChangePassword = "/traveler/profile/change-password"
	pathProfile        = "/traveler/profile"
	pathForgotPassword = "/traveler/forgot-password"
	pathResetPassword  = "/traveler/reset-password-otp"
	pathLogout         = "/traveler/logout"
)

const (
	msgBusy             = "Another request is already in progress. Please wait."
	msgFixFields        = "Please correct the highlighted fields."
	msgNotAuthenticated = "You must be logged in to do that."
	msgNoOTPPending     = "No OTP verification is pending. Start over."
	msgOTPSent          = "OTP sent to your email. Please check your inbox."
	msgLoginDone        = "Login successful."
	msgRegisterDone     = "Registration successful! Please log in."
	msgLoggedOut        = "Logged out successfully."
	msgBadPayload       = "Unexpected response from server."
	msgRecordNotSaved   = "Warning: session could not be saved and will not survive a restart."
)

// AuthServiceImpl implements domain.AuthService.
type AuthServiceImpl struct {
	api       *httpclient.Client
	sessions  *session.Store
	inspector domain.TokenInspector
}

// NewAuthService creates the auth flow controller.
func NewAuthService(api *httpclient.Client, sessions *session.Store, inspector domain.TokenInspector) domain.AuthService {
	return &AuthServiceImpl{
		api:       api,
		sessions:  sessions,
		inspector: inspector,
	}
}

// Rehydrate restores the session from the persisted record at startup. The
// session is guaranteed to end either fully authenticated or empty.
func (s *AuthServiceImpl) Rehydrate(ctx context.Context) *domain.Outcome {
	_, tok, err := s.sessions.LoadRecord()
	if err == domain.ErrKeyNotFound {
		return domain.OK("No saved session.")
	}
	if err != nil {
		s.sessions.ClearRecord()
		s.sessions.ApplyLogout()
		return domain.Fail("Saved session was unreadable and has been discarded.")
	}

	if expired, _ := s.inspector.Expired(tok); expired {
		s.sessions.ClearRecord()
		s.sessions.ApplyLogout()
		return domain.Fail("Saved session has expired. Please login again.")
	}

	if !s.sessions.TryBeginOperation() {
		return domain.Fail(msgBusy)
	}
	s.sessions.AdoptToken(tok)
	return s.refreshProfile(ctx, true)
}

// LoginInit submits credentials and moves the session into the awaiting-OTP
// stage on success.
func (s *AuthServiceImpl) LoginInit(ctx context.Context, creds domain.Credentials) *domain.Outcome {
	fields := make(map[string]string)
	addFieldError(fields, "email", ValidateEmail(creds.Email))
	if creds.Password == "" {
		fields["password"] = "Password is required"
	}
	if len(fields) > 0 {
		return fieldOutcome(fields)
	}

	if !s.sessions.TryBeginOperation() {
		return domain.Fail(msgBusy)
	}

	resp, err := s.api.Post(ctx, pathLoginInit, map[string]string{
		"email":    creds.Email,
		"password": creds.Password,
	})
	if err != nil {
		return s.fail(err)
	}

	s.sessions.ApplyOTPChallenge(creds.Email)
	outcome := domain.OK(messageOr(resp, msgOTPSent))
	outcome.OTPRequired = true
	return outcome
}

// LoginVerify exchanges the OTP for a bearer token, fetches the profile and
// establishes the authenticated session. A wrong code leaves the session in
// the awaiting-OTP stage; the code must be re-entered.
func (s *AuthServiceImpl) LoginVerify(ctx context.Context, email, code string) *domain.Outcome {
	snap := s.sessions.Snapshot()
	if email == "" {
		email = snap.PendingEmail
	}
	if !snap.OTPStage {
		return domain.Fail(msgNoOTPPending)
	}

	fields := make(map[string]string)
	addFieldError(fields, "email", ValidateEmail(email))
	addFieldError(fields, "otp", ValidateOTP(code))
	if len(fields) > 0 {
		return fieldOutcome(fields)
	}

	if !s.sessions.TryBeginOperation() {
		return domain.Fail(msgBusy)
	}

	resp, err := s.api.Post(ctx, pathLoginVerify, map[string]string{
		"email": email,
		"otp":   code,
	})
	if err != nil {
		return s.fail(err)
	}

	tok := tokenFromResponse(resp)
	if tok == "" {
		return s.fail(domain.NewAPIError(domain.KindGeneric, resp.Status, msgBadPayload))
	}

	// The profile fetch runs under the fresh token before the session is
	// considered established.
	s.sessions.AdoptToken(tok)
	profile, err := s.api.Get(ctx, pathDashboard)
	if err != nil {
		s.sessions.AdoptToken("")
		return s.fail(err)
	}

	var user domain.User
	if err := profile.Decode(&user); err != nil {
		s.sessions.AdoptToken("")
		return s.fail(domain.NewAPIError(domain.KindGeneric, profile.Status, msgBadPayload))
	}

	s.sessions.ApplyLoginSuccess(&user, tok)

	outcome := domain.OK(msgLoginDone)
	outcome.User = &user
	if err := s.sessions.SaveRecord(&user, tok); err != nil {
		outcome.Message = msgLoginDone + " " + msgRecordNotSaved
	}
	return outcome
}

// RegisterInit submits the registration form and moves the session into the
// awaiting-OTP stage on success.
func (s *AuthServiceImpl) RegisterInit(ctx context.Context, reg domain.Registration) *domain.Outcome {
	fields := make(map[string]string)
	addFieldError(fields, "name", ValidateName(reg.Name))
	addFieldError(fields, "email", ValidateEmail(reg.Email))
	addFieldError(fields, "phone", ValidatePhone(reg.Phone))
	addFieldError(fields, "password", ValidatePassword(reg.Password))
	if len(fields) > 0 {
		return fieldOutcome(fields)
	}

	if !s.sessions.TryBeginOperation() {
		return domain.Fail(msgBusy)
	}

	resp, err := s.api.PostForm(ctx, pathRegisterInit, map[string]string{
		"name":     reg.Name,
		"email":    reg.Email,
		"phone":    reg.Phone,
		"password": reg.Password,
	}, reg.ProfilePicture)
	if err != nil {
		return s.fail(err)
	}

	s.sessions.ApplyOTPChallenge(reg.Email)
	outcome := domain.OK(messageOr(resp, msgOTPSent))
	outcome.OTPRequired = true
	return outcome
}

// RegisterVerify completes registration. The session returns to the idle,
// unauthenticated state: a fresh explicit login is required afterwards.
func (s *AuthServiceImpl) RegisterVerify(ctx context.Context, email, code string) *domain.Outcome {
	snap := s.sessions.Snapshot()
	if email == "" {
		email = snap.PendingEmail
	}
	if !snap.OTPStage {
		return domain.Fail(msgNoOTPPending)
	}

	fields := make(map[string]string)
	addFieldError(fields, "email", ValidateEmail(email))
	addFieldError(fields, "otp", ValidateOTP(code))
	if len(fields) > 0 {
		return fieldOutcome(fields)
	}

	if !s.sessions.TryBeginOperation() {
		return domain.Fail(msgBusy)
	}

	resp, err := s.api.PostForm(ctx, pathRegisterVerify, map[string]string{
		"email": email,
		"otp":   code,
	}, nil)
	if err != nil {
		return s.fail(err)
	}

	s.sessions.ApplyRegistrationSuccess()
	return domain.OK(messageOr(resp, msgRegisterDone))
}

// Logout notifies the server on a best-effort basis, then unconditionally
// clears the persisted record and resets the session.
func (s *AuthServiceImpl) Logout(ctx context.Context) *domain.Outcome {
	if s.sessions.Token() != "" {
		// Failure here is deliberately swallowed; local state wins.
		s.api.Post(ctx, pathLogout, nil)
	}
	s.sessions.ClearRecord()
	s.sessions.ApplyLogout()
	return domain.OK(msgLoggedOut)
}

// ForgotPassword requests a password-reset OTP. Independent of the login
// OTP stage.
func (s *AuthServiceImpl) ForgotPassword(ctx context.Context, email string) *domain.Outcome {
	if msg := ValidateEmail(email); msg != "" {
		return fieldOutcome(map[string]string{"email": msg})
	}

	if !s.sessions.TryBeginOperation() {
		return domain.Fail(msgBusy)
	}

	resp, err := s.api.Post(ctx, pathForgotPassword, map[string]string{"email": email})
	if err != nil {
		return s.fail(err)
	}

	s.sessions.SetLoading(false)
	return domain.OK(messageOr(resp, "Password reset OTP sent."))
}

// ResetPassword completes the forgot-password flow with the emailed OTP.
func (s *AuthServiceImpl) ResetPassword(ctx context.Context, email, newPassword, code string) *domain.Outcome {
	fields := make(map[string]string)
	addFieldError(fields, "email", ValidateEmail(email))
	addFieldError(fields, "newPassword", ValidatePassword(newPassword))
	addFieldError(fields, "otp", ValidateOTP(code))
	if len(fields) > 0 {
		return fieldOutcome(fields)
	}

	if !s.sessions.TryBeginOperation() {
		return domain.Fail(msgBusy)
	}

	resp, err := s.api.Post(ctx, pathResetPassword, map[string]string{
		"email":       email,
		"newPassword": newPassword,
		"otp":         code,
	})
	if err != nil {
		return s.fail(err)
	}

	s.sessions.SetLoading(false)
	return domain.OK(messageOr(resp, "Password reset successful."))
}

// FetchProfile refreshes the profile snapshot. A network-class failure
// falls back to the persisted record rather than destroying an active
// session; connectivity loss should not force a logout.
func (s *AuthServiceImpl) FetchProfile(ctx context.Context) *domain.Outcome {
	if s.sessions.Token() == "" {
		return domain.Fail(msgNotAuthenticated)
	}
	if !s.sessions.TryBeginOperation() {
		return domain.Fail(msgBusy)
	}
	return s.refreshProfile(ctx, false)
}

// UpdateProfile submits the mutable profile fields and installs the
// server's updated snapshot.
func (s *AuthServiceImpl) UpdateProfile(ctx context.Context, update domain.ProfileUpdate) *domain.Outcome {
	if s.sessions.Token() == "" {
		return domain.Fail(msgNotAuthenticated)
	}

	fields := make(map[string]string)
	addFieldError(fields, "name", ValidateName(update.Name))
	addFieldError(fields, "phone", ValidatePhone(update.Phone))
	if len(fields) > 0 {
		return fieldOutcome(fields)
	}

	if !s.sessions.TryBeginOperation() {
		return domain.Fail(msgBusy)
	}

	resp, err := s.api.PutForm(ctx, pathProfileUpdate, map[string]string{
		"name":  update.Name,
		"phone": update.Phone,
	}, update.ProfilePicture)
	if err != nil {
		return s.fail(err)
	}

	var user domain.User
	if err := resp.Decode(&user); err != nil {
		return s.fail(domain.NewAPIError(domain.KindGeneric, resp.Status, msgBadPayload))
	}

	s.sessions.SetUser(&user)

	outcome := domain.OK("Profile updated successfully.")
	outcome.User = &user
	if err := s.sessions.SaveRecord(&user, s.sessions.Token()); err != nil {
		outcome.Message = outcome.Message + " " + msgRecordNotSaved
	}
	return outcome
}

// ChangePassword swaps the account password. Session state is untouched on
// failure.
func (s *AuthServiceImpl) ChangePassword(ctx context.Context, oldPassword, newPassword string) *domain.Outcome {
	if s.sessions.Token() == "" {
		return domain.Fail(msgNotAuthenticated)
	}

	fields := make(map[string]string)
	if oldPassword == "" {
		fields["oldPassword"] = "Current password is required"
	}
	addFieldError(fields, "newPassword", ValidatePassword(newPassword))
	if len(fields) > 0 {
		return fieldOutcome(fields)
	}

	if !s.sessions.TryBeginOperation() {
		return domain.Fail(msgBusy)
	}

	resp, err := s.api.Post(ctx, pathChangePassword, map[string]string{
		"oldPassword": oldPassword,
		"newPassword": newPassword,
	})
	if err != nil {
		return s.fail(err)
	}

	s.sessions.SetLoading(false)
	return domain.OK(messageOr(resp, "Password changed successfully."))
}

// DeleteProfile removes the account; success forces a local logout.
func (s *AuthServiceImpl) DeleteProfile(ctx context.Context) *domain.Outcome {
	if s.sessions.Token() == "" {
		return domain.Fail(msgNotAuthenticated)
	}
	if !s.sessions.TryBeginOperation() {
		return domain.Fail(msgBusy)
	}

	resp, err := s.api.Delete(ctx, pathProfile)
	if err != nil {
		return s.fail(err)
	}

	s.sessions.ClearRecord()
	s.sessions.ApplyLogout()
	return domain.OK(messageOr(resp, "Account deleted successfully."))
}

// refreshProfile performs the dashboard fetch shared by FetchProfile and
// Rehydrate. Admission control is the caller's responsibility. During
// rehydration every failure drops the adopted token: the session ends
// either fully authenticated or empty, never token-only.
func (s *AuthServiceImpl) refreshProfile(ctx context.Context, rehydrating bool) *domain.Outcome {
	resp, err := s.api.Get(ctx, pathDashboard)
	if err != nil {
		if apiErr, ok := domain.AsAPIError(err); ok && apiErr.Network() {
			if cached, tok, lerr := s.sessions.LoadRecord(); lerr == nil {
				if rehydrating {
					s.sessions.ApplyRehydrated(cached, tok)
				} else {
					s.sessions.SetUser(cached)
				}
				outcome := domain.OK("Showing saved profile; server unreachable.")
				outcome.User = cached
				return outcome
			}
			s.sessions.ClearRecord()
			s.sessions.ApplyLogout()
			s.sessions.ApplyFailure(apiErr.Message)
			return domain.Fail(apiErr.Message)
		}
		if rehydrating {
			s.sessions.AdoptToken("")
		}
		return s.fail(err)
	}

	var user domain.User
	if err := resp.Decode(&user); err != nil {
		if rehydrating {
			s.sessions.AdoptToken("")
		}
		return s.fail(domain.NewAPIError(domain.KindGeneric, resp.Status, msgBadPayload))
	}

	tok := s.sessions.Token()
	if rehydrating {
		s.sessions.ApplyRehydrated(&user, tok)
	} else {
		s.sessions.SetUser(&user)
	}

	outcome := domain.OK("")
	outcome.User = &user
	if err := s.sessions.SaveRecord(&user, tok); err != nil {
		outcome.Message = msgRecordNotSaved
	}
	return outcome
}

// fail converts an error into the uniform failure outcome and records it
// on the session. An Unauthorized error is the one kind that resets the
// session outright; the HTTP client has already purged durable storage.
func (s *AuthServiceImpl) fail(err error) *domain.Outcome {
	apiErr, ok := domain.AsAPIError(err)
	if !ok {
		s.sessions.ApplyFailure(err.Error())
		return domain.Fail(err.Error())
	}
	if apiErr.Kind == domain.KindUnauthorized {
		s.sessions.ApplyLogout()
	}
	s.sessions.ApplyFailure(apiErr.Message)
	return domain.Fail(apiErr.Message)
}

func fieldOutcome(fields map[string]string) *domain.Outcome {
	return &domain.Outcome{Success: false, Message: msgFixFields, Fields: fields}
}

func messageOr(resp *httpclient.Response, fallback string) string {
	if msg := resp.Message(); msg != "" {
		return msg
	}
	return fallback
}

// tokenFromResponse reads the bearer token the verify endpoint returns as
// either a bare string or a JSON-encoded string.
func tokenFromResponse(resp *httpclient.Response) string {
	var tok string
	if err := resp.Decode(&tok); err == nil {
		return tok
	}
	raw := strings.TrimSpace(string(resp.Body))
	if strings.HasPrefix(raw, "{") || strings.HasPrefix(raw, "[") {
		return ""
	}
	return raw
}

var _ domain.AuthService = (*AuthServiceImpl)(nil)
