package api

import (
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"

	"github.com/uebergang/gateway/internal/auth"
	"github.com/uebergang/gateway/internal/models"
	"github.com/uebergang/gateway/internal/session"
	"github.com/uebergang/gateway/internal/signin"
)

// SigninStartHandler issues a challenge for a usernameless signin. The
// browser asks the platform authenticator for any discoverable credential
// scoped to this RP; the user is only learned at verification time.
// Unauthenticated: part of the signin flow.
func (s *Server) SigninStartHandler(w http.ResponseWriter, r *http.Request) {
	token, challenge, err := s.engine.StartPasswordlessAssertion()
	if err != nil {
		slog.Error("Failed to start passwordless assertion", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	writeJSON(w, StartSigninResponse{
		Token: token,
		AssertionRequest: AssertionRequest{
			Challenge:        base64.RawURLEncoding.EncodeToString(challenge),
			Timeout:          int(auth.PasswordlessTimeout.Milliseconds()),
			RPID:             s.engine.RPID(),
			AllowCredentials: []CredentialDescriptor{},
			UserVerification: "required",
		},
	})
}

// SigninEmailHandler starts an assertion for the user behind an email
// address. A wrong email and an unknown email answer identically.
// Unauthenticated: part of the signin flow.
func (s *Server) SigninEmailHandler(w http.ResponseWriter, r *http.Request) {
	respondErr := func(e SigninEmailError) {
		writeJSON(w, SigninEmailResponse{Error: &e})
	}

	var req SigninEmailRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}

	if req.Email == "" {
		respondErr(SigninEmailError{WrongEmail: true})
		return
	}

	// Don't reveal whether the email exists.
	user, err := s.directory.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		slog.Info("User not found", "email", req.Email)
		respondErr(SigninEmailError{WrongEmail: true})
		return
	}

	if len(user.Credentials) == 0 {
		respondErr(SigninEmailError{NoCredentials: true})
		return
	}

	token, assertion, err := s.engine.StartAssertion(r.Context(), user, func(c *models.Ceremony) {
		c.Purpose = models.CeremonyAssert
	})
	if err != nil {
		slog.Error("Failed to start assertion", "user", user.ID, "error", err)
		respondErr(SigninEmailError{InternalError: true})
		return
	}

	writeJSON(w, SigninEmailResponse{
		Success: &SigninEmailSuccess{
			Token:            token,
			AssertionRequest: toAssertionRequest(assertion),
		},
	})
}

// SigninWebauthnHandler completes a signin assertion, from either the email
// flow or the usernameless flow, and answers with the session cookie.
// Unauthenticated: part of the signin flow.
func (s *Server) SigninWebauthnHandler(w http.ResponseWriter, r *http.Request) {
	respondErr := func(e SigninWebauthnError) {
		writeJSON(w, SigninWebauthnResponse{Error: &e})
	}

	var req SigninWebauthnRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}

	user, ceremony, waCred, err := s.engine.VerifyAssertion(r.Context(), req.Token, &req.Credential)
	if err != nil {
		slog.Warn("Assertion failed", "error", err)
		switch {
		case errors.Is(err, auth.ErrChallengeExpired), errors.Is(err, auth.ErrChallengeMismatch):
			respondErr(SigninWebauthnError{InternalError: true})
		default:
			respondErr(SigninWebauthnError{InvalidCredential: true})
		}
		return
	}
	if ceremony.Purpose != models.CeremonyAssert {
		slog.Warn("Ceremony not intended for sign-in", "purpose", ceremony.Purpose)
		respondErr(SigninWebauthnError{InternalError: true})
		return
	}

	sess, err := s.signinSession(r, user)
	if err != nil {
		slog.Error("Failed to mint session", "user", user.ID, "error", err)
		respondErr(SigninWebauthnError{InvalidCredential: true})
		return
	}

	if err := s.engine.RecordAssertion(r.Context(), user.ID, waCred, sess.ID); err != nil {
		slog.Warn("Failed to record assertion", "user", user.ID, "error", err)
	}

	value := session.Encode(sess)
	writeJSON(w, SigninWebauthnResponse{
		Success: &SigninWebauthnSuccess{
			Cookie:   session.Cookie(value).String(),
			Redirect: redirectFor(req.Redirect, value),
		},
	})
}

// SigninPinRequestHandler creates a cross-device signin request and returns
// its poll id. Unauthenticated: part of the signin flow.
func (s *Server) SigninPinRequestHandler(w http.ResponseWriter, r *http.Request) {
	var req RequestSigninPinRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}

	created, err := s.signin.Create(r.Context(), req.Email, req.UserAgent, clientIP(r))
	if err != nil {
		if errors.Is(err, signin.ErrUnknownEmail) {
			slog.Warn("User not found", "email", req.Email)
			writeJSON(w, RequestSigninPinResponse{Error: &RequestSigninPinError{InvalidEmail: true}})
			return
		}
		slog.Error("Failed to create signin request", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	writeJSON(w, RequestSigninPinResponse{ID: created.ID})
}

// SigninPinPollHandler reports the state of a signin request: the PIN and
// QR code while pending, the session cookie once confirmed.
// Unauthenticated: part of the signin flow.
func (s *Server) SigninPinPollHandler(w http.ResponseWriter, r *http.Request) {
	respondErr := func(e PollSigninPinError) {
		writeJSON(w, PollSigninPinResponse{Error: &e})
	}

	var req PollSigninPinRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}

	result, err := s.signin.Poll(r.Context(), req.Id, r.UserAgent(), r.RemoteAddr)
	if err != nil {
		switch {
		case errors.Is(err, signin.ErrInvalidToken):
			respondErr(PollSigninPinError{InvalidToken: true})
		case errors.Is(err, signin.ErrExpiredRequest):
			respondErr(PollSigninPinError{Expired: true})
		default:
			slog.Error("Failed to poll signin request", "error", err)
			respondErr(PollSigninPinError{InternalError: true})
		}
		return
	}

	if result.Pending != nil {
		writeJSON(w, PollSigninPinResponse{Pending: &SigninPollPending{
			Pin:        result.Pending.Pin,
			ConfirmUrl: result.Pending.ConfirmURL,
			QrCodeUrl:  result.Pending.QRCodeURL,
		}})
		return
	}

	writeJSON(w, PollSigninPinResponse{
		Success: &PollSigninPinSuccess{
			Cookie:   session.Cookie(result.Cookie).String(),
			Redirect: redirectFor(req.Redirect, result.Cookie),
		},
	})
}

// SigninPinQueryHandler looks up one of the caller's pending signin
// requests by PIN and hands back the assertion that will confirm it.
func (s *Server) SigninPinQueryHandler(w http.ResponseWriter, r *http.Request) {
	user, sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	var req QuerySigninPinRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}

	result, err := s.signin.QueryByPin(r.Context(), user, sess.ID, req.Pin)
	if err != nil {
		if errors.Is(err, signin.ErrInvalidPin) {
			writeJSON(w, QuerySigninPinResponse{Error: &QuerySigninPinError{InvalidPin: true}})
			return
		}
		slog.Warn("Failed to build confirmation assertion", "user", user.ID, "error", err)
		writeJSON(w, QuerySigninPinResponse{Error: &QuerySigninPinError{InvalidCredentials: true}})
		return
	}

	response := QuerySigninPinResponse{
		ID:                 result.Request.ID,
		Pin:                result.Request.Pin,
		RequestorUserAgent: result.Request.UserAgent,
		RequestorIP:        result.Request.IP,
		Confirmed:          result.Request.Confirmed,
		Token:              result.Token,
	}
	if result.Assertion != nil {
		assertion := toAssertionRequest(result.Assertion)
		response.AssertionRequest = &assertion
	}
	writeJSON(w, response)
}

// SigninPinConfirmHandler validates the confirming assertion and flips the
// request to confirmed, completing the cross-device signin.
func (s *Server) SigninPinConfirmHandler(w http.ResponseWriter, r *http.Request) {
	user, sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	var req ConfirmSigninPinRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}

	if err := s.signin.Confirm(r.Context(), user, sess.ID, req.Token, &req.Credential); err != nil {
		slog.Warn("Failed to confirm signin request", "user", user.ID, "error", err)
		writeJSON(w, ConfirmSigninPinResponse{Error: &ConfirmSigninPinError{InvalidEnrollment: true}})
		return
	}

	writeJSON(w, ConfirmSigninPinResponse{})
}
