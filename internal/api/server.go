// Package api exposes the gateway's HTTP surface: the signin and
// enrollment ceremonies plus the admin directory.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/uebergang/gateway/internal/auth"
	"github.com/uebergang/gateway/internal/models"
	"github.com/uebergang/gateway/internal/session"
	"github.com/uebergang/gateway/internal/signin"
	"github.com/uebergang/gateway/internal/storage"
)

type Server struct {
	directory storage.Directory
	sessions  *session.Issuer
	engine    *auth.Engine
	signin    *signin.Manager
}

func NewServer(directory storage.Directory, sessions *session.Issuer, engine *auth.Engine, signinManager *signin.Manager) *Server {
	return &Server{
		directory: directory,
		sessions:  sessions,
		engine:    engine,
		signin:    signinManager,
	}
}

func (s *Server) Routes(mux *http.ServeMux) {
	// Signing in
	mux.HandleFunc("GET /api/signin/start", s.SigninStartHandler)
	mux.HandleFunc("POST /api/signin/email", s.SigninEmailHandler)
	mux.HandleFunc("POST /api/signin/webauthn", s.SigninWebauthnHandler)

	// Signing in, pin flow
	mux.HandleFunc("POST /api/signin/pin/request", s.SigninPinRequestHandler)
	mux.HandleFunc("POST /api/signin/pin/poll", s.SigninPinPollHandler)
	mux.HandleFunc("POST /api/signin/pin/query", s.SigninPinQueryHandler)
	mux.HandleFunc("POST /api/signin/pin/confirm", s.SigninPinConfirmHandler)

	// Enrolling
	mux.HandleFunc("POST /api/enroll/start", s.EnrollStartHandler)
	mux.HandleFunc("POST /api/enroll/finish", s.EnrollFinishHandler)

	// Users
	mux.HandleFunc("POST /api/user", s.UserCreateHandler)
	mux.HandleFunc("GET /api/user", s.UserListHandler)
	mux.HandleFunc("GET /api/user/{id}", s.UserGetHandler)
	mux.HandleFunc("POST /api/user/{id}", s.UserUpdateHandler)
	mux.HandleFunc("DELETE /api/user/{id}", s.UserDeleteHandler)
	mux.HandleFunc("POST /api/user/{id}/recover", s.UserRecoverHandler)

	// Credentials
	mux.HandleFunc("POST /api/credential/{id}", s.CredentialUpdateHandler)
	mux.HandleFunc("DELETE /api/credential/{id}", s.CredentialDeleteHandler)

	// Sessions
	mux.HandleFunc("DELETE /api/session/{id}", s.SessionDeleteHandler)

	// Backends
	mux.HandleFunc("GET /api/backend", s.BackendListHandler)
	mux.HandleFunc("GET /api/backend/{fqdn}", s.BackendGetHandler)
	mux.HandleFunc("POST /api/backend/{fqdn}", s.BackendUpdateHandler)
	mux.HandleFunc("DELETE /api/backend/{fqdn}", s.BackendDeleteHandler)

	// MQTT profiles
	mux.HandleFunc("GET /api/mqtt-profile", s.MqttProfileListHandler)
	mux.HandleFunc("GET /api/mqtt-profile/{id}", s.MqttProfileGetHandler)
	mux.HandleFunc("POST /api/mqtt-profile/{id}", s.MqttProfileUpdateHandler)
	mux.HandleFunc("DELETE /api/mqtt-profile/{id}", s.MqttProfileDeleteHandler)

	// MQTT clients
	mux.HandleFunc("GET /api/mqtt-client", s.MqttClientListHandler)
	mux.HandleFunc("GET /api/mqtt-client/{id}", s.MqttClientGetHandler)
	mux.HandleFunc("POST /api/mqtt-client/{id}", s.MqttClientUpdateHandler)
	mux.HandleFunc("DELETE /api/mqtt-client/{id}", s.MqttClientDeleteHandler)

	mux.HandleFunc("GET /health", s.HealthHandler)
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "healthy"})
}

func writeJSON(w http.ResponseWriter, response any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

func readJSON(w http.ResponseWriter, r *http.Request, req any) error {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return err
	}
	return nil
}

// requireSession authenticates the request from its session cookie and
// resolves the owning user. On failure it writes 401 and returns false.
func (s *Server) requireSession(w http.ResponseWriter, r *http.Request) (*models.User, *models.Session, bool) {
	cookie, err := r.Cookie(session.CookieName)
	if err != nil {
		http.Error(w, "Not signed in", http.StatusUnauthorized)
		return nil, nil, false
	}

	sess, err := s.sessions.Authenticate(r.Context(), cookie.Value)
	if err != nil {
		http.Error(w, "Not signed in", http.StatusUnauthorized)
		return nil, nil, false
	}

	user, err := s.directory.GetUser(r.Context(), sess.UserID)
	if err != nil {
		http.Error(w, "Not signed in", http.StatusUnauthorized)
		return nil, nil, false
	}
	return user, sess, true
}

// signinSession reuses the caller's existing session when it already
// belongs to the signing-in user, otherwise mints a fresh one.
func (s *Server) signinSession(r *http.Request, user *models.User) (*models.Session, error) {
	if cookie, err := r.Cookie(session.CookieName); err == nil {
		if sess, err := s.sessions.Authenticate(r.Context(), cookie.Value); err == nil && sess.UserID == user.ID {
			return sess, nil
		}
	}
	return s.sessions.Mint(r.Context(), user.ID, r.UserAgent(), r.RemoteAddr)
}

// redirectFor decorates a requested redirect target with the session value
// so the destination host can pick the cookie up cross-origin.
func redirectFor(redirect string, cookieValue string) string {
	if redirect == "" {
		return ""
	}
	return session.DecorateRedirect(redirect, cookieValue)
}
