package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/uebergang/gateway/internal/models"
)

// requireAdmin authenticates the request and additionally requires the
// admin flag. On failure the response is already written.
func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) (*models.User, *models.Session, bool) {
	user, sess, ok := s.requireSession(w, r)
	if !ok {
		return nil, nil, false
	}
	if !user.IsAdmin {
		http.Error(w, "Not authorized", http.StatusForbidden)
		return nil, nil, false
	}
	return user, sess, true
}

func (s *Server) userInfo(r *http.Request, user *models.User, current *models.Session) UserInfo {
	info := UserInfo{
		ID:           user.ID,
		Email:        user.Email,
		DisplayName:  user.DisplayName,
		AllowedHosts: user.AllowedHosts,
		IsAdmin:      user.IsAdmin,
		Credentials:  make([]CredentialInfo, 0, len(user.Credentials)),
		Sessions:     make([]SessionInfo, 0),
	}
	if info.AllowedHosts == nil {
		info.AllowedHosts = []string{}
	}
	for i := range user.Credentials {
		info.Credentials = append(info.Credentials, toCredentialInfo(&user.Credentials[i]))
	}

	sessions, err := s.sessions.List(r.Context(), user.ID)
	if err != nil {
		slog.Warn("Failed to list sessions", "user", user.ID, "error", err)
	}
	for _, sess := range sessions {
		info.Sessions = append(info.Sessions, toSessionInfo(sess))
	}

	if current != nil {
		cs := toSessionInfo(current)
		info.CurrentSession = &cs
	}
	return info
}

// UserCreateHandler creates a user with no credentials and logs a recovery
// link through which the user picks up their first session. Admin only.
func (s *Server) UserCreateHandler(w http.ResponseWriter, r *http.Request) {
	_, _, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}

	var req CreateUserRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}
	if req.Email == "" {
		http.Error(w, "Email is required", http.StatusBadRequest)
		return
	}

	if _, err := s.directory.GetUserByEmail(r.Context(), req.Email); err == nil {
		http.Error(w, "Failed to create user", http.StatusBadRequest)
		return
	}

	id := uuid.New().String()
	now := time.Now()
	err := s.directory.UpdateUser(r.Context(), id, func(old *models.User) (*models.User, error) {
		if old != nil {
			return nil, errors.New("user id collision")
		}
		return &models.User{
			ID:           id,
			Email:        req.Email,
			DisplayName:  req.Email,
			AllowedHosts: []string{},
			CreatedAt:    now,
			UpdatedAt:    now,
		}, nil
	})
	if err != nil {
		slog.Warn("Failed to create user", "error", err)
		http.Error(w, "Failed to create user", http.StatusBadRequest)
		return
	}

	if _, url, err := s.signin.CreateRecovery(r.Context(), id); err == nil {
		slog.Info("Created user", "user", id, "signin_url", url)
	} else {
		slog.Warn("Failed to create recovery link", "user", id, "error", err)
	}

	writeJSON(w, CreateUserResponse{ID: id})
}

// UserListHandler returns every user in the directory. Admin only.
func (s *Server) UserListHandler(w http.ResponseWriter, r *http.Request) {
	_, _, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}

	users, err := s.directory.ListUsers(r.Context())
	if err != nil {
		slog.Error("Failed to list users", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	response := ListUsersResponse{Users: make([]UserInfo, 0, len(users))}
	for _, user := range users {
		response.Users = append(response.Users, s.userInfo(r, user, nil))
	}
	writeJSON(w, response)
}

// UserGetHandler returns a user with their credentials and sessions. The
// special id "me" resolves to the caller and includes the current session.
func (s *Server) UserGetHandler(w http.ResponseWriter, r *http.Request) {
	sessionUser, sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	userID := r.PathValue("id")
	if userID == "me" {
		writeJSON(w, s.userInfo(r, sessionUser, sess))
		return
	}

	user, err := s.directory.GetUser(r.Context(), userID)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, s.userInfo(r, user, nil))
}

// UserUpdateHandler applies a partial update. Non-admins can only update
// themselves and cannot touch the admin flag or allowed hosts.
func (s *Server) UserUpdateHandler(w http.ResponseWriter, r *http.Request) {
	sessionUser, _, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	userID := r.PathValue("id")
	if !sessionUser.IsAdmin && sessionUser.ID != userID {
		http.Error(w, "Not authorized", http.StatusForbidden)
		return
	}

	var req UpdateUserRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}

	if !sessionUser.IsAdmin && req.Admin != nil {
		http.Error(w, "Not authorized to change admin status", http.StatusForbidden)
		return
	}
	if !sessionUser.IsAdmin && req.AllowedHosts != nil {
		http.Error(w, "Not authorized to change allowed hosts", http.StatusForbidden)
		return
	}

	err := s.directory.UpdateUser(r.Context(), userID, func(old *models.User) (*models.User, error) {
		if old == nil {
			return nil, errors.New("user not found")
		}
		if req.Email != nil {
			old.Email = *req.Email
		}
		if req.DisplayName != nil {
			old.DisplayName = *req.DisplayName
		}
		if req.Admin != nil {
			old.IsAdmin = *req.Admin
		}
		if req.AllowedHosts != nil {
			old.AllowedHosts = *req.AllowedHosts
		}
		old.UpdatedAt = time.Now()
		return old, nil
	})
	if err != nil {
		if err.Error() == "user not found" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		slog.Warn("Failed to update user", "user", userID, "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	writeJSON(w, UpdateUserResponse{})
}

// UserDeleteHandler deletes a user and revokes their sessions. Admin only;
// self-deletion is rejected.
func (s *Server) UserDeleteHandler(w http.ResponseWriter, r *http.Request) {
	admin, _, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}

	userID := r.PathValue("id")
	if admin.ID == userID {
		http.Error(w, "You cannot delete yourself", http.StatusBadRequest)
		return
	}

	if _, err := s.directory.GetUser(r.Context(), userID); err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err := s.directory.DeleteUser(r.Context(), userID); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err := s.sessions.RevokeAll(r.Context(), userID); err != nil {
		slog.Warn("Failed to revoke sessions", "user", userID, "error", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

// UserRecoverHandler issues a recovery link for a user who lost their
// credentials. Admin only.
func (s *Server) UserRecoverHandler(w http.ResponseWriter, r *http.Request) {
	_, _, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}

	userID := r.PathValue("id")
	_, url, err := s.signin.CreateRecovery(r.Context(), userID)
	if err != nil {
		slog.Warn("Failed to create recovery link", "user", userID, "error", err)
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	slog.Info("Created recovery link", "user", userID)
	writeJSON(w, UserRecoverResponse{RecoveryUrl: url})
}

// CredentialUpdateHandler renames one of the caller's credentials. An
// unknown id and another user's credential answer identically.
func (s *Server) CredentialUpdateHandler(w http.ResponseWriter, r *http.Request) {
	user, _, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	var req UpdateCredentialRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}

	credID := r.PathValue("id")
	err := s.directory.UpdateUser(r.Context(), user.ID, func(old *models.User) (*models.User, error) {
		if old == nil {
			return nil, errors.New("credential not found")
		}
		for i := range old.Credentials {
			if old.Credentials[i].ID == credID {
				if req.Name != nil {
					old.Credentials[i].Name = *req.Name
				}
				return old, nil
			}
		}
		return nil, errors.New("credential not found")
	})
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	writeJSON(w, UpdateCredentialResponse{})
}

// CredentialDeleteHandler removes a credential. Users delete their own;
// admins may delete anyone's.
func (s *Server) CredentialDeleteHandler(w http.ResponseWriter, r *http.Request) {
	user, _, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	credID := r.PathValue("id")
	remove := func(ownerID string) error {
		return s.directory.UpdateUser(r.Context(), ownerID, func(old *models.User) (*models.User, error) {
			if old == nil {
				return nil, errors.New("credential not found")
			}
			for i := range old.Credentials {
				if old.Credentials[i].ID == credID {
					old.Credentials = append(old.Credentials[:i], old.Credentials[i+1:]...)
					return old, nil
				}
			}
			return nil, errors.New("credential not found")
		})
	}

	err := remove(user.ID)
	if err != nil && user.IsAdmin {
		// Admins may delete other users' credentials; find the owner.
		users, lerr := s.directory.ListUsers(r.Context())
		if lerr == nil {
			for _, candidate := range users {
				if candidate.ID == user.ID {
					continue
				}
				if remove(candidate.ID) == nil {
					err = nil
					break
				}
			}
		}
	}
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SessionDeleteHandler revokes a session. Users revoke their own; admins
// may revoke anyone's.
func (s *Server) SessionDeleteHandler(w http.ResponseWriter, r *http.Request) {
	user, _, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	sessionID := r.PathValue("id")
	target, err := s.sessions.Reuse(r.Context(), sessionID)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if !user.IsAdmin && target.UserID != user.ID {
		slog.Warn("Refusing cross-user session delete",
			"user", user.ID, "session", sessionID, "owner", target.UserID)
		w.WriteHeader(http.StatusForbidden)
		return
	}

	if err := s.sessions.Revoke(r.Context(), sessionID); err != nil {
		slog.Error("Failed to revoke session", "session", sessionID, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
