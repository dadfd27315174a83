package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/uebergang/gateway/internal/models"
)

// Backends

func (s *Server) BackendListHandler(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := s.requireAdmin(w, r); !ok {
		return
	}

	backends, err := s.directory.ListBackends(r.Context())
	if err != nil {
		slog.Error("Failed to list backends", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	response := ListBackendsResponse{Backends: make([]BackendInfo, 0, len(backends))}
	for _, backend := range backends {
		response.Backends = append(response.Backends, toBackendInfo(backend))
	}
	writeJSON(w, response)
}

func (s *Server) BackendGetHandler(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := s.requireAdmin(w, r); !ok {
		return
	}

	fqdn := strings.ToLower(r.PathValue("fqdn"))
	backend, err := s.directory.GetBackend(r.Context(), fqdn)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, toBackendInfo(backend))
}

// BackendUpdateHandler upserts a backend under its FQDN, applying only the
// fields present in the request.
func (s *Server) BackendUpdateHandler(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := s.requireAdmin(w, r); !ok {
		return
	}

	var req UpdateBackendRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}

	fqdn := strings.ToLower(r.PathValue("fqdn"))
	err := s.directory.UpdateBackend(r.Context(), fqdn, func(old *models.Backend) (*models.Backend, error) {
		now := time.Now()
		if old == nil {
			old = &models.Backend{
				Fqdn:        fqdn,
				Headers:     []models.BackendHeader{},
				AccessLevel: models.AccessLevelNormal,
				CreatedAt:   now,
			}
		}
		if req.UpstreamUrl != nil {
			old.UpstreamURL = *req.UpstreamUrl
		}
		if req.Headers != nil {
			headers := make([]models.BackendHeader, 0, len(*req.Headers))
			for _, h := range *req.Headers {
				headers = append(headers, models.BackendHeader{Name: h.Name, Value: h.Value})
			}
			old.Headers = headers
		}
		if req.AccessLevel != nil {
			switch *req.AccessLevel {
			case models.AccessLevelNormal, models.AccessLevelPublic:
				old.AccessLevel = *req.AccessLevel
			default:
				return nil, errors.New("invalid access level")
			}
		}
		old.JsScript = req.JsScript
		old.UpdatedAt = now
		return old, nil
	})
	if err != nil {
		slog.Warn("Failed to update backend", "fqdn", fqdn, "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	writeJSON(w, UpdateBackendResponse{})
}

func (s *Server) BackendDeleteHandler(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := s.requireAdmin(w, r); !ok {
		return
	}

	fqdn := strings.ToLower(r.PathValue("fqdn"))
	if _, err := s.directory.GetBackend(r.Context(), fqdn); err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err := s.directory.DeleteBackend(r.Context(), fqdn); err != nil {
		slog.Error("Failed to delete backend", "fqdn", fqdn, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MQTT profiles

func (s *Server) MqttProfileListHandler(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := s.requireAdmin(w, r); !ok {
		return
	}

	profiles, err := s.directory.ListMqttProfiles(r.Context())
	if err != nil {
		slog.Error("Failed to list mqtt profiles", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	response := ListMqttProfilesResponse{MqttProfiles: make([]MqttProfileInfo, 0, len(profiles))}
	for _, profile := range profiles {
		response.MqttProfiles = append(response.MqttProfiles, toMqttProfileInfo(profile))
	}
	writeJSON(w, response)
}

func (s *Server) MqttProfileGetHandler(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := s.requireAdmin(w, r); !ok {
		return
	}

	profile, err := s.directory.GetMqttProfile(r.Context(), r.PathValue("id"))
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, toMqttProfileInfo(profile))
}

func (s *Server) MqttProfileUpdateHandler(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := s.requireAdmin(w, r); !ok {
		return
	}

	var req UpdateMqttProfileRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}

	id := r.PathValue("id")
	err := s.directory.UpdateMqttProfile(r.Context(), id, func(old *models.MqttProfile) (*models.MqttProfile, error) {
		if old == nil {
			old = &models.MqttProfile{
				ID:             id,
				AllowPublish:   []string{},
				AllowSubscribe: []string{},
			}
		}
		if req.AllowPublish != nil {
			old.AllowPublish = *req.AllowPublish
		}
		if req.AllowSubscribe != nil {
			old.AllowSubscribe = *req.AllowSubscribe
		}
		return old, nil
	})
	if err != nil {
		slog.Warn("Failed to update mqtt profile", "id", id, "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	writeJSON(w, UpdateMqttProfileResponse{})
}

func (s *Server) MqttProfileDeleteHandler(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := s.requireAdmin(w, r); !ok {
		return
	}

	id := r.PathValue("id")
	if _, err := s.directory.GetMqttProfile(r.Context(), id); err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err := s.directory.DeleteMqttProfile(r.Context(), id); err != nil {
		slog.Error("Failed to delete mqtt profile", "id", id, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MQTT clients

func (s *Server) MqttClientListHandler(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := s.requireAdmin(w, r); !ok {
		return
	}

	clients, err := s.directory.ListMqttClients(r.Context())
	if err != nil {
		slog.Error("Failed to list mqtt clients", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	response := ListMqttClientsResponse{MqttClients: make([]MqttClientInfo, 0, len(clients))}
	for _, client := range clients {
		response.MqttClients = append(response.MqttClients, toMqttClientInfo(client))
	}
	writeJSON(w, response)
}

func (s *Server) MqttClientGetHandler(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := s.requireAdmin(w, r); !ok {
		return
	}

	client, err := s.directory.GetMqttClient(r.Context(), r.PathValue("id"))
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, toMqttClientInfo(client))
}

func (s *Server) MqttClientUpdateHandler(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := s.requireAdmin(w, r); !ok {
		return
	}

	var req UpdateMqttClientRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}

	id := r.PathValue("id")
	err := s.directory.UpdateMqttClient(r.Context(), id, func(old *models.MqttClient) (*models.MqttClient, error) {
		if old == nil {
			old = &models.MqttClient{
				ID:     id,
				Values: map[string]string{},
			}
		}
		if req.ProfileId != nil {
			old.ProfileID = *req.ProfileId
		}
		if req.Password != nil {
			old.Password = *req.Password
		}
		if req.Values != nil {
			old.Values = *req.Values
		}
		return old, nil
	})
	if err != nil {
		slog.Warn("Failed to update mqtt client", "id", id, "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	writeJSON(w, UpdateMqttClientResponse{})
}

func (s *Server) MqttClientDeleteHandler(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := s.requireAdmin(w, r); !ok {
		return
	}

	id := r.PathValue("id")
	if _, err := s.directory.GetMqttClient(r.Context(), id); err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err := s.directory.DeleteMqttClient(r.Context(), id); err != nil {
		slog.Error("Failed to delete mqtt client", "id", id, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
