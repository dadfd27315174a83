package api

import (
	"log/slog"
	"net/http"
)

// EnrollStartHandler begins registering a new credential for the signed-in
// user.
func (s *Server) EnrollStartHandler(w http.ResponseWriter, r *http.Request) {
	user, sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	var req StartEnrollRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}

	token, options, err := s.engine.StartAttestation(r.Context(), user, sess.ID)
	if err != nil {
		slog.Warn("Failed to start attestation", "user", user.ID, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	writeJSON(w, StartEnrollResponse{
		EnrollRequest: &EnrollRequest{
			Token:   token,
			Options: toCreationOptions(options),
		},
	})
}

// EnrollFinishHandler validates the attestation response and stores the new
// credential.
func (s *Server) EnrollFinishHandler(w http.ResponseWriter, r *http.Request) {
	_, sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	var req FinishEnrollRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}

	credential, err := s.engine.VerifyAttestation(r.Context(), req.Token, sess.ID, &req.AttestationResponse)
	if err != nil {
		slog.Warn("Failed to finish enrollment", "error", err)
		writeJSON(w, FinishEnrollResponse{Error: &FinishEnrollError{InvalidEnrollment: true}})
		return
	}

	info := toCredentialInfo(credential)
	writeJSON(w, FinishEnrollResponse{Credential: &info})
}
