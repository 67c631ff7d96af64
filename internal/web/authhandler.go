package web

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

type verifyTokenRequest struct {
	Token string `json:"token"`
}

// handleVerifyToken lets the frontend confirm an identity token and fetch
// the profile behind it before making authenticated calls.
func (s *Server) handleVerifyToken(w http.ResponseWriter, r *http.Request) {
	var req verifyTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		httpError(w, http.StatusBadRequest, "token is required")
		return
	}
	user, err := s.verifier.Verify(r.Context(), req.Token)
	if err != nil {
		log.Warn().Err(err).Msg("Token verification failed")
		httpError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"user": user})
}
