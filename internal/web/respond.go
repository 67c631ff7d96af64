package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/album"
	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/directory"
	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/recognition"
	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/storage"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func httpError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// domainError translates a domain failure into a status code and a message
// safe to expose. Unrecognized errors become a generic 500; the detail goes
// to the log, not the client.
func domainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, directory.ErrEventNotFound):
		httpError(w, http.StatusNotFound, "event not found")
	case errors.Is(err, directory.ErrEventExists):
		httpError(w, http.StatusConflict, "event already exists")
	case errors.Is(err, directory.ErrStatusConflict):
		httpError(w, http.StatusConflict, "event is not in the required state")
	case errors.Is(err, album.ErrGuestNotFound):
		httpError(w, http.StatusNotFound, "guest not found on roster")
	case errors.Is(err, album.ErrAlbumMissing):
		httpError(w, http.StatusNotFound, "event album has not been uploaded")
	case errors.Is(err, album.ErrGuestPhotoMissing):
		httpError(w, http.StatusNotFound, "guest reference photo is missing")
	case errors.Is(err, album.ErrInvalidPathFragment):
		httpError(w, http.StatusBadRequest, "invalid identifier")
	case errors.Is(err, album.ErrRecognitionFailed),
		errors.Is(err, recognition.ErrServiceUnavailable),
		errors.Is(err, recognition.ErrTimeout):
		httpError(w, http.StatusInternalServerError, "face recognition service failed")
	case errors.Is(err, album.ErrPartialPublish):
		httpError(w, http.StatusInternalServerError, "album publication failed")
	case errors.Is(err, storage.ErrNotFound):
		httpError(w, http.StatusNotFound, "not found")
	default:
		log.Error().Err(err).Msg("Unhandled request error")
		httpError(w, http.StatusInternalServerError, "internal error")
	}
}
