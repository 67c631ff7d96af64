package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/album"
	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/directory"
	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/metrics"
	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/storage"
)

// maxAlbumBytes bounds the bulk album upload.
const maxAlbumBytes = 512 << 20 // 512 MB

// zipContentTypes are the archive types browsers report for zip uploads.
var zipContentTypes = map[string]bool{
	"application/zip":              true,
	"application/x-zip-compressed": true,
	"application/octet-stream":     true,
}

// handleUploadAlbum stores the photographer's bulk album. Upload-once: the
// status transition claims the upload slot with a conditional write, so a
// second attempt gets 409 instead of silently replacing the archive.
func (s *Server) handleUploadAlbum(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(r.Context())
	if !ok {
		httpError(w, http.StatusUnauthorized, "missing user")
		return
	}
	eventID := chi.URLParam(r, "eventID")
	if !validEventID(eventID) {
		httpError(w, http.StatusBadRequest, "invalid event id")
		return
	}
	event, err := s.dir.GetEvent(r.Context(), eventID)
	if err != nil {
		domainError(w, err)
		return
	}
	if event.OwnerEmail != user.Email {
		httpError(w, http.StatusForbidden, "you do not own this event")
		return
	}
	if event.Status != directory.StatusPendingUpload {
		httpError(w, http.StatusConflict, "album already uploaded for this event")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAlbumBytes)
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		httpError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("album")
	if err != nil {
		httpError(w, http.StatusBadRequest, "album file is required")
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".zip") {
		httpError(w, http.StatusBadRequest, "album must be a .zip archive")
		return
	}
	if ct := header.Header.Get("Content-Type"); ct != "" && !zipContentTypes[ct] {
		httpError(w, http.StatusBadRequest, "unsupported album content type")
		return
	}

	// Claim first: the conditional transition is what makes concurrent
	// double uploads lose cleanly with a 409.
	if err := s.dir.UpdateStatus(r.Context(), eventID, directory.StatusPendingUpload, directory.StatusAlbumUploaded); err != nil {
		if errors.Is(err, directory.ErrStatusConflict) {
			httpError(w, http.StatusConflict, "album already uploaded for this event")
			return
		}
		domainError(w, err)
		return
	}

	if err := s.store.Put(r.Context(), event.AlbumKey(), file, "application/zip"); err != nil {
		// The slot is claimed but the archive is absent; the pipeline's
		// distinct album-missing error surfaces this on the next run.
		log.Error().Err(err).Str("eventId", eventID).Msg("Album archive upload failed after status claim")
		domainError(w, err)
		return
	}

	log.Info().Str("eventId", eventID).Str("key", event.AlbumKey()).Msg("Event album stored")
	metrics.New("PhotoGuests").
		Dimension("Operation", "upload-album").
		Count("AlbumUploads").
		Metric("AlbumBytes", float64(header.Size), metrics.UnitBytes).
		Property("eventId", eventID).
		Flush()
	respondJSON(w, http.StatusOK, map[string]string{
		"message": "album uploaded",
		"status":  string(directory.StatusAlbumUploaded),
	})
}

type personalizeRequest struct {
	Phone   string `json:"phone"`
	GuestID string `json:"guestId"`
}

// handlePersonalize runs the matching pipeline, for one guest when the body
// names one, otherwise for the whole roster.
func (s *Server) handlePersonalize(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	if !validEventID(eventID) {
		httpError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	var req personalizeRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if (req.Phone == "") != (req.GuestID == "") {
		httpError(w, http.StatusBadRequest, "phone and guestId must be provided together")
		return
	}

	if req.Phone != "" {
		result, err := s.pipeline.PersonalizeGuest(r.Context(), eventID, req.Phone, req.GuestID)
		if err != nil {
			domainError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, result)
		return
	}

	started := time.Now()
	outcomes, err := s.pipeline.PersonalizeEvent(r.Context(), eventID)
	if err != nil {
		domainError(w, err)
		return
	}

	failed := 0
	for _, o := range outcomes {
		if o.Err != "" {
			failed++
		}
	}
	metrics.New("PhotoGuests").
		Dimension("Operation", "personalize-event").
		Metric("DurationMs", float64(time.Since(started).Milliseconds()), metrics.UnitMilliseconds).
		Metric("GuestsProcessed", float64(len(outcomes)), metrics.UnitCount).
		Metric("GuestsFailed", float64(failed), metrics.UnitCount).
		Property("eventId", eventID).
		Flush()
	if failed == 0 && len(outcomes) > 0 {
		if err := s.dir.UpdateStatus(r.Context(), eventID, directory.StatusAlbumUploaded, directory.StatusCompleted); err != nil &&
			!errors.Is(err, directory.ErrStatusConflict) {
			log.Error().Err(err).Str("eventId", eventID).Msg("Completion transition failed")
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"eventId":  eventID,
		"guests":   len(outcomes),
		"failed":   failed,
		"outcomes": outcomes,
	})
}

// handleGetPersonalizedAlbum is the guest retrieval endpoint. Every request
// revalidates identity against the current roster; the link itself grants
// nothing. A roster mismatch is a uniform 403 that never reveals whether the
// phone exists or the token is stale.
func (s *Server) handleGetPersonalizedAlbum(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	phone := chi.URLParam(r, "phone")
	guestID := chi.URLParam(r, "guestID")

	if !validEventID(eventID) || phone == "" || guestID == "" {
		httpError(w, http.StatusBadRequest, "invalid request")
		return
	}

	event, err := s.dir.GetEvent(r.Context(), eventID)
	if err != nil {
		domainError(w, err)
		return
	}

	if _, ok := event.FindGuest(phone, guestID); !ok {
		httpError(w, http.StatusForbidden, "forbidden")
		return
	}

	delivered, err := album.LoadResult(r.Context(), s.store, event, phone, guestID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "personalized album is not ready yet")
			return
		}
		domainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "personalized_album.zip"))
	w.WriteHeader(http.StatusOK)
	if err := delivered.WriteArchive(w); err != nil {
		log.Error().Err(err).Str("eventId", eventID).Str("guestId", guestID).Msg("Album streaming failed")
	}
}
