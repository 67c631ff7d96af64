package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/directory"
	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/metrics"
	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/notify"
)

// maxGuestPhotoBytes bounds a guest selfie upload.
const maxGuestPhotoBytes = 32 << 20 // 32 MB

// handleSubmitGuest accepts a guest's contact details and reference photo.
// The photo is stored first, then the roster entry is appended atomically;
// concurrent submissions never overwrite each other.
func (s *Server) handleSubmitGuest(w http.ResponseWriter, r *http.Request) {
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

	r.Body = http.MaxBytesReader(w, r.Body, maxGuestPhotoBytes)
	if err := r.ParseMultipartForm(maxGuestPhotoBytes); err != nil {
		httpError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	name := r.FormValue("name")
	phone := r.FormValue("phone")
	if name == "" {
		httpError(w, http.StatusBadRequest, "name is required")
		return
	}
	if !validPhone(phone) {
		httpError(w, http.StatusBadRequest, "invalid phone number")
		return
	}

	file, header, err := r.FormFile("photo")
	if err != nil {
		httpError(w, http.StatusBadRequest, "photo file is required")
		return
	}
	defer file.Close()

	if !validFilename(header.Filename) {
		httpError(w, http.StatusBadRequest, "invalid photo filename")
		return
	}
	contentType := header.Header.Get("Content-Type")
	if !imageContentTypes[contentType] {
		httpError(w, http.StatusBadRequest, "unsupported photo type")
		return
	}

	if event.GuestLimit > 0 && len(event.Guests) >= event.GuestLimit {
		httpError(w, http.StatusConflict, "guest limit reached for this event")
		return
	}

	// The guest token is minted here, never derived from guest input.
	// It is the credential later revalidated at delivery time.
	guestID := uuid.NewString()
	photoKey := event.GuestPhotoKey(guestID, header.Filename)

	if err := s.store.Put(r.Context(), photoKey, file, contentType); err != nil {
		domainError(w, err)
		return
	}

	guest := directory.GuestSubmission{
		ID:          guestID,
		Name:        name,
		Phone:       phone,
		PhotoKey:    photoKey,
		SubmittedAt: directory.NowISO(),
	}
	if err := s.dir.AppendGuest(r.Context(), eventID, guest); err != nil {
		domainError(w, err)
		return
	}

	log.Info().Str("eventId", eventID).Str("guestId", guestID).Msg("Guest submission recorded")
	respondJSON(w, http.StatusCreated, map[string]string{
		"guestId": guestID,
		"message": "submission received",
	})
}

// handleSendAlbums fans out retrieval links to every roster guest with a
// published result. Per-guest failures are reported, never aborting the run.
func (s *Server) handleSendAlbums(w http.ResponseWriter, r *http.Request) {
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

	result := notify.SendAlbumLinks(r.Context(), s.sender, s.store, event, s.pipeline.DeliveryURL)
	log.Info().
		Str("eventId", eventID).
		Int("sent", result.Sent).
		Int("skipped", result.Skipped).
		Int("failed", len(result.Failures)).
		Msg("Album link fan-out finished")
	metrics.New("PhotoGuests").
		Dimension("Operation", "send-albums").
		Metric("LinksSent", float64(result.Sent), metrics.UnitCount).
		Metric("LinksFailed", float64(len(result.Failures)), metrics.UnitCount).
		Property("eventId", eventID).
		Flush()
	respondJSON(w, http.StatusOK, result)
}
