package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/directory"
)

type createEventRequest struct {
	EventName        string `json:"eventName"`
	EventDate        string `json:"eventDate"`
	PhotographerName string `json:"photographerName"`
	Phone            string `json:"phone"`
	GuestLimit       int    `json:"guestLimit"`
	ImageLimit       int    `json:"imageLimit"`
	PriceCents       int64  `json:"priceCents"`
}

// handleCreateEvent registers a new event: directory record first (the
// conditional write is the uniqueness check), then the storage folder
// skeleton. Folder markers are at-least-once; re-creating them is harmless.
func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(r.Context())
	if !ok {
		httpError(w, http.StatusUnauthorized, "missing user")
		return
	}

	var req createEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validateNameFragment("eventName", req.EventName); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateNameFragment("photographerName", req.PhotographerName); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateEventDate(req.EventDate); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Phone != "" && !validPhone(req.Phone) {
		httpError(w, http.StatusBadRequest, "invalid phone number")
		return
	}

	eventID := uuid.NewString()
	event := &directory.Event{
		ID:               eventID,
		Name:             req.EventName,
		Date:             req.EventDate,
		PhotographerName: req.PhotographerName,
		OwnerEmail:       user.Email,
		Phone:            req.Phone,
		Folder:           directory.FolderPath(req.PhotographerName, req.EventDate, req.EventName, eventID),
		Status:           directory.StatusPendingUpload,
		GuestLimit:       req.GuestLimit,
		ImageLimit:       req.ImageLimit,
		PriceCents:       req.PriceCents,
		CreatedAt:        directory.NowISO(),
		Guests:           []directory.GuestSubmission{},
	}

	if err := s.dir.CreateEvent(r.Context(), event); err != nil {
		domainError(w, err)
		return
	}

	for _, marker := range []string{"album/", "guest-submissions/", "personalized-albums/"} {
		if err := s.store.Put(r.Context(), event.Folder+marker, bytes.NewReader(nil), "application/octet-stream"); err != nil {
			log.Error().Err(err).Str("eventId", eventID).Str("marker", marker).Msg("Folder marker creation failed")
		}
	}

	log.Info().Str("eventId", eventID).Str("owner", user.Email).Str("folder", event.Folder).Msg("Event created")
	respondJSON(w, http.StatusCreated, event)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(r.Context())
	if !ok {
		httpError(w, http.StatusUnauthorized, "missing user")
		return
	}
	events, err := s.dir.ListEventsByOwner(r.Context(), user.Email)
	if err != nil {
		domainError(w, err)
		return
	}
	if events == nil {
		events = []*directory.Event{}
	}
	respondJSON(w, http.StatusOK, events)
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
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

	resp := eventDetail{Event: event}
	if event.Status != directory.StatusPendingUpload {
		// Short-lived link so the photographer can verify the uploaded
		// archive without a separate download endpoint.
		url, err := s.store.Presign(r.Context(), event.AlbumKey(), 15*time.Minute)
		if err != nil {
			log.Warn().Err(err).Str("eventId", eventID).Msg("Album presign failed")
		} else {
			resp.AlbumDownloadURL = url
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

// eventDetail is the owner-facing single-event response.
type eventDetail struct {
	*directory.Event
	AlbumDownloadURL string `json:"albumDownloadUrl,omitempty"`
}
