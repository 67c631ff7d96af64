// Package directory provides the event and guest roster store backed by
// DynamoDB.
//
// Each event is a single item keyed by event_id. The guest roster is an
// order-preserving list attribute on the event item; appends use DynamoDB's
// native atomic list_append so concurrent guest submissions never lose
// updates. Status changes are targeted attribute updates with a condition on
// the current status, so they can't clobber concurrent roster appends and
// transitions only ever move forward.
package directory

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEventExists is returned when creating an event whose ID collides.
	ErrEventExists = errors.New("event already exists")
	// ErrEventNotFound is returned when no event has the given ID.
	ErrEventNotFound = errors.New("event not found")
	// ErrStatusConflict is returned when a status transition's precondition
	// does not hold (e.g. a second album upload after AlbumUploaded).
	ErrStatusConflict = errors.New("event status conflict")
)

// Status is the event lifecycle state. Transitions only move forward:
// PendingUpload → AlbumUploaded → Completed.
type Status string

const (
	StatusPendingUpload Status = "Pending Upload"
	StatusAlbumUploaded Status = "Album Uploaded"
	StatusCompleted     Status = "Completed"
)

// order maps each status to its position in the lifecycle.
var order = map[Status]int{
	StatusPendingUpload: 0,
	StatusAlbumUploaded: 1,
	StatusCompleted:     2,
}

// Valid reports whether s is a known lifecycle state.
func (s Status) Valid() bool {
	_, ok := order[s]
	return ok
}

// CanTransitionTo reports whether moving from s to next is a forward step.
func (s Status) CanTransitionTo(next Status) bool {
	return s.Valid() && next.Valid() && order[next] > order[s]
}

// GuestSubmission is one entry in an event's roster. Phone is a coarse
// identity key and is not unique within an event; ID is the opaque guest
// token minted at submission time that disambiguates it. Delivery requires
// both to match.
type GuestSubmission struct {
	ID          string `json:"guestId" dynamodbav:"guest_id"`
	Name        string `json:"name" dynamodbav:"name"`
	Phone       string `json:"phone" dynamodbav:"phone"`
	PhotoKey    string `json:"photoKey" dynamodbav:"photo_key"`
	SubmittedAt string `json:"submittedAt" dynamodbav:"submitted_at"`
}

// Event is the directory record for one photographed event.
type Event struct {
	ID               string            `json:"eventId" dynamodbav:"event_id"`
	Name             string            `json:"eventName" dynamodbav:"event_name"`
	Date             string            `json:"eventDate" dynamodbav:"event_date"` // YYYY-MM-DD
	PhotographerName string            `json:"photographerName" dynamodbav:"photographer_name"`
	OwnerEmail       string            `json:"email" dynamodbav:"email"`
	Phone            string            `json:"phone" dynamodbav:"phone"`
	Folder           string            `json:"folder" dynamodbav:"folder"` // canonical storage path, computed once at creation
	Status           Status            `json:"status" dynamodbav:"status"`
	GuestLimit       int               `json:"guestLimit,omitempty" dynamodbav:"guest_limit,omitempty"`
	ImageLimit       int               `json:"imageLimit,omitempty" dynamodbav:"image_limit,omitempty"`
	PriceCents       int64             `json:"priceCents,omitempty" dynamodbav:"price_cents,omitempty"`
	CreatedAt        string            `json:"createdAt" dynamodbav:"created_at"`
	Guests           []GuestSubmission `json:"guestList" dynamodbav:"guest_list"`
}

// FolderPath derives the canonical hierarchical storage path for an event.
// Called exactly once, at event creation; afterwards the stored Folder
// attribute is the only source of truth.
func FolderPath(photographerName, date, eventName, eventID string) string {
	return fmt.Sprintf("%s/%s/%s/%s/", photographerName, date, eventName, eventID)
}

// AlbumKey is the storage key of the event's bulk album archive.
func (e *Event) AlbumKey() string {
	return e.Folder + "album/event_album.zip"
}

// GuestPhotoKey is the storage key for a guest's reference photo.
func (e *Event) GuestPhotoKey(guestID, filename string) string {
	return e.Folder + "guest-submissions/" + guestID + "/" + filename
}

// PersonalizedPrefix is the canonical guest-scoped result prefix.
func (e *Event) PersonalizedPrefix(phone, guestID string) string {
	return e.Folder + "personalized-albums/" + phone + "/" + guestID + "/"
}

// LegacyAlbumZipKey is the single-zip result location written by older
// pipeline runs. Kept as a compat read path only.
func (e *Event) LegacyAlbumZipKey(phone string) string {
	return e.Folder + "personalized-albums/" + phone + ".zip"
}

// FindGuest returns the roster entry matching BOTH phone and guest token.
// Phone alone is never sufficient: numbers repeat and are guessable.
func (e *Event) FindGuest(phone, guestID string) (*GuestSubmission, bool) {
	for i := range e.Guests {
		if e.Guests[i].Phone == phone && e.Guests[i].ID == guestID {
			return &e.Guests[i], true
		}
	}
	return nil, false
}

// Directory is the event/guest lookup and update contract.
type Directory interface {
	// CreateEvent writes a new event record. Fails with ErrEventExists if
	// the identifier collides — a conditional write, never a blind put.
	CreateEvent(ctx context.Context, event *Event) error

	// GetEvent retrieves an event by ID. Returns ErrEventNotFound if absent.
	GetEvent(ctx context.Context, eventID string) (*Event, error)

	// UpdateStatus transitions the event status from `from` to `to` as a
	// targeted attribute update. Returns ErrStatusConflict if the stored
	// status is not `from`, and ErrEventNotFound if the event is absent.
	UpdateStatus(ctx context.Context, eventID string, from, to Status) error

	// ListEventsByOwner returns all events owned by the given email.
	// Full table scan — acceptable at this system's scale only.
	ListEventsByOwner(ctx context.Context, email string) ([]*Event, error)

	// AppendGuest atomically appends a submission to the event roster.
	AppendGuest(ctx context.Context, eventID string, guest GuestSubmission) error
}

// NowISO returns the current UTC time in ISO 8601, the directory's
// timestamp format.
func NowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}
