package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/album"
	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/directory"
	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/storage"
)

// Failure records one guest a batch run could not notify.
type Failure struct {
	Phone   string `json:"phone"`
	GuestID string `json:"guestId"`
	Reason  string `json:"reason"`
}

// BatchResult aggregates a batch run for the operator.
type BatchResult struct {
	Sent     int       `json:"sent"`
	Skipped  int       `json:"skipped"`
	Failures []Failure `json:"failures,omitempty"`
}

// LinkBuilder constructs the retrieval URL for one guest's result.
type LinkBuilder func(eventID, phone, guestID string) string

// SendAlbumLinks messages every roster guest whose personalized result has
// been published. Guests without a published result are reported as
// failures; guests with an explicitly empty result get a "no matches"
// message instead of a link. Duplicate (event, phone) pairs within this run
// are sent once.
func SendAlbumLinks(ctx context.Context, sender Sender, store storage.Store, event *directory.Event, linkFor LinkBuilder) BatchResult {
	var result BatchResult
	seen := make(map[string]bool)

	for _, guest := range event.Guests {
		if guest.Phone == "" || guest.Name == "" {
			result.Skipped++
			continue
		}
		if seen[guest.Phone] {
			log.Debug().Str("eventId", event.ID).Str("phone", guest.Phone).Msg("Duplicate phone in roster, already notified this run")
			result.Skipped++
			continue
		}

		text, sendable, reason := composeMessage(ctx, store, event, guest, linkFor)
		if !sendable {
			result.Failures = append(result.Failures, Failure{Phone: guest.Phone, GuestID: guest.ID, Reason: reason})
			continue
		}

		if err := sender.Send(ctx, guest.Phone, text); err != nil {
			log.Error().Err(err).Str("eventId", event.ID).Str("phone", guest.Phone).Msg("Failed to notify guest")
			result.Failures = append(result.Failures, Failure{Phone: guest.Phone, GuestID: guest.ID, Reason: err.Error()})
			continue
		}

		seen[guest.Phone] = true
		result.Sent++
	}

	log.Info().
		Str("eventId", event.ID).
		Int("sent", result.Sent).
		Int("skipped", result.Skipped).
		Int("failed", len(result.Failures)).
		Msg("Notification batch complete")
	return result
}

// composeMessage decides what (if anything) a guest should receive based on
// their published result.
func composeMessage(ctx context.Context, store storage.Store, event *directory.Event, guest directory.GuestSubmission, linkFor LinkBuilder) (text string, sendable bool, reason string) {
	delivered, err := album.LoadResult(ctx, store, event, guest.Phone, guest.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", false, "no published result"
		}
		return "", false, err.Error()
	}

	if delivered.LegacyZip == nil && len(delivered.Files) == 0 {
		// Explicit empty result: tell the guest rather than staying silent.
		return fmt.Sprintf("Hi %s! We looked through the %s album but couldn't find photos of you this time.",
			guest.Name, event.Name), true, ""
	}

	url := linkFor(event.ID, guest.Phone, guest.ID)
	return fmt.Sprintf("Hi %s! 🎉 Your %s album is ready. Click here to download it: %s\nEnjoy your memories! 📸",
		guest.Name, event.Name, url), true, ""
}
