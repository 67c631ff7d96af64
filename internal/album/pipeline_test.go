package album

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/directory"
	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/recognition"
	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/storage"
)

// fakeDir serves events from memory; only the read path matters here.
type fakeDir struct {
	events map[string]*directory.Event
}

func (f *fakeDir) CreateEvent(ctx context.Context, event *directory.Event) error { return nil }

func (f *fakeDir) GetEvent(ctx context.Context, eventID string) (*directory.Event, error) {
	event, ok := f.events[eventID]
	if !ok {
		return nil, directory.ErrEventNotFound
	}
	return event, nil
}

func (f *fakeDir) UpdateStatus(ctx context.Context, eventID string, from, to directory.Status) error {
	return nil
}

func (f *fakeDir) ListEventsByOwner(ctx context.Context, email string) ([]*directory.Event, error) {
	return nil, nil
}

func (f *fakeDir) AppendGuest(ctx context.Context, eventID string, guest directory.GuestSubmission) error {
	return nil
}

// fakeRecognizer scripts per-call outcomes and counts attempts.
type fakeRecognizer struct {
	calls   int
	outcome func(call int) ([]recognition.Match, error)
}

func (f *fakeRecognizer) Match(ctx context.Context, albumZip, guestPhoto []byte, guestPhotoName string) ([]recognition.Match, error) {
	f.calls++
	return f.outcome(f.calls)
}

func pipelineFixture(t *testing.T, rec Recognizer) (*Pipeline, *memStore, *directory.Event) {
	t.Helper()
	store := newMemStore()
	event := &directory.Event{
		ID:     "e1",
		Name:   "Wedding",
		Status: directory.StatusAlbumUploaded,
		Folder: directory.FolderPath("alice", "2026-06-01", "Wedding", "e1"),
	}
	event.Guests = []directory.GuestSubmission{{
		ID:       "g1",
		Name:     "Bob",
		Phone:    "+15551234567",
		PhotoKey: event.GuestPhotoKey("g1", "selfie.jpg"),
	}}

	ctx := context.Background()
	if err := storage.PutBytes(ctx, store, event.AlbumKey(), []byte("album-zip-bytes"), "application/zip"); err != nil {
		t.Fatalf("seed album: %v", err)
	}
	if err := storage.PutBytes(ctx, store, event.Guests[0].PhotoKey, []byte("selfie-bytes"), "image/jpeg"); err != nil {
		t.Fatalf("seed selfie: %v", err)
	}

	dir := &fakeDir{events: map[string]*directory.Event{"e1": event}}
	return New(store, dir, rec, 3, "https://api.photoguests.example"), store, event
}

func twoMatches(call int) ([]recognition.Match, error) {
	return []recognition.Match{
		{Filename: "img_001.jpg", Data: []byte("one")},
		{Filename: "img_002.jpg", Data: []byte("two")},
	}, nil
}

func TestPersonalizeGuest_HappyPath(t *testing.T) {
	rec := &fakeRecognizer{outcome: twoMatches}
	p, store, event := pipelineFixture(t, rec)
	ctx := context.Background()

	result, err := p.PersonalizeGuest(ctx, "e1", "+15551234567", "g1")
	if err != nil {
		t.Fatalf("personalize failed: %v", err)
	}
	if result.MatchCount != 2 {
		t.Errorf("expected 2 matches, got %d", result.MatchCount)
	}
	if !strings.Contains(result.DeliveryURL, "/albums/get-personalized-album/e1/") {
		t.Errorf("unexpected delivery url: %s", result.DeliveryURL)
	}
	if !strings.HasPrefix(result.DeliveryURL, "https://api.photoguests.example/") {
		t.Errorf("delivery url must be rooted at the public base: %s", result.DeliveryURL)
	}

	delivered, err := LoadResult(ctx, store, event, "+15551234567", "g1")
	if err != nil {
		t.Fatalf("published result unreadable: %v", err)
	}
	if len(delivered.Files) != 2 {
		t.Errorf("expected 2 published images, got %d", len(delivered.Files))
	}
}

func TestPersonalizeGuest_WrongPairIsGuestNotFound(t *testing.T) {
	p, _, _ := pipelineFixture(t, &fakeRecognizer{outcome: twoMatches})

	cases := []struct{ phone, guestID string }{
		{"+15551234567", "wrong-token"},
		{"+15550000000", "g1"},
	}
	for _, c := range cases {
		_, err := p.PersonalizeGuest(context.Background(), "e1", c.phone, c.guestID)
		if !errors.Is(err, ErrGuestNotFound) {
			t.Errorf("(%s,%s): expected ErrGuestNotFound, got %v", c.phone, c.guestID, err)
		}
		var stageErr *StageError
		if !errors.As(err, &stageErr) || stageErr.Stage != StageResolve {
			t.Errorf("(%s,%s): expected resolve stage error, got %v", c.phone, c.guestID, err)
		}
	}
}

func TestPersonalizeGuest_MissingInputsAreDistinguished(t *testing.T) {
	rec := &fakeRecognizer{outcome: twoMatches}
	p, store, event := pipelineFixture(t, rec)
	ctx := context.Background()

	if err := store.Delete(ctx, event.AlbumKey()); err != nil {
		t.Fatal(err)
	}
	_, err := p.PersonalizeGuest(ctx, "e1", "+15551234567", "g1")
	if !errors.Is(err, ErrAlbumMissing) {
		t.Errorf("expected ErrAlbumMissing, got %v", err)
	}

	// Restore the album, drop the selfie: the other sentinel.
	if err := storage.PutBytes(ctx, store, event.AlbumKey(), []byte("album"), "application/zip"); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, event.Guests[0].PhotoKey); err != nil {
		t.Fatal(err)
	}
	_, err = p.PersonalizeGuest(ctx, "e1", "+15551234567", "g1")
	if !errors.Is(err, ErrGuestPhotoMissing) {
		t.Errorf("expected ErrGuestPhotoMissing, got %v", err)
	}
}

func TestPersonalizeGuest_RetriesTransientRecognitionFailures(t *testing.T) {
	rec := &fakeRecognizer{outcome: func(call int) ([]recognition.Match, error) {
		if call < 3 {
			return nil, recognition.ErrServiceUnavailable
		}
		return twoMatches(call)
	}}
	p, _, _ := pipelineFixture(t, rec)

	result, err := p.PersonalizeGuest(context.Background(), "e1", "+15551234567", "g1")
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if rec.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", rec.calls)
	}
	if result.MatchCount != 2 {
		t.Errorf("expected 2 matches, got %d", result.MatchCount)
	}
}

func TestPersonalizeGuest_BoundedAttempts(t *testing.T) {
	rec := &fakeRecognizer{outcome: func(call int) ([]recognition.Match, error) {
		return nil, recognition.ErrServiceUnavailable
	}}
	p, store, event := pipelineFixture(t, rec)

	_, err := p.PersonalizeGuest(context.Background(), "e1", "+15551234567", "g1")
	if !errors.Is(err, ErrRecognitionFailed) {
		t.Fatalf("expected ErrRecognitionFailed, got %v", err)
	}
	if rec.calls != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", rec.calls)
	}
	// A failed run publishes nothing.
	if keys := store.keysUnder(event.PersonalizedPrefix("+15551234567", "g1")); len(keys) != 0 {
		t.Errorf("failed run must not publish, found %v", keys)
	}
}

func TestPersonalizeGuest_MalformedResponseIsNotRetried(t *testing.T) {
	rec := &fakeRecognizer{outcome: func(call int) ([]recognition.Match, error) {
		return nil, recognition.ErrMalformedResponse
	}}
	p, _, _ := pipelineFixture(t, rec)

	_, err := p.PersonalizeGuest(context.Background(), "e1", "+15551234567", "g1")
	if !errors.Is(err, ErrRecognitionFailed) {
		t.Fatalf("expected ErrRecognitionFailed, got %v", err)
	}
	if rec.calls != 1 {
		t.Errorf("malformed response must not be retried, got %d attempts", rec.calls)
	}
}

func TestPersonalizeGuest_ZeroMatchesPublishesEmptyResult(t *testing.T) {
	rec := &fakeRecognizer{outcome: func(call int) ([]recognition.Match, error) {
		return nil, recognition.ErrNoMatches
	}}
	p, store, event := pipelineFixture(t, rec)
	ctx := context.Background()

	result, err := p.PersonalizeGuest(ctx, "e1", "+15551234567", "g1")
	if err != nil {
		t.Fatalf("zero matches is a valid outcome, got %v", err)
	}
	if result.MatchCount != 0 {
		t.Errorf("expected 0 matches, got %d", result.MatchCount)
	}

	delivered, err := LoadResult(ctx, store, event, "+15551234567", "g1")
	if err != nil {
		t.Fatalf("empty result must still be published: %v", err)
	}
	if len(delivered.Files) != 0 {
		t.Errorf("expected explicit empty result, got %d files", len(delivered.Files))
	}
}

func TestPersonalizeGuest_RejectsPathShapedIdentifiers(t *testing.T) {
	p, _, event := pipelineFixture(t, &fakeRecognizer{outcome: twoMatches})

	// A roster entry whose phone would escape its key segment.
	event.Guests = append(event.Guests, directory.GuestSubmission{
		ID:       "g2",
		Name:     "Mallory",
		Phone:    "../../etc",
		PhotoKey: "whatever.jpg",
	})

	_, err := p.PersonalizeGuest(context.Background(), "e1", "../../etc", "g2")
	if !errors.Is(err, ErrInvalidPathFragment) {
		t.Errorf("expected ErrInvalidPathFragment, got %v", err)
	}
}

func TestPersonalizeEvent_OneFailureDoesNotAbortTheRest(t *testing.T) {
	rec := &fakeRecognizer{outcome: twoMatches}
	p, store, event := pipelineFixture(t, rec)
	ctx := context.Background()

	// Second guest with no stored selfie: their run fails at fetch.
	event.Guests = append(event.Guests, directory.GuestSubmission{
		ID:       "g2",
		Name:     "Carol",
		Phone:    "+15559876543",
		PhotoKey: event.GuestPhotoKey("g2", "carol.jpg"),
	})

	outcomes, err := p.PersonalizeEvent(ctx, "e1")
	if err != nil {
		t.Fatalf("event run failed: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	if outcomes[0].Result == nil || outcomes[0].Err != "" {
		t.Errorf("first guest should succeed: %+v", outcomes[0])
	}
	if outcomes[1].Result != nil || outcomes[1].Err == "" {
		t.Errorf("second guest should fail: %+v", outcomes[1])
	}

	// The successful guest's result is fully published.
	if _, err := LoadResult(ctx, store, event, "+15551234567", "g1"); err != nil {
		t.Errorf("successful guest's result missing: %v", err)
	}
}

func TestPersonalizeGuest_ReRunReplacesResult(t *testing.T) {
	rec := &fakeRecognizer{outcome: func(call int) ([]recognition.Match, error) {
		if call == 1 {
			return []recognition.Match{
				{Filename: "a.jpg", Data: []byte("a")},
				{Filename: "b.jpg", Data: []byte("b")},
				{Filename: "c.jpg", Data: []byte("c")},
			}, nil
		}
		return []recognition.Match{{Filename: "d.jpg", Data: []byte("d")}}, nil
	}}
	p, store, event := pipelineFixture(t, rec)
	ctx := context.Background()

	if _, err := p.PersonalizeGuest(ctx, "e1", "+15551234567", "g1"); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	result, err := p.PersonalizeGuest(ctx, "e1", "+15551234567", "g1")
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if result.MatchCount != 1 {
		t.Errorf("expected 1 match on re-run, got %d", result.MatchCount)
	}

	keys := store.keysUnder(event.PersonalizedPrefix("+15551234567", "g1"))
	if len(keys) != 2 { // d.jpg + manifest
		t.Errorf("re-run must replace, not accumulate: %v", keys)
	}
}
