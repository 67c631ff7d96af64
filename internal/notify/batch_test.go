package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/album"
	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/directory"
	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/storage"
)

// memStore is an in-memory storage.Store holding published results.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (m *memStore) Put(ctx context.Context, key string, body io.Reader, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.objects[key] = data
	return nil
}

func (m *memStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", key, storage.ErrNotFound)
	}
	return data, nil
}

func (m *memStore) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (m *memStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memStore) DeletePrefix(ctx context.Context, prefix string) error {
	keys, _ := m.List(ctx, prefix)
	for _, k := range keys {
		m.Delete(ctx, k)
	}
	return nil
}

func (m *memStore) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "https://example.com/presigned/" + key, nil
}

// fakeSender records deliveries and can fail specific phones.
type fakeSender struct {
	sent      map[string]string // phone -> text
	failFor   map[string]error
	sendOrder []string
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: make(map[string]string), failFor: make(map[string]error)}
}

func (f *fakeSender) Send(ctx context.Context, phone, text string) error {
	if err := f.failFor[phone]; err != nil {
		return err
	}
	f.sent[phone] = text
	f.sendOrder = append(f.sendOrder, phone)
	return nil
}

func testLink(eventID, phone, guestID string) string {
	return fmt.Sprintf("https://api.example/albums/get-personalized-album/%s/%s/%s", eventID, phone, guestID)
}

func batchEvent(guests ...directory.GuestSubmission) *directory.Event {
	return &directory.Event{
		ID:     "e1",
		Name:   "Wedding",
		Folder: directory.FolderPath("alice", "2026-06-01", "Wedding", "e1"),
		Guests: guests,
	}
}

// seedResult publishes a canonical manifest+images result for one guest.
func seedResult(t *testing.T, store *memStore, event *directory.Event, phone, guestID string, imageNames ...string) {
	t.Helper()
	ctx := context.Background()
	prefix := event.PersonalizedPrefix(phone, guestID)
	files := []string{}
	for _, name := range imageNames {
		if err := storage.PutBytes(ctx, store, prefix+name, []byte("img"), "image/jpeg"); err != nil {
			t.Fatalf("seed image: %v", err)
		}
		files = append(files, name)
	}
	manifest, err := json.Marshal(album.Manifest{
		EventID: event.ID, Phone: phone, GuestID: guestID,
		Count: len(files), Files: files,
	})
	if err != nil {
		t.Fatalf("marshal manifest: %v", err)
	}
	if err := storage.PutBytes(ctx, store, prefix+album.ManifestName, manifest, "application/json"); err != nil {
		t.Fatalf("seed manifest: %v", err)
	}
}

func TestSendAlbumLinks_DeliversLinkForPublishedResult(t *testing.T) {
	store := newMemStore()
	sender := newFakeSender()
	event := batchEvent(directory.GuestSubmission{ID: "g1", Name: "Bob", Phone: "+15551234567"})
	seedResult(t, store, event, "+15551234567", "g1", "img_001.jpg", "img_002.jpg")

	result := SendAlbumLinks(context.Background(), sender, store, event, testLink)
	if result.Sent != 1 || len(result.Failures) != 0 {
		t.Fatalf("unexpected batch result: %+v", result)
	}

	text := sender.sent["+15551234567"]
	if !strings.Contains(text, "Bob") || !strings.Contains(text, "Wedding") {
		t.Errorf("message missing personalization: %q", text)
	}
	if !strings.Contains(text, testLink("e1", "+15551234567", "g1")) {
		t.Errorf("message missing retrieval link: %q", text)
	}
}

func TestSendAlbumLinks_UnpublishedGuestIsAFailure(t *testing.T) {
	store := newMemStore()
	sender := newFakeSender()
	event := batchEvent(directory.GuestSubmission{ID: "g1", Name: "Bob", Phone: "+15551234567"})

	result := SendAlbumLinks(context.Background(), sender, store, event, testLink)
	if result.Sent != 0 {
		t.Errorf("nothing should be sent, got %d", result.Sent)
	}
	if len(result.Failures) != 1 || result.Failures[0].Reason != "no published result" {
		t.Errorf("expected a no-published-result failure, got %+v", result.Failures)
	}
}

func TestSendAlbumLinks_EmptyResultGetsNoMatchesMessage(t *testing.T) {
	store := newMemStore()
	sender := newFakeSender()
	event := batchEvent(directory.GuestSubmission{ID: "g1", Name: "Bob", Phone: "+15551234567"})
	seedResult(t, store, event, "+15551234567", "g1") // manifest, zero images

	result := SendAlbumLinks(context.Background(), sender, store, event, testLink)
	if result.Sent != 1 {
		t.Fatalf("empty result should still notify, got %+v", result)
	}
	text := sender.sent["+15551234567"]
	if !strings.Contains(text, "couldn't find photos") {
		t.Errorf("expected a no-matches message, got %q", text)
	}
	if strings.Contains(text, "get-personalized-album") {
		t.Errorf("no-matches message must not carry a link: %q", text)
	}
}

func TestSendAlbumLinks_SkipsIncompleteAndDuplicateEntries(t *testing.T) {
	store := newMemStore()
	sender := newFakeSender()
	event := batchEvent(
		directory.GuestSubmission{ID: "g1", Name: "Bob", Phone: "+15551234567"},
		directory.GuestSubmission{ID: "g2", Name: "", Phone: "+15550001111"},
		directory.GuestSubmission{ID: "g3", Name: "No Phone"},
		directory.GuestSubmission{ID: "g4", Name: "Bob Again", Phone: "+15551234567"},
	)
	seedResult(t, store, event, "+15551234567", "g1", "img_001.jpg")

	result := SendAlbumLinks(context.Background(), sender, store, event, testLink)
	if result.Sent != 1 {
		t.Errorf("expected 1 send, got %d", result.Sent)
	}
	if result.Skipped != 3 {
		t.Errorf("expected 3 skips (blank name, blank phone, duplicate), got %d", result.Skipped)
	}
	if len(sender.sendOrder) != 1 {
		t.Errorf("duplicate phone must be messaged once, got %v", sender.sendOrder)
	}
}

func TestSendAlbumLinks_OneFailureDoesNotAbortTheBatch(t *testing.T) {
	store := newMemStore()
	sender := newFakeSender()
	sender.failFor["+15551234567"] = errors.New("graph api 500")

	event := batchEvent(
		directory.GuestSubmission{ID: "g1", Name: "Bob", Phone: "+15551234567"},
		directory.GuestSubmission{ID: "g2", Name: "Carol", Phone: "+15559876543"},
	)
	seedResult(t, store, event, "+15551234567", "g1", "a.jpg")
	seedResult(t, store, event, "+15559876543", "g2", "b.jpg")

	result := SendAlbumLinks(context.Background(), sender, store, event, testLink)
	if result.Sent != 1 {
		t.Errorf("second guest should still be notified, got %+v", result)
	}
	if len(result.Failures) != 1 || result.Failures[0].Phone != "+15551234567" {
		t.Errorf("expected one failure for the broken phone, got %+v", result.Failures)
	}
	if _, ok := sender.sent["+15559876543"]; !ok {
		t.Error("batch aborted after first failure")
	}
}
