package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/album"
	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/auth"
	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/config"
	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/directory"
	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/storage"
)

const (
	testEventID  = "3b241101-e2bb-4255-8caf-4136c566a962"
	testGuestID  = "9f8b5c1e-4d3a-4b2c-9e1f-0a1b2c3d4e5f"
	testPhone    = "+15551234567"
	ownerToken   = "owner-token"
	operatorTok  = "op-secret"
	ownerEmail   = "alice@example.com"
	strangerTok  = "stranger-token"
	strangerMail = "mallory@example.com"
)

// memStore is an in-memory storage.Store.
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

// memDir is an in-memory directory with the same conditional semantics as
// the DynamoDB implementation.
type memDir struct {
	mu     sync.Mutex
	events map[string]*directory.Event
}

func newMemDir() *memDir {
	return &memDir{events: make(map[string]*directory.Event)}
}

func (d *memDir) CreateEvent(ctx context.Context, event *directory.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.events[event.ID]; exists {
		return directory.ErrEventExists
	}
	copied := *event
	d.events[event.ID] = &copied
	return nil
}

func (d *memDir) GetEvent(ctx context.Context, eventID string) (*directory.Event, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	event, ok := d.events[eventID]
	if !ok {
		return nil, directory.ErrEventNotFound
	}
	copied := *event
	return &copied, nil
}

func (d *memDir) UpdateStatus(ctx context.Context, eventID string, from, to directory.Status) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !from.CanTransitionTo(to) {
		return directory.ErrStatusConflict
	}
	event, ok := d.events[eventID]
	if !ok {
		return directory.ErrEventNotFound
	}
	if event.Status != from {
		return directory.ErrStatusConflict
	}
	event.Status = to
	return nil
}

func (d *memDir) ListEventsByOwner(ctx context.Context, email string) ([]*directory.Event, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*directory.Event
	for _, event := range d.events {
		if event.OwnerEmail == email {
			copied := *event
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (d *memDir) AppendGuest(ctx context.Context, eventID string, guest directory.GuestSubmission) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	event, ok := d.events[eventID]
	if !ok {
		return directory.ErrEventNotFound
	}
	event.Guests = append(event.Guests, guest)
	return nil
}

// fakePersonalizer records invocations and returns scripted outcomes.
type fakePersonalizer struct {
	guestCalls [][3]string
	eventCalls []string
	result     *album.Result
	outcomes   []album.GuestOutcome
	err        error
}

func (f *fakePersonalizer) PersonalizeGuest(ctx context.Context, eventID, phone, guestID string) (*album.Result, error) {
	f.guestCalls = append(f.guestCalls, [3]string{eventID, phone, guestID})
	return f.result, f.err
}

func (f *fakePersonalizer) PersonalizeEvent(ctx context.Context, eventID string) ([]album.GuestOutcome, error) {
	f.eventCalls = append(f.eventCalls, eventID)
	return f.outcomes, f.err
}

func (f *fakePersonalizer) DeliveryURL(eventID, phone, guestID string) string {
	return fmt.Sprintf("https://api.example/albums/get-personalized-album/%s/%s/%s", eventID, phone, guestID)
}

// fakeVerifier resolves scripted bearer tokens.
type fakeVerifier struct {
	users map[string]*auth.User
}

func (f *fakeVerifier) Verify(ctx context.Context, token string) (*auth.User, error) {
	user, ok := f.users[token]
	if !ok {
		return nil, auth.ErrInvalidToken
	}
	return user, nil
}

type fakeSender struct {
	sent map[string]string
}

func (f *fakeSender) Send(ctx context.Context, phone, text string) error {
	if f.sent == nil {
		f.sent = make(map[string]string)
	}
	f.sent[phone] = text
	return nil
}

// fixture is a fully wired test server with direct access to its fakes.
type fixture struct {
	server   *Server
	handler  http.Handler
	store    *memStore
	dir      *memDir
	pipeline *fakePersonalizer
	sender   *fakeSender
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := &config.Config{
		PublicBaseURL: "https://api.example",
		FrontendURL:   "https://app.example",
		OperatorToken: operatorTok,
	}
	store := newMemStore()
	dir := newMemDir()
	pipeline := &fakePersonalizer{}
	sender := &fakeSender{}
	verifier := &fakeVerifier{users: map[string]*auth.User{
		ownerToken:  {Name: "Alice", Email: ownerEmail},
		strangerTok: {Name: "Mallory", Email: strangerMail},
	}}

	server := NewServer(cfg, store, dir, pipeline, sender, verifier, nil, nil)
	return &fixture{
		server:   server,
		handler:  server.Routes(),
		store:    store,
		dir:      dir,
		pipeline: pipeline,
		sender:   sender,
	}
}

// seedEvent registers a test event with one roster guest (Bob).
func (f *fixture) seedEvent(t *testing.T, status directory.Status) *directory.Event {
	t.Helper()
	event := &directory.Event{
		ID:               testEventID,
		Name:             "Wedding",
		Date:             "2026-06-01",
		PhotographerName: "alice",
		OwnerEmail:       ownerEmail,
		Status:           status,
		Folder:           directory.FolderPath("alice", "2026-06-01", "Wedding", testEventID),
	}
	event.Guests = []directory.GuestSubmission{{
		ID:       testGuestID,
		Name:     "Bob",
		Phone:    testPhone,
		PhotoKey: event.GuestPhotoKey(testGuestID, "selfie.jpg"),
	}}
	if err := f.dir.CreateEvent(context.Background(), event); err != nil {
		t.Fatalf("seed event: %v", err)
	}
	return event
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func authed(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}
