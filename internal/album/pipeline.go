// Package album implements the personalization pipeline: the orchestration
// of directory lookup, album and selfie fetch, remote face matching, result
// publication, and retrieval-link construction for one (event, guest) pair.
//
// Each invocation is independent and may run concurrently with others. The
// only shared mutable state is the directory and the object store, both
// external. A per-invocation temporary workspace is exclusively owned by
// that invocation and removed on every exit path.
package album

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/directory"
	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/recognition"
	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/storage"
)

// Stage identifies where in the pipeline a failure happened.
type Stage string

const (
	StageResolve   Stage = "resolve"
	StageFetch     Stage = "fetch"
	StageRecognize Stage = "recognize"
	StagePublish   Stage = "publish"
)

// StageError wraps a failure with the stage it occurred in. A failed stage
// aborts all subsequent stages.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("stage %s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

var (
	// ErrAlbumMissing: the event album was never uploaded. Different
	// remediation from a missing guest photo, so a distinct error.
	ErrAlbumMissing = errors.New("event album not uploaded")
	// ErrGuestPhotoMissing: the guest's reference photo is absent.
	ErrGuestPhotoMissing = errors.New("guest reference photo missing")
	// ErrGuestNotFound: no roster entry matches both phone and guest token.
	ErrGuestNotFound = errors.New("guest not found on roster")
	// ErrRecognitionFailed: the matching call failed after bounded retries.
	// Nothing was published.
	ErrRecognitionFailed = errors.New("face recognition failed")
	// ErrPartialPublish: a result item failed to upload; the whole
	// publication was rolled back.
	ErrPartialPublish = errors.New("result publication incomplete")
	// ErrInvalidPathFragment: a guest-controlled value would change the
	// storage key structure. Rejected before any key is built from it.
	ErrInvalidPathFragment = errors.New("invalid path fragment")
)

// Recognizer is the face-matching call the pipeline depends on.
// *recognition.Client satisfies it.
type Recognizer interface {
	Match(ctx context.Context, albumZip, guestPhoto []byte, guestPhotoName string) ([]recognition.Match, error)
}

// Pipeline orchestrates personalization runs.
type Pipeline struct {
	store      storage.Store
	dir        directory.Directory
	recognizer Recognizer

	// maxAttempts bounds recognition calls per run, first try included.
	maxAttempts int
	// publicBaseURL roots the indirect delivery links sent to guests.
	publicBaseURL string
	// tempRoot is where per-invocation workspaces are created ("" = system default).
	tempRoot string
}

// New creates a pipeline. maxAttempts < 1 is treated as 1.
func New(store storage.Store, dir directory.Directory, recognizer Recognizer, maxAttempts int, publicBaseURL string) *Pipeline {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Pipeline{
		store:         store,
		dir:           dir,
		recognizer:    recognizer,
		maxAttempts:   maxAttempts,
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
	}
}

// Result summarizes one successful personalization run.
type Result struct {
	EventID     string `json:"eventId"`
	Phone       string `json:"phone"`
	GuestID     string `json:"guestId"`
	MatchCount  int    `json:"matchCount"`
	DeliveryURL string `json:"deliveryUrl"`
}

// PersonalizeGuest runs the full pipeline for one (event, guest) pair.
// Stages run strictly in order; the first failure aborts the rest and is
// returned as a *StageError.
func (p *Pipeline) PersonalizeGuest(ctx context.Context, eventID, phone, guestID string) (*Result, error) {
	start := time.Now()
	logger := log.With().Str("eventId", eventID).Str("phone", phone).Str("guestId", guestID).Logger()

	// Stage 1: resolve the event and the roster entry. The canonical
	// storage path comes from the stored record, never recomputed.
	event, err := p.dir.GetEvent(ctx, eventID)
	if err != nil {
		return nil, &StageError{StageResolve, err}
	}
	guest, ok := event.FindGuest(phone, guestID)
	if !ok {
		return nil, &StageError{StageResolve, ErrGuestNotFound}
	}
	if err := validateSegments(phone, guestID); err != nil {
		return nil, &StageError{StageResolve, err}
	}
	if err := validateKey(guest.PhotoKey); err != nil {
		return nil, &StageError{StageResolve, err}
	}

	// Per-invocation workspace, removed on every exit path.
	workDir, err := os.MkdirTemp(p.tempRoot, "personalize-")
	if err != nil {
		return nil, &StageError{StageFetch, fmt.Errorf("create workspace: %w", err)}
	}
	defer func() {
		if rmErr := os.RemoveAll(workDir); rmErr != nil {
			logger.Warn().Err(rmErr).Str("dir", workDir).Msg("Failed to clean workspace")
		}
	}()

	// Stage 2: fetch inputs. Missing album and missing guest photo are
	// distinguished — they need different remediation.
	albumZip, err := p.fetchInput(ctx, event.AlbumKey(), filepath.Join(workDir, "event_album.zip"), ErrAlbumMissing)
	if err != nil {
		return nil, &StageError{StageFetch, err}
	}
	guestPhoto, err := p.fetchInput(ctx, guest.PhotoKey, filepath.Join(workDir, "guest_photo"+filepath.Ext(guest.PhotoKey)), ErrGuestPhotoMissing)
	if err != nil {
		return nil, &StageError{StageFetch, err}
	}

	// Stage 3: recognize, with bounded retries on transient failures only.
	matches, err := p.recognize(ctx, albumZip, guestPhoto, filepath.Base(guest.PhotoKey))
	if err != nil {
		return nil, &StageError{StageRecognize, err}
	}
	logger.Info().Int("matches", len(matches)).Msg("Recognition stage complete")

	// Stage 4: publish. Zero matches is a valid terminal state and gets an
	// explicit empty result set.
	files := make([]File, 0, len(matches))
	for _, m := range matches {
		files = append(files, File{Name: m.Filename, Data: m.Data})
	}
	prefix := event.PersonalizedPrefix(phone, guestID)
	manifest := Manifest{
		EventID:     eventID,
		Phone:       phone,
		GuestID:     guestID,
		GeneratedAt: directory.NowISO(),
	}
	if err := publish(ctx, p.store, prefix, manifest, files); err != nil {
		return nil, &StageError{StagePublish, err}
	}

	// Stage 5: indirect delivery link. Identity is revalidated at access
	// time instead of baking authorization into a long-lived bearer URL.
	result := &Result{
		EventID:     eventID,
		Phone:       phone,
		GuestID:     guestID,
		MatchCount:  len(files),
		DeliveryURL: p.DeliveryURL(eventID, phone, guestID),
	}

	logger.Info().Int("matches", result.MatchCount).Dur("duration", time.Since(start)).Msg("Personalization complete")
	return result, nil
}

// DeliveryURL builds the guest retrieval link for a published result.
func (p *Pipeline) DeliveryURL(eventID, phone, guestID string) string {
	return fmt.Sprintf("%s/albums/get-personalized-album/%s/%s/%s",
		p.publicBaseURL, url.PathEscape(eventID), url.PathEscape(phone), url.PathEscape(guestID))
}

// fetchInput downloads one input object and mirrors it into the workspace.
// A missing object maps to the caller-supplied sentinel.
func (p *Pipeline) fetchInput(ctx context.Context, key, localPath string, missing error) ([]byte, error) {
	data, err := p.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", key, missing)
		}
		return nil, fmt.Errorf("download %s: %w", key, err)
	}
	if err := os.WriteFile(localPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("stage %s in workspace: %w", key, err)
	}
	return data, nil
}

// recognize calls the matching service with exponential backoff. Only
// transient failures (service unavailable, timeout) are retried; a malformed
// response is permanent since retrying an unchanging bad payload wastes the
// budget. ErrNoMatches is a success with an empty set.
func (p *Pipeline) recognize(ctx context.Context, albumZip, guestPhoto []byte, photoName string) ([]recognition.Match, error) {
	var matches []recognition.Match

	operation := func() error {
		var err error
		matches, err = p.recognizer.Match(ctx, albumZip, guestPhoto, photoName)
		if err == nil {
			return nil
		}
		if errors.Is(err, recognition.ErrNoMatches) {
			matches = nil
			return nil
		}
		if errors.Is(err, recognition.ErrServiceUnavailable) || errors.Is(err, recognition.ErrTimeout) {
			log.Warn().Err(err).Msg("Recognition attempt failed, will retry")
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(p.maxAttempts-1)),
		ctx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrRecognitionFailed)
	}
	return matches, nil
}

// validateSegments rejects guest-controlled values that must occupy exactly
// one path segment of a storage key.
func validateSegments(values ...string) error {
	for _, v := range values {
		if v == "" || v == "." || v == ".." ||
			strings.ContainsAny(v, "/\\") {
			return fmt.Errorf("%q: %w", v, ErrInvalidPathFragment)
		}
	}
	return nil
}

// validateKey rejects stored keys carrying traversal-like segments. The raw
// segments are checked before any cleaning: Clean silently resolves ".."
// and would hide the attempt.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty key: %w", ErrInvalidPathFragment)
	}
	for _, seg := range strings.Split(strings.ReplaceAll(key, "\\", "/"), "/") {
		if seg == ".." || seg == "." {
			return fmt.Errorf("%q: %w", key, ErrInvalidPathFragment)
		}
	}
	return nil
}

// GuestOutcome is the per-guest result of an event-wide run.
type GuestOutcome struct {
	Phone   string  `json:"phone"`
	GuestID string  `json:"guestId"`
	Result  *Result `json:"result,omitempty"`
	Err     string  `json:"error,omitempty"`
}

// PersonalizeEvent runs the pipeline for every roster guest. One guest's
// failure never aborts the rest; the caller gets every outcome.
func (p *Pipeline) PersonalizeEvent(ctx context.Context, eventID string) ([]GuestOutcome, error) {
	event, err := p.dir.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	outcomes := make([]GuestOutcome, 0, len(event.Guests))
	for _, guest := range event.Guests {
		outcome := GuestOutcome{Phone: guest.Phone, GuestID: guest.ID}
		result, err := p.PersonalizeGuest(ctx, eventID, guest.Phone, guest.ID)
		if err != nil {
			log.Error().Err(err).Str("eventId", eventID).Str("guestId", guest.ID).Msg("Guest personalization failed")
			outcome.Err = err.Error()
		} else {
			outcome.Result = result
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}
