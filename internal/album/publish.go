package album

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/directory"
	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/storage"
)

// ManifestName is the commit record for a published result set. S3 has no
// atomic multi-key rename, so the manifest is written LAST: a prefix without
// one is unpublished, never served as a complete result.
const ManifestName = "manifest.json"

// Manifest describes one published personalized result set. An empty Files
// list is a valid terminal state (zero matches), published explicitly rather
// than silently dropped.
type Manifest struct {
	EventID     string   `json:"eventId"`
	Phone       string   `json:"phone"`
	GuestID     string   `json:"guestId"`
	GeneratedAt string   `json:"generatedAt"`
	Count       int      `json:"count"`
	Files       []string `json:"files"`
}

// publish replaces whatever result set exists under prefix with files.
// Order: clear the prefix, upload every image, write the manifest last.
// Any mid-way failure removes this run's uploads and surfaces
// ErrPartialPublish — no partial result is ever left looking complete.
func publish(ctx context.Context, store storage.Store, prefix string, manifest Manifest, files []File) error {
	// Idempotent replace, not append: a re-run for the same guest must
	// overwrite, so the result size always equals the latest match count.
	if err := store.DeletePrefix(ctx, prefix); err != nil {
		return fmt.Errorf("clear prior result %s: %w", prefix, err)
	}

	var uploaded []string
	for _, f := range files {
		key := prefix + f.Name
		if err := storage.PutBytes(ctx, store, key, f.Data, contentTypeFor(f.Name)); err != nil {
			rollback(ctx, store, uploaded)
			return fmt.Errorf("upload %s: %v: %w", key, err, ErrPartialPublish)
		}
		uploaded = append(uploaded, key)
		manifest.Files = append(manifest.Files, f.Name)
	}
	manifest.Count = len(manifest.Files)
	if manifest.Files == nil {
		manifest.Files = []string{}
	}

	body, err := json.Marshal(manifest)
	if err != nil {
		rollback(ctx, store, uploaded)
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := storage.PutBytes(ctx, store, prefix+ManifestName, body, "application/json"); err != nil {
		rollback(ctx, store, uploaded)
		return fmt.Errorf("commit manifest %s: %v: %w", prefix, err, ErrPartialPublish)
	}

	log.Info().Str("prefix", prefix).Int("images", len(files)).Msg("Personalized result published")
	return nil
}

// rollback best-effort deletes this run's uploads. Leftovers without a
// manifest are invisible to readers and get cleared by the next run.
func rollback(ctx context.Context, store storage.Store, keys []string) {
	for _, key := range keys {
		if err := store.Delete(ctx, key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to remove staged upload during rollback")
		}
	}
}

// DeliveredAlbum is a loaded result set ready to stream to a guest. Either
// Files (canonical per-image encoding) or LegacyZip (pre-built archive from
// the old single-zip encoding) is populated.
type DeliveredAlbum struct {
	Files     []File
	LegacyZip []byte
}

// WriteArchive streams the album as a zip archive.
func (a *DeliveredAlbum) WriteArchive(w io.Writer) error {
	if a.LegacyZip != nil {
		_, err := w.Write(a.LegacyZip)
		return err
	}
	return WriteZip(w, a.Files)
}

// LoadResult reads a published result set for delivery: the image files
// named by the manifest, or the legacy single-zip encoding when no manifest
// exists. storage.ErrNotFound means no result has been published for this
// guest.
func LoadResult(ctx context.Context, store storage.Store, event *directory.Event, phone, guestID string) (*DeliveredAlbum, error) {
	prefix := event.PersonalizedPrefix(phone, guestID)

	manifestBytes, err := store.Get(ctx, prefix+ManifestName)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return loadLegacyResult(ctx, store, event, phone)
		}
		return nil, fmt.Errorf("read manifest %s: %w", prefix, err)
	}

	var manifest Manifest
	if err := json.Unmarshal(manifestBytes, &manifest); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", prefix, err)
	}

	files := make([]File, 0, len(manifest.Files))
	for _, name := range manifest.Files {
		data, err := store.Get(ctx, prefix+name)
		if err != nil {
			return nil, fmt.Errorf("read result image %s%s: %w", prefix, name, err)
		}
		files = append(files, File{Name: name, Data: data})
	}
	return &DeliveredAlbum{Files: files}, nil
}

// loadLegacyResult serves results written by older pipeline runs as one
// pre-built zip under personalized-albums/{phone}.zip.
func loadLegacyResult(ctx context.Context, store storage.Store, event *directory.Event, phone string) (*DeliveredAlbum, error) {
	data, err := store.Get(ctx, event.LegacyAlbumZipKey(phone))
	if err != nil {
		return nil, err
	}
	log.Debug().Str("eventId", event.ID).Str("phone", phone).Msg("Serving legacy single-zip result")
	return &DeliveredAlbum{LegacyZip: data}, nil
}
