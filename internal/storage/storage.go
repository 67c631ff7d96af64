// Package storage provides the object store gateway for event media.
//
// All event artifacts live in a single S3 bucket under a hierarchical key
// layout rooted at the event folder:
//
//	{photographer}/{date}/{eventName}/{eventId}/album/...
//	{photographer}/{date}/{eventName}/{eventId}/guest-submissions/...
//	{photographer}/{date}/{eventName}/{eventId}/personalized-albums/...
//
// Every write requests server-side encryption. There is no transactionality
// across keys: callers that write several objects (folder markers, result
// fan-out) must tolerate partial creation on crash and make retries
// idempotent.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// Error classification for callers. NotFound is not fatal — the caller
// decides. Credential errors indicate a configuration problem and are fatal.
// Transient errors are safe to retry with backoff.
var (
	ErrNotFound    = errors.New("object not found")
	ErrCredentials = errors.New("storage credentials rejected")
	ErrTransient   = errors.New("transient storage error")
)

// Store is the object store contract consumed by the pipeline and handlers.
type Store interface {
	// Put writes an object. Server-side encryption is always requested.
	Put(ctx context.Context, key string, body io.Reader, contentType string) error

	// Get reads a whole object into memory. Returns ErrNotFound if absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// List returns all object keys under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes a single object. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes every object under the prefix. At-least-once:
	// a crash mid-way leaves a partial deletion the next call finishes.
	DeletePrefix(ctx context.Context, prefix string) error

	// Presign returns a time-bounded read-only URL for the object.
	Presign(ctx context.Context, key string, ttl time.Duration) (string, error)
}
