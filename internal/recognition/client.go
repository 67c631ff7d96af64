// Package recognition provides the client for the remote face-matching
// microservice.
//
// The service contract: HTTP POST with two multipart file parts
// (event_album: a zip archive of the full album, guest_photo: the guest's
// reference selfie). A 200 response body is either a zip archive of the
// matched images or the raw bytes of a single result; non-200 responses
// carry a diagnostic body. The call is synchronous and can be slow for large
// albums, so it always runs under an explicit bounded timeout.
//
// The client does not assume a result encoding: whatever comes back on the
// wire is normalized to an in-memory list of (filename, bytes) matches.
package recognition

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	// ErrServiceUnavailable covers connection failures and non-2xx
	// responses. Retryable with backoff, bounded attempts.
	ErrServiceUnavailable = errors.New("face recognition service unavailable")
	// ErrTimeout means the bounded call budget elapsed. The remote call may
	// still complete server-side; the local timeout is authoritative.
	ErrTimeout = errors.New("face recognition call timed out")
	// ErrNoMatches is a valid empty result: the service answered
	// successfully and found nothing.
	ErrNoMatches = errors.New("no matching photos found")
	// ErrMalformedResponse means the payload claimed to be an archive but
	// isn't parseable. Fatal for this invocation; not retried blindly.
	ErrMalformedResponse = errors.New("unparseable face recognition response")
)

// Match is one matched album image, normalized from whatever encoding the
// service returned.
type Match struct {
	Filename string
	Data     []byte
}

// Client calls the face-matching service.
type Client struct {
	httpClient *http.Client
	url        string
	timeout    time.Duration
}

// NewClient creates a recognition client. timeout bounds one whole call,
// upload included.
func NewClient(serviceURL string, timeout time.Duration) *Client {
	return &Client{
		// The per-call context carries the deadline; no extra client-level
		// timeout that could fire first and muddy classification.
		httpClient: &http.Client{},
		url:        serviceURL,
		timeout:    timeout,
	}
}

// Match sends the album archive and the guest's reference photo and returns
// the normalized matched images. guestPhotoName is used only as the form
// part filename.
func (c *Client) Match(ctx context.Context, albumZip, guestPhoto []byte, guestPhotoName string) ([]Match, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	albumPart, err := writer.CreateFormFile("event_album", "event_album.zip")
	if err != nil {
		return nil, fmt.Errorf("create album form part: %w", err)
	}
	if _, err := albumPart.Write(albumZip); err != nil {
		return nil, fmt.Errorf("write album form part: %w", err)
	}

	photoPart, err := writer.CreateFormFile("guest_photo", guestPhotoName)
	if err != nil {
		return nil, fmt.Errorf("create guest photo form part: %w", err)
	}
	if _, err := photoPart.Write(guestPhoto); err != nil {
		return nil, fmt.Errorf("write guest photo form part: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	log.Debug().
		Int("albumBytes", len(albumZip)).
		Int("photoBytes", len(guestPhoto)).
		Msg("Sending album and guest photo to face recognition service")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("after %s: %w", c.timeout, ErrTimeout)
		}
		return nil, fmt.Errorf("%v: %w", err, ErrServiceUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		diag, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("status %d: %s: %w", resp.StatusCode, strings.TrimSpace(string(diag)), ErrServiceUnavailable)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("after %s: %w", c.timeout, ErrTimeout)
		}
		return nil, fmt.Errorf("read response: %v: %w", err, ErrServiceUnavailable)
	}

	matches, err := normalize(payload, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}

	log.Info().
		Int("matches", len(matches)).
		Dur("duration", time.Since(start)).
		Msg("Face recognition completed")
	return matches, nil
}

// normalize converts the wire payload — a zip archive or a single raw image —
// into the in-memory match list.
func normalize(payload []byte, contentType string) ([]Match, error) {
	if len(payload) == 0 {
		return nil, ErrNoMatches
	}

	zr, zipErr := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if zipErr == nil {
		var matches []Match
		for _, f := range zr.File {
			if f.FileInfo().IsDir() {
				continue
			}
			rc, err := f.Open()
			if err != nil {
				return nil, fmt.Errorf("open archive entry %s: %w", f.Name, ErrMalformedResponse)
			}
			data, err := io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return nil, fmt.Errorf("read archive entry %s: %w", f.Name, ErrMalformedResponse)
			}
			matches = append(matches, Match{Filename: baseName(f.Name), Data: data})
		}
		if len(matches) == 0 {
			return nil, ErrNoMatches
		}
		return matches, nil
	}

	// Not a zip. If the service claimed an archive, that's a broken payload;
	// otherwise treat the body as a single matched image.
	if strings.Contains(contentType, "zip") {
		return nil, fmt.Errorf("%v: %w", zipErr, ErrMalformedResponse)
	}
	return []Match{{Filename: "match_1.jpg", Data: payload}}, nil
}

// baseName strips any directory components the service put in archive entry
// names. Entry names are service-controlled input and never used as path
// fragments without this.
func baseName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}
