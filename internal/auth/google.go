// Package auth verifies Google ID tokens for photographer (event owner)
// identity. The token itself is minted by Google's sign-in flow on the
// frontend; the backend only validates it and extracts the owner email.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"

// ErrInvalidToken covers every verification failure. Callers translate it to
// 401 without exposing which check failed.
var ErrInvalidToken = errors.New("invalid token")

// User is the verified identity extracted from a Google ID token.
type User struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture"`
}

// GoogleVerifier validates ID tokens against Google's tokeninfo endpoint and
// checks the audience matches the configured OAuth client ID.
type GoogleVerifier struct {
	httpClient   *http.Client
	clientID     string
	tokenInfoURL string
}

// NewGoogleVerifier creates a verifier for the given OAuth client ID.
func NewGoogleVerifier(clientID string) *GoogleVerifier {
	return &GoogleVerifier{
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		clientID:     clientID,
		tokenInfoURL: defaultTokenInfoURL,
	}
}

// tokenInfo is Google's tokeninfo response, trimmed to what we check/use.
type tokenInfo struct {
	Aud     string `json:"aud"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// Verify validates the token and returns the user it identifies.
func (v *GoogleVerifier) Verify(ctx context.Context, idToken string) (*User, error) {
	if idToken == "" {
		return nil, ErrInvalidToken
	}

	endpoint := v.tokenInfoURL + "?id_token=" + url.QueryEscape(idToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create tokeninfo request: %w", err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tokeninfo call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Debug().Int("status", resp.StatusCode).Msg("Token verification rejected")
		return nil, ErrInvalidToken
	}

	var info tokenInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode tokeninfo response: %w", err)
	}

	// The audience must be our own client ID; a valid Google token minted
	// for another application is still rejected.
	if info.Aud != v.clientID {
		log.Warn().Msg("Token audience mismatch")
		return nil, ErrInvalidToken
	}
	if info.Email == "" {
		return nil, ErrInvalidToken
	}

	return &User{Name: info.Name, Email: info.Email, Picture: info.Picture}, nil
}
