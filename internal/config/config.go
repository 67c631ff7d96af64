// Package config collects all runtime configuration from the environment.
//
// A .env file in the working directory is loaded first (if present), then
// plain environment variables take over. Configuration errors are fatal at
// startup, never per-request: Load validates everything the server needs
// before any handler runs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds all settings for the PhotoGuests backend.
type Config struct {
	// HTTP server.
	Port          int
	PublicBaseURL string // external base URL used in guest retrieval links
	FrontendURL   string // photographer frontend, used for CORS and payment redirects

	// AWS collaborators.
	Region       string
	EventsBucket string
	EventsTable  string

	// Face recognition microservice.
	Recognition RecognitionConfig

	// Outbound guest messaging (WhatsApp Graph API).
	Messaging MessagingConfig

	// Operator token guarding batch/pipeline endpoints.
	OperatorToken string

	// Google OAuth client ID for owner token verification.
	GoogleClientID string

	// Payment gateway (optional; payment routes disabled when empty).
	Payment PaymentConfig
}

// RecognitionConfig configures the face-matching service client.
type RecognitionConfig struct {
	URL     string
	Timeout time.Duration // whole-call budget for one matching request
	Retries int           // attempts on transient failure, including the first
}

// MessagingConfig configures the WhatsApp-style message gateway.
type MessagingConfig struct {
	URL         string
	AccessToken string
}

// PaymentConfig configures the payment gateway glue.
type PaymentConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	AmountCents  int
}

// Enabled reports whether payment routes should be mounted.
func (p PaymentConfig) Enabled() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envDuration reads an environment variable as a Go duration string.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// Load reads configuration from .env and the environment and validates it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("Loaded configuration from .env")
	}

	cfg := &Config{
		Port:          envInt("PHOTOGUESTS_PORT", 8000),
		PublicBaseURL: strings.TrimSuffix(envOrDefault("PHOTOGUESTS_PUBLIC_BASE_URL", "http://localhost:8000"), "/"),
		FrontendURL:   strings.TrimSuffix(envOrDefault("PHOTOGUESTS_FRONTEND_URL", "http://localhost:3000"), "/"),
		Region:        envOrDefault("AWS_REGION", "us-east-1"),
		EventsBucket:  envOrDefault("EVENTS_BUCKET_NAME", "photo-guests-events"),
		EventsTable:   envOrDefault("EVENTS_TABLE_NAME", "Events"),
		Recognition: RecognitionConfig{
			URL:     os.Getenv("FACE_RECOGNITION_SERVICE_URL"),
			Timeout: envDuration("FACE_RECOGNITION_TIMEOUT", 2*time.Minute),
			Retries: envInt("FACE_RECOGNITION_RETRIES", 3),
		},
		Messaging: MessagingConfig{
			URL:         os.Getenv("WHATSAPP_API_URL"),
			AccessToken: os.Getenv("WHATSAPP_ACCESS_TOKEN"),
		},
		OperatorToken:  os.Getenv("PHOTOGUESTS_OPERATOR_TOKEN"),
		GoogleClientID: os.Getenv("GOOGLE_CLIENT_ID"),
		Payment: PaymentConfig{
			BaseURL:      envOrDefault("PAYMENT_API_URL", "https://api.paypal.com"),
			ClientID:     os.Getenv("PAYPAL_CLIENT_ID"),
			ClientSecret: os.Getenv("PAYPAL_CLIENT_SECRET"),
			AmountCents:  envInt("PAYMENT_AMOUNT_CENTS", 1),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks everything that must be present before the server starts.
func (c *Config) validate() error {
	var missing []string
	if c.EventsBucket == "" {
		missing = append(missing, "EVENTS_BUCKET_NAME")
	}
	if c.EventsTable == "" {
		missing = append(missing, "EVENTS_TABLE_NAME")
	}
	if c.Recognition.URL == "" {
		missing = append(missing, "FACE_RECOGNITION_SERVICE_URL")
	}
	if c.OperatorToken == "" {
		missing = append(missing, "PHOTOGUESTS_OPERATOR_TOKEN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}
