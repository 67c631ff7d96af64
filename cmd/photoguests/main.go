// Command photoguests runs the PhotoGuests backend: the HTTP API serving
// photographers and guests, plus operator subcommands for running the
// personalization pipeline and the notification fan-out directly.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/album"
	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/auth"
	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/config"
	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/directory"
	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/logging"
	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/notify"
	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/payment"
	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/recognition"
	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/storage"
	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/web"
)

var rootCmd = &cobra.Command{
	Use:   "photoguests",
	Short: "Event photography delivery backend",
	Long: `PhotoGuests lets photographers upload an event album, collects guest
selfies, matches each guest against the album, and delivers a personalized
album over a revalidating retrieval link.

Examples:
  photoguests serve
  photoguests personalize <event-id>
  photoguests personalize <event-id> --phone +15551234567 --guest <guest-id>
  photoguests notify <event-id>`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE:  runServe,
}

var (
	personalizePhone string
	personalizeGuest string
)

var personalizeCmd = &cobra.Command{
	Use:   "personalize <event-id>",
	Short: "Run the matching pipeline for an event or one guest",
	Args:  cobra.ExactArgs(1),
	RunE:  runPersonalize,
}

var notifyCmd = &cobra.Command{
	Use:   "notify <event-id>",
	Short: "Send retrieval links to every guest with a published album",
	Args:  cobra.ExactArgs(1),
	RunE:  runNotify,
}

func init() {
	personalizeCmd.Flags().StringVar(&personalizePhone, "phone", "", "Guest phone number (with --guest: run for one guest)")
	personalizeCmd.Flags().StringVar(&personalizeGuest, "guest", "", "Guest token (with --phone: run for one guest)")
	rootCmd.AddCommand(serveCmd, personalizeCmd, notifyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// backend holds the wired collaborators shared by every subcommand.
type backend struct {
	cfg      *config.Config
	store    *storage.S3Store
	dir      *directory.DynamoDirectory
	pipeline *album.Pipeline
	sender   notify.Sender
}

func buildBackend(ctx context.Context) (*backend, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg)
	store := storage.NewS3Store(s3Client, s3.NewPresignClient(s3Client), cfg.EventsBucket)
	dir := directory.NewDynamoDirectory(dynamodb.NewFromConfig(awsCfg), cfg.EventsTable)

	recognizer := recognition.NewClient(cfg.Recognition.URL, cfg.Recognition.Timeout)
	pipeline := album.New(store, dir, recognizer, cfg.Recognition.Retries, cfg.PublicBaseURL)
	sender := notify.NewWhatsAppClient(cfg.Messaging.URL, cfg.Messaging.AccessToken)

	return &backend{cfg: cfg, store: store, dir: dir, pipeline: pipeline, sender: sender}, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	logging.Init()
	start := time.Now()

	ctx := context.Background()
	b, err := buildBackend(ctx)
	if err != nil {
		return err
	}

	verifier := auth.NewGoogleVerifier(b.cfg.GoogleClientID)

	var gateway payment.Gateway
	var refs web.PaymentRefs
	if b.cfg.Payment.Enabled() {
		gateway = payment.NewPayPalGateway(b.cfg.Payment.BaseURL, b.cfg.Payment.ClientID, b.cfg.Payment.ClientSecret)
		refs = b.dir
	}

	server := web.NewServer(b.cfg, b.store, b.dir, b.pipeline, b.sender, verifier, gateway, refs)

	logging.NewStartupLogger("photoguests").
		S3Bucket("events", b.cfg.EventsBucket).
		DynamoTable("events", b.cfg.EventsTable).
		Endpoint("recognition", b.cfg.Recognition.URL).
		Endpoint("messaging", b.cfg.Messaging.URL).
		Feature("payment", b.cfg.Payment.Enabled()).
		Config("publicBaseURL", b.cfg.PublicBaseURL).
		InitDuration(time.Since(start)).
		Log()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", b.cfg.Port),
		Handler:      server.Routes(),
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info().Msg("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Int("port", b.cfg.Port).Msg("Starting server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func runPersonalize(cmd *cobra.Command, args []string) error {
	logging.Init()
	eventID := args[0]

	if (personalizePhone == "") != (personalizeGuest == "") {
		return fmt.Errorf("--phone and --guest must be provided together")
	}

	ctx := context.Background()
	b, err := buildBackend(ctx)
	if err != nil {
		return err
	}

	if personalizePhone != "" {
		result, err := b.pipeline.PersonalizeGuest(ctx, eventID, personalizePhone, personalizeGuest)
		if err != nil {
			return err
		}
		return printJSON(result)
	}

	outcomes, err := b.pipeline.PersonalizeEvent(ctx, eventID)
	if err != nil {
		return err
	}
	return printJSON(outcomes)
}

func runNotify(cmd *cobra.Command, args []string) error {
	logging.Init()
	eventID := args[0]

	ctx := context.Background()
	b, err := buildBackend(ctx)
	if err != nil {
		return err
	}

	event, err := b.dir.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}

	result := notify.SendAlbumLinks(ctx, b.sender, b.store, event, b.pipeline.DeliveryURL)
	return printJSON(result)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
