// Package web is the HTTP boundary of the PhotoGuests backend. It owns
// request parsing, input validation, auth enforcement, and the mapping from
// domain errors to status codes; all business behavior lives in the packages
// it composes.
package web

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/album"
	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/auth"
	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/config"
	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/directory"
	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/notify"
	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/payment"
	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/storage"
)

// Personalizer is the pipeline surface the handlers call.
// *album.Pipeline satisfies it.
type Personalizer interface {
	PersonalizeGuest(ctx context.Context, eventID, phone, guestID string) (*album.Result, error)
	PersonalizeEvent(ctx context.Context, eventID string) ([]album.GuestOutcome, error)
	DeliveryURL(eventID, phone, guestID string) string
}

// TokenVerifier validates an owner identity token and resolves the user
// behind it. *auth.GoogleVerifier satisfies it.
type TokenVerifier interface {
	Verify(ctx context.Context, idToken string) (*auth.User, error)
}

// PaymentRefs is the short-lived payment context store.
// *directory.DynamoDirectory satisfies it.
type PaymentRefs interface {
	PutPaymentRef(ctx context.Context, ref *directory.PaymentRef) error
	GetPaymentRef(ctx context.Context, paymentID string) (*directory.PaymentRef, error)
	DeletePaymentRef(ctx context.Context, paymentID string) error
}

// Server wires the domain collaborators behind the HTTP routes.
type Server struct {
	cfg      *config.Config
	store    storage.Store
	dir      directory.Directory
	pipeline Personalizer
	sender   notify.Sender
	verifier TokenVerifier

	// Payment collaborators; both nil when payment routes are disabled.
	gateway payment.Gateway
	refs    PaymentRefs
}

// NewServer builds a Server from its collaborators.
func NewServer(cfg *config.Config, store storage.Store, dir directory.Directory, pipeline Personalizer, sender notify.Sender, verifier TokenVerifier, gateway payment.Gateway, refs PaymentRefs) *Server {
	return &Server{
		cfg:      cfg,
		store:    store,
		dir:      dir,
		pipeline: pipeline,
		sender:   sender,
		verifier: verifier,
		gateway:  gateway,
		refs:     refs,
	}
}

// Routes mounts every endpoint and returns the root handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.withLogging)
	r.Use(s.withCORS)

	r.Get("/health", s.handleHealth)
	r.Post("/auth/verify-token", s.handleVerifyToken)

	r.Route("/events", func(r chi.Router) {
		r.Use(s.withOwner)
		r.Post("/", s.handleCreateEvent)
		r.Get("/", s.handleListEvents)
		r.Get("/{eventID}", s.handleGetEvent)
	})

	r.Route("/albums", func(r chi.Router) {
		r.With(s.withOwner).Post("/{eventID}/upload-event-album", s.handleUploadAlbum)
		r.With(s.withOperator).Post("/{eventID}/personalize", s.handlePersonalize)

		// Guest-facing retrieval. No bearer auth: identity is the
		// (phone, guest token) pair revalidated against the roster.
		r.Get("/get-personalized-album/{eventID}/{phone}/{guestID}", s.handleGetPersonalizedAlbum)
	})

	r.Route("/guests", func(r chi.Router) {
		r.Post("/{eventID}/submit", s.handleSubmitGuest)
		r.With(s.withOperator).Post("/{eventID}/send-personalized-albums", s.handleSendAlbums)
	})

	if s.gateway != nil {
		r.Route("/payment", func(r chi.Router) {
			r.With(s.withOwner).Post("/create", s.handleCreatePayment)
			r.Get("/success", s.handlePaymentSuccess)
			r.Get("/cancel", s.handlePaymentCancel)
		})
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
