package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"

	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/directory"
	"github.com/PhotoGuestsAI/PhotoGuestsAI-Backend/internal/payment"
)

type createPaymentRequest struct {
	EventName string `json:"eventName"`
	EventDate string `json:"eventDate"`
	Phone     string `json:"phone"`
}

// handleCreatePayment starts a checkout and parks the event details in a
// short-lived payment reference, keyed by the gateway's payment ID. The
// redirect round-trip carries only that ID.
func (s *Server) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	user, ok := userFrom(r.Context())
	if !ok {
		httpError(w, http.StatusUnauthorized, "missing user")
		return
	}

	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validateNameFragment("eventName", req.EventName); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateEventDate(req.EventDate); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Phone != "" && !validPhone(req.Phone) {
		httpError(w, http.StatusBadRequest, "invalid phone number")
		return
	}

	paymentID, approvalURL, err := s.gateway.CreatePayment(r.Context(),
		int64(s.cfg.Payment.AmountCents), "USD", "PhotoGuests event: "+req.EventName)
	if err != nil {
		log.Error().Err(err).Msg("Payment creation failed")
		httpError(w, http.StatusInternalServerError, "payment creation failed")
		return
	}

	ref := &directory.PaymentRef{
		PaymentID:  paymentID,
		OwnerEmail: user.Email,
		EventName:  req.EventName,
		EventDate:  req.EventDate,
		Phone:      req.Phone,
		CreatedAt:  directory.NowISO(),
	}
	if err := s.refs.PutPaymentRef(r.Context(), ref); err != nil {
		log.Error().Err(err).Str("paymentId", paymentID).Msg("Payment reference store failed")
		httpError(w, http.StatusInternalServerError, "payment creation failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"paymentId":   paymentID,
		"approvalUrl": approvalURL,
	})
}

// handlePaymentSuccess completes the gateway round-trip and sends the
// photographer back to the frontend.
func (s *Server) handlePaymentSuccess(w http.ResponseWriter, r *http.Request) {
	paymentID := r.URL.Query().Get("paymentId")
	payerID := r.URL.Query().Get("PayerID")
	if paymentID == "" || payerID == "" {
		httpError(w, http.StatusBadRequest, "paymentId and PayerID are required")
		return
	}

	ref, err := s.refs.GetPaymentRef(r.Context(), paymentID)
	if err != nil {
		domainError(w, err)
		return
	}
	if ref == nil {
		httpError(w, http.StatusBadRequest, "unknown or expired payment")
		return
	}

	if err := s.gateway.ExecutePayment(r.Context(), paymentID, payerID); err != nil {
		log.Warn().Err(err).Str("paymentId", paymentID).Msg("Payment execution failed")
		if errors.Is(err, payment.ErrPaymentRejected) {
			s.redirectFrontend(w, r, url.Values{"payment": {"failed"}})
			return
		}
		httpError(w, http.StatusInternalServerError, "payment execution failed")
		return
	}

	if err := s.refs.DeletePaymentRef(r.Context(), paymentID); err != nil {
		log.Warn().Err(err).Str("paymentId", paymentID).Msg("Payment reference cleanup failed")
	}

	log.Info().Str("paymentId", paymentID).Str("owner", ref.OwnerEmail).Msg("Payment completed")
	s.redirectFrontend(w, r, url.Values{
		"payment":   {"success"},
		"eventName": {ref.EventName},
		"eventDate": {ref.EventDate},
	})
}

func (s *Server) handlePaymentCancel(w http.ResponseWriter, r *http.Request) {
	s.redirectFrontend(w, r, url.Values{"payment": {"cancelled"}})
}

func (s *Server) redirectFrontend(w http.ResponseWriter, r *http.Request, params url.Values) {
	http.Redirect(w, r, s.cfg.FrontendURL+"/events?"+params.Encode(), http.StatusFound)
}
