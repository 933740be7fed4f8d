package server

import (
	"net/http"

	apperrors "github.com/phonetap/phonetap-server/internal/errors"
	"github.com/phonetap/phonetap-server/internal/utils"
	"github.com/rs/zerolog/log"
)

type connectionTokenResponse struct {
	Secret string `json:"secret"`
}

type locationResponse struct {
	LocationID  string `json:"locationId"`
	DisplayName string `json:"displayName"`
}

type paymentIntentRequest struct {
	Amount   *float64 `json:"amount"`
	Currency string   `json:"currency"`
}

type paymentIntentResponse struct {
	ClientSecret    string `json:"clientSecret"`
	PaymentIntentID string `json:"paymentIntentId"`
}

func (s *Server) ConnectionTokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		secret, err := s.tokens.IssueConnectionToken(r.Context())
		if err != nil {
			s.writeFailure(w, r, err, msgConnectionToken)
			return
		}
		writeJSON(w, http.StatusOK, connectionTokenResponse{Secret: secret})
	}
}

// LocationHandler resolves the location. ?refresh=true drops the cached id
// first, for when the location was deleted on the platform.
func (s *Server) LocationHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resolve := s.locations.ResolveLocation
		if r.URL.Query().Get("refresh") == "true" {
			resolve = s.locations.RefreshLocation
		}
		loc, err := resolve(r.Context())
		if err != nil {
			s.writeFailure(w, r, err, msgLocation)
			return
		}
		writeJSON(w, http.StatusOK, locationResponse{LocationID: loc.ID, DisplayName: loc.DisplayName})
	}
}

func (s *Server) PaymentIntentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req paymentIntentRequest
		if err := decodeJSON(w, r, &req); err != nil {
			log.Info().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Msg("Bad payment intent request")
			writeJSONError(w, msgInvalidBody, http.StatusBadRequest)
			return
		}
		// a missing amount is validated like zero
		ref, err := s.intents.CreateIntent(r.Context(), utils.Value(req.Amount), req.Currency)
		if err != nil {
			s.writeFailure(w, r, err, msgPaymentIntent)
			return
		}
		writeJSON(w, http.StatusOK, paymentIntentResponse{ClientSecret: ref.ClientSecret, PaymentIntentID: ref.ID})
	}
}

// writeFailure maps err onto a status and a generic message. The error itself
// has already been logged with its upstream detail by the service.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status, message := http.StatusInternalServerError, fallback
	switch {
	case apperrors.Is(err, apperrors.ErrNotConfigured):
		message = msgNotConfigured
	case apperrors.Is(err, apperrors.ErrInvalidAmount):
		status, message = http.StatusBadRequest, msgInvalidAmount
	case apperrors.Is(err, apperrors.ErrInvalidRequest):
		status, message = http.StatusBadRequest, msgInvalidCurrency
	case apperrors.Is(err, apperrors.ErrUpstreamRejectedPartial):
		message = msgOnboardingLink
	}
	log.Debug().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Int("status", status).Msg(message)
	writeJSONError(w, message, status)
}
