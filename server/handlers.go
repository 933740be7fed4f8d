package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"
)

// Messages returned to clients. Upstream detail only ever goes to the log.
const (
	msgNotConfigured        = "Stripe not configured"
	msgUnauthorized         = "Unauthorized"
	msgInvalidBody          = "Invalid request body"
	msgInvalidAmount        = "Invalid amount"
	msgInvalidCurrency      = "Invalid currency"
	msgConnectionToken      = "Failed to create connection token"
	msgLocation             = "Failed to create location"
	msgPaymentIntent        = "Failed to create payment intent"
	msgAccount              = "Failed to create Stripe account"
	msgOnboardingLink       = "Failed to create onboarding link"
	maxRequestBodyBytes     = 1 << 20
	contentTypeHeader       = "Content-Type"
	contentTypeJSON         = "application/json"
	healthStatusOK          = "ok"
	onboardingStatusJSONKey = "onboarding"
)

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":     healthStatusOK,
			"configured": s.configured,
		})
	}
}

// PreflightHandler answers OPTIONS requests that carry no Origin
func (s *Server) PreflightHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", s.config.GetAllowedMethods())
		w.WriteHeader(http.StatusNoContent)
	}
}

// decodeJSON reads an optional JSON body. An empty body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == io.EOF {
		return nil
	}
	return errors.Wrap(err, "decode request body")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set(contentTypeHeader, contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes the {"error": message} body every API failure uses
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
