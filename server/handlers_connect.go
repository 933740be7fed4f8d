package server

import (
	"net/http"

	"github.com/phonetap/phonetap-server/connect"
	"github.com/rs/zerolog/log"
)

type connectAccountRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type connectAccountResponse struct {
	AccountID     string `json:"accountId"`
	OnboardingURL string `json:"onboardingUrl"`
}

// ConnectAccountHandler starts onboarding. When no email is posted the signed
// in merchant's email is used.
func (s *Server) ConnectAccountHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req connectAccountRequest
		if err := decodeJSON(w, r, &req); err != nil {
			log.Info().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Msg("Bad connect account request")
			writeJSONError(w, msgInvalidBody, http.StatusBadRequest)
			return
		}
		if req.Email == "" {
			req.Email, _ = r.Context().Value(ContextKeyEmail).(string)
		}

		result, err := s.onboarding.CreateConnectedAccount(r.Context(), req.Email, req.Name)
		if err != nil {
			s.writeFailure(w, r, err, msgAccount)
			return
		}
		writeJSON(w, http.StatusOK, connectAccountResponse{AccountID: result.AccountID, OnboardingURL: result.OnboardingURL})
	}
}

// ConnectReturnHandler reports what the onboarding redirect says. The query
// flag is the only signal; nothing is checked upstream.
func (s *Server) ConnectReturnHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		status := connect.StatusFromQuery(q.Get("success"), q.Get("refresh"))
		writeJSON(w, http.StatusOK, map[string]string{onboardingStatusJSONKey: string(status)})
	}
}
