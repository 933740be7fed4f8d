package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/phonetap/phonetap-server/server/sessiontoken"
	"github.com/rs/zerolog/log"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeyRequestID stores the request id
	ContextKeyRequestID ContextKey = "request_id"
	// ContextKeyUserID stores the signed in merchant
	ContextKeyUserID ContextKey = "user_id"
	// ContextKeyEmail stores the signed in merchant's email
	ContextKeyEmail ContextKey = "email"
)

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ContextKeyRequestID).(string)
	return id
}

func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ContextKeyUserID).(string)
	return id
}

// RequireSession validates the bearer session token issued by the sign-in
// front end. It is a no-op until a signing key is configured.
func (s *Server) RequireSession() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if !s.config.GetRequireSession() {
				next(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeJSONError(w, msgUnauthorized, http.StatusUnauthorized)
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				writeJSONError(w, msgUnauthorized, http.StatusUnauthorized)
				return
			}

			claims, err := sessiontoken.Verify(s.config.GetSessionSigningKey(), parts[1])
			if err != nil {
				log.Info().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Msg("Rejected session token")
				writeJSONError(w, msgUnauthorized, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyUserID, claims.Subject)
			ctx = context.WithValue(ctx, ContextKeyEmail, claims.Email)
			next(w, r.WithContext(ctx))
		}
	}
}
