package server

import (
	"encoding/json"
	"net/http"

	"github.com/modelgate/modelgate/internal/api/openai"
	"github.com/modelgate/modelgate/internal/auth"
)

// AuthMiddleware validates the service key on every request. If the
// authenticator is nil the middleware is a no-op. Errors are returned in the
// client protocol's error envelope.
func AuthMiddleware(authenticator *auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, err := auth.ExtractKey(r)
			if err != nil {
				writeAuthError(w, err.Error())
				return
			}

			if err := authenticator.Validate(key); err != nil {
				writeAuthError(w, "invalid service key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeAuthError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(openai.ErrorResponse{
		Error: &openai.APIError{
			Message: message,
			Type:    "authentication_error",
		},
	})
}
