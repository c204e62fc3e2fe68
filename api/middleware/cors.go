package middleware

import (
	"net/http"
	"slices"

	"github.com/go-chi/cors"
)

const corsPreflightMaxAge = 300

// CORS applies the configured origin policy for the back-office console.
// A "*" entry opens the API to any origin but then never sends credentials.
func CORS(origins []string) func(http.Handler) http.Handler {
	wildcard := slices.Contains(origins, "*")
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", idempotencyHeader, requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader, idempotentReplayHdr, "Retry-After"},
		AllowCredentials: !wildcard,
		MaxAge:           corsPreflightMaxAge,
	}).Handler
}
