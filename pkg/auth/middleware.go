// Package auth provides API-key authentication for the session endpoint.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/ateeducacion/omeka-s-WebMCP/pkg/types"
)

type contextKey string

const principalKey contextKey = "principal"

// PrincipalFromContext extracts the authenticated principal name from the context.
func PrincipalFromContext(ctx context.Context) string {
	v, _ := ctx.Value(principalKey).(string)
	return v
}

// APIKeyAuth returns middleware that validates API keys and sets the
// principal on the request context.
func APIKeyAuth(keys *KeyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				// Also check Authorization: Bearer
				auth := r.Header.Get("Authorization")
				if strings.HasPrefix(auth, "Bearer ") {
					apiKey = strings.TrimPrefix(auth, "Bearer ")
				}
			}

			if apiKey == "" {
				types.Fail(types.ErrUnauthorized("missing API key")).WriteJSON(w)
				return
			}

			principal, ok := keys.Lookup(apiKey)
			if !ok {
				types.Fail(types.ErrUnauthorized("invalid API key")).WriteJSON(w)
				return
			}

			ctx := context.WithValue(r.Context(), principalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
