package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/edvin/hosting-billing/internal/api/response"
)

type contextKey string

const actorKey contextKey = "actor"

// ActorHeader optionally names the operator behind an admin request. It is
// recorded as suspended_by on manual suspensions.
const ActorHeader = "X-Actor"

// APIKey returns a middleware that admits requests whose X-API-Key header
// matches key. Keys are compared as SHA-256 digests in constant time.
func APIKey(key string) func(http.Handler) http.Handler {
	want := sha256.Sum256([]byte(key))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-API-Key")
			if got == "" {
				response.WriteError(w, http.StatusUnauthorized, "missing API key")
				return
			}
			sum := sha256.Sum256([]byte(got))
			if subtle.ConstantTimeCompare(sum[:], want[:]) != 1 {
				response.WriteError(w, http.StatusUnauthorized, "invalid API key")
				return
			}

			actor := "admin"
			if name := strings.TrimSpace(r.Header.Get(ActorHeader)); name != "" {
				actor = "admin:" + name
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey, actor)))
		})
	}
}

// Actor returns the operator recorded by APIKey, or "admin".
func Actor(ctx context.Context) string {
	if a, ok := ctx.Value(actorKey).(string); ok {
		return a
	}
	return "admin"
}
