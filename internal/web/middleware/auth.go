package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/JonMunkholm/repsync/internal/core"
)

// ActorHeader names the acting user when API keys are not required.
const ActorHeader = "X-Actor"

// APIKeyAuth validates the X-API-Key header against keyActors (key -> actor)
// and stores the matching actor with core.ContextWithActor.
//
// With require false, no key is checked and the actor comes from the
// X-Actor header, if any. Handlers that write reject requests with no actor.
func APIKeyAuth(require bool, keyActors map[string]string) func(http.Handler) http.Handler {
	keys := make([][]byte, 0, len(keyActors))
	actors := make([]string, 0, len(keyActors))
	for k, a := range keyActors {
		keys = append(keys, []byte(k))
		actors = append(actors, a)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !require {
				if actor := strings.TrimSpace(r.Header.Get(ActorHeader)); actor != "" {
					r = r.WithContext(core.ContextWithActor(r.Context(), actor))
				}
				next.ServeHTTP(w, r)
				return
			}

			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				slog.Warn("auth: missing API key",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				writeAuthError(w, http.StatusUnauthorized, "missing API key", "AUTH_MISSING_KEY")
				return
			}

			actor, ok := matchKey([]byte(apiKey), keys, actors)
			if !ok {
				slog.Warn("auth: invalid API key",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				writeAuthError(w, http.StatusForbidden, "invalid API key", "AUTH_INVALID_KEY")
				return
			}

			next.ServeHTTP(w, r.WithContext(core.ContextWithActor(r.Context(), actor)))
		})
	}
}

// matchKey compares key against every configured key in constant time per
// key and never stops early.
func matchKey(key []byte, keys [][]byte, actors []string) (string, bool) {
	found := -1
	for i, k := range keys {
		if subtle.ConstantTimeCompare(key, k) == 1 {
			found = i
		}
	}
	if found < 0 {
		return "", false
	}
	return actors[found], true
}

func writeAuthError(w http.ResponseWriter, status int, msg, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `","code":"` + code + `"}`))
}
