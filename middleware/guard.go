package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/keygatelabs/keygate"
	"github.com/keygatelabs/keygate/token"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the verified claims stored by [Guard], if any.
func ClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*token.Claims)
	return claims, ok
}

// Guard authorizes requests against the engine's route table. Paths on the
// public allowlist pass through untouched; everything else needs a valid
// bearer token whose role the route table admits. Verified claims land in
// the request context for downstream handlers.
func Guard(engine *keygate.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if engine.Permissions().IsPublic(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			tok, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := engine.VerifyToken(tok)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if !engine.Permissions().CanAccessRoute(claims.Role, r.URL.Path) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			ctx = keygate.WithActorID(ctx, claims.IdentityID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireCapability rejects requests whose verified role lacks capability.
// Must be mounted inside [Guard] so the claims are already in the context.
func RequireCapability(engine *keygate.Engine, capability string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if err := engine.Authorize(claims.Role, capability); err != nil {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	tok := value[len(bearer):]
	if tok == "" {
		return "", false
	}

	return tok, true
}
