package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"worktracker.org/internal/token"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// DefaultPublicPaths lists the paths reachable without a bearer token.
// Everything else is authenticated. A trailing slash marks a prefix.
func DefaultPublicPaths() []string {
	return []string{
		"/api/auth/login",
		"/api/auth/register",
		"/api/auth/refresh",
		"/healthz",
		"/readyz",
		"/metrics",
		"/api/docs/",
	}
}

// withAuth verifies the bearer token and attaches the caller identity to the
// request context. Verification failures and store errors both terminate the
// request here; the distinction shows up as 401 vs 500 and in the audit
// outcome.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		raw, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			a.deny(w, r, stageAuthn, http.StatusUnauthorized, err.Error())
			return
		}

		claims, err := a.tokens.VerifyAccessToken(r.Context(), raw)
		if err != nil {
			if errors.Is(err, token.ErrInvalidToken) {
				a.deny(w, r, stageAuthn, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			a.fail(w, r, stageAuthn, "authentication error")
			return
		}

		identity := token.Identity{
			Subject:  claims.Subject,
			Email:    claims.Email,
			TenantID: claims.TenantID,
			Roles:    claims.Roles,
			TokenID:  claims.ID,
		}
		ctx := token.ContextWithIdentity(r.Context(), identity)
		ctx = token.ContextWithRawToken(ctx, raw)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	raw := strings.TrimSpace(header[len(bearer):])
	if raw == "" {
		return "", errors.New("missing bearer token")
	}
	return raw, nil
}

func (a *API) isPublicPath(path string) bool {
	for _, p := range a.publicPaths {
		if strings.HasSuffix(p, "/") {
			if strings.HasPrefix(path, p) || path == strings.TrimSuffix(p, "/") {
				return true
			}
			continue
		}
		if path == p {
			return true
		}
	}
	return false
}
