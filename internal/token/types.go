package token

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token kinds. Access and refresh tokens are signed with different secrets
// and are never interchangeable.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

// Claims is the signed claim set carried inside a bearer token.
type Claims struct {
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	TenantID string   `json:"tenant_id,omitempty"`
	Kind     string   `json:"kind"`
	jwt.RegisteredClaims
}

// Session is the server-side record backing a refresh token. It is created
// when the refresh token is issued and deleted on revocation, expiry or
// rotation.
type Session struct {
	ID        string
	Subject   string
	TenantID  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Identity is the verified caller attached to the request context by the
// authentication stage.
type Identity struct {
	Subject  string
	Email    string
	TenantID string
	Roles    []string
	TokenID  string
}

type identityContextKey struct{}
type rawTokenContextKey struct{}

// ContextWithIdentity attaches the authenticated identity to the context.
func ContextWithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, &identity)
}

// IdentityFromContext extracts the authenticated identity from the context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	v, ok := ctx.Value(identityContextKey{}).(*Identity)
	if !ok || v == nil {
		return Identity{}, false
	}
	return *v, true
}

// ContextWithRawToken stores the presented bearer token inside the context so
// logout can revoke it.
func ContextWithRawToken(ctx context.Context, raw string) context.Context {
	if raw == "" {
		return ctx
	}
	return context.WithValue(ctx, rawTokenContextKey{}, raw)
}

// RawTokenFromContext returns the bearer token if it was previously attached.
func RawTokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(rawTokenContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func dedupeRoles(roles []string) []string {
	if len(roles) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(roles))
	var normalized []string
	for _, role := range roles {
		role = strings.TrimSpace(strings.ToLower(role))
		if role == "" {
			continue
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		normalized = append(normalized, role)
	}
	return normalized
}
