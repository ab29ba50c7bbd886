package token

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultAccessTTL  = 30 * time.Minute
	defaultRefreshTTL = 30 * 24 * time.Hour
	defaultIssuer     = "worktracker"

	// Tolerated skew between the issuer's and verifier's clocks.
	issuedAtLeeway = 5 * time.Second
)

// Manager issues, verifies, refreshes and revokes bearer tokens.
type Manager struct {
	store         Store
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// Option configures Manager behavior.
type Option func(*Manager) error

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) Option {
	return func(m *Manager) error {
		if ttl > 0 {
			m.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) Option {
	return func(m *Manager) error {
		if ttl > 0 {
			m.refreshTTL = ttl
		}
		return nil
	}
}

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) Option {
	return func(m *Manager) error {
		issuer = strings.TrimSpace(issuer)
		if issuer != "" {
			m.issuer = issuer
		}
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(m *Manager) error {
		if fn != nil {
			m.now = fn
		}
		return nil
	}
}

// NewManager constructs a Manager. The two signing secrets must be non-empty
// and must differ so an access token can never pass refresh verification or
// vice versa.
func NewManager(store Store, accessSecret, refreshSecret string, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, errors.New("token: store is required")
	}
	accessSecret = strings.TrimSpace(accessSecret)
	refreshSecret = strings.TrimSpace(refreshSecret)
	if accessSecret == "" || refreshSecret == "" {
		return nil, errors.New("token: both signing secrets are required")
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("token: access and refresh secrets must differ")
	}
	m := &Manager{
		store:         store,
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		issuer:        defaultIssuer,
		accessTTL:     defaultAccessTTL,
		refreshTTL:    defaultRefreshTTL,
		now:           time.Now,
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// AccessTTL returns the configured access token lifetime.
func (m *Manager) AccessTTL() time.Duration { return m.accessTTL }

// CreateAccessToken signs a short-lived claim set with the access secret and a
// fresh unique token identifier.
func (m *Manager) CreateAccessToken(subject, email string, roles []string, tenantID string) (string, time.Time, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", time.Time{}, errors.New("token: subject is required")
	}
	now := m.now().UTC()
	exp := now.Add(m.accessTTL)
	claims := Claims{
		Email:    strings.TrimSpace(email),
		Roles:    dedupeRoles(roles),
		TenantID: strings.TrimSpace(tenantID),
		Kind:     KindAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.accessSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// CreateRefreshToken signs a long-lived claim set with the refresh secret and
// records a session entry keyed by the token identifier.
func (m *Manager) CreateRefreshToken(ctx context.Context, subject, tenantID string) (string, time.Time, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", time.Time{}, errors.New("token: subject is required")
	}
	now := m.now().UTC()
	exp := now.Add(m.refreshTTL)
	jti := uuid.NewString()
	claims := Claims{
		TenantID: strings.TrimSpace(tenantID),
		Kind:     KindRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        jti,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.refreshSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	if err := m.store.CreateSession(ctx, Session{
		ID:        jti,
		Subject:   subject,
		TenantID:  strings.TrimSpace(tenantID),
		CreatedAt: now,
		ExpiresAt: exp,
	}); err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// VerifyAccessToken validates signature, expiry, kind and revocation state.
// Untrusted input resolves to ErrInvalidToken, never a panic or raw parser
// error.
func (m *Manager) VerifyAccessToken(ctx context.Context, raw string) (*Claims, error) {
	claims, err := m.parse(raw, m.accessSecret)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if claims.Kind != KindAccess {
		return nil, ErrInvalidToken
	}
	revoked, err := m.store.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyRefreshToken validates as VerifyAccessToken does for kind refresh,
// and additionally requires a live session entry: a structurally valid but
// session-less refresh token is invalid.
func (m *Manager) VerifyRefreshToken(ctx context.Context, raw string) (*Claims, error) {
	claims, err := m.parse(raw, m.refreshSecret)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if claims.Kind != KindRefresh {
		return nil, ErrInvalidToken
	}
	revoked, err := m.store.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrInvalidToken
	}
	sess, err := m.store.Session(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if m.now().After(sess.ExpiresAt) {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// RefreshAccessToken verifies the refresh token and mints a new access token
// carrying the caller-supplied current email and roles, so role changes take
// effect without forcing re-login.
func (m *Manager) RefreshAccessToken(ctx context.Context, refreshToken, email string, roles []string) (string, time.Time, error) {
	claims, err := m.VerifyRefreshToken(ctx, refreshToken)
	if err != nil {
		return "", time.Time{}, err
	}
	return m.CreateAccessToken(claims.Subject, email, roles, claims.TenantID)
}

// RevokeToken adds the token's identifier to the revocation set and removes
// any corresponding session entry. Expired tokens can still be revoked.
func (m *Manager) RevokeToken(ctx context.Context, raw string) error {
	claims, err := m.parseAnyKind(raw)
	if err != nil {
		return ErrInvalidToken
	}
	exp := m.now().Add(m.refreshTTL)
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	if err := m.store.Revoke(ctx, claims.ID, exp); err != nil {
		return err
	}
	return m.store.DeleteSession(ctx, claims.ID)
}

// RevokeAllForSubject revokes every session belonging to subject (forced
// logout-everywhere). Idempotent: a second call is a no-op.
func (m *Manager) RevokeAllForSubject(ctx context.Context, subject string) error {
	sessions, err := m.store.SessionsBySubject(ctx, subject)
	if err != nil {
		return err
	}
	for _, sess := range sessions {
		if err := m.store.Revoke(ctx, sess.ID, sess.ExpiresAt); err != nil {
			return err
		}
		if err := m.store.DeleteSession(ctx, sess.ID); err != nil {
			return err
		}
	}
	return nil
}

// CleanupExpired prunes expired sessions and stale revocation entries. Run it
// on a background timer to bound memory growth under sustained traffic.
func (m *Manager) CleanupExpired(ctx context.Context) (int, error) {
	return m.store.Compact(ctx, m.now())
}

func (m *Manager) parse(raw string, secret []byte) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if err := m.validateClaims(claims); err != nil {
		return nil, ErrInvalidToken
	}
	claims.Roles = dedupeRoles(claims.Roles)
	return claims, nil
}

// parseAnyKind decodes a token with either secret, ignoring expiry, so that
// already-expired tokens can still enter the revocation set.
func (m *Manager) parseAnyKind(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidToken
	}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	for _, secret := range [][]byte{m.accessSecret, m.refreshSecret} {
		key := secret
		parsed, err := parser.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, ErrInvalidToken
			}
			return key, nil
		})
		if err != nil {
			continue
		}
		claims, ok := parsed.Claims.(*Claims)
		if !ok || strings.TrimSpace(claims.ID) == "" {
			continue
		}
		return claims, nil
	}
	return nil, ErrInvalidToken
}

func (m *Manager) validateClaims(claims *Claims) error {
	if claims.Issuer != m.issuer {
		return errors.New("unexpected issuer")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return errors.New("subject missing")
	}
	if strings.TrimSpace(claims.ID) == "" {
		return errors.New("token id missing")
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return errors.New("timestamps missing")
	}
	now := m.now().UTC()
	if claims.IssuedAt.Time.After(now.Add(issuedAtLeeway)) {
		return errors.New("token issued in the future")
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return errors.New("token expiry precedes issued-at")
	}
	return nil
}
