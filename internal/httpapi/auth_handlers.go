package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"worktracker.org/internal/audit"
	"worktracker.org/internal/ids"
	"worktracker.org/internal/obs"
	"worktracker.org/internal/token"
	"worktracker.org/internal/users"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// registerRequest deliberately has no roles or tenant field: self-registered
// accounts never choose their own privileges or data scope. Strict decoding
// rejects payloads that try.
type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// createUserRequest is the admin-only variant; the account lands in the
// caller's tenant.
type createUserRequest struct {
	Email    string   `json:"email"`
	Password string   `json:"password"`
	Roles    []string `json:"roles"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

const minPasswordLength = 8

// invalidCredentials is deliberately shared by every login failure mode so
// responses never reveal whether the account exists.
const invalidCredentials = "invalid credentials"

// domainEvent audits an authentication lifecycle event. These are separate
// from the pipeline's access decision records and use their own event types.
func (a *API) domainEvent(r *http.Request, eventType string, outcome audit.Outcome, subject, tenantID string, details map[string]any) {
	err := a.sink.Record(r.Context(), audit.Record{
		EventType: eventType,
		Subject:   subject,
		TenantID:  tenantID,
		Resource:  r.URL.Path,
		Action:    strings.ToLower(r.Method),
		Outcome:   outcome,
		RequestID: RequestIDFromContext(r.Context()),
		Details:   details,
	})
	if err != nil {
		obs.LogError("audit record failed", map[string]any{
			"event_type": eventType,
			"err":        err.Error(),
		})
	}
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	email := users.NormalizeEmail(req.Email)
	u, err := a.users.FindByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			a.domainEvent(r, "auth.login_failed", audit.OutcomeDenied, "", "", map[string]any{"email": email})
			writeError(w, r, http.StatusUnauthorized, invalidCredentials)
			return
		}
		a.fail(w, r, stageAuthn, "login failed")
		return
	}
	if u.Status != users.StatusActive || token.VerifyPassword(u.PasswordHash, req.Password) != nil {
		a.domainEvent(r, "auth.login_failed", audit.OutcomeDenied, u.ID, u.TenantID, nil)
		writeError(w, r, http.StatusUnauthorized, invalidCredentials)
		return
	}

	access, expiresAt, err := a.tokens.CreateAccessToken(u.ID, u.Email, u.Roles, u.TenantID)
	if err != nil {
		a.fail(w, r, stageAuthn, "token issuance failed")
		return
	}
	refresh, _, err := a.tokens.CreateRefreshToken(r.Context(), u.ID, u.TenantID)
	if err != nil {
		a.fail(w, r, stageAuthn, "token issuance failed")
		return
	}

	a.domainEvent(r, "auth.login", audit.OutcomeGranted, u.ID, u.TenantID, nil)
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(time.Until(expiresAt).Seconds()),
	})
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	email := users.NormalizeEmail(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		writeError(w, r, http.StatusBadRequest, "a valid email is required")
		return
	}
	if len(req.Password) < minPasswordLength {
		writeError(w, r, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	hash, err := token.HashPassword(req.Password)
	if err != nil {
		a.fail(w, r, stageAuthn, "registration failed")
		return
	}
	// Tenant membership and any role beyond employee are granted later by an
	// admin through the user:create endpoint, never self-selected.
	u := &users.User{
		ID:           ids.New(),
		Email:        email,
		PasswordHash: hash,
		Roles:        []string{"employee"},
		Status:       users.StatusActive,
	}
	if err := a.users.Create(r.Context(), u); err != nil {
		if errors.Is(err, users.ErrAlreadyExists) {
			writeError(w, r, http.StatusConflict, "email already registered")
			return
		}
		a.fail(w, r, stageAuthn, "registration failed")
		return
	}

	a.domainEvent(r, "auth.register", audit.OutcomeGranted, u.ID, u.TenantID, map[string]any{"email": u.Email})
	writeJSON(w, http.StatusCreated, u)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	claims, err := a.tokens.VerifyRefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, token.ErrInvalidToken) {
			a.domainEvent(r, "auth.refresh_failed", audit.OutcomeDenied, "", "", nil)
			writeError(w, r, http.StatusUnauthorized, "invalid or expired refresh token")
			return
		}
		a.fail(w, r, stageAuthn, "refresh failed")
		return
	}

	// Roles are read from the registry, not the old token, so role changes
	// take effect on the next refresh.
	u, err := a.users.Find(r.Context(), claims.Subject)
	if err != nil || u.Status != users.StatusActive {
		a.domainEvent(r, "auth.refresh_failed", audit.OutcomeDenied, claims.Subject, claims.TenantID, nil)
		writeError(w, r, http.StatusUnauthorized, "invalid or expired refresh token")
		return
	}

	access, expiresAt, err := a.tokens.RefreshAccessToken(r.Context(), req.RefreshToken, u.Email, u.Roles)
	if err != nil {
		if errors.Is(err, token.ErrInvalidToken) {
			a.domainEvent(r, "auth.refresh_failed", audit.OutcomeDenied, claims.Subject, claims.TenantID, nil)
			writeError(w, r, http.StatusUnauthorized, "invalid or expired refresh token")
			return
		}
		a.fail(w, r, stageAuthn, "refresh failed")
		return
	}

	a.domainEvent(r, "auth.refresh", audit.OutcomeGranted, u.ID, u.TenantID, nil)
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: access,
		TokenType:   "bearer",
		ExpiresIn:   int64(time.Until(expiresAt).Seconds()),
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	identity, ok := token.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	if raw, ok := token.RawTokenFromContext(r.Context()); ok {
		if err := a.tokens.RevokeToken(r.Context(), raw); err != nil && !errors.Is(err, token.ErrInvalidToken) {
			a.fail(w, r, stageAuthn, "logout failed")
			return
		}
	}
	// The refresh token travels in the body since it is never a bearer header.
	var req logoutRequest
	if err := decodeJSON(w, r, &req); err == nil && req.RefreshToken != "" {
		if err := a.tokens.RevokeToken(r.Context(), req.RefreshToken); err != nil && !errors.Is(err, token.ErrInvalidToken) {
			a.fail(w, r, stageAuthn, "logout failed")
			return
		}
	}

	a.domainEvent(r, "auth.logout", audit.OutcomeGranted, identity.Subject, identity.TenantID, nil)
	writeJSON(w, http.StatusOK, map[string]any{"detail": "logged out"})
}

func (a *API) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	identity, ok := token.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := a.tokens.RevokeAllForSubject(r.Context(), identity.Subject); err != nil {
		a.fail(w, r, stageAuthn, "logout failed")
		return
	}
	if raw, ok := token.RawTokenFromContext(r.Context()); ok {
		if err := a.tokens.RevokeToken(r.Context(), raw); err != nil && !errors.Is(err, token.ErrInvalidToken) {
			a.fail(w, r, stageAuthn, "logout failed")
			return
		}
	}

	a.domainEvent(r, "auth.logout_all", audit.OutcomeGranted, identity.Subject, identity.TenantID, nil)
	writeJSON(w, http.StatusOK, map[string]any{"detail": "all sessions revoked"})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	identity, ok := token.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"subject":     identity.Subject,
		"email":       identity.Email,
		"tenant_id":   identity.TenantID,
		"roles":       identity.Roles,
		"permissions": a.checker.EffectivePermissions(identity.Roles),
	})
}
