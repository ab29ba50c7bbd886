package httpapi

import (
	"net/http"
	"strings"

	"worktracker.org/internal/audit"
	"worktracker.org/internal/obs"
	"worktracker.org/internal/token"
)

// Pipeline stages, in enforcement order. Each guarded request terminates in
// exactly one audit record: a denial at the first failing stage, or a single
// grant once every stage has passed.
const (
	stageAuthn     = "authn"
	stageValidate  = "validate"
	stageAuthz     = "authz"
	stageRateLimit = "rate_limit"
)

func (a *API) record(r *http.Request, stage string, outcome audit.Outcome, detail string) {
	identity, _ := token.IdentityFromContext(r.Context())
	rec := audit.Record{
		EventType: "access_" + string(outcome),
		Subject:   identity.Subject,
		TenantID:  identity.TenantID,
		Resource:  r.URL.Path,
		Action:    strings.ToLower(r.Method),
		Outcome:   outcome,
		RequestID: RequestIDFromContext(r.Context()),
		Details:   map[string]any{"stage": stage},
	}
	if detail != "" {
		rec.Details["detail"] = detail
	}
	if err := a.sink.Record(r.Context(), rec); err != nil {
		obs.LogError("audit record failed", map[string]any{
			"stage":      stage,
			"outcome":    string(outcome),
			"request_id": rec.RequestID,
			"err":        err.Error(),
		})
	}
	obs.AuthDecision(stage, string(outcome))
}

// deny terminates the request with the given status and audits the refusal.
func (a *API) deny(w http.ResponseWriter, r *http.Request, stage string, code int, detail string) {
	a.record(r, stage, audit.OutcomeDenied, detail)
	writeError(w, r, code, detail)
}

// fail terminates the request with a 500 and audits the infrastructure error.
func (a *API) fail(w http.ResponseWriter, r *http.Request, stage, detail string) {
	a.record(r, stage, audit.OutcomeError, detail)
	writeError(w, r, http.StatusInternalServerError, detail)
}

// grant audits a fully admitted request. Called once, by the last stage.
func (a *API) grant(r *http.Request) {
	a.record(r, stageRateLimit, audit.OutcomeGranted, "")
}
