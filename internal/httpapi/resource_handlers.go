package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"worktracker.org/internal/audit"
	"worktracker.org/internal/ids"
	"worktracker.org/internal/rbac"
	"worktracker.org/internal/token"
	"worktracker.org/internal/users"
)

// Employee is a workforce record scoped to a tenant.
type Employee struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Position  string    `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

// TimeEntry is one clock-in/clock-out pair.
type TimeEntry struct {
	ID         string     `json:"id"`
	TenantID   string     `json:"tenant_id"`
	Subject    string     `json:"subject"`
	ClockIn    time.Time  `json:"clock_in"`
	ClockOut   *time.Time `json:"clock_out,omitempty"`
	Approved   bool       `json:"approved"`
	ApprovedBy string     `json:"approved_by,omitempty"`
}

// PayrollRun records one payroll execution.
type PayrollRun struct {
	ID       string    `json:"id"`
	TenantID string    `json:"tenant_id"`
	RunBy    string    `json:"run_by"`
	Period   string    `json:"period"`
	Status   string    `json:"status"`
	RanAt    time.Time `json:"ran_at"`
}

// resourceState is the in-process backing store for the guarded resource
// surface. It exists to exercise the pipeline end to end.
type resourceState struct {
	mu        sync.RWMutex
	employees map[string]*Employee
	entries   map[string]*TimeEntry
	runs      []*PayrollRun
	settings  map[string]map[string]any
}

func newResourceState() *resourceState {
	return &resourceState{
		employees: make(map[string]*Employee),
		entries:   make(map[string]*TimeEntry),
		settings:  make(map[string]map[string]any),
	}
}

// requireIdentity fetches the authenticated caller or terminates with 401.
// The authentication stage already refused anonymous traffic on guarded
// paths, so a miss here means a wiring bug rather than a hostile caller.
func (a *API) requireIdentity(w http.ResponseWriter, r *http.Request) (token.Identity, bool) {
	identity, ok := token.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
	}
	return identity, ok
}

// denyTenant refuses cross-tenant access to a concrete resource.
func (a *API) denyTenant(w http.ResponseWriter, r *http.Request, identity token.Identity) {
	a.domainEvent(r, "resource.tenant_denied", audit.OutcomeDenied, identity.Subject, identity.TenantID, nil)
	writeError(w, r, http.StatusForbidden, "resource belongs to another tenant")
}

type createEmployeeRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Position string `json:"position"`
}

func (a *API) handleEmployees(w http.ResponseWriter, r *http.Request) {
	identity, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		// Serialization happens outside the lock, so the response carries
		// copies rather than pointers into the shared map.
		a.resources.mu.RLock()
		out := make([]Employee, 0)
		for _, e := range a.resources.employees {
			if rbac.SameTenant(identity.TenantID, e.TenantID) {
				out = append(out, *e)
			}
		}
		a.resources.mu.RUnlock()
		writeJSON(w, http.StatusOK, map[string]any{"employees": out})
	case http.MethodPost:
		var req createEmployeeRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			writeError(w, r, http.StatusBadRequest, "name is required")
			return
		}
		e := &Employee{
			ID:        ids.New(),
			TenantID:  identity.TenantID,
			Name:      strings.TrimSpace(req.Name),
			Email:     users.NormalizeEmail(req.Email),
			Position:  strings.TrimSpace(req.Position),
			CreatedAt: time.Now().UTC(),
		}
		a.resources.mu.Lock()
		a.resources.employees[e.ID] = e
		a.resources.mu.Unlock()
		writeJSON(w, http.StatusCreated, e)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleEmployeeResource(w http.ResponseWriter, r *http.Request) {
	identity, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/employees/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	a.resources.mu.RLock()
	e, found := a.resources.employees[id]
	var snap Employee
	if found {
		snap = *e
	}
	a.resources.mu.RUnlock()
	if !found {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if !rbac.SameTenant(identity.TenantID, snap.TenantID) {
		a.denyTenant(w, r, identity)
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, snap)
	case http.MethodPut:
		var req createEmployeeRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		a.resources.mu.Lock()
		e, found := a.resources.employees[id]
		if !found {
			a.resources.mu.Unlock()
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		if req.Name != "" {
			e.Name = strings.TrimSpace(req.Name)
		}
		if req.Email != "" {
			e.Email = users.NormalizeEmail(req.Email)
		}
		if req.Position != "" {
			e.Position = strings.TrimSpace(req.Position)
		}
		snap = *e
		a.resources.mu.Unlock()
		writeJSON(w, http.StatusOK, snap)
	case http.MethodDelete:
		a.resources.mu.Lock()
		delete(a.resources.employees, id)
		a.resources.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) handleClockIn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	identity, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}

	a.resources.mu.Lock()
	for _, entry := range a.resources.entries {
		if entry.Subject == identity.Subject && entry.ClockOut == nil {
			a.resources.mu.Unlock()
			writeError(w, r, http.StatusConflict, "already clocked in")
			return
		}
	}
	entry := &TimeEntry{
		ID:       ids.New(),
		TenantID: identity.TenantID,
		Subject:  identity.Subject,
		ClockIn:  time.Now().UTC(),
	}
	a.resources.entries[entry.ID] = entry
	snap := *entry
	a.resources.mu.Unlock()

	writeJSON(w, http.StatusCreated, snap)
}

func (a *API) handleClockOut(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	identity, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}

	a.resources.mu.Lock()
	defer a.resources.mu.Unlock()
	for _, entry := range a.resources.entries {
		if entry.Subject == identity.Subject && entry.ClockOut == nil {
			now := time.Now().UTC()
			entry.ClockOut = &now
			writeJSON(w, http.StatusOK, entry)
			return
		}
	}
	writeError(w, r, http.StatusConflict, "no open time entry")
}

func (a *API) handleTimeEntries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	identity, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}

	a.resources.mu.RLock()
	out := make([]TimeEntry, 0)
	for _, entry := range a.resources.entries {
		if rbac.SameTenant(identity.TenantID, entry.TenantID) {
			out = append(out, *entry)
		}
	}
	a.resources.mu.RUnlock()
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

func (a *API) handleTimeEntryResource(w http.ResponseWriter, r *http.Request) {
	identity, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/time/entries/"), "/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "approve" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	a.resources.mu.Lock()
	defer a.resources.mu.Unlock()
	entry, found := a.resources.entries[parts[0]]
	if !found {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if !rbac.SameTenant(identity.TenantID, entry.TenantID) {
		a.denyTenant(w, r, identity)
		return
	}
	entry.Approved = true
	entry.ApprovedBy = identity.Subject
	writeJSON(w, http.StatusOK, entry)
}

func (a *API) handlePayroll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	identity, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}

	a.resources.mu.RLock()
	out := make([]*PayrollRun, 0)
	for _, run := range a.resources.runs {
		if rbac.SameTenant(identity.TenantID, run.TenantID) {
			out = append(out, run)
		}
	}
	a.resources.mu.RUnlock()
	writeJSON(w, http.StatusOK, map[string]any{"runs": out})
}

type payrollRunRequest struct {
	Period string `json:"period"`
}

func (a *API) handlePayrollRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	identity, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}
	var req payrollRunRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Period) == "" {
		writeError(w, r, http.StatusBadRequest, "period is required")
		return
	}

	run := &PayrollRun{
		ID:       ids.New(),
		TenantID: identity.TenantID,
		RunBy:    identity.Subject,
		Period:   strings.TrimSpace(req.Period),
		Status:   "completed",
		RanAt:    time.Now().UTC(),
	}
	a.resources.mu.Lock()
	a.resources.runs = append(a.resources.runs, run)
	a.resources.mu.Unlock()

	a.domainEvent(r, "payroll.run", audit.OutcomeGranted, identity.Subject, identity.TenantID, map[string]any{"period": run.Period})
	writeJSON(w, http.StatusCreated, run)
}

func (a *API) handleReports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	identity, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tenant_id": identity.TenantID,
		"reports":   a.tenantSummary(identity.TenantID),
	})
}

func (a *API) handleReportGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	identity, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}
	report := map[string]any{
		"id":           ids.New(),
		"tenant_id":    identity.TenantID,
		"generated_by": identity.Subject,
		"generated_at": time.Now().UTC(),
		"summary":      a.tenantSummary(identity.TenantID),
	}
	writeJSON(w, http.StatusCreated, report)
}

func (a *API) handleReportExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	identity, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tenant_id":   identity.TenantID,
		"exported_at": time.Now().UTC(),
		"summary":     a.tenantSummary(identity.TenantID),
	})
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	identity, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, a.tenantSummary(identity.TenantID))
}

func (a *API) tenantSummary(tenantID string) map[string]any {
	a.resources.mu.RLock()
	defer a.resources.mu.RUnlock()

	employees, open, approved := 0, 0, 0
	for _, e := range a.resources.employees {
		if rbac.SameTenant(tenantID, e.TenantID) {
			employees++
		}
	}
	for _, entry := range a.resources.entries {
		if !rbac.SameTenant(tenantID, entry.TenantID) {
			continue
		}
		if entry.ClockOut == nil {
			open++
		}
		if entry.Approved {
			approved++
		}
	}
	runs := 0
	for _, run := range a.resources.runs {
		if rbac.SameTenant(tenantID, run.TenantID) {
			runs++
		}
	}
	return map[string]any{
		"employees":        employees,
		"open_entries":     open,
		"approved_entries": approved,
		"payroll_runs":     runs,
	}
}

func (a *API) handleAIInsights(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	identity, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}
	summary := a.tenantSummary(identity.TenantID)
	insights := []string{}
	if summary["open_entries"].(int) > 0 {
		insights = append(insights, "open time entries awaiting clock-out")
	}
	if summary["employees"].(int) > 0 && summary["payroll_runs"].(int) == 0 {
		insights = append(insights, "no payroll run recorded for this tenant")
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tenant_id": identity.TenantID,
		"insights":  insights,
	})
}

func (a *API) handleAdminSettings(w http.ResponseWriter, r *http.Request) {
	identity, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		a.resources.mu.RLock()
		settings := a.resources.settings[identity.TenantID]
		a.resources.mu.RUnlock()
		if settings == nil {
			settings = map[string]any{}
		}
		writeJSON(w, http.StatusOK, settings)
	case http.MethodPut:
		var settings map[string]any
		if err := decodeJSON(w, r, &settings); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		a.resources.mu.Lock()
		a.resources.settings[identity.TenantID] = settings
		a.resources.mu.Unlock()
		a.domainEvent(r, "admin.settings_updated", audit.OutcomeGranted, identity.Subject, identity.TenantID, nil)
		writeJSON(w, http.StatusOK, settings)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

func (a *API) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	identity, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}
	var req createUserRequest
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
		a.fail(w, r, stageAuthz, "user creation failed")
		return
	}
	// Admin-created accounts always land in the caller's tenant.
	u := &users.User{
		ID:           ids.New(),
		Email:        email,
		PasswordHash: hash,
		TenantID:     identity.TenantID,
		Roles:        req.Roles,
		Status:       users.StatusActive,
	}
	if len(u.Roles) == 0 {
		u.Roles = []string{"employee"}
	}
	if err := a.users.Create(r.Context(), u); err != nil {
		if errors.Is(err, users.ErrAlreadyExists) {
			writeError(w, r, http.StatusConflict, "email already registered")
			return
		}
		a.fail(w, r, stageAuthz, "user creation failed")
		return
	}

	a.domainEvent(r, "admin.user_created", audit.OutcomeGranted, identity.Subject, identity.TenantID, map[string]any{"email": u.Email})
	writeJSON(w, http.StatusCreated, u)
}

func (a *API) handleAuditQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.requireIdentity(w, r); !ok {
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Subject:  q.Get("subject"),
		Resource: q.Get("resource"),
		Outcome:  audit.Outcome(q.Get("outcome")),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}

	records, err := a.sink.Query(r.Context(), filter)
	if err != nil {
		a.fail(w, r, stageAuthz, "audit query failed")
		return
	}
	if records == nil {
		records = []audit.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": records})
}
