// Package httpapi is the HTTP surface and the request pipeline. Every
// request passes authentication, payload validation, permission checks and
// rate limiting, in that order, before any handler runs.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"

	"worktracker.org/internal/audit"
	"worktracker.org/internal/obs"
	"worktracker.org/internal/rbac"
	"worktracker.org/internal/token"
	"worktracker.org/internal/users"
)

// ReadyProbe reports whether downstream dependencies answer.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options wires the API's dependencies. Tokens, Users and Sink are
// mandatory; the rest default to sensible single-node settings.
type Options struct {
	Tokens       *token.Manager
	Users        users.Store
	Sink         *audit.Sink
	Checker      *rbac.Checker
	Routes       *RouteTable
	Limiter      *RateLimiter
	Ready        ReadyProbe
	PublicPaths  []string
	MaxBodyBytes int64
	Version      string
}

// API is the HTTP layer.
type API struct {
	mux          *http.ServeMux
	tokens       *token.Manager
	users        users.Store
	sink         *audit.Sink
	checker      *rbac.Checker
	routes       *RouteTable
	limiter      *RateLimiter
	readyProbe   ReadyProbe
	publicPaths  []string
	maxBodyBytes int64
	version      string

	resources *resourceState
}

func New(opts Options) *API {
	a := &API{
		mux:          http.NewServeMux(),
		tokens:       opts.Tokens,
		users:        opts.Users,
		sink:         opts.Sink,
		checker:      opts.Checker,
		routes:       opts.Routes,
		limiter:      opts.Limiter,
		readyProbe:   opts.Ready,
		publicPaths:  opts.PublicPaths,
		maxBodyBytes: opts.MaxBodyBytes,
		version:      opts.Version,
		resources:    newResourceState(),
	}
	if a.checker == nil {
		a.checker = rbac.NewChecker(rbac.DefaultTable())
	}
	if a.routes == nil {
		a.routes = DefaultRouteTable()
	}
	if a.limiter == nil {
		a.limiter = NewRateLimiter(map[string]int{"default": 60, "auth": 10, "ai": 20, "heavy": 10})
	}
	if a.maxBodyBytes <= 0 {
		a.maxBodyBytes = 10 << 20
	}
	if a.publicPaths == nil {
		a.publicPaths = DefaultPublicPaths()
	}

	a.mux.HandleFunc("/healthz", a.handleHealthz)
	a.mux.HandleFunc("/readyz", a.handleReadyz)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/api/auth/login", a.handleLogin)
	a.mux.HandleFunc("/api/auth/register", a.handleRegister)
	a.mux.HandleFunc("/api/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/api/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/api/auth/logout-all", a.handleLogoutAll)
	a.mux.HandleFunc("/api/auth/me", a.handleMe)

	a.mux.HandleFunc("/api/employees", a.handleEmployees)
	a.mux.HandleFunc("/api/employees/", a.handleEmployeeResource)
	a.mux.HandleFunc("/api/time/clock-in", a.handleClockIn)
	a.mux.HandleFunc("/api/time/clock-out", a.handleClockOut)
	a.mux.HandleFunc("/api/time/entries", a.handleTimeEntries)
	a.mux.HandleFunc("/api/time/entries/", a.handleTimeEntryResource)
	a.mux.HandleFunc("/api/payroll", a.handlePayroll)
	a.mux.HandleFunc("/api/payroll/run", a.handlePayrollRun)
	a.mux.HandleFunc("/api/reports", a.handleReports)
	a.mux.HandleFunc("/api/reports/generate", a.handleReportGenerate)
	a.mux.HandleFunc("/api/reports/export", a.handleReportExport)
	a.mux.HandleFunc("/api/dashboard", a.handleDashboard)
	a.mux.HandleFunc("/api/ai/insights", a.handleAIInsights)
	a.mux.HandleFunc("/api/admin/settings", a.handleAdminSettings)
	a.mux.HandleFunc("/api/admin/users", a.handleAdminUsers)
	a.mux.HandleFunc("/api/admin/audit", a.handleAuditQuery)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler assembles the full pipeline around the mux. Order matters:
// observability wraps everything, then authentication, validation,
// permissions and rate limiting run front to back.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withRateLimit(h)
	h = a.withPermissions(h)
	h = a.withValidation(h)
	h = a.withAuth(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "worktracker-api",
		"version": a.version,
	})
}

func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}
