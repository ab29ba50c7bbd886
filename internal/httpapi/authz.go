package httpapi

import (
	"net/http"
	"strings"

	"worktracker.org/internal/rbac"
	"worktracker.org/internal/token"
)

// Rule binds one method and path pattern to a required permission. Pattern
// segments of the form {name} match any single path segment.
type Rule struct {
	Method     string
	Pattern    string
	Permission rbac.Permission
}

// RouteTable resolves which permission a request needs. Routes without an
// entry require authentication only.
type RouteTable struct {
	exact    map[string]rbac.Permission
	wildcard []Rule
}

func NewRouteTable(rules []Rule) *RouteTable {
	t := &RouteTable{exact: make(map[string]rbac.Permission)}
	for _, rule := range rules {
		if strings.Contains(rule.Pattern, "{") {
			t.wildcard = append(t.wildcard, rule)
			continue
		}
		t.exact[rule.Method+" "+rule.Pattern] = rule.Permission
	}
	return t
}

// Required returns the permission guarding method+path, if any. Exact
// patterns win over wildcard ones.
func (t *RouteTable) Required(method, path string) (rbac.Permission, bool) {
	if perm, ok := t.exact[method+" "+path]; ok {
		return perm, true
	}
	segments := splitPath(path)
	for _, rule := range t.wildcard {
		if rule.Method != method {
			continue
		}
		if matchSegments(splitPath(rule.Pattern), segments) {
			return rule.Permission, true
		}
	}
	return "", false
}

func splitPath(path string) []string {
	return strings.Split(strings.Trim(path, "/"), "/")
}

func matchSegments(pattern, actual []string) bool {
	if len(pattern) != len(actual) {
		return false
	}
	for i, seg := range pattern {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			if actual[i] == "" {
				return false
			}
			continue
		}
		if seg != actual[i] {
			return false
		}
	}
	return true
}

// DefaultRouteTable maps the guarded resource surface to permissions.
func DefaultRouteTable() *RouteTable {
	return NewRouteTable([]Rule{
		{http.MethodPost, "/api/employees", rbac.PermEmployeeCreate},
		{http.MethodGet, "/api/employees", rbac.PermEmployeeRead},
		{http.MethodGet, "/api/employees/{id}", rbac.PermEmployeeRead},
		{http.MethodPut, "/api/employees/{id}", rbac.PermEmployeeUpdate},
		{http.MethodDelete, "/api/employees/{id}", rbac.PermEmployeeDelete},

		{http.MethodPost, "/api/time/clock-in", rbac.PermTimeCreate},
		{http.MethodPost, "/api/time/clock-out", rbac.PermTimeUpdate},
		{http.MethodGet, "/api/time/entries", rbac.PermTimeRead},
		{http.MethodPost, "/api/time/entries/{id}/approve", rbac.PermTimeApprove},

		{http.MethodGet, "/api/payroll", rbac.PermPayrollRead},
		{http.MethodPost, "/api/payroll/run", rbac.PermPayrollRun},

		{http.MethodGet, "/api/reports", rbac.PermReportView},
		{http.MethodPost, "/api/reports/generate", rbac.PermReportCreate},
		{http.MethodGet, "/api/reports/export", rbac.PermReportExport},
		{http.MethodGet, "/api/dashboard", rbac.PermReportView},

		{http.MethodGet, "/api/admin/settings", rbac.PermAdminSettings},
		{http.MethodPut, "/api/admin/settings", rbac.PermAdminSettings},
		{http.MethodGet, "/api/admin/audit", rbac.PermAdminSecurity},
		{http.MethodPost, "/api/admin/users", rbac.PermUserCreate},

		{http.MethodGet, "/api/ai/insights", rbac.PermAIViewInsights},
	})
}

// withPermissions enforces the route table against the authenticated
// caller's effective permissions. Unknown roles grant nothing, so a token
// carrying only unrecognized roles is refused here.
func (a *API) withPermissions(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		perm, guarded := a.routes.Required(r.Method, r.URL.Path)
		if !guarded {
			next.ServeHTTP(w, r)
			return
		}
		identity, ok := token.IdentityFromContext(r.Context())
		if !ok {
			a.deny(w, r, stageAuthz, http.StatusUnauthorized, "authentication required")
			return
		}
		if !a.checker.HasPermission(identity.Roles, perm) {
			a.deny(w, r, stageAuthz, http.StatusForbidden, "insufficient permissions")
			return
		}
		next.ServeHTTP(w, r)
	})
}
