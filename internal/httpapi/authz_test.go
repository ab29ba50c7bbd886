package httpapi

import (
	"net/http"
	"testing"

	"worktracker.org/internal/rbac"
)

func TestRouteTableExactMatch(t *testing.T) {
	table := DefaultRouteTable()

	perm, ok := table.Required(http.MethodPost, "/api/payroll/run")
	if !ok || perm != rbac.PermPayrollRun {
		t.Fatalf("expected payroll:run, got %q ok=%v", perm, ok)
	}
	perm, ok = table.Required(http.MethodGet, "/api/employees")
	if !ok || perm != rbac.PermEmployeeRead {
		t.Fatalf("expected employee:read, got %q ok=%v", perm, ok)
	}
}

func TestRouteTableWildcardMatch(t *testing.T) {
	table := DefaultRouteTable()

	perm, ok := table.Required(http.MethodPut, "/api/employees/emp-42")
	if !ok || perm != rbac.PermEmployeeUpdate {
		t.Fatalf("expected employee:update, got %q ok=%v", perm, ok)
	}
	perm, ok = table.Required(http.MethodPost, "/api/time/entries/te-9/approve")
	if !ok || perm != rbac.PermTimeApprove {
		t.Fatalf("expected time:approve, got %q ok=%v", perm, ok)
	}

	// A wildcard segment never spans multiple path segments.
	if _, ok := table.Required(http.MethodPut, "/api/employees/a/b"); ok {
		t.Fatal("two segments must not match a single {id}")
	}
}

func TestRouteTableMethodSensitive(t *testing.T) {
	table := DefaultRouteTable()

	if _, ok := table.Required(http.MethodDelete, "/api/payroll/run"); ok {
		t.Fatal("unmapped method must not inherit another method's rule")
	}
}

func TestRouteTableUnmappedRouteNeedsAuthOnly(t *testing.T) {
	table := DefaultRouteTable()

	if _, ok := table.Required(http.MethodGet, "/api/auth/me"); ok {
		t.Fatal("introspection must not require a permission")
	}
	if _, ok := table.Required(http.MethodPost, "/api/auth/logout"); ok {
		t.Fatal("logout must not require a permission")
	}
}

func TestRouteTableExactBeatsWildcard(t *testing.T) {
	table := NewRouteTable([]Rule{
		{http.MethodGet, "/api/things/{id}", rbac.PermEmployeeRead},
		{http.MethodGet, "/api/things/special", rbac.PermAdminSettings},
	})

	perm, ok := table.Required(http.MethodGet, "/api/things/special")
	if !ok || perm != rbac.PermAdminSettings {
		t.Fatalf("exact rule should win, got %q ok=%v", perm, ok)
	}
	perm, ok = table.Required(http.MethodGet, "/api/things/other")
	if !ok || perm != rbac.PermEmployeeRead {
		t.Fatalf("wildcard should match the rest, got %q ok=%v", perm, ok)
	}
}
