package rbac

import (
	"testing"
)

func TestHasPermission(t *testing.T) {
	c := NewChecker(nil)

	if !c.HasPermission([]string{RoleManager}, PermTimeApprove) {
		t.Fatal("manager should approve time entries")
	}
	if c.HasPermission([]string{RoleManager}, PermPayrollRun) {
		t.Fatal("manager must not run payroll")
	}
	if c.HasPermission([]string{"intern"}, PermTimeRead) {
		t.Fatal("unknown role must grant nothing")
	}
	if c.HasPermission(nil, PermTimeRead) {
		t.Fatal("empty role set must grant nothing")
	}
}

func TestRoleNormalization(t *testing.T) {
	c := NewChecker(nil)
	if !c.HasPermission([]string{" Manager "}, PermTimeApprove) {
		t.Fatal("role lookup should be case and whitespace insensitive")
	}
}

func TestHasAnyHasAll(t *testing.T) {
	c := NewChecker(nil)
	roles := []string{RoleHR}

	if !c.HasAny(roles, []Permission{PermPayrollRun, PermEmployeeCreate}) {
		t.Fatal("HasAny should pass when one permission matches")
	}
	if c.HasAll(roles, []Permission{PermEmployeeCreate, PermPayrollRun}) {
		t.Fatal("HasAll should fail when one permission is missing")
	}
	if !c.HasAll(roles, []Permission{PermEmployeeCreate, PermEmployeeDelete}) {
		t.Fatal("HasAll should pass when every permission matches")
	}
}

func TestEffectivePermissionsAdditive(t *testing.T) {
	c := NewChecker(nil)

	manager := c.EffectivePermissions([]string{RoleManager})
	hr := c.EffectivePermissions([]string{RoleHR})
	both := c.EffectivePermissions([]string{RoleManager, RoleHR})

	union := make(map[Permission]struct{})
	for _, p := range manager {
		union[p] = struct{}{}
	}
	for _, p := range hr {
		union[p] = struct{}{}
	}
	if len(both) != len(union) {
		t.Fatalf("expected union of %d permissions, got %d", len(union), len(both))
	}
	for _, p := range both {
		if _, ok := union[p]; !ok {
			t.Fatalf("permission %s outside the role union", p)
		}
	}
	// The combined set must cover everything either role grants.
	if !c.HasPermission([]string{RoleManager, RoleHR}, PermTimeApprove) {
		t.Fatal("combined roles lost a manager permission")
	}
	if !c.HasPermission([]string{RoleManager, RoleHR}, PermEmployeeDelete) {
		t.Fatal("combined roles lost an hr permission")
	}
	if c.HasPermission([]string{RoleManager, RoleHR}, PermPayrollRun) {
		t.Fatal("combined roles gained a permission outside the union")
	}
}

func TestSuperAdminHasEverything(t *testing.T) {
	c := NewChecker(nil)
	for _, perm := range AllPermissions() {
		if !c.HasPermission([]string{RoleSuperAdmin}, perm) {
			t.Fatalf("super_admin missing %s", perm)
		}
	}
}

func TestSameTenant(t *testing.T) {
	if !SameTenant("tenant-a", "tenant-a") {
		t.Fatal("matching tenants should pass")
	}
	if SameTenant("tenant-a", "tenant-b") {
		t.Fatal("mismatched tenants must fail")
	}
	if SameTenant("", "") {
		t.Fatal("empty tenants must fail closed")
	}
}

func TestStaticTableOverride(t *testing.T) {
	table := NewStaticTable(map[string][]Permission{
		"contractor": {PermTimeCreate, PermTimeRead},
	})
	c := NewChecker(table)

	if !c.HasPermission([]string{"contractor"}, PermTimeCreate) {
		t.Fatal("override table should grant configured permission")
	}
	if c.HasPermission([]string{RoleAdmin}, PermUserCreate) {
		t.Fatal("override table must not fall back to defaults")
	}
}
