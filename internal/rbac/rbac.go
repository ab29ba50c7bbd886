package rbac

import (
	"sort"
	"strings"
)

// RoleTable resolves a role name to the permissions it grants. Implementations
// must be safe for concurrent reads; the default table is immutable
// configuration data. A tenant-specific override can wrap this interface
// without touching the enforcement logic.
type RoleTable interface {
	PermissionsFor(role string) []Permission
}

// StaticTable is an immutable role to permission mapping.
type StaticTable struct {
	grants map[string][]Permission
}

// NewStaticTable copies the given grants into an immutable table. Role names
// are normalized to lower case.
func NewStaticTable(grants map[string][]Permission) *StaticTable {
	copied := make(map[string][]Permission, len(grants))
	for role, perms := range grants {
		role = normalizeRole(role)
		if role == "" {
			continue
		}
		list := make([]Permission, len(perms))
		copy(list, perms)
		copied[role] = list
	}
	return &StaticTable{grants: copied}
}

// PermissionsFor returns the permissions granted by role. Unknown roles grant
// nothing.
func (t *StaticTable) PermissionsFor(role string) []Permission {
	perms, ok := t.grants[normalizeRole(role)]
	if !ok {
		return nil
	}
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}

// DefaultTable is the versioned role to permission assignment shipped with the
// service.
func DefaultTable() *StaticTable {
	return NewStaticTable(map[string][]Permission{
		RoleSuperAdmin: AllPermissions(),
		RoleAdmin: {
			PermUserCreate, PermUserRead, PermUserUpdate, PermUserDelete,
			PermEmployeeCreate, PermEmployeeRead, PermEmployeeUpdate, PermEmployeeDelete,
			PermTimeRead, PermTimeApprove,
			PermPayrollRead, PermPayrollRun,
			PermReportView, PermReportExport,
			PermAdminSettings, PermAdminUsers,
			PermAIViewInsights, PermAIOverride,
		},
		RoleManager: {
			PermEmployeeRead, PermEmployeeUpdate,
			PermTimeRead, PermTimeApprove,
			PermReportView, PermReportExport,
			PermAIViewInsights,
		},
		RoleHR: {
			PermEmployeeCreate, PermEmployeeRead, PermEmployeeUpdate, PermEmployeeDelete,
			PermTimeRead,
			PermReportView, PermReportExport,
		},
		RoleEmployee: {
			PermTimeCreate, PermTimeRead, PermTimeUpdate,
			PermEmployeeRead,
		},
		RoleAccountant: {
			PermPayrollCreate, PermPayrollRead, PermPayrollUpdate, PermPayrollRun,
			PermReportView, PermReportExport,
		},
		RoleAuditor: {
			PermUserRead, PermEmployeeRead, PermTimeRead, PermPayrollRead,
			PermReportView, PermReportExport,
		},
	})
}

// Checker answers authorization queries against a role table. It is a pure
// function over configuration data; there is no I/O and no mutable state.
type Checker struct {
	table RoleTable
}

// NewChecker builds a Checker. A nil table selects the default assignment.
func NewChecker(table RoleTable) *Checker {
	if table == nil {
		table = DefaultTable()
	}
	return &Checker{table: table}
}

// HasPermission reports whether any of the roles grants perm.
func (c *Checker) HasPermission(roles []string, perm Permission) bool {
	for _, role := range roles {
		for _, granted := range c.table.PermissionsFor(role) {
			if granted == perm {
				return true
			}
		}
	}
	return false
}

// HasAny reports whether the roles grant at least one of perms.
func (c *Checker) HasAny(roles []string, perms []Permission) bool {
	for _, perm := range perms {
		if c.HasPermission(roles, perm) {
			return true
		}
	}
	return false
}

// HasAll reports whether the roles grant every one of perms.
func (c *Checker) HasAll(roles []string, perms []Permission) bool {
	for _, perm := range perms {
		if !c.HasPermission(roles, perm) {
			return false
		}
	}
	return true
}

// EffectivePermissions returns the sorted union of permissions across roles.
// Permissions are additive: a user holding several roles can do anything any
// single role allows.
func (c *Checker) EffectivePermissions(roles []string) []Permission {
	set := make(map[Permission]struct{})
	for _, role := range roles {
		for _, perm := range c.table.PermissionsFor(role) {
			set[perm] = struct{}{}
		}
	}
	out := make([]Permission, 0, len(set))
	for perm := range set {
		out = append(out, perm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SameTenant gates every resource access in addition to permission checks. A
// permission grant never implies cross-tenant access.
func SameTenant(userTenant, resourceTenant string) bool {
	userTenant = strings.TrimSpace(userTenant)
	resourceTenant = strings.TrimSpace(resourceTenant)
	if userTenant == "" || resourceTenant == "" {
		return false
	}
	return userTenant == resourceTenant
}

func normalizeRole(role string) string {
	return strings.TrimSpace(strings.ToLower(role))
}
