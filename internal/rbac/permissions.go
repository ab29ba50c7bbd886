package rbac

// Permission is a fine-grained capability key.
type Permission string

const (
	PermUserCreate Permission = "user:create"
	PermUserRead   Permission = "user:read"
	PermUserUpdate Permission = "user:update"
	PermUserDelete Permission = "user:delete"

	PermEmployeeCreate Permission = "employee:create"
	PermEmployeeRead   Permission = "employee:read"
	PermEmployeeUpdate Permission = "employee:update"
	PermEmployeeDelete Permission = "employee:delete"

	PermTimeCreate  Permission = "time:create"
	PermTimeRead    Permission = "time:read"
	PermTimeUpdate  Permission = "time:update"
	PermTimeDelete  Permission = "time:delete"
	PermTimeApprove Permission = "time:approve"

	PermPayrollCreate Permission = "payroll:create"
	PermPayrollRead   Permission = "payroll:read"
	PermPayrollUpdate Permission = "payroll:update"
	PermPayrollDelete Permission = "payroll:delete"
	PermPayrollRun    Permission = "payroll:run"

	PermReportView   Permission = "report:view"
	PermReportExport Permission = "report:export"
	PermReportCreate Permission = "report:create"

	PermAdminSettings Permission = "admin:settings"
	PermAdminBilling  Permission = "admin:billing"
	PermAdminUsers    Permission = "admin:users"
	PermAdminSecurity Permission = "admin:security"

	PermAIConfigure    Permission = "ai:configure"
	PermAIViewInsights Permission = "ai:view_insights"
	PermAIOverride     Permission = "ai:override"
)

// Role names form a closed set; unknown names grant nothing.
const (
	RoleSuperAdmin = "super_admin"
	RoleAdmin      = "admin"
	RoleManager    = "manager"
	RoleHR         = "hr"
	RoleEmployee   = "employee"
	RoleAccountant = "accountant"
	RoleAuditor    = "auditor"
)

// AllPermissions returns the full catalog.
func AllPermissions() []Permission {
	return []Permission{
		PermUserCreate, PermUserRead, PermUserUpdate, PermUserDelete,
		PermEmployeeCreate, PermEmployeeRead, PermEmployeeUpdate, PermEmployeeDelete,
		PermTimeCreate, PermTimeRead, PermTimeUpdate, PermTimeDelete, PermTimeApprove,
		PermPayrollCreate, PermPayrollRead, PermPayrollUpdate, PermPayrollDelete, PermPayrollRun,
		PermReportView, PermReportExport, PermReportCreate,
		PermAdminSettings, PermAdminBilling, PermAdminUsers, PermAdminSecurity,
		PermAIConfigure, PermAIViewInsights, PermAIOverride,
	}
}
