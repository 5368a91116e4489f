package models

// Permission constants define all valid permissions in the system
const (
	// Issue permissions
	PermIssuesRead   = "issues.read"
	PermIssuesReport = "issues.report"
	PermIssuesAssign = "issues.assign"

	// Comment permissions
	PermCommentsWrite = "comments.write"

	// Department and reporting permissions
	PermDepartmentsManage = "departments.manage"
	PermReportsRead       = "reports.read"

	// Security permissions
	PermSessionsManage = "sessions.manage"
	PermEventsRead     = "events.read"
)

// PermissionSet is the closed set of permissions granted to a session. It is
// resolved from the role exactly once, at session creation, and embedded in
// the token claims.
type PermissionSet []string

// rolePermissions is the fixed role → permission-set table. Unknown roles
// resolve to the citizen set.
var rolePermissions = map[string]PermissionSet{
	"citizen": {
		PermIssuesRead, PermIssuesReport, PermCommentsWrite, PermSessionsManage,
	},
	"staff": {
		PermIssuesRead, PermIssuesReport, PermIssuesAssign,
		PermCommentsWrite, PermReportsRead, PermSessionsManage,
	},
	"admin": {
		PermIssuesRead, PermIssuesReport, PermIssuesAssign,
		PermCommentsWrite, PermDepartmentsManage, PermReportsRead,
		PermSessionsManage, PermEventsRead,
	},
}

// ResolvePermissions returns the permission set for a role.
func ResolvePermissions(role string) PermissionSet {
	if perms, ok := rolePermissions[role]; ok {
		out := make(PermissionSet, len(perms))
		copy(out, perms)
		return out
	}
	return ResolvePermissions("citizen")
}

// Has checks whether the set grants the named permission.
func (ps PermissionSet) Has(required string) bool {
	for _, p := range ps {
		if p == required {
			return true
		}
	}
	return false
}
