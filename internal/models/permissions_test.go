package models

import (
	"testing"
)

func TestResolvePermissions(t *testing.T) {
	tests := []struct {
		name    string
		role    string
		granted []string
		denied  []string
	}{
		{
			name:    "citizen",
			role:    "citizen",
			granted: []string{PermIssuesRead, PermIssuesReport, PermCommentsWrite, PermSessionsManage},
			denied:  []string{PermIssuesAssign, PermDepartmentsManage, PermReportsRead, PermEventsRead},
		},
		{
			name:    "staff",
			role:    "staff",
			granted: []string{PermIssuesRead, PermIssuesAssign, PermReportsRead, PermSessionsManage},
			denied:  []string{PermDepartmentsManage, PermEventsRead},
		},
		{
			name:    "admin",
			role:    "admin",
			granted: []string{PermIssuesAssign, PermDepartmentsManage, PermReportsRead, PermEventsRead},
			denied:  nil,
		},
		{
			name:    "unknown role falls back to citizen",
			role:    "superuser",
			granted: []string{PermIssuesRead, PermIssuesReport},
			denied:  []string{PermIssuesAssign, PermEventsRead},
		},
		{
			name:    "empty role falls back to citizen",
			role:    "",
			granted: []string{PermIssuesRead},
			denied:  []string{PermEventsRead},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			perms := ResolvePermissions(tt.role)
			for _, p := range tt.granted {
				if !perms.Has(p) {
					t.Errorf("ResolvePermissions(%q) missing %q", tt.role, p)
				}
			}
			for _, p := range tt.denied {
				if perms.Has(p) {
					t.Errorf("ResolvePermissions(%q) must not grant %q", tt.role, p)
				}
			}
		})
	}
}

func TestResolvePermissionsReturnsCopy(t *testing.T) {
	perms := ResolvePermissions("citizen")
	perms[0] = "tampered"

	if ResolvePermissions("citizen").Has("tampered") {
		t.Error("mutating a resolved set leaked into the role table")
	}
}

func TestPermissionSetHas(t *testing.T) {
	perms := PermissionSet{PermIssuesRead, PermCommentsWrite}

	if !perms.Has(PermIssuesRead) {
		t.Errorf("Has(%q) = false, want true", PermIssuesRead)
	}
	if perms.Has(PermEventsRead) {
		t.Errorf("Has(%q) = true, want false", PermEventsRead)
	}
	if (PermissionSet)(nil).Has(PermIssuesRead) {
		t.Error("nil set must not grant anything")
	}
}
