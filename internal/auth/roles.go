package auth

import "strings"

// Roles issued by the timesheet API.
const (
	RoleAdmin    = "admin"
	RoleManager  = "manager"
	RoleEmployee = "employee"
)

// HasRole reports whether role is one of allowed. Comparison ignores case.
func HasRole(role string, allowed []string) bool {
	if role == "" {
		return false
	}
	for _, a := range allowed {
		if strings.EqualFold(role, a) {
			return true
		}
	}
	return false
}
