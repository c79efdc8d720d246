package audit

import (
	"slices"
	"strings"

	"github.com/timesheet-app/timesheet/internal/auth"
	"github.com/timesheet-app/timesheet/internal/db/models"
)

// FilterOptions are the values a caller may pick from when filtering audit
// records. The dashboard renders its dropdowns from this table.
type FilterOptions struct {
	Resources []string             `json:"resources"`
	Actions   []models.AuditAction `json:"actions"`
	Statuses  []models.AuditStatus `json:"statuses"`
}

// resourcesByRole lists the resources each elevated role audits. Managers
// oversee project work but not accounts, sessions or instance settings.
var resourcesByRole = map[string][]string{
	auth.RoleAdmin: {
		"auth", "clients", "custom-fields", "projects", "reports",
		"settings", "tasks", "teams", "timesheets", "users",
	},
	auth.RoleManager: {
		"clients", "projects", "reports", "tasks", "teams", "timesheets",
	},
}

// OptionsForRole returns the filter options for role. Unknown roles get no
// resources but still see every action and status.
func OptionsForRole(role string) FilterOptions {
	return FilterOptions{
		Resources: slices.Clone(resourcesByRole[strings.ToLower(role)]),
		Actions:   slices.Clone(models.AuditActions),
		Statuses:  slices.Clone(models.AuditStatuses),
	}
}
