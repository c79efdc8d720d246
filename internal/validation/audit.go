package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/timesheet-app/timesheet/internal/db/models"
)

// DateLayout is the date-only form accepted for startDate and endDate.
const DateLayout = "2006-01-02"

// resourceRe matches the lowercase nouns the classifier derives from paths.
var resourceRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

var customMessages = map[string]func(fe validator.FieldError) string{
	"audit_action": func(validator.FieldError) string {
		return "must be one of " + joinValues(models.AuditActions)
	},
	"audit_status": func(validator.FieldError) string {
		return "must be one of " + joinValues(models.AuditStatuses)
	},
	"isodate": func(validator.FieldError) string {
		return "must be an ISO-8601 date (YYYY-MM-DD or RFC 3339)"
	},
	"audit_resource": func(validator.FieldError) string {
		return "must be a lowercase resource name"
	},
	"entity_id": func(validator.FieldError) string {
		return "must be a valid id"
	},
}

func registerAuditValidators(v *validator.Validate) {
	// Cannot error: tags are non-empty and functions are non-nil.
	_ = v.RegisterValidation("audit_action", func(fl validator.FieldLevel) bool {
		return models.AuditAction(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("audit_status", func(fl validator.FieldLevel) bool {
		return models.AuditStatus(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
		_, err := ParseDate(fl.Field().String(), false)
		return err == nil
	})
	_ = v.RegisterValidation("audit_resource", func(fl validator.FieldLevel) bool {
		return resourceRe.MatchString(fl.Field().String())
	})
	// User ids come from the upstream API: UUIDs, ObjectIDs or integers.
	_ = v.RegisterValidation("entity_id", func(fl validator.FieldLevel) bool {
		return models.IsEntityID(fl.Field().String())
	})
}

// ParseDate accepts RFC 3339 timestamps and YYYY-MM-DD dates. A bare date is
// midnight UTC, or the last instant of that day when endOfDay is set so that
// an endDate includes the whole day.
func ParseDate(s string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func joinValues[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}
