package auditlogs

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/timesheet-app/timesheet/internal/audit/export"
	"github.com/timesheet-app/timesheet/internal/db/repositories"
	"github.com/timesheet-app/timesheet/internal/validation"
)

// Pagination defaults for GET /audit.
const (
	DefaultPage  = 1
	DefaultLimit = 20
)

// DateRangeQuery bounds createdAt. Both ends are inclusive.
type DateRangeQuery struct {
	StartDate string `form:"startDate" validate:"omitempty,isodate"`
	EndDate   string `form:"endDate" validate:"omitempty,isodate"`
}

// FilterQuery holds the filters shared by listing and export.
type FilterQuery struct {
	DateRangeQuery
	UserID   string `form:"userId" validate:"omitempty,entity_id"`
	Resource string `form:"resource" validate:"omitempty,audit_resource"`
	Action   string `form:"action" validate:"omitempty,audit_action"`
	Status   string `form:"status" validate:"omitempty,audit_status"`
	Search   string `form:"search" validate:"omitempty,max=200"`
}

// ListQuery is the query string of GET /audit and its aliases.
type ListQuery struct {
	FilterQuery
	Page  int `form:"page" validate:"omitempty,min=1"`
	Limit int `form:"limit" validate:"omitempty,min=1,max=100"`
}

// ExportQuery is the query string of GET /audit/export.
type ExportQuery struct {
	FilterQuery
	Format string `form:"format" validate:"omitempty,oneof=csv json jsonl"`
}

// PageOrDefault returns the requested page, defaulting to 1.
func (q ListQuery) PageOrDefault() int {
	if q.Page < 1 {
		return DefaultPage
	}
	return q.Page
}

// LimitOrDefault returns the requested page size, defaulting to 20.
func (q ListQuery) LimitOrDefault() int {
	if q.Limit < 1 {
		return DefaultLimit
	}
	return q.Limit
}

// FormatOrDefault returns the requested export format, defaulting to JSON.
func (q ExportQuery) FormatOrDefault() export.Format {
	if q.Format == "" {
		return export.FormatJSON
	}
	return export.Format(q.Format)
}

// Range validates q and parses its bounds. A date-only endDate covers the
// whole day.
func (q DateRangeQuery) Range() (start, end *time.Time, errs []validation.FieldError) {
	if errs := validation.Struct(q); errs != nil {
		return nil, nil, errs
	}
	return q.parse()
}

func (q DateRangeQuery) parse() (start, end *time.Time, errs []validation.FieldError) {
	if q.StartDate != "" {
		t, _ := validation.ParseDate(q.StartDate, false)
		start = &t
	}
	if q.EndDate != "" {
		t, _ := validation.ParseDate(q.EndDate, true)
		end = &t
	}
	if start != nil && end != nil && end.Before(*start) {
		return nil, nil, []validation.FieldError{{Field: "endDate", Message: "must not be before startDate"}}
	}
	return start, end, nil
}

// Filters validates q and converts it to store filters.
func (q ListQuery) Filters() (repositories.AuditFilters, []validation.FieldError) {
	if errs := validation.Struct(q); errs != nil {
		return repositories.AuditFilters{}, errs
	}
	return q.FilterQuery.filters()
}

// Filters validates q and converts it to store filters.
func (q ExportQuery) Filters() (repositories.AuditFilters, []validation.FieldError) {
	if errs := validation.Struct(q); errs != nil {
		return repositories.AuditFilters{}, errs
	}
	return q.FilterQuery.filters()
}

func (q FilterQuery) filters() (repositories.AuditFilters, []validation.FieldError) {
	var f repositories.AuditFilters
	start, end, errs := q.DateRangeQuery.parse()
	if errs != nil {
		return f, errs
	}
	f.StartDate, f.EndDate = start, end

	if q.UserID != "" {
		f.UserID = &q.UserID
	}
	if q.Resource != "" {
		f.Resource = &q.Resource
	}
	if q.Action != "" {
		f.Action = &q.Action
	}
	if q.Status != "" {
		f.Status = &q.Status
	}
	if q.Search != "" {
		f.Search = &q.Search
	}
	return f, nil
}

// bindQuery decodes the query string into q, answering 400 when a value
// cannot be decoded into its field type.
func bindQuery(c *gin.Context, q any) bool {
	if err := c.ShouldBindQuery(q); err != nil {
		validationFailed(c, []validation.FieldError{{Field: "query", Message: err.Error()}})
		return false
	}
	return true
}
