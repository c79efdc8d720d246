package mongostore

import (
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/timesheet-app/timesheet/internal/db/repositories"
)

// searchFields are matched by the free-text search filter.
var searchFields = []string{"userEmail", "userName", "message", "resource", "errorMessage"}

// contains matches s anywhere in a field, case-insensitively and literally.
func contains(s string) primitive.Regex {
	return primitive.Regex{Pattern: regexp.QuoteMeta(s), Options: "i"}
}

// buildFilter translates AuditFilters into a query document.
func buildFilter(f repositories.AuditFilters) bson.M {
	filter := bson.M{}

	if f.UserID != nil {
		filter["userId"] = *f.UserID
	}
	if f.Action != nil {
		filter["action"] = *f.Action
	}
	if f.Status != nil {
		filter["status"] = *f.Status
	}
	if f.Resource != nil {
		if f.ResourceExact {
			filter["resource"] = *f.Resource
		} else {
			filter["resource"] = contains(*f.Resource)
		}
	}

	created := bson.M{}
	if f.StartDate != nil {
		created["$gte"] = *f.StartDate
	}
	if f.EndDate != nil {
		created["$lte"] = *f.EndDate
	}
	if f.CreatedBefore != nil {
		created["$lt"] = *f.CreatedBefore
	}
	if len(created) > 0 {
		filter["createdAt"] = created
	}

	if f.Search != nil && *f.Search != "" {
		re := contains(*f.Search)
		or := make(bson.A, 0, len(searchFields))
		for _, field := range searchFields {
			or = append(or, bson.M{field: re})
		}
		filter["$or"] = or
	}

	return filter
}
