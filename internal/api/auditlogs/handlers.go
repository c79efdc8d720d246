// Package auditlogs implements the /audit HTTP handlers: filtered listing,
// statistics, filter options, export, lookup by id and retention cleanup.
// Callers are authenticated and role-checked by the router before these run.
package auditlogs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/timesheet-app/timesheet/internal/audit"
	"github.com/timesheet-app/timesheet/internal/audit/export"
	"github.com/timesheet-app/timesheet/internal/db/models"
	"github.com/timesheet-app/timesheet/internal/db/repositories"
	"github.com/timesheet-app/timesheet/internal/middleware"
	"github.com/timesheet-app/timesheet/internal/services"
	"github.com/timesheet-app/timesheet/internal/validation"
)

// Service is the subset of services.AuditService the handlers call.
type Service interface {
	List(ctx context.Context, filters repositories.AuditFilters, page, limit int) (*models.AuditLogPage, error)
	Stats(ctx context.Context, start, end *time.Time) (*models.AuditStats, error)
	GetByID(ctx context.Context, id string) (*models.AuditLog, error)
	Export(ctx context.Context, filters repositories.AuditFilters, format export.Format, w io.Writer) (*export.Result, error)
	Cleanup(ctx context.Context, daysToKeep int) (int64, error)
}

// Handlers serves the audit API.
type Handlers struct {
	svc Service
	// production hides internal error detail from 500 responses
	production bool
}

// NewHandlers creates the audit handlers.
func NewHandlers(svc Service, production bool) *Handlers {
	return &Handlers{svc: svc, production: production}
}

// ListHandler lists audit logs.
// GET /audit?page=1&limit=20&userId=&resource=&action=&status=&startDate=&endDate=&search=
func (h *Handlers) ListHandler() gin.HandlerFunc {
	return h.list(nil)
}

// ListByUserHandler lists the audit logs of one user.
// GET /audit/user/:userId
func (h *Handlers) ListByUserHandler() gin.HandlerFunc {
	return h.list(func(c *gin.Context, q *ListQuery) { q.UserID = c.Param("userId") })
}

// ListByResourceHandler lists the audit logs of one resource.
// GET /audit/resource/:resource
func (h *Handlers) ListByResourceHandler() gin.HandlerFunc {
	return h.list(func(c *gin.Context, q *ListQuery) { q.Resource = c.Param("resource") })
}

func (h *Handlers) list(preset func(*gin.Context, *ListQuery)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q ListQuery
		if !bindQuery(c, &q) {
			return
		}
		if preset != nil {
			preset(c, &q)
		}
		filters, errs := q.Filters()
		if errs != nil {
			validationFailed(c, errs)
			return
		}

		page, err := h.svc.List(c.Request.Context(), filters, q.PageOrDefault(), q.LimitOrDefault())
		if err != nil {
			h.serverError(c, "Failed to retrieve audit logs", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Audit logs retrieved successfully",
			"data":    page,
		})
	}
}

// StatsHandler returns grouped counts, top users and recent failures.
// GET /audit/stats?startDate=&endDate=
func (h *Handlers) StatsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var q DateRangeQuery
		if !bindQuery(c, &q) {
			return
		}
		start, end, errs := q.Range()
		if errs != nil {
			validationFailed(c, errs)
			return
		}

		stats, err := h.svc.Stats(c.Request.Context(), start, end)
		if err != nil {
			h.serverError(c, "Failed to retrieve audit statistics", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Audit statistics retrieved successfully",
			"data":    stats,
		})
	}
}

// FiltersHandler returns the filter options for the caller's role.
// GET /audit/filters
func (h *Handlers) FiltersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		role := ""
		if id := middleware.IdentityFromContext(c); id != nil {
			role = id.Role
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Audit filter options retrieved successfully",
			"data":    audit.OptionsForRole(role),
		})
	}
}

// ExportHandler downloads matching audit logs as CSV or JSON. The resource
// filter is an exact match here.
// GET /audit/export?format=csv|json&...
func (h *Handlers) ExportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var q ExportQuery
		if !bindQuery(c, &q) {
			return
		}
		filters, errs := q.Filters()
		if errs != nil {
			validationFailed(c, errs)
			return
		}
		filters.ResourceExact = true
		format := q.FormatOrDefault()

		// Exports are capped, so the body is rendered in full before any
		// byte is sent and a failure can still produce a JSON error.
		var buf bytes.Buffer
		result, err := h.svc.Export(c.Request.Context(), filters, format, &buf)
		if err != nil {
			h.serverError(c, "Failed to export audit logs", err)
			return
		}

		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.Filename(format)))
		c.Header("X-Export-Count", fmt.Sprint(result.ExportedEntries))
		c.Data(http.StatusOK, export.ContentType(format), buf.Bytes())
	}
}

// GetHandler returns a single audit log.
// GET /audit/:id
func (h *Handlers) GetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		log, err := h.svc.GetByID(c.Request.Context(), c.Param("id"))
		switch {
		case errors.Is(err, services.ErrInvalidID):
			validationFailed(c, []validation.FieldError{{Field: "id", Message: "must be a valid id"}})
			return
		case errors.Is(err, services.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"message": "Audit log not found",
			})
			return
		case err != nil:
			h.serverError(c, "Failed to retrieve audit log", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Audit log retrieved successfully",
			"data":    log,
		})
	}
}

// CleanupRequest is the optional body of DELETE /audit/cleanup.
type CleanupRequest struct {
	DaysToKeep *int `json:"daysToKeep" validate:"omitempty,min=1,max=365"`
}

// CleanupHandler deletes audit logs older than daysToKeep (default 90).
// DELETE /audit/cleanup {"daysToKeep": 90}
func (h *Handlers) CleanupHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CleanupRequest
		if c.Request.Body != nil {
			dec := json.NewDecoder(c.Request.Body)
			if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
				validationFailed(c, []validation.FieldError{{
					Field:   "daysToKeep",
					Message: services.ErrInvalidRetention.Error(),
				}})
				return
			}
		}
		if errs := validation.Struct(req); errs != nil {
			validationFailed(c, errs)
			return
		}

		days := services.DefaultRetentionDays
		if req.DaysToKeep != nil {
			days = *req.DaysToKeep
		}

		deleted, err := h.svc.Cleanup(c.Request.Context(), days)
		if errors.Is(err, services.ErrInvalidRetention) {
			validationFailed(c, []validation.FieldError{{Field: "daysToKeep", Message: err.Error()}})
			return
		}
		if err != nil {
			h.serverError(c, "Failed to clean up audit logs", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success":      true,
			"message":      fmt.Sprintf("Deleted %d audit logs older than %d days", deleted, days),
			"deletedCount": deleted,
		})
	}
}

func validationFailed(c *gin.Context, errs []validation.FieldError) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"message": "Validation failed",
		"errors":  errs,
	})
}

func (h *Handlers) serverError(c *gin.Context, message string, err error) {
	slog.Error(message, "error", err, "request_id", middleware.RequestIDFromContext(c))
	body := gin.H{
		"success": false,
		"message": message,
	}
	if !h.production {
		body["error"] = err.Error()
	}
	c.JSON(http.StatusInternalServerError, body)
}
