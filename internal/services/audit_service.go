// Package services implements the audit query and reporting layer on top of
// a pluggable audit store: filtered pagination, statistics, export, identity
// reconciliation and retention cleanup.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/timesheet-app/timesheet/internal/audit/export"
	"github.com/timesheet-app/timesheet/internal/db/models"
	"github.com/timesheet-app/timesheet/internal/db/repositories"
	"github.com/timesheet-app/timesheet/internal/telemetry"
)

// Retention bounds accepted by Cleanup.
const (
	DefaultRetentionDays = 90
	MinRetentionDays     = 1
	MaxRetentionDays     = 365
)

// DefaultExportLimit caps exports when no limit is configured.
const DefaultExportLimit = 10000

// Placeholders shown when neither the live user nor the stored record carries a value.
const (
	UnknownUserName  = "Unknown User"
	UnknownUserEmail = "No Email"
)

const exportBatchSize = 500

var (
	ErrNotFound         = errors.New("audit log not found")
	ErrInvalidID        = errors.New("invalid audit log id")
	ErrInvalidRetention = fmt.Errorf("daysToKeep must be an integer between %d and %d", MinRetentionDays, MaxRetentionDays)
)

// AuditStore persists and queries audit records. The PostgreSQL repository
// and the Mongo store both satisfy it.
type AuditStore interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
	ListAuditLogs(ctx context.Context, filters repositories.AuditFilters, limit, offset int) ([]*models.AuditLog, int, error)
	GetAuditLog(ctx context.Context, id string) (*models.AuditLog, error)
	GetAuditStats(ctx context.Context, start, end *time.Time) (*models.AuditStats, error)
	DeleteAuditLogsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Ping(ctx context.Context) error
}

// UserDirectory looks up current user identities.
type UserDirectory interface {
	GetUsersByIDs(ctx context.Context, ids []string) (map[string]*models.User, error)
}

// AuditService serves audit records back to elevated callers.
type AuditService struct {
	store       AuditStore
	users       UserDirectory
	exportLimit int
	now         func() time.Time
}

// NewAuditService creates an AuditService. users may be nil, in which case
// records keep the identity captured at write time.
func NewAuditService(store AuditStore, users UserDirectory, exportLimit int) *AuditService {
	if exportLimit <= 0 {
		exportLimit = DefaultExportLimit
	}
	return &AuditService{
		store:       store,
		users:       users,
		exportLimit: exportLimit,
		now:         time.Now,
	}
}

// Record persists one audit record and observes the write.
func (s *AuditService) Record(ctx context.Context, log *models.AuditLog) error {
	start := time.Now()
	err := s.store.CreateAuditLog(ctx, log)
	telemetry.AuditWriteDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		telemetry.AuditWriteFailuresTotal.Inc()
		return err
	}
	telemetry.AuditRecordsTotal.WithLabelValues(string(log.Action), string(log.Status)).Inc()
	return nil
}

// List returns one page of records matching filters, newest first.
func (s *AuditService) List(ctx context.Context, filters repositories.AuditFilters, page, limit int) (*models.AuditLogPage, error) {
	if page < 1 {
		page = 1
	}
	logs, total, err := s.store.ListAuditLogs(ctx, filters, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	s.reconcile(ctx, logs)
	return models.NewAuditLogPage(logs, total, page, limit), nil
}

// Stats aggregates records created within the optional [start, end] range.
func (s *AuditService) Stats(ctx context.Context, start, end *time.Time) (*models.AuditStats, error) {
	stats, err := s.store.GetAuditStats(ctx, start, end)
	if err != nil {
		return nil, err
	}
	s.reconcile(ctx, stats.RecentFailures)
	return stats, nil
}

// GetByID returns ErrInvalidID for a malformed id and ErrNotFound when no record exists.
func (s *AuditService) GetByID(ctx context.Context, id string) (*models.AuditLog, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrInvalidID
	}
	log, err := s.store.GetAuditLog(ctx, id)
	if err != nil {
		return nil, err
	}
	if log == nil {
		return nil, ErrNotFound
	}
	s.reconcile(ctx, []*models.AuditLog{log})
	return log, nil
}

// Export writes the most recent matching records, up to the export limit, to
// w in format. The export is pinned to records created before it started, so
// writes landing between batches cannot shift the offset window.
func (s *AuditService) Export(ctx context.Context, filters repositories.AuditFilters, format export.Format, w io.Writer) (*export.Result, error) {
	exporter, err := export.New(format, w)
	if err != nil {
		return nil, err
	}

	snapshot := s.now().UTC()
	if filters.EndDate == nil || filters.EndDate.After(snapshot) {
		filters.EndDate = &snapshot
	}

	fetcher := func(ctx context.Context, limit, offset int) ([]*models.AuditLog, int, error) {
		remaining := s.exportLimit - offset
		if remaining <= 0 {
			return nil, s.exportLimit, nil
		}
		if limit > remaining {
			limit = remaining
		}
		logs, total, err := s.store.ListAuditLogs(ctx, filters, limit, offset)
		if err != nil {
			return nil, 0, err
		}
		if total > s.exportLimit {
			total = s.exportLimit
		}
		s.reconcile(ctx, logs)
		return logs, total, nil
	}

	return export.Run(ctx, slog.Default(), fetcher, exporter, exportBatchSize, nil)
}

// ArchiveBefore streams every record created before cutoff to w as JSON lines.
func (s *AuditService) ArchiveBefore(ctx context.Context, cutoff time.Time, w io.Writer) (*export.Result, error) {
	filters := repositories.AuditFilters{CreatedBefore: &cutoff}
	fetcher := func(ctx context.Context, limit, offset int) ([]*models.AuditLog, int, error) {
		return s.store.ListAuditLogs(ctx, filters, limit, offset)
	}
	return export.Run(ctx, slog.Default(), fetcher, export.NewJSONLExporter(w), exportBatchSize, nil)
}

// ValidateRetention checks that daysToKeep is within the accepted range.
func ValidateRetention(daysToKeep int) error {
	if daysToKeep < MinRetentionDays || daysToKeep > MaxRetentionDays {
		return ErrInvalidRetention
	}
	return nil
}

// RetentionCutoff is the instant before which records are older than daysToKeep.
func (s *AuditService) RetentionCutoff(daysToKeep int) time.Time {
	return s.now().UTC().AddDate(0, 0, -daysToKeep)
}

// Cleanup deletes records older than daysToKeep days and returns how many were removed.
func (s *AuditService) Cleanup(ctx context.Context, daysToKeep int) (int64, error) {
	if err := ValidateRetention(daysToKeep); err != nil {
		return 0, err
	}
	return s.DeleteBefore(ctx, s.RetentionCutoff(daysToKeep))
}

// DeleteBefore removes every record created before cutoff.
func (s *AuditService) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	deleted, err := s.store.DeleteAuditLogsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	telemetry.AuditCleanupDeletedTotal.Add(float64(deleted))
	slog.Info("audit cleanup completed", "cutoff", cutoff, "deleted", deleted)
	return deleted, nil
}

// Ping checks the underlying store.
func (s *AuditService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// reconcile replaces stored display identity with the live user record when
// one exists, and fills placeholders for anything still empty. A failing
// lookup is logged and leaves the stored values in place.
func (s *AuditService) reconcile(ctx context.Context, logs []*models.AuditLog) {
	if len(logs) == 0 {
		return
	}

	var users map[string]*models.User
	if s.users != nil {
		seen := make(map[string]struct{})
		ids := make([]string, 0)
		for _, log := range logs {
			if log.UserID == nil || *log.UserID == "" {
				continue
			}
			if _, ok := seen[*log.UserID]; ok {
				continue
			}
			seen[*log.UserID] = struct{}{}
			ids = append(ids, *log.UserID)
		}
		if len(ids) > 0 {
			var err error
			users, err = s.users.GetUsersByIDs(ctx, ids)
			if err != nil {
				slog.Warn("failed to resolve audit users", "error", err, "count", len(ids))
				users = nil
			}
		}
	}

	for _, log := range logs {
		if log.UserID != nil {
			if u := users[*log.UserID]; u != nil {
				if u.Name != "" {
					log.UserName = u.Name
				}
				if u.Email != "" {
					log.UserEmail = u.Email
				}
			}
		}
		if log.UserName == "" {
			log.UserName = UnknownUserName
		}
		if log.UserEmail == "" {
			log.UserEmail = UnknownUserEmail
		}
	}
}
