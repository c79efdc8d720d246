// Package jobs contains background workers that run on a schedule.
//
// The audit retention job deletes records older than the configured retention
// window, archiving them to object storage first when archiving is enabled.
// A run is idempotent: records are only deleted after their archive upload
// succeeds, so a failed run is retried in full on the next tick.
package jobs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/timesheet-app/timesheet/internal/audit/export"
	"github.com/timesheet-app/timesheet/internal/config"
	"github.com/timesheet-app/timesheet/internal/storage"
	"github.com/timesheet-app/timesheet/internal/telemetry"
)

// RetentionService is the part of the audit service the retention job drives.
type RetentionService interface {
	RetentionCutoff(daysToKeep int) time.Time
	ArchiveBefore(ctx context.Context, cutoff time.Time, w io.Writer) (*export.Result, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionResult summarises one retention run.
type RetentionResult struct {
	Cutoff      time.Time
	Archived    int
	ArchivePath string
	Deleted     int64
}

// AuditRetentionJob periodically enforces audit retention.
type AuditRetentionJob struct {
	svc      RetentionService
	archive  storage.Storage
	prefix   string
	spoolDir string
	days     int
	interval time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewAuditRetentionJob creates the job. archive may be nil, in which case
// expired records are deleted without being archived.
func NewAuditRetentionJob(svc RetentionService, archive storage.Storage, cfg *config.AuditConfig) *AuditRetentionJob {
	hours := cfg.CleanupIntervalHours
	if hours <= 0 {
		hours = 24
	}
	return &AuditRetentionJob{
		svc:      svc,
		archive:  archive,
		prefix:   cfg.Archive.Prefix,
		spoolDir: cfg.Archive.SpoolDir,
		days:     cfg.RetentionDays,
		interval: time.Duration(hours) * time.Hour,
		stopChan: make(chan struct{}),
	}
}

// Start runs retention immediately and then on every interval until ctx is
// cancelled or Stop is called. It returns at once when retention is disabled.
func (j *AuditRetentionJob) Start(ctx context.Context) {
	if j.days <= 0 {
		slog.Info("audit retention job disabled", "retention_days", j.days)
		return
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	slog.Info("audit retention job started",
		"interval", j.interval, "retention_days", j.days, "archive", j.archive != nil)

	j.runLogged(ctx)
	for {
		select {
		case <-ticker.C:
			j.runLogged(ctx)
		case <-j.stopChan:
			slog.Info("audit retention job stopped")
			return
		case <-ctx.Done():
			slog.Info("audit retention job context cancelled")
			return
		}
	}
}

// Stop signals the loop to exit. It is safe to call more than once.
func (j *AuditRetentionJob) Stop() {
	j.stopOnce.Do(func() { close(j.stopChan) })
}

func (j *AuditRetentionJob) runLogged(ctx context.Context) {
	res, err := j.RunOnce(ctx)
	if err != nil {
		slog.Error("audit retention run failed", "error", err)
		return
	}
	slog.Info("audit retention run completed",
		"cutoff", res.Cutoff, "archived", res.Archived, "archive_path", res.ArchivePath, "deleted", res.Deleted)
}

// RunOnce performs a single retention pass. Archiving and deletion share one
// cutoff so nothing is deleted that was not archived.
func (j *AuditRetentionJob) RunOnce(ctx context.Context) (*RetentionResult, error) {
	res := &RetentionResult{Cutoff: j.svc.RetentionCutoff(j.days)}

	if j.archive != nil {
		if err := j.archiveBefore(ctx, res); err != nil {
			return nil, err
		}
	}

	deleted, err := j.svc.DeleteBefore(ctx, res.Cutoff)
	if err != nil {
		// The records stay in the store and go into the next run's archive.
		if res.ArchivePath != "" {
			if rmErr := j.archive.Delete(ctx, res.ArchivePath); rmErr != nil {
				slog.Warn("failed to remove archive of undeleted audit logs", "path", res.ArchivePath, "error", rmErr)
			}
		}
		return nil, fmt.Errorf("failed to delete expired audit logs: %w", err)
	}
	res.Deleted = deleted
	return res, nil
}

// archiveBefore spools expired records to a temporary file and uploads it as
// one object, so memory use does not grow with the size of the backlog.
func (j *AuditRetentionJob) archiveBefore(ctx context.Context, res *RetentionResult) error {
	spool, err := os.CreateTemp(j.spoolDir, "audit-archive-*.jsonl")
	if err != nil {
		return fmt.Errorf("failed to create archive spool file: %w", err)
	}
	defer func() {
		_ = spool.Close()
		_ = os.Remove(spool.Name())
	}()

	exported, err := j.svc.ArchiveBefore(ctx, res.Cutoff, spool)
	if err != nil {
		return fmt.Errorf("failed to read expired audit logs: %w", err)
	}
	if exported.ExportedEntries == 0 {
		return nil
	}

	size, err := spool.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("failed to size archive spool file: %w", err)
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind archive spool file: %w", err)
	}

	path := storage.ArchivePath(j.prefix, res.Cutoff)
	if _, err := j.archive.Upload(ctx, path, spool, size); err != nil {
		telemetry.AuditArchiveUploadsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to upload audit archive %s: %w", path, err)
	}
	telemetry.AuditArchiveUploadsTotal.WithLabelValues("success").Inc()

	res.Archived = exported.ExportedEntries
	res.ArchivePath = path
	return nil
}
