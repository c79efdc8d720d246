// Package export renders audit records for download and archival. Run pages
// through a Fetcher and hands each record to a pluggable Exporter.
package export

import (
	"context"

	"github.com/timesheet-app/timesheet/internal/db/models"
)

// Fetcher returns one page of records starting at offset, and the total
// number of records the export will cover.
type Fetcher func(ctx context.Context, limit int, offset int) ([]*models.AuditLog, int, error)

// Exporter writes records to a destination.
type Exporter interface {
	Open(ctx context.Context) error
	Write(ctx context.Context, record *models.AuditLog) error
	Close(ctx context.Context) error
}

// Result summarizes a finished export.
type Result struct {
	TotalEntries    int
	ExportedEntries int
}

// Format is an export file format.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
)
