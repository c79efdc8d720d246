package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"github.com/timesheet-app/timesheet/internal/db/models"
)

// UserAgentLimit is how many characters of the user agent a CSV row keeps.
const UserAgentLimit = 100

// CSVHeader is the fixed column order of CSV exports.
var CSVHeader = []string{
	"Timestamp",
	"User Name",
	"User Email",
	"Action",
	"Resource",
	"Resource ID",
	"Method",
	"Message",
	"Status",
	"IP Address",
	"User Agent",
	"Error Message",
}

// CSVExporter writes records as RFC 4180 CSV with a header row.
type CSVExporter struct {
	w      *csv.Writer
	opened bool
}

// NewCSVExporter creates a CSVExporter writing to w.
func NewCSVExporter(w io.Writer) *CSVExporter {
	return &CSVExporter{w: csv.NewWriter(w)}
}

// Open writes the header row.
func (e *CSVExporter) Open(_ context.Context) error {
	if err := e.w.Write(CSVHeader); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	e.opened = true
	return nil
}

// Write appends one row.
func (e *CSVExporter) Write(_ context.Context, record *models.AuditLog) error {
	if !e.opened {
		return fmt.Errorf("exporter not opened")
	}
	if err := e.w.Write(CSVRow(record)); err != nil {
		return fmt.Errorf("writing csv row: %w", err)
	}
	return nil
}

// Close flushes buffered rows.
func (e *CSVExporter) Close(_ context.Context) error {
	e.w.Flush()
	return e.w.Error()
}

// CSVRow renders record in CSVHeader order.
func CSVRow(record *models.AuditLog) []string {
	return []string{
		record.CreatedAt.UTC().Format(time.RFC3339),
		record.UserName,
		record.UserEmail,
		string(record.Action),
		record.Resource,
		deref(record.ResourceID),
		record.Method,
		record.Message,
		string(record.Status),
		record.IPAddress,
		truncate(record.UserAgent, UserAgentLimit),
		deref(record.ErrorMessage),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// truncate cuts s to at most n characters without splitting a rune.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
