package export

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/timesheet-app/timesheet/internal/db/models"
)

// JSONExporter writes records as a single indented JSON array.
type JSONExporter struct {
	w     *bufio.Writer
	count int
	open  bool
}

// NewJSONExporter creates a JSONExporter writing to w.
func NewJSONExporter(w io.Writer) *JSONExporter {
	return &JSONExporter{w: bufio.NewWriter(w)}
}

func (e *JSONExporter) Open(_ context.Context) error {
	if _, err := e.w.WriteString("["); err != nil {
		return fmt.Errorf("writing array start: %w", err)
	}
	e.open = true
	return nil
}

func (e *JSONExporter) Write(_ context.Context, record *models.AuditLog) error {
	if !e.open {
		return fmt.Errorf("exporter not opened")
	}
	data, err := json.MarshalIndent(record, "  ", "  ")
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}
	sep := "\n  "
	if e.count > 0 {
		sep = ",\n  "
	}
	if _, err := e.w.WriteString(sep); err != nil {
		return fmt.Errorf("writing separator: %w", err)
	}
	if _, err := e.w.Write(data); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}
	e.count++
	return nil
}

// Close terminates the array and flushes.
func (e *JSONExporter) Close(_ context.Context) error {
	if !e.open {
		return fmt.Errorf("exporter not opened")
	}
	end := "]\n"
	if e.count > 0 {
		end = "\n]\n"
	}
	if _, err := e.w.WriteString(end); err != nil {
		return fmt.Errorf("writing array end: %w", err)
	}
	e.open = false
	return e.w.Flush()
}

// JSONLExporter writes one JSON object per line. Retention archives use it.
type JSONLExporter struct {
	w *bufio.Writer
}

// NewJSONLExporter creates a JSONLExporter writing to w.
func NewJSONLExporter(w io.Writer) *JSONLExporter {
	return &JSONLExporter{w: bufio.NewWriter(w)}
}

func (e *JSONLExporter) Open(_ context.Context) error { return nil }

// Write marshals a record to JSON and writes it as a single line.
func (e *JSONLExporter) Write(_ context.Context, record *models.AuditLog) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}
	if _, err := e.w.Write(data); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}
	if err := e.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("writing newline: %w", err)
	}
	return nil
}

func (e *JSONLExporter) Close(_ context.Context) error {
	if err := e.w.Flush(); err != nil {
		return fmt.Errorf("flushing writer: %w", err)
	}
	return nil
}
