package export

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

// ProgressFunc is called after each batch with the running exported count and total.
type ProgressFunc func(exported int, total int)

// Run paginates through audit records and writes each to the exporter.
func Run(
	ctx context.Context,
	logger *slog.Logger,
	fetcher Fetcher,
	exporter Exporter,
	batchSize int,
	onProgress ProgressFunc,
) (*Result, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	if err := exporter.Open(ctx); err != nil {
		return nil, fmt.Errorf("opening exporter: %w", err)
	}

	defer func() {
		if closeErr := exporter.Close(ctx); closeErr != nil {
			logger.Error("closing exporter", slog.String("error", closeErr.Error()))
		}
	}()

	result := &Result{}
	offset := 0

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		records, total, err := fetcher(ctx, batchSize, offset)
		if err != nil {
			return result, fmt.Errorf("fetching records at offset %d: %w", offset, err)
		}

		result.TotalEntries = total

		for _, record := range records {
			if err := exporter.Write(ctx, record); err != nil {
				return result, fmt.Errorf("writing record: %w", err)
			}
			result.ExportedEntries++
		}

		if onProgress != nil {
			onProgress(result.ExportedEntries, total)
		}

		offset += len(records)
		if offset >= total || len(records) == 0 {
			break
		}
	}

	return result, nil
}

// New returns the exporter for format writing to w.
func New(format Format, w io.Writer) (Exporter, error) {
	switch format {
	case FormatCSV:
		return NewCSVExporter(w), nil
	case FormatJSON:
		return NewJSONExporter(w), nil
	case FormatJSONL:
		return NewJSONLExporter(w), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// Filename is the attachment name used for a download in format.
func Filename(format Format) string {
	return "audit-logs." + string(format)
}

// ContentType is the MIME type of format.
func ContentType(format Format) string {
	switch format {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatJSONL:
		return "application/x-ndjson"
	default:
		return "application/json; charset=utf-8"
	}
}
