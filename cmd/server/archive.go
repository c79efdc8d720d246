package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/timesheet-app/timesheet/internal/storage"
)

const archiveUsage = "usage: server archive <get|rm> <path>"

// runArchive reads or removes a retention archive object. get copies the
// JSONL content to out; rm deletes the object.
func runArchive(ctx context.Context, st storage.Storage, args []string, out io.Writer) error {
	if len(args) != 2 || args[1] == "" {
		return errors.New(archiveUsage)
	}
	path := args[1]

	switch args[0] {
	case "get":
		rc, err := st.Download(ctx, path)
		if err != nil {
			return fmt.Errorf("failed to download archive %s: %w", path, err)
		}
		defer rc.Close()
		if _, err := io.Copy(out, rc); err != nil {
			return fmt.Errorf("failed to read archive %s: %w", path, err)
		}
		return nil
	case "rm":
		if err := st.Delete(ctx, path); err != nil {
			return fmt.Errorf("failed to delete archive %s: %w", path, err)
		}
		return nil
	default:
		return errors.New(archiveUsage)
	}
}
