// Package storage defines the object store used for audit archives.
//
// Before the retention job deletes expired audit records it can write them
// as a single JSON-lines object to one of the registered backends (local,
// s3, azure, gcs). Backends register themselves from init() and are selected
// by name through NewStorage; the server binary blank-imports each one.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"path"
	"strings"
	"time"
)

// ArchiveContentType is the media type of archive objects.
const ArchiveContentType = "application/x-ndjson"

// ErrNotFound is returned by Download when no object exists at the path.
var ErrNotFound = errors.New("object not found")

// Storage is implemented by every archive backend.
type Storage interface {
	// Upload stores the contents of reader at path, replacing any existing object
	Upload(ctx context.Context, path string, reader io.Reader, size int64) (*UploadResult, error)

	// Download opens the object at path. Callers must close the reader.
	Download(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes the object at path. Deleting a missing object is not an error.
	Delete(ctx context.Context, path string) error

	// Exists reports whether an object exists at path
	Exists(ctx context.Context, path string) (bool, error)
}

// UploadResult describes a stored object
type UploadResult struct {
	Path string
	Size int64
	// Checksum is the hex SHA256 of the object contents
	Checksum string
}

// Checksum returns the hex SHA256 of data.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ArchivePath returns the object path for an archive of records created before cutoff.
func ArchivePath(prefix string, cutoff time.Time) string {
	name := "audit-" + cutoff.UTC().Format("20060102T150405Z") + ".jsonl"
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}
