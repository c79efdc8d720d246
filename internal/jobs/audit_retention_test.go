package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timesheet-app/timesheet/internal/audit/export"
	"github.com/timesheet-app/timesheet/internal/config"
	"github.com/timesheet-app/timesheet/internal/storage"
	"github.com/timesheet-app/timesheet/internal/telemetry"
)

type fakeRetention struct {
	mu        sync.Mutex
	cutoff    time.Time
	records   int
	archiveAt []time.Time
	deleteAt  []time.Time
	deleteErr error
}

func (f *fakeRetention) RetentionCutoff(int) time.Time { return f.cutoff }

func (f *fakeRetention) ArchiveBefore(_ context.Context, cutoff time.Time, w io.Writer) (*export.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archiveAt = append(f.archiveAt, cutoff)
	for i := 0; i < f.records; i++ {
		fmt.Fprintf(w, "{\"id\":\"%d\"}\n", i)
	}
	return &export.Result{TotalEntries: f.records, ExportedEntries: f.records}, nil
}

func (f *fakeRetention) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteAt = append(f.deleteAt, cutoff)
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	return int64(f.records), nil
}

func (f *fakeRetention) runs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.deleteAt)
}

type memArchive struct {
	objects    map[string]string
	sizes      map[string]int64
	deleted    []string
	uploadErr  error
	uploadHook func()
}

func newMemArchive() *memArchive {
	return &memArchive{objects: map[string]string{}, sizes: map[string]int64{}}
}

func (m *memArchive) Upload(_ context.Context, path string, r io.Reader, size int64) (*storage.UploadResult, error) {
	if m.uploadHook != nil {
		m.uploadHook()
	}
	if m.uploadErr != nil {
		return nil, m.uploadErr
	}
	data, _ := io.ReadAll(r)
	m.objects[path] = string(data)
	m.sizes[path] = size
	return &storage.UploadResult{Path: path, Size: int64(len(data)), Checksum: storage.Checksum(data)}, nil
}
func (m *memArchive) Download(context.Context, string) (io.ReadCloser, error) {
	return nil, storage.ErrNotFound
}
func (m *memArchive) Delete(_ context.Context, path string) error {
	m.deleted = append(m.deleted, path)
	delete(m.objects, path)
	return nil
}
func (m *memArchive) Exists(context.Context, string) (bool, error) { return false, nil }

var testCutoff = time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

func retentionConfig() *config.AuditConfig {
	cfg := &config.AuditConfig{RetentionDays: 90, CleanupIntervalHours: 24}
	cfg.Archive.Prefix = "audit-archive"
	return cfg
}

func TestRunOnce_ArchivesThenDeletes(t *testing.T) {
	svc := &fakeRetention{cutoff: testCutoff, records: 3}
	archive := newMemArchive()
	job := NewAuditRetentionJob(svc, archive, retentionConfig())

	before := testutil.ToFloat64(telemetry.AuditArchiveUploadsTotal.WithLabelValues("success"))

	res, err := job.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Archived)
	assert.Equal(t, int64(3), res.Deleted)
	assert.Equal(t, "audit-archive/audit-20260115T000000Z.jsonl", res.ArchivePath)

	body := archive.objects[res.ArchivePath]
	assert.Equal(t, 3, strings.Count(body, "\n"))
	assert.Equal(t, []time.Time{testCutoff}, svc.archiveAt)
	assert.Equal(t, []time.Time{testCutoff}, svc.deleteAt)
	assert.Equal(t, before+1, testutil.ToFloat64(telemetry.AuditArchiveUploadsTotal.WithLabelValues("success")))
}

func TestRunOnce_NothingExpiredSkipsUpload(t *testing.T) {
	svc := &fakeRetention{cutoff: testCutoff}
	archive := newMemArchive()
	job := NewAuditRetentionJob(svc, archive, retentionConfig())

	res, err := job.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, archive.objects)
	assert.Empty(t, res.ArchivePath)
	assert.Len(t, svc.deleteAt, 1)
}

func TestRunOnce_UploadFailureKeepsRecords(t *testing.T) {
	svc := &fakeRetention{cutoff: testCutoff, records: 2}
	archive := newMemArchive()
	archive.uploadErr = errors.New("bucket unavailable")
	job := NewAuditRetentionJob(svc, archive, retentionConfig())

	before := testutil.ToFloat64(telemetry.AuditArchiveUploadsTotal.WithLabelValues("error"))

	_, err := job.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket unavailable")
	assert.Empty(t, svc.deleteAt, "records must not be deleted when the archive upload fails")
	assert.Equal(t, before+1, testutil.ToFloat64(telemetry.AuditArchiveUploadsTotal.WithLabelValues("error")))
}

func TestRunOnce_SpoolFileRemovedAfterUpload(t *testing.T) {
	cfg := retentionConfig()
	cfg.Archive.SpoolDir = t.TempDir()
	svc := &fakeRetention{cutoff: testCutoff, records: 4}
	archive := newMemArchive()
	var spooled []os.DirEntry
	archive.uploadHook = func() { spooled, _ = os.ReadDir(cfg.Archive.SpoolDir) }
	job := NewAuditRetentionJob(svc, archive, cfg)

	res, err := job.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, spooled, 1, "records are spooled to disk before upload")
	assert.True(t, strings.HasPrefix(spooled[0].Name(), "audit-archive-"))
	assert.Equal(t, int64(len(archive.objects[res.ArchivePath])), archive.sizes[res.ArchivePath])
	assert.Equal(t, 4, strings.Count(archive.objects[res.ArchivePath], "\n"))

	left, err := os.ReadDir(cfg.Archive.SpoolDir)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestRunOnce_SpoolDirMissing(t *testing.T) {
	cfg := retentionConfig()
	cfg.Archive.SpoolDir = filepath.Join(t.TempDir(), "missing")
	svc := &fakeRetention{cutoff: testCutoff, records: 1}
	job := NewAuditRetentionJob(svc, newMemArchive(), cfg)

	_, err := job.RunOnce(context.Background())
	assert.ErrorContains(t, err, "spool")
	assert.Empty(t, svc.deleteAt)
}

func TestRunOnce_DeleteFailureRemovesArchive(t *testing.T) {
	svc := &fakeRetention{cutoff: testCutoff, records: 2, deleteErr: errors.New("db down")}
	archive := newMemArchive()
	job := NewAuditRetentionJob(svc, archive, retentionConfig())

	_, err := job.RunOnce(context.Background())
	assert.ErrorContains(t, err, "db down")
	assert.Equal(t, []string{"audit-archive/audit-20260115T000000Z.jsonl"}, archive.deleted)
	assert.Empty(t, archive.objects, "the next run archives the same records again")
}

func TestRunOnce_WithoutArchive(t *testing.T) {
	svc := &fakeRetention{cutoff: testCutoff, records: 5}
	job := NewAuditRetentionJob(svc, nil, retentionConfig())

	res, err := job.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, svc.archiveAt)
	assert.Equal(t, int64(5), res.Deleted)
}

func TestRunOnce_DeleteError(t *testing.T) {
	svc := &fakeRetention{cutoff: testCutoff, deleteErr: errors.New("db down")}
	job := NewAuditRetentionJob(svc, nil, retentionConfig())

	_, err := job.RunOnce(context.Background())
	assert.ErrorContains(t, err, "db down")
}

func TestNewAuditRetentionJob_DefaultInterval(t *testing.T) {
	cfg := retentionConfig()
	cfg.CleanupIntervalHours = 0
	job := NewAuditRetentionJob(&fakeRetention{}, nil, cfg)
	assert.Equal(t, 24*time.Hour, job.interval)
}

func TestStart_DisabledReturnsImmediately(t *testing.T) {
	cfg := retentionConfig()
	cfg.RetentionDays = 0
	svc := &fakeRetention{cutoff: testCutoff}
	job := NewAuditRetentionJob(svc, nil, cfg)

	done := make(chan struct{})
	go func() {
		job.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return for disabled retention")
	}
	assert.Equal(t, 0, svc.runs())
}

func TestStart_RunsImmediatelyAndStops(t *testing.T) {
	svc := &fakeRetention{cutoff: testCutoff}
	job := NewAuditRetentionJob(svc, nil, retentionConfig())

	done := make(chan struct{})
	go func() {
		job.Start(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool { return svc.runs() == 1 }, time.Second, 10*time.Millisecond)
	job.Stop()
	job.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after Stop")
	}
}

func TestStart_ContextCancel(t *testing.T) {
	svc := &fakeRetention{cutoff: testCutoff}
	job := NewAuditRetentionJob(svc, nil, retentionConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return svc.runs() == 1 }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after context cancel")
	}
}
