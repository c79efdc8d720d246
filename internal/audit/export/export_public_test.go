package export_test

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/timesheet-app/timesheet/internal/audit/export"
	"github.com/timesheet-app/timesheet/internal/db/models"
)

type ExportPublicTestSuite struct {
	suite.Suite

	ctx    context.Context
	logger *slog.Logger
}

func (suite *ExportPublicTestSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.logger = slog.Default()
}

func newRecord(email string) *models.AuditLog {
	return &models.AuditLog{
		ID:        "id-" + email,
		UserEmail: email,
		Action:    models.ActionCreate,
		Resource:  "projects",
		Method:    "POST",
		Message:   "Projects created by " + email,
		Status:    models.StatusSuccess,
		CreatedAt: time.Date(2026, 2, 21, 10, 30, 0, 0, time.UTC),
	}
}

func (suite *ExportPublicTestSuite) TestRun() {
	tests := []struct {
		name         string
		fetcher      export.Fetcher
		exporter     *mockExporter
		batchSize    int
		validateFunc func(exp *mockExporter, result *export.Result, err error)
	}{
		{
			name: "when no records returns zero counts",
			fetcher: func(_ context.Context, _, _ int) ([]*models.AuditLog, int, error) {
				return nil, 0, nil
			},
			exporter:  &mockExporter{},
			batchSize: 100,
			validateFunc: func(exp *mockExporter, result *export.Result, err error) {
				suite.NoError(err)
				suite.Equal(0, result.TotalEntries)
				suite.Equal(0, result.ExportedEntries)
				suite.True(exp.opened)
				suite.True(exp.closed)
			},
		},
		{
			name: "when single page exports all records",
			fetcher: func(_ context.Context, _, _ int) ([]*models.AuditLog, int, error) {
				return []*models.AuditLog{newRecord("alice@example.com"), newRecord("bob@example.com")}, 2, nil
			},
			exporter:  &mockExporter{},
			batchSize: 100,
			validateFunc: func(exp *mockExporter, result *export.Result, err error) {
				suite.NoError(err)
				suite.Equal(2, result.ExportedEntries)
				suite.Len(exp.records, 2)
				suite.Equal("alice@example.com", exp.records[0].UserEmail)
				suite.Equal("bob@example.com", exp.records[1].UserEmail)
			},
		},
		{
			name: "when multi-page paginates correctly",
			fetcher: newPagedFetcher([][]*models.AuditLog{
				{newRecord("alice@example.com"), newRecord("bob@example.com")},
				{newRecord("charlie@example.com")},
			}, 3),
			exporter:  &mockExporter{},
			batchSize: 2,
			validateFunc: func(exp *mockExporter, result *export.Result, err error) {
				suite.NoError(err)
				suite.Equal(3, result.TotalEntries)
				suite.Equal(3, result.ExportedEntries)
				suite.Len(exp.records, 3)
			},
		},
		{
			name: "when fetcher errors returns partial result",
			fetcher: func(_ context.Context, _, offset int) ([]*models.AuditLog, int, error) {
				if offset > 0 {
					return nil, 0, fmt.Errorf("connection lost")
				}
				return []*models.AuditLog{newRecord("alice@example.com")}, 3, nil
			},
			exporter:  &mockExporter{},
			batchSize: 1,
			validateFunc: func(_ *mockExporter, result *export.Result, err error) {
				suite.Error(err)
				suite.Contains(err.Error(), "fetching records at offset 1")
				suite.Contains(err.Error(), "connection lost")
				suite.Equal(1, result.ExportedEntries)
			},
		},
		{
			name: "when write errors returns partial result",
			fetcher: func(_ context.Context, _, _ int) ([]*models.AuditLog, int, error) {
				return []*models.AuditLog{newRecord("alice@example.com")}, 1, nil
			},
			exporter:  &mockExporter{writeErr: fmt.Errorf("disk full")},
			batchSize: 100,
			validateFunc: func(_ *mockExporter, result *export.Result, err error) {
				suite.Error(err)
				suite.Contains(err.Error(), "writing record")
				suite.Equal(0, result.ExportedEntries)
			},
		},
		{
			name: "when open errors returns nil result",
			fetcher: func(_ context.Context, _, _ int) ([]*models.AuditLog, int, error) {
				return nil, 0, nil
			},
			exporter:  &mockExporter{openErr: fmt.Errorf("permission denied")},
			batchSize: 100,
			validateFunc: func(_ *mockExporter, result *export.Result, err error) {
				suite.Error(err)
				suite.Contains(err.Error(), "opening exporter")
				suite.Nil(result)
			},
		},
		{
			name: "when batch size is zero rejects",
			fetcher: func(_ context.Context, _, _ int) ([]*models.AuditLog, int, error) {
				return nil, 0, nil
			},
			exporter:  &mockExporter{},
			batchSize: 0,
			validateFunc: func(exp *mockExporter, result *export.Result, err error) {
				suite.Error(err)
				suite.Nil(result)
				suite.False(exp.opened)
			},
		},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			result, err := export.Run(suite.ctx, suite.logger, tc.fetcher, tc.exporter, tc.batchSize, nil)
			tc.validateFunc(tc.exporter, result, err)
		})
	}
}

func (suite *ExportPublicTestSuite) TestRunProgress() {
	var calls [][2]int
	_, err := export.Run(
		suite.ctx,
		suite.logger,
		newPagedFetcher([][]*models.AuditLog{
			{newRecord("alice@example.com"), newRecord("bob@example.com")},
			{newRecord("charlie@example.com")},
		}, 3),
		&mockExporter{},
		2,
		func(exported int, total int) { calls = append(calls, [2]int{exported, total}) },
	)
	suite.NoError(err)
	suite.Equal([][2]int{{2, 3}, {3, 3}}, calls)
}

func (suite *ExportPublicTestSuite) TestNew() {
	var buf bytes.Buffer
	for _, f := range []export.Format{export.FormatCSV, export.FormatJSON, export.FormatJSONL} {
		exp, err := export.New(f, &buf)
		suite.NoError(err)
		suite.NotNil(exp)
	}
	_, err := export.New("xml", &buf)
	suite.Error(err)

	suite.Equal("audit-logs.csv", export.Filename(export.FormatCSV))
	suite.Equal("audit-logs.json", export.Filename(export.FormatJSON))
	suite.Contains(export.ContentType(export.FormatCSV), "text/csv")
}

func TestExportPublicTestSuite(t *testing.T) {
	suite.Run(t, new(ExportPublicTestSuite))
}

// mockExporter implements export.Exporter for testing.
type mockExporter struct {
	opened   bool
	closed   bool
	records  []*models.AuditLog
	openErr  error
	writeErr error
	closeErr error
}

func (m *mockExporter) Open(_ context.Context) error {
	if m.openErr != nil {
		return m.openErr
	}
	m.opened = true
	return nil
}

func (m *mockExporter) Write(_ context.Context, record *models.AuditLog) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.records = append(m.records, record)
	return nil
}

func (m *mockExporter) Close(_ context.Context) error {
	m.closed = true
	return m.closeErr
}

// newPagedFetcher creates a fetcher that returns pages of records based on offset.
func newPagedFetcher(pages [][]*models.AuditLog, total int) export.Fetcher {
	return func(_ context.Context, _ int, offset int) ([]*models.AuditLog, int, error) {
		pageIdx := 0
		remaining := offset
		for pageIdx < len(pages) && remaining >= len(pages[pageIdx]) {
			remaining -= len(pages[pageIdx])
			pageIdx++
		}
		if pageIdx >= len(pages) {
			return nil, total, nil
		}
		return pages[pageIdx], total, nil
	}
}
