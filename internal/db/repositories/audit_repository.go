// audit_repository.go implements AuditRepository, the PostgreSQL audit store:
// append-only inserts, filtered pagination, grouped statistics and retention deletes.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/timesheet-app/timesheet/internal/db/models"
)

const auditColumns = `id, user_id, user_name, user_email, action, resource, resource_id, method,
	message, ip_address, user_agent, session_id, status, error_message, created_at`

// AuditRepository handles audit log database operations
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// AuditFilters contains filters for querying audit logs. Nil fields do not filter.
type AuditFilters struct {
	UserID *string
	Action *string
	Status *string
	// Resource is a case-insensitive substring match unless ResourceExact is set
	Resource      *string
	ResourceExact bool
	// StartDate and EndDate bound created_at inclusively
	StartDate *time.Time
	EndDate   *time.Time
	// CreatedBefore bounds created_at exclusively; used by retention
	CreatedBefore *time.Time
	// Search matches any of user_email, user_name, message, resource, error_message
	Search *string
}

// EscapeLike escapes the LIKE wildcards in s so user input matches literally.
func EscapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// where renders filters as a WHERE clause starting at placeholder $1.
func (f AuditFilters) where() (string, []interface{}) {
	var b strings.Builder
	b.WriteString(" WHERE 1=1")
	args := make([]interface{}, 0)
	paramIndex := 1

	add := func(clause string, arg interface{}) {
		b.WriteString(" AND ")
		b.WriteString(strings.ReplaceAll(clause, "?", fmt.Sprintf("$%d", paramIndex)))
		args = append(args, arg)
		paramIndex++
	}

	if f.UserID != nil {
		add("user_id = ?", *f.UserID)
	}
	if f.Action != nil {
		add("action = ?", *f.Action)
	}
	if f.Status != nil {
		add("status = ?", *f.Status)
	}
	if f.Resource != nil {
		if f.ResourceExact {
			add("resource = ?", *f.Resource)
		} else {
			add("resource ILIKE ?", "%"+EscapeLike(*f.Resource)+"%")
		}
	}
	if f.StartDate != nil {
		add("created_at >= ?", *f.StartDate)
	}
	if f.EndDate != nil {
		add("created_at <= ?", *f.EndDate)
	}
	if f.CreatedBefore != nil {
		add("created_at < ?", *f.CreatedBefore)
	}
	if f.Search != nil && *f.Search != "" {
		add("(user_email ILIKE ? OR user_name ILIKE ? OR message ILIKE ? OR resource ILIKE ? OR error_message ILIKE ?)",
			"%"+EscapeLike(*f.Search)+"%")
	}

	return b.String(), args
}

// CreateAuditLog inserts a record. ID and CreatedAt are assigned here.
func (r *AuditRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	log.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO audit_logs (` + auditColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := r.db.ExecContext(ctx, query,
		log.ID,
		log.UserID,
		log.UserName,
		log.UserEmail,
		log.Action,
		log.Resource,
		log.ResourceID,
		log.Method,
		log.Message,
		log.IPAddress,
		log.UserAgent,
		log.SessionID,
		log.Status,
		log.ErrorMessage,
		log.CreatedAt,
	)
	return err
}

// ListAuditLogs returns one page of matching records, newest first, and the total match count.
func (r *AuditRepository) ListAuditLogs(ctx context.Context, filters AuditFilters, limit, offset int) ([]*models.AuditLog, int, error) {
	where, args := filters.where()

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_logs`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit logs: %w", err)
	}

	logs, err := r.selectLogs(ctx, where, args, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

// FindAuditLogs returns up to limit matching records, newest first, without counting.
func (r *AuditRepository) FindAuditLogs(ctx context.Context, filters AuditFilters, limit, offset int) ([]*models.AuditLog, error) {
	where, args := filters.where()
	return r.selectLogs(ctx, where, args, limit, offset)
}

func (r *AuditRepository) selectLogs(ctx context.Context, where string, args []interface{}, limit, offset int) ([]*models.AuditLog, error) {
	n := len(args)
	query := `SELECT ` + auditColumns + ` FROM audit_logs` + where +
		fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, n+1, n+2)
	args = append(args, limit, offset)

	logs := make([]*models.AuditLog, 0)
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return logs, nil
}

// GetAuditLog retrieves a single audit log entry by ID
func (r *AuditRepository) GetAuditLog(ctx context.Context, logID string) (*models.AuditLog, error) {
	log := &models.AuditLog{}
	err := r.db.GetContext(ctx, log, `SELECT `+auditColumns+` FROM audit_logs WHERE id = $1`, logID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return log, nil
}

// GetAuditStats aggregates records created within [start, end]. Either bound may be nil.
func (r *AuditRepository) GetAuditStats(ctx context.Context, start, end *time.Time) (*models.AuditStats, error) {
	filters := AuditFilters{StartDate: start, EndDate: end}
	where, args := filters.where()

	stats := &models.AuditStats{}

	if err := r.db.GetContext(ctx, &stats.Summary.TotalLogs, `SELECT COUNT(*) FROM audit_logs`+where, args...); err != nil {
		return nil, fmt.Errorf("failed to count audit logs: %w", err)
	}

	groups := []struct {
		column string
		dest   *[]models.GroupCount
	}{
		{"action", &stats.Summary.ActionStats},
		{"resource", &stats.Summary.ResourceStats},
		{"status", &stats.Summary.StatusStats},
	}
	for _, g := range groups {
		*g.dest = make([]models.GroupCount, 0)
		query := fmt.Sprintf(`SELECT %s AS key, COUNT(*) AS count FROM audit_logs%s GROUP BY %s ORDER BY count DESC`,
			g.column, where, g.column)
		if err := r.db.SelectContext(ctx, g.dest, query, args...); err != nil {
			return nil, fmt.Errorf("failed to group audit logs by %s: %w", g.column, err)
		}
	}

	stats.TopUsers = make([]models.TopUser, 0)
	topQuery := `
		SELECT user_id, MAX(user_name) AS user_name, MAX(user_email) AS user_email,
			COUNT(*) AS count, MAX(created_at) AS last_activity
		FROM audit_logs` + where + ` AND user_id IS NOT NULL
		GROUP BY user_id
		ORDER BY count DESC, last_activity DESC
		LIMIT ` + fmt.Sprint(models.StatsTopUsers)
	if err := r.db.SelectContext(ctx, &stats.TopUsers, topQuery, args...); err != nil {
		return nil, fmt.Errorf("failed to rank audit users: %w", err)
	}

	failure := string(models.StatusFailure)
	filters.Status = &failure
	failures, err := r.FindAuditLogs(ctx, filters, models.StatsRecentFailures, 0)
	if err != nil {
		return nil, err
	}
	stats.RecentFailures = failures

	return stats, nil
}

// DeleteAuditLogsBefore removes every record created before cutoff and returns how many were deleted.
func (r *AuditRepository) DeleteAuditLogsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete audit logs: %w", err)
	}
	return result.RowsAffected()
}

// Ping checks the connection; used by the readiness probe.
func (r *AuditRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
