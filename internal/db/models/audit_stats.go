package models

import "time"

// GroupCount is one bucket of a grouped count. The JSON shape mirrors the
// aggregation output the dashboard already consumes.
type GroupCount struct {
	Key   string `json:"_id" db:"key" bson:"_id"`
	Count int64  `json:"count" db:"count" bson:"count"`
}

// TopUser is a user ranked by number of audit records.
type TopUser struct {
	UserID       string    `json:"userId" db:"user_id" bson:"_id"`
	UserName     string    `json:"userName" db:"user_name" bson:"userName"`
	UserEmail    string    `json:"userEmail" db:"user_email" bson:"userEmail"`
	Count        int64     `json:"count" db:"count" bson:"count"`
	LastActivity time.Time `json:"lastActivity" db:"last_activity" bson:"lastActivity"`
}

// AuditSummary holds the grouped counts of AuditStats.
type AuditSummary struct {
	TotalLogs     int64        `json:"totalLogs"`
	ActionStats   []GroupCount `json:"actionStats"`
	ResourceStats []GroupCount `json:"resourceStats"`
	StatusStats   []GroupCount `json:"statusStats"`
}

// AuditStats is the aggregated view over a date range.
type AuditStats struct {
	Summary        AuditSummary `json:"summary"`
	TopUsers       []TopUser    `json:"topUsers"`
	RecentFailures []*AuditLog  `json:"recentFailures"`
}

// Limits applied by every store when computing AuditStats.
const (
	StatsTopUsers       = 10
	StatsRecentFailures = 20
)
