// Package models - audit_log.go defines the AuditLog record written for every
// completed mutating request, together with its action and status enums.
package models

import (
	"regexp"
	"time"
)

// AuditAction is the semantic classification of an audited request
type AuditAction string

const (
	ActionCreate  AuditAction = "CREATE"
	ActionUpdate  AuditAction = "UPDATE"
	ActionDelete  AuditAction = "DELETE"
	ActionLogin   AuditAction = "LOGIN"
	ActionLogout  AuditAction = "LOGOUT"
	ActionUnknown AuditAction = "UNKNOWN"
)

// AuditActions lists every action in display order.
var AuditActions = []AuditAction{ActionCreate, ActionUpdate, ActionDelete, ActionLogin, ActionLogout, ActionUnknown}

// Valid reports whether a is one of the defined actions.
func (a AuditAction) Valid() bool {
	for _, v := range AuditActions {
		if a == v {
			return true
		}
	}
	return false
}

// AuditStatus is the outcome of an audited request
type AuditStatus string

const (
	StatusSuccess AuditStatus = "SUCCESS"
	StatusFailure AuditStatus = "FAILURE"
	StatusError   AuditStatus = "ERROR"
)

// AuditStatuses lists every status in display order.
var AuditStatuses = []AuditStatus{StatusSuccess, StatusFailure, StatusError}

// Valid reports whether s is one of the defined statuses.
func (s AuditStatus) Valid() bool {
	for _, v := range AuditStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// entityIDRe matches the identifiers the timesheet API issues: UUIDs, 24-hex
// document ObjectIDs and positive integers.
var entityIDRe = regexp.MustCompile(`^(?:[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}|[0-9a-fA-F]{24}|[0-9]{1,20})$`)

// IsEntityID reports whether s has the shape of a user or resource identifier.
func IsEntityID(s string) bool {
	return entityIDRe.MatchString(s)
}

// AnonymousEmail is stored as userEmail when the caller could not be identified.
const AnonymousEmail = "anonymous"

// AuditLog is one immutable entry describing a completed mutating API call.
type AuditLog struct {
	ID           string      `json:"id" db:"id" bson:"_id"`
	UserID       *string     `json:"userId" db:"user_id" bson:"userId"`
	UserName     string      `json:"userName" db:"user_name" bson:"userName"`
	UserEmail    string      `json:"userEmail" db:"user_email" bson:"userEmail"`
	Action       AuditAction `json:"action" db:"action" bson:"action"`
	Resource     string      `json:"resource" db:"resource" bson:"resource"`
	ResourceID   *string     `json:"resourceId" db:"resource_id" bson:"resourceId"`
	Method       string      `json:"method" db:"method" bson:"method"`
	Message      string      `json:"message" db:"message" bson:"message"`
	IPAddress    string      `json:"ipAddress" db:"ip_address" bson:"ipAddress"`
	UserAgent    string      `json:"userAgent" db:"user_agent" bson:"userAgent"`
	SessionID    *string     `json:"sessionId" db:"session_id" bson:"sessionId"`
	Status       AuditStatus `json:"status" db:"status" bson:"status"`
	ErrorMessage *string     `json:"errorMessage" db:"error_message" bson:"errorMessage"`
	CreatedAt    time.Time   `json:"createdAt" db:"created_at" bson:"createdAt"`
}
