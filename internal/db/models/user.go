// Package models - user.go defines the User identity record the audit
// service reads to reconcile display names at query time.
package models

import "time"

// User represents a timesheet user account
type User struct {
	ID        string    `json:"id" db:"id" bson:"_id"`
	Email     string    `json:"email" db:"email" bson:"email"`
	Name      string    `json:"name" db:"name" bson:"name"`
	Role      string    `json:"role" db:"role" bson:"role"`
	CreatedAt time.Time `json:"createdAt" db:"created_at" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at" bson:"updatedAt"`
}
