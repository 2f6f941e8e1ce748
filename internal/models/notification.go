package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// NotificationKind categorises in-app notifications.
type NotificationKind string

const (
	NotificationAttendanceChanged NotificationKind = "ATTENDANCE_CHANGED"
	NotificationCoverageAssigned  NotificationKind = "COVERAGE_ASSIGNED"
)

// Notification is an in-app inbox entry for a user.
type Notification struct {
	ID        string           `db:"id" json:"id"`
	UserID    string           `db:"user_id" json:"userId"`
	Kind      NotificationKind `db:"kind" json:"kind"`
	Title     string           `db:"title" json:"title"`
	Body      string           `db:"body" json:"body"`
	Payload   types.JSONText   `db:"payload" json:"payload"`
	CreatedAt time.Time        `db:"created_at" json:"createdAt"`
	ReadAt    *time.Time       `db:"read_at" json:"readAt,omitempty"`
}
