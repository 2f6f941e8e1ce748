package models

import "time"

// LeaveEntityType tells whether a leave request is for a student or staff member.
type LeaveEntityType string

const (
	LeaveStudent LeaveEntityType = "STUDENT"
	LeaveStaff   LeaveEntityType = "STAFF"
)

// LeaveStatus is the approval state of a leave request.
type LeaveStatus string

const (
	LeavePending  LeaveStatus = "PENDING"
	LeaveApproved LeaveStatus = "APPROVED"
	LeaveRejected LeaveStatus = "REJECTED"
)

// LeaveRequest covers FromDate through ToDate inclusive.
type LeaveRequest struct {
	ID         string          `db:"id" json:"id"`
	EntityID   string          `db:"entity_id" json:"entityId"`
	EntityType LeaveEntityType `db:"entity_type" json:"entityType"`
	FromDate   time.Time       `db:"from_date" json:"fromDate"`
	ToDate     time.Time       `db:"to_date" json:"toDate"`
	Status     LeaveStatus     `db:"status" json:"status"`
}
