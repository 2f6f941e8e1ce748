package models

import "time"

// Audit actions recorded for privileged operations.
const (
	AuditActionLogin           = "LOGIN"
	AuditActionLogout          = "LOGOUT"
	AuditActionYearCreate      = "ACADEMIC_YEAR_CREATE"
	AuditActionYearUpdate      = "ACADEMIC_YEAR_UPDATE"
	AuditActionYearTransition  = "ACADEMIC_YEAR_TRANSITION"
	AuditActionPaymentCreate   = "PAYMENT_CREATE"
	AuditActionCoverageResolve = "COVERAGE_RESOLVE"
	AuditActionStudentDelete   = "STUDENT_DELETE"
	AuditActionStaffDelete     = "STAFF_DELETE"
	AuditActionHTTPMutation    = "HTTP_MUTATION"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"userId,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resourceId,omitempty"`
	OldValues  []byte    `db:"old_values" json:"oldValues,omitempty"`
	NewValues  []byte    `db:"new_values" json:"newValues,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ipAddress"`
	UserAgent  string    `db:"user_agent" json:"userAgent"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}
