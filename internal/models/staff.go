package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// StaffRole distinguishes teaching from non-teaching staff.
type StaffRole string

const (
	StaffRoleTeacher     StaffRole = "TEACHER"
	StaffRoleNonTeaching StaffRole = "NON_TEACHING"
)

// Staff is an employee of the school.
type Staff struct {
	ID        string       `db:"id" json:"id"`
	FullName  string       `db:"full_name" json:"fullName"`
	Role      StaffRole    `db:"role" json:"role"`
	Status    EntityStatus `db:"status" json:"status"`
	UserID    *string      `db:"user_id" json:"userId,omitempty"`
	CreatedAt time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time    `db:"updated_at" json:"updatedAt"`
}

// SalaryPayment is a payroll disbursement to a staff member.
type SalaryPayment struct {
	ID      string          `db:"id" json:"id"`
	StaffID string          `db:"staff_id" json:"staffId"`
	Amount  decimal.Decimal `db:"amount" json:"amount"`
	Month   string          `db:"month" json:"month"`
	PaidAt  time.Time       `db:"paid_at" json:"paidAt"`
}
