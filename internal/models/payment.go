package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod enumerates how a fee payment was made.
type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "CASH"
	PaymentUPI    PaymentMethod = "UPI"
	PaymentCard   PaymentMethod = "CARD"
	PaymentBank   PaymentMethod = "BANK"
	PaymentCheque PaymentMethod = "CHEQUE"
)

// Payment is an append-only fee payment row.
type Payment struct {
	ID           string          `db:"id" json:"id"`
	StudentID    string          `db:"student_id" json:"studentId"`
	LedgerID     string          `db:"ledger_id" json:"ledgerId"`
	AcademicYear string          `db:"academic_year" json:"academicYear"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	Method       PaymentMethod   `db:"method" json:"method"`
	Date         time.Time       `db:"paid_on" json:"date"`
	Remarks      *string         `db:"remarks" json:"remarks,omitempty"`
	RecordedBy   string          `db:"recorded_by" json:"recordedBy"`
	CreatedAt    time.Time       `db:"created_at" json:"createdAt"`
}

// CreatePaymentRequest records a payment against the student's active-year ledger.
type CreatePaymentRequest struct {
	StudentID string          `json:"studentId" validate:"required"`
	Amount    decimal.Decimal `json:"amount"`
	Method    PaymentMethod   `json:"method" validate:"required,oneof=CASH UPI CARD BANK CHEQUE"`
	Date      string          `json:"date" validate:"required,datetime=2006-01-02"`
	Remarks   string          `json:"remarks" validate:"max=500"`
}

// LedgerDelta describes the ledger change caused by a payment.
type LedgerDelta struct {
	LedgerID     string          `json:"ledgerId"`
	PaymentID    string          `json:"paymentId"`
	PreviousPaid decimal.Decimal `json:"previousPaid"`
	TotalPaid    decimal.Decimal `json:"totalPaid"`
	Balance      decimal.Decimal `json:"balance"`
	Status       LedgerStatus    `json:"status"`
}
