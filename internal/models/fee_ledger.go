package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// FeeItemType categorises ledger charges.
type FeeItemType string

const (
	FeeItemTerm      FeeItemType = "TERM"
	FeeItemTransport FeeItemType = "TRANSPORT"
	FeeItemCustom    FeeItemType = "CUSTOM"
)

// LedgerStatus is derived from totalPaid against totalFee.
type LedgerStatus string

const (
	LedgerPending LedgerStatus = "PENDING"
	LedgerPartial LedgerStatus = "PARTIAL"
	LedgerPaid    LedgerStatus = "PAID"
)

// FeeItem is one charge on a ledger.
type FeeItem struct {
	Name    string          `json:"name"`
	Amount  decimal.Decimal `json:"amount"`
	Type    FeeItemType     `json:"type"`
	DueDate *time.Time      `json:"dueDate"`
}

// FeeItems is persisted as a JSONB array.
type FeeItems []FeeItem

// Value marshals items to JSON for persistence.
func (items FeeItems) Value() (driver.Value, error) {
	if items == nil {
		items = FeeItems{}
	}
	data, err := json.Marshal([]FeeItem(items))
	if err != nil {
		return nil, fmt.Errorf("marshal fee items: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the item list.
func (items *FeeItems) Scan(value interface{}) error {
	var decoded []FeeItem
	ok, err := scanJSON(value, &decoded, "fee items")
	if err != nil {
		return err
	}
	if !ok || decoded == nil {
		decoded = []FeeItem{}
	}
	*items = decoded
	return nil
}

// Total sums item amounts.
func (items FeeItems) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Amount)
	}
	return total
}

// FeeLedger is the per-student, per-year record of charges and payments.
type FeeLedger struct {
	ID           string          `db:"id" json:"id"`
	StudentID    string          `db:"student_id" json:"studentId"`
	AcademicYear string          `db:"academic_year" json:"academicYear"`
	Items        FeeItems        `db:"items" json:"items"`
	TotalFee     decimal.Decimal `db:"total_fee" json:"totalFee"`
	TotalPaid    decimal.Decimal `db:"total_paid" json:"totalPaid"`
	Status       LedgerStatus    `db:"status" json:"status"`
	Version      int64           `db:"version" json:"version"`
	CreatedAt    time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updatedAt"`
}

// LedgerID builds the ledger key for a student and year.
func LedgerID(studentID, academicYear string) string {
	return studentID + "_" + academicYear
}

// CarryoverItemName names the item that holds an unpaid balance from oldYear.
func CarryoverItemName(oldYear string) string {
	return fmt.Sprintf("Previous Balance (%s)", oldYear)
}

// DeriveLedgerStatus returns PAID when paid covers fee, PARTIAL when something was paid, else PENDING.
func DeriveLedgerStatus(totalFee, totalPaid decimal.Decimal) LedgerStatus {
	switch {
	case totalPaid.GreaterThanOrEqual(totalFee):
		return LedgerPaid
	case totalPaid.IsPositive():
		return LedgerPartial
	default:
		return LedgerPending
	}
}

// NewFeeLedger returns an empty ledger for the student and year.
func NewFeeLedger(studentID, academicYear string) *FeeLedger {
	l := &FeeLedger{
		ID:           LedgerID(studentID, academicYear),
		StudentID:    studentID,
		AcademicYear: academicYear,
		Items:        FeeItems{},
		TotalPaid:    decimal.Zero,
	}
	l.Recompute()
	return l
}

// Recompute restores the totalFee and status invariants after a mutation.
func (l *FeeLedger) Recompute() {
	l.TotalFee = l.Items.Total()
	l.Status = DeriveLedgerStatus(l.TotalFee, l.TotalPaid)
}

// Balance is the unpaid remainder, never negative.
func (l *FeeLedger) Balance() decimal.Decimal {
	balance := l.TotalFee.Sub(l.TotalPaid)
	if balance.IsNegative() {
		return decimal.Zero
	}
	return balance
}

// HasItem reports whether an item with name exists.
func (l *FeeLedger) HasItem(name string) bool {
	for _, item := range l.Items {
		if item.Name == name {
			return true
		}
	}
	return false
}

// AddCarryover appends a CUSTOM item for the unpaid balance of oldYear, due on dueDate. It is a
// no-op when amount is not positive or the item is already present.
func (l *FeeLedger) AddCarryover(oldYear string, amount decimal.Decimal, dueDate time.Time) bool {
	name := CarryoverItemName(oldYear)
	if !amount.IsPositive() || l.HasItem(name) {
		return false
	}
	due := dueDate.UTC().Truncate(24 * time.Hour)
	l.Items = append(l.Items, FeeItem{Name: name, Amount: amount, Type: FeeItemCustom, DueDate: &due})
	l.Recompute()
	return true
}

// ApplyPayment adds amount to totalPaid and recomputes the status.
func (l *FeeLedger) ApplyPayment(amount decimal.Decimal) {
	l.TotalPaid = l.TotalPaid.Add(amount)
	l.Recompute()
}

// PendingTerm is a TERM item not yet covered by FIFO allocation of payments.
type PendingTerm struct {
	Name        string          `json:"name"`
	DueDate     *time.Time      `json:"dueDate"`
	Amount      decimal.Decimal `json:"amount"`
	Allocated   decimal.Decimal `json:"allocated"`
	Outstanding decimal.Decimal `json:"outstanding"`
}

// PendingTermsResult lists the unpaid terms of a ledger as of a date.
type PendingTermsResult struct {
	StudentID        string          `json:"studentId"`
	AcademicYear     string          `json:"academicYear"`
	AsOf             string          `json:"asOf"`
	CurrentTerm      *string         `json:"currentTerm"`
	Terms            []PendingTerm   `json:"terms"`
	TotalOutstanding decimal.Decimal `json:"totalOutstanding"`
}
