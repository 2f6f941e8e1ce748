package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/internal/models"
	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/pkg/database"
)

// PaymentRepository appends fee payments and keeps ledger totals in step.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository instantiates a payment repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Record inserts the payment and writes the updated ledger in one transaction. The ledger
// must already carry the new totals. ErrStaleVersion means another writer got there first or
// the student has moved to another academic year since the ledger was read.
func (r *PaymentRepository) Record(ctx context.Context, ledger *models.FeeLedger, expectedVersion int64, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	payment.CreatedAt = time.Now().UTC()

	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := updateLedger(ctx, tx, ledger, expectedVersion); err != nil {
			return err
		}
		var currentYear string
		if err := tx.GetContext(ctx, &currentYear, `SELECT academic_year FROM students WHERE id = $1 FOR SHARE`, payment.StudentID); err != nil {
			return fmt.Errorf("check student year: %w", err)
		}
		if currentYear != ledger.AcademicYear {
			return ErrStaleVersion
		}
		const query = `INSERT INTO payments (id, student_id, ledger_id, academic_year, amount, method, paid_on, remarks, recorded_by, created_at) VALUES (:id, :student_id, :ledger_id, :academic_year, :amount, :method, :paid_on, :remarks, :recorded_by, :created_at)`
		if _, err := tx.NamedExecContext(ctx, query, payment); err != nil {
			return fmt.Errorf("create payment: %w", err)
		}
		return nil
	})
}

// ListByStudent returns a student's payments, most recent first. Year is optional.
func (r *PaymentRepository) ListByStudent(ctx context.Context, studentID, academicYear string) ([]models.Payment, error) {
	query := `SELECT id, student_id, ledger_id, academic_year, amount, method, paid_on, remarks, recorded_by, created_at FROM payments WHERE student_id = $1`
	args := []interface{}{studentID}
	if academicYear != "" {
		query += " AND academic_year = $2"
		args = append(args, academicYear)
	}
	query += " ORDER BY paid_on DESC, created_at DESC"

	payments := []models.Payment{}
	if err := r.db.SelectContext(ctx, &payments, query, args...); err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return payments, nil
}
