package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/internal/models"
)

const feeLedgerColumns = "id, student_id, academic_year, items, total_fee, total_paid, status, version, created_at, updated_at"

// FeeLedgerRepository reads per-student, per-year fee ledgers.
type FeeLedgerRepository struct {
	db *sqlx.DB
}

// NewFeeLedgerRepository instantiates a fee ledger repository.
func NewFeeLedgerRepository(db *sqlx.DB) *FeeLedgerRepository {
	return &FeeLedgerRepository{db: db}
}

// FindByID loads a ledger by its studentId_year key.
func (r *FeeLedgerRepository) FindByID(ctx context.Context, id string) (*models.FeeLedger, error) {
	return getLedger(ctx, r.db, id, false)
}

func getLedger(ctx context.Context, q sqlx.QueryerContext, id string, forUpdate bool) (*models.FeeLedger, error) {
	query := fmt.Sprintf("SELECT %s FROM fee_ledgers WHERE id = $1", feeLedgerColumns)
	if forUpdate {
		query += " FOR UPDATE"
	}
	var ledger models.FeeLedger
	if err := sqlx.GetContext(ctx, q, &ledger, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find fee ledger: %w", err)
	}
	return &ledger, nil
}

func insertLedger(ctx context.Context, e sqlx.ExtContext, ledger *models.FeeLedger) error {
	now := time.Now().UTC()
	ledger.Recompute()
	ledger.Version = 1
	ledger.CreatedAt = now
	ledger.UpdatedAt = now

	const query = `INSERT INTO fee_ledgers (id, student_id, academic_year, items, total_fee, total_paid, status, version, created_at, updated_at) VALUES (:id, :student_id, :academic_year, :items, :total_fee, :total_paid, :status, :version, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, e, query, ledger); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create fee ledger: %w", err)
	}
	return nil
}

// updateLedger writes items, totals and status only when the stored version still equals expected.
func updateLedger(ctx context.Context, e sqlx.ExecerContext, ledger *models.FeeLedger, expected int64) error {
	ledger.Recompute()
	now := time.Now().UTC()
	const query = `UPDATE fee_ledgers SET items = $3, total_fee = $4, total_paid = $5, status = $6, version = version + 1, updated_at = $7 WHERE id = $1 AND version = $2`
	res, err := e.ExecContext(ctx, query, ledger.ID, expected, ledger.Items, ledger.TotalFee, ledger.TotalPaid, ledger.Status, now)
	if err != nil {
		return fmt.Errorf("update fee ledger: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update fee ledger rows: %w", err)
	}
	if affected == 0 {
		return ErrStaleVersion
	}
	ledger.Version = expected + 1
	ledger.UpdatedAt = now
	return nil
}
