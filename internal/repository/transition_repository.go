package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/internal/models"
	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/pkg/database"
)

// TransitionRepository persists the steps of an academic year transition.
type TransitionRepository struct {
	db *sqlx.DB
}

// NewTransitionRepository instantiates a transition repository.
func NewTransitionRepository(db *sqlx.DB) *TransitionRepository {
	return &TransitionRepository{db: db}
}

// State returns the versioned active-year pointer.
func (r *TransitionRepository) State(ctx context.Context) (*models.AcademicYearState, error) {
	var state models.AcademicYearState
	if err := r.db.GetContext(ctx, &state, `SELECT active_year, version, updated_at FROM academic_year_state WHERE id = 1`); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("load academic year state: %w", err)
	}
	return &state, nil
}

// ApplyPromotion moves one student into the next year inside a single transaction: it records
// the promotion, reassigns the student and carries any unpaid balance into the new ledger.
// It reports false when the student was already promoted into plan.ToYear.
func (r *TransitionRepository) ApplyPromotion(ctx context.Context, plan models.PromotionPlan) (*models.StudentPromotion, bool, error) {
	var (
		promotion *models.StudentPromotion
		applied   bool
	)
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		oldLedgerID := models.LedgerID(plan.Student.ID, plan.FromYear)
		carry, hasLedger, err := unpaidBalance(ctx, tx, oldLedgerID)
		if err != nil {
			return err
		}

		promotion = &models.StudentPromotion{
			StudentID:   plan.Student.ID,
			FromYear:    plan.FromYear,
			ToYear:      plan.ToYear,
			FromClassID: plan.Student.ClassID,
			ToClassID:   plan.ToClassID,
			Outcome:     plan.Outcome,
			Carryover:   carry,
			CreatedAt:   plan.At,
		}
		const insertPromotion = `INSERT INTO student_promotions (student_id, from_year, to_year, from_class_id, to_class_id, outcome, carryover, created_at) VALUES (:student_id, :from_year, :to_year, :from_class_id, :to_class_id, :outcome, :carryover, :created_at) ON CONFLICT (student_id, to_year) DO NOTHING`
		res, err := tx.NamedExecContext(ctx, insertPromotion, promotion)
		if err != nil {
			return fmt.Errorf("record promotion: %w", err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return nil
		}

		status := models.StatusActive
		if plan.Outcome == models.OutcomeGraduated {
			status = models.StatusInactive
		}
		const moveStudent = `UPDATE students SET class_id = $2, academic_year = $3, status = $4, retain = FALSE, updated_at = $5 WHERE id = $1 AND academic_year = $6`
		if _, err := tx.ExecContext(ctx, moveStudent, plan.Student.ID, plan.ToClassID, plan.ToYear, status, plan.At, plan.FromYear); err != nil {
			return fmt.Errorf("move student: %w", err)
		}

		// Payments that read the old ledger before this point must fail their version check.
		if hasLedger {
			if _, err := tx.ExecContext(ctx, `UPDATE fee_ledgers SET version = version + 1, updated_at = $2 WHERE id = $1`, oldLedgerID, plan.At); err != nil {
				return fmt.Errorf("close fee ledger: %w", err)
			}
		}

		if plan.Outcome != models.OutcomeGraduated || carry.IsPositive() {
			if err := carryForward(ctx, tx, plan, carry); err != nil {
				return err
			}
		}
		applied = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return promotion, applied, nil
}

// unpaidBalance locks the old ledger and returns max(0, totalFee - totalPaid). A missing ledger owes nothing.
func unpaidBalance(ctx context.Context, tx *sqlx.Tx, ledgerID string) (decimal.Decimal, bool, error) {
	ledger, err := getLedger(ctx, tx, ledgerID, true)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, err
	}
	return ledger.Balance(), true, nil
}

func carryForward(ctx context.Context, tx *sqlx.Tx, plan models.PromotionPlan, carry decimal.Decimal) error {
	ledgerID := models.LedgerID(plan.Student.ID, plan.ToYear)
	ledger, err := getLedger(ctx, tx, ledgerID, true)
	if errors.Is(err, sql.ErrNoRows) {
		ledger = models.NewFeeLedger(plan.Student.ID, plan.ToYear)
		ledger.AddCarryover(plan.FromYear, carry, plan.At)
		return insertLedger(ctx, tx, ledger)
	}
	if err != nil {
		return err
	}
	if !ledger.AddCarryover(plan.FromYear, carry, plan.At) {
		return nil
	}
	return updateLedger(ctx, tx, ledger, ledger.Version)
}

// CloneRelations copies class sections, class subjects and subject teachers of fromYear into
// toYear. Rows already present for toYear are kept.
func (r *TransitionRepository) CloneRelations(ctx context.Context, fromYear, toYear string) (models.RelationCloneResult, error) {
	var result models.RelationCloneResult
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		statements := []struct {
			name  string
			query string
			dest  *int64
		}{
			{"class sections", `INSERT INTO class_sections (academic_year, class_id, section_id, class_teacher_id) SELECT $2, class_id, section_id, class_teacher_id FROM class_sections WHERE academic_year = $1 ON CONFLICT (academic_year, class_id, section_id) DO NOTHING`, &result.ClassSections},
			{"class subjects", `INSERT INTO class_subjects (academic_year, class_id, subject_id, enabled) SELECT $2, class_id, subject_id, enabled FROM class_subjects WHERE academic_year = $1 ON CONFLICT (academic_year, class_id, subject_id) DO NOTHING`, &result.ClassSubjects},
			{"subject teachers", `INSERT INTO subject_teachers (academic_year, class_id, section_id, subject_id, teacher_id) SELECT $2, class_id, section_id, subject_id, teacher_id FROM subject_teachers WHERE academic_year = $1 ON CONFLICT (academic_year, class_id, section_id, subject_id) DO NOTHING`, &result.SubjectTeachers},
		}
		for _, stmt := range statements {
			res, err := tx.ExecContext(ctx, stmt.query, fromYear, toYear)
			if err != nil {
				return fmt.Errorf("clone %s: %w", stmt.name, err)
			}
			*stmt.dest, _ = res.RowsAffected()
		}
		return nil
	})
	return result, err
}

// ActivateYear swaps the active year from fromYear to toYear when the state version still
// equals expectedVersion, and stores the transition stats on the new year.
func (r *TransitionRepository) ActivateYear(ctx context.Context, fromYear, toYear string, expectedVersion int64, stats models.YearStats, at time.Time) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE academic_year_state SET active_year = $1, version = version + 1, updated_at = $4 WHERE id = 1 AND active_year = $2 AND version = $3`, toYear, fromYear, expectedVersion, at)
		if err != nil {
			return fmt.Errorf("swap active year: %w", err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return ErrStaleVersion
		}
		if _, err := tx.ExecContext(ctx, `UPDATE academic_years SET is_active = FALSE, updated_at = $2 WHERE label = $1`, fromYear, at); err != nil {
			return fmt.Errorf("archive academic year: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE academic_years SET is_active = TRUE, is_upcoming = FALSE, start_date = $2, stats = $3, updated_at = $2 WHERE label = $1`, toYear, at, stats); err != nil {
			return fmt.Errorf("activate academic year: %w", err)
		}
		return nil
	})
}

// PromotionStats aggregates the promotion log for toYear. Graduations count as promotions.
func (r *TransitionRepository) PromotionStats(ctx context.Context, toYear string) (models.YearStats, error) {
	rows := []struct {
		Outcome models.PromotionOutcome `db:"outcome"`
		Count   int                     `db:"count"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, `SELECT outcome, COUNT(*) AS count FROM student_promotions WHERE to_year = $1 GROUP BY outcome`, toYear); err != nil {
		return models.YearStats{}, fmt.Errorf("aggregate promotions: %w", err)
	}
	var stats models.YearStats
	for _, row := range rows {
		switch row.Outcome {
		case models.OutcomeRetained:
			stats.Retained += row.Count
		default:
			stats.Promoted += row.Count
		}
		stats.Total += row.Count
	}
	return stats, nil
}
