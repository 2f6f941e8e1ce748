package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/internal/models"
	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/pkg/database"
)

const staffColumns = "id, full_name, role, status, user_id, created_at, updated_at"

// StaffRepository handles persistence for staff members.
type StaffRepository struct {
	db *sqlx.DB
}

// NewStaffRepository instantiates a staff repository.
func NewStaffRepository(db *sqlx.DB) *StaffRepository {
	return &StaffRepository{db: db}
}

// FindByID loads a staff member by identifier.
func (r *StaffRepository) FindByID(ctx context.Context, id string) (*models.Staff, error) {
	query := fmt.Sprintf("SELECT %s FROM staff WHERE id = $1", staffColumns)
	var staff models.Staff
	if err := r.db.GetContext(ctx, &staff, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find staff: %w", err)
	}
	return &staff, nil
}

// ListActiveTeachers returns ACTIVE teaching staff ordered by name.
func (r *StaffRepository) ListActiveTeachers(ctx context.Context) ([]models.Staff, error) {
	query := fmt.Sprintf("SELECT %s FROM staff WHERE role = $1 AND status = $2 ORDER BY full_name, id", staffColumns)
	teachers := []models.Staff{}
	if err := r.db.SelectContext(ctx, &teachers, query, models.StaffRoleTeacher, models.StatusActive); err != nil {
		return nil, fmt.Errorf("list active teachers: %w", err)
	}
	return teachers, nil
}

// Roster returns active members of a staff cohort. TEACHERS narrows STAFF to teaching staff.
func (r *StaffRepository) Roster(ctx context.Context, cohort string) ([]models.CohortMember, error) {
	query := `SELECT id AS entity_id, full_name AS name, user_id FROM staff WHERE status = $1`
	args := []interface{}{models.StatusActive}
	if cohort == models.CohortTeachers {
		query += " AND role = $2"
		args = append(args, models.StaffRoleTeacher)
	}
	query += " ORDER BY full_name"

	members := []models.CohortMember{}
	if err := r.db.SelectContext(ctx, &members, query, args...); err != nil {
		return nil, fmt.Errorf("list staff roster: %w", err)
	}
	return members, nil
}

// UpdateStatus activates or deactivates a staff member.
func (r *StaffRepository) UpdateStatus(ctx context.Context, id string, status models.EntityStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE staff SET status = $2, updated_at = $3 WHERE id = $1`, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update staff status: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountSalaryPayments returns the number of payroll disbursements for the staff member.
func (r *StaffRepository) CountSalaryPayments(ctx context.Context, id string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM salary_payments WHERE staff_id = $1`, id); err != nil {
		return 0, fmt.Errorf("count salary payments: %w", err)
	}
	return count, nil
}

// Delete hard-deletes a staff member with no salary history.
func (r *StaffRepository) Delete(ctx context.Context, id string) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var locked string
		if err := tx.GetContext(ctx, &locked, `SELECT id FROM staff WHERE id = $1 FOR UPDATE`, id); err != nil {
			if err == sql.ErrNoRows {
				return err
			}
			return fmt.Errorf("lock staff: %w", err)
		}
		var payments int
		if err := tx.GetContext(ctx, &payments, `SELECT COUNT(*) FROM salary_payments WHERE staff_id = $1`, id); err != nil {
			return fmt.Errorf("count salary payments: %w", err)
		}
		if payments > 0 {
			return ErrHasFinancialHistory
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM staff WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete staff: %w", err)
		}
		return nil
	})
}
