package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/internal/models"
	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/pkg/database"
)

const studentColumns = "id, school_id, student_name, class_id, section_id, status, academic_year, retain, user_id, created_at, updated_at"

// StudentRepository handles persistence for student enrollments.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository instantiates a student repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// List returns students matching provided filters.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	base := "FROM students WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.AcademicYear != "" {
		conditions = append(conditions, fmt.Sprintf("academic_year = $%d", len(args)+1))
		args = append(args, filter.AcademicYear)
	}
	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.SectionID != "" {
		conditions = append(conditions, fmt.Sprintf("section_id = $%d", len(args)+1))
		args = append(args, filter.SectionID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(student_name ILIKE $%d OR school_id ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY student_name ASC LIMIT %d OFFSET %d", studentColumns, base, size, offset)
	students := []models.Student{}
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID loads a student by identifier.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students WHERE id = $1", studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find student: %w", err)
	}
	return &student, nil
}

// ListActiveByYear returns every ACTIVE student enrolled in the year, ordered by id so a
// resumed transition walks them in the same order.
func (r *StudentRepository) ListActiveByYear(ctx context.Context, academicYear string) ([]models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students WHERE academic_year = $1 AND status = $2 ORDER BY id", studentColumns)
	students := []models.Student{}
	if err := r.db.SelectContext(ctx, &students, query, academicYear, models.StatusActive); err != nil {
		return nil, fmt.Errorf("list active students: %w", err)
	}
	return students, nil
}

// Roster returns the active students of a class section as attendance cohort members.
func (r *StudentRepository) Roster(ctx context.Context, academicYear, classID, sectionID string) ([]models.CohortMember, error) {
	const query = `SELECT id AS entity_id, student_name AS name, user_id FROM students WHERE academic_year = $1 AND class_id = $2 AND section_id = $3 AND status = $4 ORDER BY student_name`
	members := []models.CohortMember{}
	if err := r.db.SelectContext(ctx, &members, query, academicYear, classID, sectionID, models.StatusActive); err != nil {
		return nil, fmt.Errorf("list class roster: %w", err)
	}
	return members, nil
}

// SetRetention flags or clears retention for the next transition.
func (r *StudentRepository) SetRetention(ctx context.Context, id string, retain bool) error {
	return r.exec(ctx, "set student retention", `UPDATE students SET retain = $2, updated_at = $3 WHERE id = $1`, id, retain, time.Now().UTC())
}

// UpdateStatus activates or deactivates a student.
func (r *StudentRepository) UpdateStatus(ctx context.Context, id string, status models.EntityStatus) error {
	return r.exec(ctx, "update student status", `UPDATE students SET status = $2, updated_at = $3 WHERE id = $1`, id, status, time.Now().UTC())
}

// CountPayments returns the number of fee payments recorded for the student.
func (r *StudentRepository) CountPayments(ctx context.Context, id string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM payments WHERE student_id = $1`, id); err != nil {
		return 0, fmt.Errorf("count student payments: %w", err)
	}
	return count, nil
}

// Delete hard-deletes a student with no payment history together with their unpaid ledgers.
// The payment check and the deletes run in one transaction holding a lock on the student row.
func (r *StudentRepository) Delete(ctx context.Context, id string) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var locked string
		if err := tx.GetContext(ctx, &locked, `SELECT id FROM students WHERE id = $1 FOR UPDATE`, id); err != nil {
			if err == sql.ErrNoRows {
				return err
			}
			return fmt.Errorf("lock student: %w", err)
		}
		var payments int
		if err := tx.GetContext(ctx, &payments, `SELECT COUNT(*) FROM payments WHERE student_id = $1`, id); err != nil {
			return fmt.Errorf("count student payments: %w", err)
		}
		if payments > 0 {
			return ErrHasFinancialHistory
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM fee_ledgers WHERE student_id = $1 AND total_paid = 0`, id); err != nil {
			return fmt.Errorf("delete student ledgers: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete student: %w", err)
		}
		return nil
	})
}

func (r *StudentRepository) exec(ctx context.Context, op, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
