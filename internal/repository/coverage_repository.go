package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/internal/models"
)

const coverageColumns = "id, date, slot_id, class_id, section_id, subject_id, original_teacher_id, status, suggested_substitute_id, resolution, created_at, updated_at"

// CoverageRepository persists coverage tasks raised by teacher absences.
type CoverageRepository struct {
	db *sqlx.DB
}

// NewCoverageRepository instantiates a coverage repository.
func NewCoverageRepository(db *sqlx.DB) *CoverageRepository {
	return &CoverageRepository{db: db}
}

// FindByID loads a task by identifier.
func (r *CoverageRepository) FindByID(ctx context.Context, id string) (*models.CoverageTask, error) {
	query := fmt.Sprintf("SELECT %s FROM coverage_tasks WHERE id = $1", coverageColumns)
	var task models.CoverageTask
	if err := r.db.GetContext(ctx, &task, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find coverage task: %w", err)
	}
	return &task, nil
}

// List returns tasks for a date, optionally narrowed by status and original teacher.
func (r *CoverageRepository) List(ctx context.Context, filter models.CoverageFilter) ([]models.CoverageTask, error) {
	conditions := []string{"date = $1"}
	args := []interface{}{filter.Date}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("original_teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	query := fmt.Sprintf("SELECT %s FROM coverage_tasks WHERE %s ORDER BY slot_id, class_id, section_id", coverageColumns, strings.Join(conditions, " AND "))

	tasks := []models.CoverageTask{}
	if err := r.db.SelectContext(ctx, &tasks, query, args...); err != nil {
		return nil, fmt.Errorf("list coverage tasks: %w", err)
	}
	return tasks, nil
}

// Ensure inserts the task unless one already exists for the same date, slot, class, section and
// teacher, and returns the stored row. An existing task keeps its suggestion when it has one.
func (r *CoverageRepository) Ensure(ctx context.Context, task *models.CoverageTask) (*models.CoverageTask, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	query := fmt.Sprintf(`INSERT INTO coverage_tasks (id, date, slot_id, class_id, section_id, subject_id, original_teacher_id, status, suggested_substitute_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		ON CONFLICT (date, slot_id, class_id, section_id, original_teacher_id)
		DO UPDATE SET suggested_substitute_id = COALESCE(coverage_tasks.suggested_substitute_id, EXCLUDED.suggested_substitute_id)
		RETURNING %s`, coverageColumns)

	var stored models.CoverageTask
	if err := r.db.GetContext(ctx, &stored, query, task.ID, task.Date, task.SlotID, task.ClassID, task.SectionID, task.SubjectID, task.OriginalTeacherID, models.CoveragePending, task.SuggestedSubstituteID, now); err != nil {
		return nil, fmt.Errorf("ensure coverage task: %w", err)
	}
	return &stored, nil
}

// Resolve marks the task RESOLVED and overwrites its resolution.
func (r *CoverageRepository) Resolve(ctx context.Context, id string, resolution models.CoverageResolution) error {
	res, err := r.db.ExecContext(ctx, `UPDATE coverage_tasks SET status = $2, resolution = $3, updated_at = $4 WHERE id = $1`, id, models.CoverageResolved, resolution, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("resolve coverage task: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
