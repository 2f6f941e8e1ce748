package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/internal/models"
)

// ClassRepository reads the class master and year-scoped class sections.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository instantiates a class repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// ListOrdered returns active classes by ascending promotion order.
func (r *ClassRepository) ListOrdered(ctx context.Context) ([]models.Class, error) {
	classes := []models.Class{}
	if err := r.db.SelectContext(ctx, &classes, `SELECT id, name, sort_order, active FROM classes WHERE active = TRUE ORDER BY sort_order ASC`); err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	return classes, nil
}

// FindSection loads a class section for the year.
func (r *ClassRepository) FindSection(ctx context.Context, academicYear, classID, sectionID string) (*models.ClassSection, error) {
	const query = `SELECT academic_year, class_id, section_id, class_teacher_id FROM class_sections WHERE academic_year = $1 AND class_id = $2 AND section_id = $3`
	var section models.ClassSection
	if err := r.db.GetContext(ctx, &section, query, academicYear, classID, sectionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find class section: %w", err)
	}
	return &section, nil
}
