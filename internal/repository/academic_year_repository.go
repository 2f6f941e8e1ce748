package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/internal/models"
)

const academicYearColumns = "label, is_active, is_upcoming, start_date, end_date, stats, created_at, updated_at"

// AcademicYearRepository handles persistence for the academic year registry.
type AcademicYearRepository struct {
	db *sqlx.DB
}

// NewAcademicYearRepository instantiates an academic year repository.
func NewAcademicYearRepository(db *sqlx.DB) *AcademicYearRepository {
	return &AcademicYearRepository{db: db}
}

// List returns every year, newest label first.
func (r *AcademicYearRepository) List(ctx context.Context) ([]models.AcademicYear, error) {
	query := fmt.Sprintf("SELECT %s FROM academic_years ORDER BY label DESC", academicYearColumns)
	years := []models.AcademicYear{}
	if err := r.db.SelectContext(ctx, &years, query); err != nil {
		return nil, fmt.Errorf("list academic years: %w", err)
	}
	return years, nil
}

// FindByLabel loads a year by label.
func (r *AcademicYearRepository) FindByLabel(ctx context.Context, label string) (*models.AcademicYear, error) {
	query := fmt.Sprintf("SELECT %s FROM academic_years WHERE label = $1", academicYearColumns)
	var year models.AcademicYear
	if err := r.db.GetContext(ctx, &year, query, label); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find academic year: %w", err)
	}
	return &year, nil
}

// ListActive returns every year flagged active. More than one row means the registry is corrupt.
func (r *AcademicYearRepository) ListActive(ctx context.Context) ([]models.AcademicYear, error) {
	query := fmt.Sprintf("SELECT %s FROM academic_years WHERE is_active = TRUE", academicYearColumns)
	years := []models.AcademicYear{}
	if err := r.db.SelectContext(ctx, &years, query); err != nil {
		return nil, fmt.Errorf("list active academic years: %w", err)
	}
	return years, nil
}

// CountUpcoming returns how many years are waiting to be started, excluding label.
func (r *AcademicYearRepository) CountUpcoming(ctx context.Context, excludeLabel string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM academic_years WHERE is_upcoming = TRUE AND label <> $1`, excludeLabel); err != nil {
		return 0, fmt.Errorf("count upcoming academic years: %w", err)
	}
	return count, nil
}

// Create inserts a new year. ErrDuplicate is returned when the label exists.
func (r *AcademicYearRepository) Create(ctx context.Context, year *models.AcademicYear) error {
	now := time.Now().UTC()
	year.CreatedAt = now
	year.UpdatedAt = now

	const query = `INSERT INTO academic_years (label, is_active, is_upcoming, start_date, end_date, stats, created_at, updated_at) VALUES (:label, :is_active, :is_upcoming, :start_date, :end_date, :stats, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, year); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create academic year: %w", err)
	}
	return nil
}

// Update applies a rename and date changes to targetLabel.
func (r *AcademicYearRepository) Update(ctx context.Context, targetLabel string, changes models.AcademicYearChanges) error {
	label := targetLabel
	if changes.NewLabel != "" {
		label = changes.NewLabel
	}
	const query = `UPDATE academic_years SET label = $2, start_date = COALESCE($3, start_date), end_date = COALESCE($4, end_date), updated_at = $5 WHERE label = $1`
	res, err := r.db.ExecContext(ctx, query, targetLabel, label, changes.StartDate, changes.EndDate, time.Now().UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("update academic year: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// References counts rows keyed by the year label.
func (r *AcademicYearRepository) References(ctx context.Context, label string) (models.YearReferences, error) {
	const query = `SELECT
		(SELECT COUNT(*) FROM students WHERE academic_year = $1) AS students,
		(SELECT COUNT(*) FROM fee_ledgers WHERE academic_year = $1) AS ledgers,
		(SELECT COUNT(*) FROM payments WHERE academic_year = $1) AS payments`
	var refs models.YearReferences
	if err := r.db.GetContext(ctx, &refs, query, label); err != nil {
		return refs, fmt.Errorf("count academic year references: %w", err)
	}
	return refs, nil
}
