package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/internal/models"
)

const attendanceColumns = "id, date, cohort, class_id, section_id, records, submitted_by, version, created_at, updated_at"

// AttendanceRepository stores one attendance record per cohort and day. Class sections use
// attendance_daily, staff cohorts use attendance.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository instantiates an attendance repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

func attendanceTable(classCohort bool) string {
	if classCohort {
		return "attendance_daily"
	}
	return "attendance"
}

// Find loads a record by key.
func (r *AttendanceRepository) Find(ctx context.Context, id string, classCohort bool) (*models.AttendanceRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", attendanceColumns, attendanceTable(classCohort))
	var record models.AttendanceRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find attendance record: %w", err)
	}
	return &record, nil
}

// Insert writes the first submission. It reports false when another writer created the record first.
func (r *AttendanceRepository) Insert(ctx context.Context, record *models.AttendanceRecord) (bool, error) {
	now := time.Now().UTC()
	record.Version = 1
	record.CreatedAt = now
	record.UpdatedAt = now

	query := fmt.Sprintf(`INSERT INTO %s (id, date, cohort, class_id, section_id, records, submitted_by, version, created_at, updated_at) VALUES (:id, :date, :cohort, :class_id, :section_id, :records, :submitted_by, :version, :created_at, :updated_at) ON CONFLICT (id) DO NOTHING`, attendanceTable(record.ClassID != nil))
	res, err := r.db.NamedExecContext(ctx, query, record)
	if err != nil {
		return false, fmt.Errorf("create attendance record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create attendance record rows: %w", err)
	}
	return affected == 1, nil
}

// Update overwrites the marks when the stored version still equals expected.
func (r *AttendanceRepository) Update(ctx context.Context, record *models.AttendanceRecord, expected int64) error {
	now := time.Now().UTC()
	query := fmt.Sprintf(`UPDATE %s SET records = $3, submitted_by = $4, version = version + 1, updated_at = $5 WHERE id = $1 AND version = $2`, attendanceTable(record.ClassID != nil))
	res, err := r.db.ExecContext(ctx, query, record.ID, expected, record.Records, record.SubmittedBy, now)
	if err != nil {
		return fmt.Errorf("update attendance record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update attendance record rows: %w", err)
	}
	if affected == 0 {
		return ErrStaleVersion
	}
	record.Version = expected + 1
	record.UpdatedAt = now
	return nil
}
