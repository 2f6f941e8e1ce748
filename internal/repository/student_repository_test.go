package repository

import (
	"context"
	"database/sql"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/internal/models"
)

func TestStudentDeleteRefusedWithPayments(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM students WHERE id = \\$1 FOR UPDATE").WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("s1"))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM payments").WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectRollback()

	err := repo.Delete(context.Background(), "s1")
	assert.ErrorIs(t, err, ErrHasFinancialHistory)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentDeleteWithoutPayments(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM students WHERE id = \\$1 FOR UPDATE").WithArgs("s2").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("s2"))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM payments").WithArgs("s2").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("DELETE FROM fee_ledgers WHERE student_id = \\$1 AND total_paid = 0").WithArgs("s2").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM students").WithArgs("s2").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Delete(context.Background(), "s2"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentDeleteRemovesUnpaidLedgersFirst(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	// Promoted student: ledgers for both years exist, nothing was ever paid.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM students WHERE id = \\$1 FOR UPDATE").WithArgs("s3").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("s3"))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM payments").WithArgs("s3").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("DELETE FROM fee_ledgers WHERE student_id = \\$1 AND total_paid = 0").WithArgs("s3").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM students WHERE id = \\$1").WithArgs("s3").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Delete(context.Background(), "s3"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentUpdateStatusMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectExec("UPDATE students SET status").WithArgs("ghost", models.StatusInactive, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "ghost", models.StatusInactive)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentListAppliesFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery("FROM students WHERE 1=1 AND academic_year = \\$1 AND class_id = \\$2 ORDER BY student_name ASC LIMIT 20 OFFSET 0").
		WithArgs("2025-2026", "grade-3").
		WillReturnRows(sqlmock.NewRows([]string{"id", "school_id", "student_name", "class_id", "section_id", "status", "academic_year", "retain", "user_id", "created_at", "updated_at"}))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM students").WithArgs("2025-2026", "grade-3").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	students, total, err := repo.List(context.Background(), models.StudentFilter{AcademicYear: "2025-2026", ClassID: "grade-3"})
	require.NoError(t, err)
	assert.Empty(t, students)
	assert.Zero(t, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}
