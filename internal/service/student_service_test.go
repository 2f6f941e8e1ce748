package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/internal/models"
	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/internal/repository"
	appErrors "github.com/spoorthyconceptschool/spoorthy-school-system-sub001/pkg/errors"
)

type mockStudentRepo struct {
	students   map[string]models.Student
	payments   map[string]int
	deleted    []string
	lastFilter models.StudentFilter
}

func newMockStudentRepo() *mockStudentRepo {
	return &mockStudentRepo{
		students: map[string]models.Student{
			"stu-1": {ID: "stu-1", StudentName: "Asha", Status: models.StatusActive, AcademicYear: "2025-2026"},
			"stu-2": {ID: "stu-2", StudentName: "Bilal", Status: models.StatusActive, AcademicYear: "2025-2026"},
		},
		payments: map[string]int{"stu-1": 2},
	}
}

func (m *mockStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	m.lastFilter = filter
	out := make([]models.Student, 0, len(m.students))
	for _, s := range m.students {
		out = append(out, s)
	}
	return out, len(out), nil
}

func (m *mockStudentRepo) FindByID(ctx context.Context, id string) (*models.Student, error) {
	s, ok := m.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

func (m *mockStudentRepo) SetRetention(ctx context.Context, id string, retain bool) error {
	s, ok := m.students[id]
	if !ok {
		return sql.ErrNoRows
	}
	s.Retain = retain
	m.students[id] = s
	return nil
}

func (m *mockStudentRepo) UpdateStatus(ctx context.Context, id string, status models.EntityStatus) error {
	s, ok := m.students[id]
	if !ok {
		return sql.ErrNoRows
	}
	s.Status = status
	m.students[id] = s
	return nil
}

func (m *mockStudentRepo) CountPayments(ctx context.Context, id string) (int, error) {
	return m.payments[id], nil
}

func (m *mockStudentRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.students[id]; !ok {
		return sql.ErrNoRows
	}
	if m.payments[id] > 0 {
		return repository.ErrHasFinancialHistory
	}
	delete(m.students, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func TestStudentServiceCanDelete(t *testing.T) {
	svc := NewStudentService(newMockStudentRepo(), nil, nil)

	withPayments, err := svc.CanDelete(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.False(t, withPayments.CanDelete)
	assert.NotEmpty(t, withPayments.Reason)

	clean, err := svc.CanDelete(context.Background(), "stu-2")
	require.NoError(t, err)
	assert.True(t, clean.CanDelete)

	_, err = svc.CanDelete(context.Background(), "missing")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestStudentServiceDeleteRefusesFinancialHistory(t *testing.T) {
	repo := newMockStudentRepo()
	svc := NewStudentService(repo, nil, nil)

	err := svc.Delete(context.Background(), "stu-1")
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
	_, exists := repo.students["stu-1"]
	assert.True(t, exists)

	require.NoError(t, svc.Delete(context.Background(), "stu-2"))
	assert.Equal(t, []string{"stu-2"}, repo.deleted)
}

func TestStudentServiceDeactivateAndReactivate(t *testing.T) {
	repo := newMockStudentRepo()
	svc := NewStudentService(repo, nil, nil)

	require.NoError(t, svc.Deactivate(context.Background(), "stu-1"))
	assert.Equal(t, models.StatusInactive, repo.students["stu-1"].Status)
	require.NoError(t, svc.Reactivate(context.Background(), "stu-1"))
	assert.Equal(t, models.StatusActive, repo.students["stu-1"].Status)

	err := svc.Deactivate(context.Background(), "missing")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestStudentServiceSetRetention(t *testing.T) {
	repo := newMockStudentRepo()
	svc := NewStudentService(repo, nil, nil)
	retain := true

	student, err := svc.SetRetention(context.Background(), "stu-2", models.SetRetentionRequest{Retain: &retain})
	require.NoError(t, err)
	assert.True(t, student.Retain)

	_, err = svc.SetRetention(context.Background(), "stu-2", models.SetRetentionRequest{})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestStudentServiceListPagination(t *testing.T) {
	repo := newMockStudentRepo()
	svc := NewStudentService(repo, nil, nil)

	students, pagination, err := svc.List(context.Background(), models.StudentFilter{ClassID: "grade-4"})
	require.NoError(t, err)
	assert.Len(t, students, 2)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
	assert.Equal(t, "grade-4", repo.lastFilter.ClassID)

	_, _, err = svc.List(context.Background(), models.StudentFilter{Status: "ARCHIVED"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}
