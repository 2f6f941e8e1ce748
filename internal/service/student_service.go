package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/internal/models"
	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/internal/repository"
	appErrors "github.com/spoorthyconceptschool/spoorthy-school-system-sub001/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	SetRetention(ctx context.Context, id string, retain bool) error
	UpdateStatus(ctx context.Context, id string, status models.EntityStatus) error
	CountPayments(ctx context.Context, id string) (int, error)
	Delete(ctx context.Context, id string) error
}

// StudentService handles student use-cases.
type StudentService struct {
	repo      studentRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	registerValidations(validate)
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, validator: validate, logger: logger}
}

// List returns students and pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	if filter.Status != "" && filter.Status != models.StatusActive && filter.Status != models.StatusInactive {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "status must be ACTIVE or INACTIVE")
	}
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return students, pagination, nil
}

// Get returns a student by id.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// CanDelete reports whether the student may be hard-deleted.
func (s *StudentService) CanDelete(ctx context.Context, id string) (*models.DeletionEligibility, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	count, err := s.repo.CountPayments(ctx, id)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check payment history")
	}
	if count > 0 {
		return &models.DeletionEligibility{CanDelete: false, Reason: fmt.Sprintf("student has %d recorded payment(s); deactivate instead", count)}, nil
	}
	return &models.DeletionEligibility{CanDelete: true}, nil
}

// Delete removes a student that has no payment history.
func (s *StudentService) Delete(ctx context.Context, id string) error {
	err := s.repo.Delete(ctx, id)
	switch {
	case err == nil:
		s.logger.Info("student deleted", zap.String("student_id", id))
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, "student not found")
	case errors.Is(err, repository.ErrHasFinancialHistory):
		return appErrors.Clone(appErrors.ErrConflict, "student has payment history and cannot be deleted; deactivate instead")
	default:
		return appErrors.Internal(err, "failed to delete student")
	}
}

// Deactivate sets a student INACTIVE.
func (s *StudentService) Deactivate(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, models.StatusInactive)
}

// Reactivate sets a student ACTIVE.
func (s *StudentService) Reactivate(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, models.StatusActive)
}

func (s *StudentService) setStatus(ctx context.Context, id string, status models.EntityStatus) error {
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Internal(err, "failed to update student status")
	}
	return nil
}

// SetRetention flags the student to stay in the same class at the next transition.
func (s *StudentService) SetRetention(ctx context.Context, id string, req models.SetRetentionRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "retain is required")
	}
	if err := s.repo.SetRetention(ctx, id, *req.Retain); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Internal(err, "failed to update retention")
	}
	return s.Get(ctx, id)
}
