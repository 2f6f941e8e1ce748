package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/internal/models"
	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/internal/repository"
	appErrors "github.com/spoorthyconceptschool/spoorthy-school-system-sub001/pkg/errors"
)

type staffRepository interface {
	FindByID(ctx context.Context, id string) (*models.Staff, error)
	UpdateStatus(ctx context.Context, id string, status models.EntityStatus) error
	CountSalaryPayments(ctx context.Context, id string) (int, error)
	Delete(ctx context.Context, id string) error
}

// StaffService guards staff lifecycle changes.
type StaffService struct {
	repo   staffRepository
	logger *zap.Logger
}

// NewStaffService constructs the staff service.
func NewStaffService(repo staffRepository, logger *zap.Logger) *StaffService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StaffService{repo: repo, logger: logger}
}

// Get returns a staff member by id.
func (s *StaffService) Get(ctx context.Context, id string) (*models.Staff, error) {
	staff, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "staff member not found")
		}
		return nil, appErrors.Internal(err, "failed to load staff member")
	}
	return staff, nil
}

// CanDelete reports whether the staff member may be hard-deleted.
func (s *StaffService) CanDelete(ctx context.Context, id string) (*models.DeletionEligibility, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	count, err := s.repo.CountSalaryPayments(ctx, id)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check salary history")
	}
	if count > 0 {
		return &models.DeletionEligibility{CanDelete: false, Reason: fmt.Sprintf("staff member has %d salary payment(s); deactivate instead", count)}, nil
	}
	return &models.DeletionEligibility{CanDelete: true}, nil
}

// Delete removes a staff member with no salary history.
func (s *StaffService) Delete(ctx context.Context, id string) error {
	err := s.repo.Delete(ctx, id)
	switch {
	case err == nil:
		s.logger.Info("staff member deleted", zap.String("staff_id", id))
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Clone(appErrors.ErrNotFound, "staff member not found")
	case errors.Is(err, repository.ErrHasFinancialHistory):
		return appErrors.Clone(appErrors.ErrConflict, "staff member has salary history and cannot be deleted; deactivate instead")
	default:
		return appErrors.Internal(err, "failed to delete staff member")
	}
}

// Deactivate sets a staff member INACTIVE.
func (s *StaffService) Deactivate(ctx context.Context, id string) error {
	if err := s.repo.UpdateStatus(ctx, id, models.StatusInactive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "staff member not found")
		}
		return appErrors.Internal(err, "failed to update staff status")
	}
	return nil
}
