package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/internal/models"
	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/internal/repository"
	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/pkg/cache"
	appErrors "github.com/spoorthyconceptschool/spoorthy-school-system-sub001/pkg/errors"
)

var historyCacheKey = cache.Key("academic-years", "history")

type academicYearRepository interface {
	List(ctx context.Context) ([]models.AcademicYear, error)
	FindByLabel(ctx context.Context, label string) (*models.AcademicYear, error)
	ListActive(ctx context.Context) ([]models.AcademicYear, error)
	CountUpcoming(ctx context.Context, excludeLabel string) (int, error)
	Create(ctx context.Context, year *models.AcademicYear) error
	Update(ctx context.Context, targetLabel string, changes models.AcademicYearChanges) error
	References(ctx context.Context, label string) (models.YearReferences, error)
}

// AcademicYearService manages the academic year registry.
type AcademicYearService struct {
	repo       academicYearRepository
	cache      *CacheService
	historyTTL time.Duration
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewAcademicYearService constructs an AcademicYearService. cache may be nil.
func NewAcademicYearService(repo academicYearRepository, cache *CacheService, historyTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *AcademicYearService {
	if validate == nil {
		validate = validator.New()
	}
	registerValidations(validate)
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AcademicYearService{repo: repo, cache: cache, historyTTL: historyTTL, validator: validate, logger: logger}
}

// Create defines a new upcoming year. Only one upcoming year may exist at a time.
func (s *AcademicYearService) Create(ctx context.Context, req models.CreateAcademicYearRequest) (*models.AcademicYear, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "yearLabel must look like 2025-2026")
	}

	upcoming, err := s.repo.CountUpcoming(ctx, req.YearLabel)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check upcoming years")
	}
	if upcoming > 0 {
		return nil, appErrors.Clone(appErrors.ErrConflict, "an upcoming academic year already exists")
	}

	year := &models.AcademicYear{Label: req.YearLabel, IsUpcoming: true}
	if err := s.repo.Create(ctx, year); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("academic year %s already exists", req.YearLabel))
		}
		return nil, appErrors.Internal(err, "failed to create academic year")
	}

	s.InvalidateHistory(ctx)
	s.logger.Info("academic year created", zap.String("label", year.Label))
	return year, nil
}

// Update renames a year and/or changes its dates. A referenced year cannot be renamed.
func (s *AcademicYearService) Update(ctx context.Context, req models.UpdateAcademicYearRequest) (*models.AcademicYear, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid academic year update payload")
	}

	current, err := s.repo.FindByLabel(ctx, req.TargetYear)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "academic year not found")
		}
		return nil, appErrors.Internal(err, "failed to load academic year")
	}

	changes := models.AcademicYearChanges{}
	if req.NewLabel != nil && *req.NewLabel != current.Label {
		changes.NewLabel = *req.NewLabel
	}
	if req.StartDate != nil {
		start, err := parseDate(*req.StartDate)
		if err != nil {
			return nil, err
		}
		changes.StartDate = &start
	}
	if req.EndDate != nil {
		end, err := parseDate(*req.EndDate)
		if err != nil {
			return nil, err
		}
		changes.EndDate = &end
	}

	start, end := current.StartDate, current.EndDate
	if changes.StartDate != nil {
		start = changes.StartDate
	}
	if changes.EndDate != nil {
		end = changes.EndDate
	}
	if start != nil && end != nil && !start.Before(*end) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "startDate must be before endDate")
	}

	if changes.NewLabel != "" {
		refs, err := s.repo.References(ctx, current.Label)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to check academic year references")
		}
		if refs.Any() {
			return nil, appErrors.Clone(appErrors.ErrConflict, "academic year is referenced by students, ledgers or payments and cannot be renamed")
		}
	}

	if err := s.repo.Update(ctx, current.Label, changes); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("academic year %s already exists", changes.NewLabel))
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "academic year not found")
		}
		return nil, appErrors.Internal(err, "failed to update academic year")
	}
	s.InvalidateHistory(ctx)

	label := current.Label
	if changes.NewLabel != "" {
		label = changes.NewLabel
	}
	updated, err := s.repo.FindByLabel(ctx, label)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to reload academic year")
	}
	return updated, nil
}

// History lists every year, newest first.
func (s *AcademicYearService) History(ctx context.Context) (*models.AcademicYearHistory, error) {
	var cached models.AcademicYearHistory
	if s.cache.Get(ctx, historyCacheKey, &cached) {
		return &cached, nil
	}

	years, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list academic years")
	}
	history := &models.AcademicYearHistory{Years: years}
	s.cache.Set(ctx, historyCacheKey, history, s.historyTTL)
	return history, nil
}

// Active returns the single active year.
func (s *AcademicYearService) Active(ctx context.Context) (*models.AcademicYear, error) {
	actives, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load active academic year")
	}
	switch len(actives) {
	case 0:
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no active academic year")
	case 1:
		return &actives[0], nil
	default:
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("expected one active academic year, found %d", len(actives)))
	}
}

// ActiveLabel returns the label of the active year.
func (s *AcademicYearService) ActiveLabel(ctx context.Context) (string, error) {
	year, err := s.Active(ctx)
	if err != nil {
		return "", err
	}
	return year.Label, nil
}

// InvalidateHistory drops the cached history listing.
func (s *AcademicYearService) InvalidateHistory(ctx context.Context) {
	s.cache.Invalidate(ctx, historyCacheKey)
}
