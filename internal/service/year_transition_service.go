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
	appErrors "github.com/spoorthyconceptschool/spoorthy-school-system-sub001/pkg/errors"
)

const defaultTransitionTimeout = 5 * time.Minute

type transitionRepository interface {
	State(ctx context.Context) (*models.AcademicYearState, error)
	ApplyPromotion(ctx context.Context, plan models.PromotionPlan) (*models.StudentPromotion, bool, error)
	CloneRelations(ctx context.Context, fromYear, toYear string) (models.RelationCloneResult, error)
	ActivateYear(ctx context.Context, fromYear, toYear string, expectedVersion int64, stats models.YearStats, at time.Time) error
	PromotionStats(ctx context.Context, toYear string) (models.YearStats, error)
}

type transitionYearReader interface {
	FindByLabel(ctx context.Context, label string) (*models.AcademicYear, error)
	ListActive(ctx context.Context) ([]models.AcademicYear, error)
}

type promotionStudentReader interface {
	ListActiveByYear(ctx context.Context, academicYear string) ([]models.Student, error)
}

type classMasterReader interface {
	ListOrdered(ctx context.Context) ([]models.Class, error)
}

type historyInvalidator interface {
	InvalidateHistory(ctx context.Context)
}

// TransitionAbortedError is returned when the transition deadline expires before every student
// was processed. Stats reflect the promotions committed so far.
type TransitionAbortedError struct {
	Err       *appErrors.Error
	Stats     models.YearStats
	Remaining int
}

func (e *TransitionAbortedError) Error() string { return e.Err.Error() }

func (e *TransitionAbortedError) Unwrap() error { return e.Err }

// YearTransitionService moves the school from the active academic year into the upcoming one.
type YearTransitionService struct {
	repo      transitionRepository
	years     transitionYearReader
	students  promotionStudentReader
	classes   classMasterReader
	history   historyInvalidator
	metrics   *MetricsService
	timeout   time.Duration
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewYearTransitionService wires the transition orchestrator.
func NewYearTransitionService(
	repo transitionRepository,
	years transitionYearReader,
	students promotionStudentReader,
	classes classMasterReader,
	history historyInvalidator,
	metrics *MetricsService,
	timeout time.Duration,
	validate *validator.Validate,
	logger *zap.Logger,
) *YearTransitionService {
	if validate == nil {
		validate = validator.New()
	}
	registerValidations(validate)
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = defaultTransitionTimeout
	}
	return &YearTransitionService{
		repo:      repo,
		years:     years,
		students:  students,
		classes:   classes,
		history:   history,
		metrics:   metrics,
		timeout:   timeout,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// StartTransition promotes every active student into the upcoming year, carries unpaid fees
// forward, clones the relation maps and flips the active year. Re-running after a partial
// failure resumes where it stopped; re-running after success returns the recorded counts.
func (s *YearTransitionService) StartTransition(ctx context.Context, req models.StartAcademicYearRequest) (*models.TransitionResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "newYearLabel must look like 2025-2026")
	}

	target, err := s.years.FindByLabel(ctx, req.NewYearLabel)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("academic year %s does not exist", req.NewYearLabel))
		}
		return nil, appErrors.Internal(err, "failed to load academic year")
	}

	if target.IsActive && target.Stats != nil {
		stats, err := s.repo.PromotionStats(ctx, target.Label)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to load transition stats")
		}
		s.logger.Info("year transition already completed", zap.String("year", target.Label))
		return &models.TransitionResult{Success: true, Stats: stats}, nil
	}
	if !target.IsUpcoming {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("academic year %s is not an upcoming year", target.Label))
	}

	current, state, err := s.currentYear(ctx)
	if err != nil {
		return nil, err
	}

	classes, err := s.classes.ListOrdered(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load class master")
	}
	next := nextClassIndex(classes)

	started := s.now()
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	students, err := s.students.ListActiveByYear(runCtx, current)
	if err != nil {
		return nil, s.abortOrFail(ctx, runCtx, target.Label, 0, err, "failed to load students")
	}

	logger := s.logger.With(zap.String("from_year", current), zap.String("to_year", target.Label))
	logger.Info("year transition started", zap.Int("students", len(students)))

	for i, student := range students {
		if runCtx.Err() != nil {
			return nil, s.abort(ctx, target.Label, len(students)-i)
		}
		plan := s.plan(student, current, target.Label, next, started)
		_, applied, err := s.repo.ApplyPromotion(runCtx, plan)
		if err != nil {
			logger.Error("promotion failed", zap.String("student_id", student.ID), zap.Error(err))
			return nil, s.abortOrFail(ctx, runCtx, target.Label, len(students)-i, err, "failed to promote student")
		}
		if applied {
			s.metrics.RecordPromotion(string(plan.Outcome))
		}
	}

	cloned, err := s.repo.CloneRelations(runCtx, current, target.Label)
	if err != nil {
		return nil, s.abortOrFail(ctx, runCtx, target.Label, 0, err, "failed to clone class relations")
	}

	stats, err := s.repo.PromotionStats(runCtx, target.Label)
	if err != nil {
		return nil, s.abortOrFail(ctx, runCtx, target.Label, 0, err, "failed to aggregate promotions")
	}

	if err := s.repo.ActivateYear(runCtx, current, target.Label, state.Version, stats, s.now()); err != nil {
		if errors.Is(err, repository.ErrStaleVersion) {
			s.metrics.RecordConflict("academic_year_state")
			s.metrics.ObserveTransition("conflict", time.Since(started))
			return nil, appErrors.Clone(appErrors.ErrConflict, "another transition changed the active year")
		}
		return nil, s.abortOrFail(ctx, runCtx, target.Label, 0, err, "failed to activate academic year")
	}

	if s.history != nil {
		s.history.InvalidateHistory(ctx)
	}
	s.metrics.ObserveTransition("completed", time.Since(started))
	logger.Info("year transition completed",
		zap.Int("promoted", stats.Promoted),
		zap.Int("retained", stats.Retained),
		zap.Int("total", stats.Total),
		zap.Int64("class_sections_cloned", cloned.ClassSections),
		zap.Int64("class_subjects_cloned", cloned.ClassSubjects),
		zap.Int64("subject_teachers_cloned", cloned.SubjectTeachers),
	)
	return &models.TransitionResult{Success: true, Stats: stats}, nil
}

func (s *YearTransitionService) currentYear(ctx context.Context) (string, *models.AcademicYearState, error) {
	actives, err := s.years.ListActive(ctx)
	if err != nil {
		return "", nil, appErrors.Internal(err, "failed to load active academic year")
	}
	if len(actives) != 1 {
		return "", nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("expected one active academic year, found %d", len(actives)))
	}

	state, err := s.repo.State(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil, appErrors.Clone(appErrors.ErrConflict, "active academic year state is not initialised")
		}
		return "", nil, appErrors.Internal(err, "failed to load academic year state")
	}
	if state.ActiveYear != actives[0].Label {
		return "", nil, appErrors.Clone(appErrors.ErrConflict, "active academic year changed during the request")
	}
	return actives[0].Label, state, nil
}

func (s *YearTransitionService) plan(student models.Student, fromYear, toYear string, next map[string]string, at time.Time) models.PromotionPlan {
	plan := models.PromotionPlan{
		Student:   student,
		FromYear:  fromYear,
		ToYear:    toYear,
		ToClassID: student.ClassID,
		Outcome:   models.OutcomeRetained,
		At:        at,
	}
	if student.Retain {
		return plan
	}
	nextClass, known := next[student.ClassID]
	switch {
	case !known:
		s.logger.Warn("student class missing from class master, retaining",
			zap.String("student_id", student.ID), zap.String("class_id", student.ClassID))
	case nextClass == "":
		plan.Outcome = models.OutcomeGraduated
	default:
		plan.ToClassID = nextClass
		plan.Outcome = models.OutcomePromoted
	}
	return plan
}

// nextClassIndex maps each class to the class that follows it by order. The highest class maps to "".
func nextClassIndex(classes []models.Class) map[string]string {
	next := make(map[string]string, len(classes))
	for i, class := range classes {
		if i+1 < len(classes) {
			next[class.ID] = classes[i+1].ID
			continue
		}
		next[class.ID] = ""
	}
	return next
}

func (s *YearTransitionService) abortOrFail(ctx, runCtx context.Context, toYear string, remaining int, err error, message string) error {
	if runCtx.Err() != nil && ctx.Err() == nil {
		return s.abort(ctx, toYear, remaining)
	}
	s.metrics.ObserveTransition("failed", 0)
	return appErrors.Internal(err, message)
}

func (s *YearTransitionService) abort(ctx context.Context, toYear string, remaining int) error {
	stats, err := s.repo.PromotionStats(ctx, toYear)
	if err != nil {
		s.logger.Warn("failed to aggregate partial transition stats", zap.Error(err))
	}
	s.metrics.ObserveTransition("aborted", s.timeout)
	s.logger.Warn("year transition aborted",
		zap.String("to_year", toYear),
		zap.Duration("timeout", s.timeout),
		zap.Int("remaining", remaining),
		zap.Int("processed", stats.Total),
	)
	return &TransitionAbortedError{
		Err:       appErrors.Clone(appErrors.ErrTransitionAborted, fmt.Sprintf("year transition timed out after %s; re-run to resume", s.timeout)),
		Stats:     stats,
		Remaining: remaining,
	}
}
