package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/internal/models"
	appErrors "github.com/spoorthyconceptschool/spoorthy-school-system-sub001/pkg/errors"
)

type coverageTaskStore interface {
	FindByID(ctx context.Context, id string) (*models.CoverageTask, error)
	List(ctx context.Context, filter models.CoverageFilter) ([]models.CoverageTask, error)
	Ensure(ctx context.Context, task *models.CoverageTask) (*models.CoverageTask, error)
	Resolve(ctx context.Context, id string, resolution models.CoverageResolution) error
}

type timetableReader interface {
	TeacherSlots(ctx context.Context, academicYear, teacherID string, dayOfWeek int) ([]models.TimetableSlot, error)
	BusyTeachers(ctx context.Context, academicYear string, dayOfWeek, slotID int) ([]string, error)
}

type teacherDirectory interface {
	FindByID(ctx context.Context, id string) (*models.Staff, error)
	ListActiveTeachers(ctx context.Context) ([]models.Staff, error)
}

type leaveReader interface {
	ApprovedOn(ctx context.Context, entityType models.LeaveEntityType, date time.Time) ([]string, error)
}

type activeYearResolver interface {
	ActiveLabel(ctx context.Context) (string, error)
}

// CoverageService opens, suggests and resolves cover for absent teachers.
type CoverageService struct {
	tasks     coverageTaskStore
	timetable timetableReader
	teachers  teacherDirectory
	leave     leaveReader
	years     activeYearResolver
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewCoverageService constructs a CoverageService.
func NewCoverageService(tasks coverageTaskStore, timetable timetableReader, teachers teacherDirectory, leave leaveReader, years activeYearResolver, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *CoverageService {
	if validate == nil {
		validate = validator.New()
	}
	registerValidations(validate)
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CoverageService{
		tasks:     tasks,
		timetable: timetable,
		teachers:  teachers,
		leave:     leave,
		years:     years,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Resolve assigns a substitute to a task or marks it as leisure. Resolving again overwrites
// the previous resolution.
func (s *CoverageService) Resolve(ctx context.Context, req models.ResolveCoverageRequest, resolvedBy string) (*models.CoverageTask, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "resolutionType must be SUBSTITUTE or LEISURE")
	}

	task, err := s.loadTask(ctx, req.TaskID)
	if err != nil {
		return nil, err
	}

	resolution := models.CoverageResolution{ResolvedBy: resolvedBy, ResolvedAt: s.now()}
	switch req.ResolutionType {
	case models.ResolveSubstitute:
		if req.SubstituteTeacherID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "substituteTeacherId is required for SUBSTITUTE")
		}
		if req.SubstituteTeacherID == task.OriginalTeacherID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "substitute must differ from the absent teacher")
		}
		if _, err := s.activeTeacher(ctx, req.SubstituteTeacherID); err != nil {
			return nil, err
		}
		substitute := req.SubstituteTeacherID
		resolution.Type = models.ResolutionSubstitution
		resolution.SubstituteTeacherID = &substitute
	default:
		resolution.Type = models.ResolutionLeisure
	}

	if err := s.tasks.Resolve(ctx, task.ID, resolution); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "coverage task not found")
		}
		return nil, appErrors.Internal(err, "failed to resolve coverage task")
	}

	task.Status = models.CoverageResolved
	task.Resolution = &resolution
	s.metrics.RecordCoverageResolution(string(resolution.Type))
	s.logger.Info("coverage task resolved",
		zap.String("task_id", task.ID),
		zap.String("resolution", string(resolution.Type)),
		zap.String("resolved_by", resolvedBy),
	)
	return task, nil
}

// ReportAbsence opens a pending task for each of the teacher's slots on the date and suggests
// the first free teacher for each.
func (s *CoverageService) ReportAbsence(ctx context.Context, req models.ReportAbsenceRequest) ([]models.CoverageTask, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid absence payload")
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return nil, err
	}
	if _, err := s.activeTeacher(ctx, req.TeacherID); err != nil {
		return nil, err
	}
	year, err := s.years.ActiveLabel(ctx)
	if err != nil {
		return nil, err
	}

	dow := isoWeekday(date)
	slots, err := s.timetable.TeacherSlots(ctx, year, req.TeacherID, dow)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load timetable")
	}
	if len(slots) == 0 {
		return []models.CoverageTask{}, nil
	}

	candidates, err := s.teachers.ListActiveTeachers(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list teachers")
	}
	onLeave, err := s.leave.ApprovedOn(ctx, models.LeaveStaff, date)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load leave")
	}
	existing, err := s.tasks.List(ctx, models.CoverageFilter{Date: date})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load coverage tasks")
	}

	absent := map[string]bool{req.TeacherID: true}
	for _, id := range onLeave {
		absent[id] = true
	}
	covering := map[int]map[string]bool{}
	markCovering := func(slotID int, teacherID *string) {
		if teacherID == nil {
			return
		}
		if covering[slotID] == nil {
			covering[slotID] = map[string]bool{}
		}
		covering[slotID][*teacherID] = true
	}
	for i := range existing {
		task := existing[i]
		absent[task.OriginalTeacherID] = true
		markCovering(task.SlotID, task.CoveringTeacherID())
		if task.Status == models.CoveragePending {
			markCovering(task.SlotID, task.SuggestedSubstituteID)
		}
	}

	tasks := make([]models.CoverageTask, 0, len(slots))
	for _, slot := range slots {
		busy, err := s.timetable.BusyTeachers(ctx, year, dow, slot.SlotID)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to load slot occupancy")
		}
		taken := make(map[string]bool, len(busy))
		for _, id := range busy {
			taken[id] = true
		}

		var suggestion *string
		for _, teacher := range candidates {
			if absent[teacher.ID] || taken[teacher.ID] || covering[slot.SlotID][teacher.ID] {
				continue
			}
			id := teacher.ID
			suggestion = &id
			break
		}

		subject := slot.SubjectID
		stored, err := s.tasks.Ensure(ctx, &models.CoverageTask{
			Date:                  date,
			SlotID:                slot.SlotID,
			ClassID:               slot.ClassID,
			SectionID:             slot.SectionID,
			SubjectID:             &subject,
			OriginalTeacherID:     req.TeacherID,
			SuggestedSubstituteID: suggestion,
		})
		if err != nil {
			return nil, appErrors.Internal(err, "failed to create coverage task")
		}
		if stored.Status == models.CoveragePending {
			markCovering(stored.SlotID, stored.SuggestedSubstituteID)
		}
		tasks = append(tasks, *stored)
	}

	s.logger.Info("teacher absence reported",
		zap.String("teacher_id", req.TeacherID),
		zap.String("date", req.Date),
		zap.Int("tasks", len(tasks)),
	)
	return tasks, nil
}

// ListTasks returns the tasks of a date, optionally filtered by status.
func (s *CoverageService) ListTasks(ctx context.Context, date, status string) ([]models.CoverageTask, error) {
	day, err := parseDate(date)
	if err != nil {
		return nil, err
	}
	filter := models.CoverageFilter{Date: day}
	switch models.CoverageStatus(status) {
	case "":
	case models.CoveragePending, models.CoverageResolved:
		filter.Status = models.CoverageStatus(status)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be PENDING or RESOLVED")
	}
	tasks, err := s.tasks.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list coverage tasks")
	}
	return tasks, nil
}

// TeacherSchedule overlays resolved coverage for the date on the teacher's weekly timetable.
func (s *CoverageService) TeacherSchedule(ctx context.Context, teacherID, date string) (*models.TeacherSchedule, error) {
	day, err := parseDate(date)
	if err != nil {
		return nil, err
	}
	if _, err := s.loadTeacher(ctx, teacherID); err != nil {
		return nil, err
	}
	year, err := s.years.ActiveLabel(ctx)
	if err != nil {
		return nil, err
	}

	slots, err := s.timetable.TeacherSlots(ctx, year, teacherID, isoWeekday(day))
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load timetable")
	}
	tasks, err := s.tasks.List(ctx, models.CoverageFilter{Date: day, Status: models.CoverageResolved})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load coverage tasks")
	}
	return buildSchedule(teacherID, day, slots, tasks), nil
}

func buildSchedule(teacherID string, day time.Time, slots []models.TimetableSlot, resolved []models.CoverageTask) *models.TeacherSchedule {
	type slotKey struct {
		slot           int
		class, section string
	}
	own := map[slotKey]*models.CoverageTask{}
	entries := make([]models.ScheduleEntry, 0, len(slots))

	for i := range resolved {
		task := &resolved[i]
		if task.OriginalTeacherID == teacherID {
			own[slotKey{task.SlotID, task.ClassID, task.SectionID}] = task
		}
	}

	for _, slot := range slots {
		entry := models.ScheduleEntry{
			SlotID:    slot.SlotID,
			ClassID:   slot.ClassID,
			SectionID: slot.SectionID,
			SubjectID: slot.SubjectID,
			Kind:      models.SlotRegular,
		}
		if task, ok := own[slotKey{slot.SlotID, slot.ClassID, slot.SectionID}]; ok {
			id := task.ID
			entry.Kind = models.SlotOriginal
			entry.TaskID = &id
			entry.CoveredBy = task.CoveringTeacherID()
			entry.Leisure = task.Resolution != nil && task.Resolution.Type == models.ResolutionLeisure
		}
		entries = append(entries, entry)
	}

	for i := range resolved {
		task := resolved[i]
		covering := task.CoveringTeacherID()
		if covering == nil || *covering != teacherID {
			continue
		}
		id, original := task.ID, task.OriginalTeacherID
		subject := ""
		if task.SubjectID != nil {
			subject = *task.SubjectID
		}
		entries = append(entries, models.ScheduleEntry{
			SlotID:            task.SlotID,
			ClassID:           task.ClassID,
			SectionID:         task.SectionID,
			SubjectID:         subject,
			Kind:              models.SlotSubstitute,
			TaskID:            &id,
			OriginalTeacherID: &original,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].SlotID < entries[j].SlotID })
	return &models.TeacherSchedule{TeacherID: teacherID, Date: day.Format(dateLayout), Slots: entries}
}

func (s *CoverageService) loadTask(ctx context.Context, id string) (*models.CoverageTask, error) {
	task, err := s.tasks.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "coverage task not found")
		}
		return nil, appErrors.Internal(err, "failed to load coverage task")
	}
	return task, nil
}

func (s *CoverageService) loadTeacher(ctx context.Context, id string) (*models.Staff, error) {
	staff, err := s.teachers.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Internal(err, "failed to load teacher")
	}
	if staff.Role != models.StaffRoleTeacher {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
	}
	return staff, nil
}

func (s *CoverageService) activeTeacher(ctx context.Context, id string) (*models.Staff, error) {
	staff, err := s.loadTeacher(ctx, id)
	if err != nil {
		return nil, err
	}
	if staff.Status != models.StatusActive {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
	}
	return staff, nil
}
