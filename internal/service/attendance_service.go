package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/internal/models"
	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/internal/repository"
	appErrors "github.com/spoorthyconceptschool/spoorthy-school-system-sub001/pkg/errors"
)

// attempts per submission; the second re-diffs against a record written concurrently.
const attendanceWriteAttempts = 2

type attendanceStore interface {
	Find(ctx context.Context, id string, classCohort bool) (*models.AttendanceRecord, error)
	Insert(ctx context.Context, record *models.AttendanceRecord) (bool, error)
	Update(ctx context.Context, record *models.AttendanceRecord, expected int64) error
}

type studentRoster interface {
	Roster(ctx context.Context, academicYear, classID, sectionID string) ([]models.CohortMember, error)
}

type staffRoster interface {
	Roster(ctx context.Context, cohort string) ([]models.CohortMember, error)
}

type sectionReader interface {
	FindSection(ctx context.Context, academicYear, classID, sectionID string) (*models.ClassSection, error)
}

type notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// SheetQuery selects the cohort and day of an attendance sheet.
type SheetQuery struct {
	ClassID   string
	SectionID string
	Cohort    string
	Date      string
}

// AttendanceService records daily attendance and notifies only entities whose mark changed.
type AttendanceService struct {
	records   attendanceStore
	students  studentRoster
	staff     staffRoster
	sections  sectionReader
	leave     leaveReader
	years     activeYearResolver
	notifier  notifier
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAttendanceService constructs an AttendanceService.
func NewAttendanceService(records attendanceStore, students studentRoster, staff staffRoster, sections sectionReader, leave leaveReader, years activeYearResolver, notifier notifier, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	registerValidations(validate)
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{
		records:   records,
		students:  students,
		staff:     staff,
		sections:  sections,
		leave:     leave,
		years:     years,
		notifier:  notifier,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

type cohortContext struct {
	cohort    models.AttendanceCohort
	members   map[string]models.CohortMember
	leaveType models.LeaveEntityType
}

// Mark submits a class section's attendance for a day.
func (s *AttendanceService) Mark(ctx context.Context, req models.MarkAttendanceRequest, actor *models.JWTClaims) (*models.AttendanceResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "records must map entity ids to P or A")
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return nil, err
	}
	cc, err := s.classCohort(ctx, req.ClassID, req.SectionID, actor)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, cc, date, req.Date, req.Records, req.TouchedIDs, actor)
}

// MarkStaff submits the STAFF or TEACHERS cohort's attendance for a day.
func (s *AttendanceService) MarkStaff(ctx context.Context, req models.MarkStaffAttendanceRequest, actor *models.JWTClaims) (*models.AttendanceResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "records must map staff ids to P or A")
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return nil, err
	}
	cc, err := s.staffCohort(ctx, req.Cohort)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, cc, date, req.Date, req.Records, req.TouchedIDs, actor)
}

// Sheet returns the stored record for the day, or a fresh sheet with everyone present except
// members on approved leave.
func (s *AttendanceService) Sheet(ctx context.Context, query SheetQuery, actor *models.JWTClaims) (*models.AttendanceSheet, error) {
	date, err := parseDate(query.Date)
	if err != nil {
		return nil, err
	}
	var cc *cohortContext
	if query.ClassID != "" || query.SectionID != "" {
		if query.ClassID == "" || query.SectionID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "classId and sectionId are both required")
		}
		cc, err = s.classCohort(ctx, query.ClassID, query.SectionID, actor)
	} else {
		cc, err = s.staffCohort(ctx, query.Cohort)
	}
	if err != nil {
		return nil, err
	}

	id := cc.cohort.Key(query.Date)
	sheet := &models.AttendanceSheet{
		RecordID:  id,
		Date:      query.Date,
		Cohort:    cohortLabel(cc.cohort),
		ClassID:   cc.cohort.ClassID,
		SectionID: cc.cohort.SectionID,
	}

	existing, err := s.find(ctx, id, cc.cohort.IsClass())
	if err != nil {
		return nil, err
	}
	if existing != nil {
		sheet.Records = existing.Records
		sheet.Submitted = true
		sheet.Version = existing.Version
		return sheet, nil
	}

	onLeave, err := s.onLeave(ctx, cc, date)
	if err != nil {
		return nil, err
	}
	sheet.Records = make(models.AttendanceMarks, len(cc.members))
	for id := range cc.members {
		sheet.Records[id] = models.MarkPresent
		if onLeave[id] {
			sheet.Records[id] = models.MarkAbsent
		}
	}
	return sheet, nil
}

func (s *AttendanceService) submit(ctx context.Context, cc *cohortContext, date time.Time, rawDate string, submitted map[string]models.AttendanceMark, touched []string, actor *models.JWTClaims) (*models.AttendanceResult, error) {
	if unknown := unknownIDs(submitted, touched, cc.members); len(unknown) > 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("entities not in cohort: %s", strings.Join(unknown, ", ")))
	}

	id := cc.cohort.Key(rawDate)
	submittedBy := ""
	if actor != nil {
		submittedBy = actor.UserID
	}

	for attempt := 1; attempt <= attendanceWriteAttempts; attempt++ {
		existing, err := s.find(ctx, id, cc.cohort.IsClass())
		if err != nil {
			return nil, err
		}

		var (
			record  *models.AttendanceRecord
			changed []string
		)
		if existing == nil {
			record, changed, err = s.initialRecord(ctx, cc, date, id, submitted, submittedBy)
			if err != nil {
				return nil, err
			}
			inserted, err := s.records.Insert(ctx, record)
			if err != nil {
				return nil, appErrors.Internal(err, "failed to save attendance")
			}
			if !inserted {
				s.metrics.RecordConflict("attendance")
				continue
			}
		} else {
			record, changed = applyDiff(existing, submitted, touched)
			if len(changed) == 0 {
				return &models.AttendanceResult{RecordID: id}, nil
			}
			record.SubmittedBy = submittedBy
			err := s.records.Update(ctx, record, existing.Version)
			if errors.Is(err, repository.ErrStaleVersion) {
				s.metrics.RecordConflict("attendance")
				continue
			}
			if err != nil {
				return nil, appErrors.Internal(err, "failed to save attendance")
			}
		}

		result := s.dispatch(ctx, cc, record, changed)
		s.metrics.RecordAttendance(cohortLabel(cc.cohort), result.ChangesCount, result.NotifCount, result.SkippedCount)
		s.logger.Info("attendance recorded",
			zap.String("record_id", id),
			zap.Int("changes", result.ChangesCount),
			zap.Int("notified", result.NotifCount),
			zap.Int("skipped", result.SkippedCount),
		)
		return result, nil
	}

	return nil, appErrors.Clone(appErrors.ErrVersionConflict, "attendance was updated concurrently, please reload")
}

func (s *AttendanceService) initialRecord(ctx context.Context, cc *cohortContext, date time.Time, id string, submitted map[string]models.AttendanceMark, submittedBy string) (*models.AttendanceRecord, []string, error) {
	marks := make(models.AttendanceMarks, len(submitted))
	for entityID, mark := range submitted {
		marks[entityID] = mark
	}
	onLeave, err := s.onLeave(ctx, cc, date)
	if err != nil {
		return nil, nil, err
	}
	for entityID := range onLeave {
		if _, ok := marks[entityID]; !ok {
			if _, member := cc.members[entityID]; member {
				marks[entityID] = models.MarkAbsent
			}
		}
	}

	record := &models.AttendanceRecord{
		ID:          id,
		Date:        date,
		Cohort:      cohortLabel(cc.cohort),
		Records:     marks,
		SubmittedBy: submittedBy,
	}
	if cc.cohort.IsClass() {
		classID, sectionID := cc.cohort.ClassID, cc.cohort.SectionID
		record.ClassID = &classID
		record.SectionID = &sectionID
	}
	// Leave seeds are stored but are neither changes nor notified.
	return record, sortedKeys(submitted), nil
}

// applyDiff merges submitted marks into a copy of existing. With touched ids only those entities
// may change. It returns the merged record and the ids whose mark changed.
func applyDiff(existing *models.AttendanceRecord, submitted map[string]models.AttendanceMark, touched []string) (*models.AttendanceRecord, []string) {
	allowed := make(map[string]bool, len(touched))
	for _, id := range touched {
		allowed[id] = true
	}

	merged := *existing
	merged.Records = existing.Records.Clone()
	changed := []string{}
	for id, mark := range submitted {
		if len(allowed) > 0 && !allowed[id] {
			continue
		}
		if previous, ok := existing.Records[id]; ok && previous == mark {
			continue
		}
		merged.Records[id] = mark
		changed = append(changed, id)
	}
	sort.Strings(changed)
	return &merged, changed
}

func (s *AttendanceService) dispatch(ctx context.Context, cc *cohortContext, record *models.AttendanceRecord, changed []string) *models.AttendanceResult {
	result := &models.AttendanceResult{RecordID: record.ID, ChangesCount: len(changed)}
	date := record.Date.Format(dateLayout)
	for _, id := range changed {
		member := cc.members[id]
		if member.UserID == nil || *member.UserID == "" {
			result.SkippedCount++
			continue
		}
		result.NotifCount++

		mark := record.Records[id]
		payload, _ := json.Marshal(map[string]string{"recordId": record.ID, "date": date, "entityId": id, "mark": string(mark)})
		n := models.Notification{
			UserID:  *member.UserID,
			Kind:    models.NotificationAttendanceChanged,
			Title:   "Attendance updated",
			Body:    fmt.Sprintf("%s marked %s on %s", member.Name, markLabel(mark), date),
			Payload: types.JSONText(payload),
		}
		if err := s.notifier.Notify(ctx, n); err != nil {
			s.logger.Warn("failed to queue attendance notification", zap.String("record_id", record.ID), zap.String("entity_id", id), zap.Error(err))
		}
	}
	return result
}

func (s *AttendanceService) classCohort(ctx context.Context, classID, sectionID string, actor *models.JWTClaims) (*cohortContext, error) {
	year, err := s.years.ActiveLabel(ctx)
	if err != nil {
		return nil, err
	}
	section, err := s.sections.FindSection(ctx, year, classID, sectionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class section not found")
		}
		return nil, appErrors.Internal(err, "failed to load class section")
	}
	if actor != nil && actor.Role == models.RoleTeacher {
		if section.ClassTeacherID == nil || *section.ClassTeacherID != actor.LinkedID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only the class teacher may mark this section")
		}
	}

	members, err := s.students.Roster(ctx, year, classID, sectionID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load class roster")
	}
	return &cohortContext{
		cohort:    models.AttendanceCohort{ClassID: classID, SectionID: sectionID},
		members:   indexMembers(members),
		leaveType: models.LeaveStudent,
	}, nil
}

func (s *AttendanceService) staffCohort(ctx context.Context, cohort string) (*cohortContext, error) {
	if cohort != models.CohortStaff && cohort != models.CohortTeachers {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cohort must be STAFF or TEACHERS")
	}
	members, err := s.staff.Roster(ctx, cohort)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load staff roster")
	}
	return &cohortContext{
		cohort:    models.AttendanceCohort{Cohort: cohort},
		members:   indexMembers(members),
		leaveType: models.LeaveStaff,
	}, nil
}

func (s *AttendanceService) find(ctx context.Context, id string, classCohort bool) (*models.AttendanceRecord, error) {
	record, err := s.records.Find(ctx, id, classCohort)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Internal(err, "failed to load attendance")
	}
	return record, nil
}

func (s *AttendanceService) onLeave(ctx context.Context, cc *cohortContext, date time.Time) (map[string]bool, error) {
	ids, err := s.leave.ApprovedOn(ctx, cc.leaveType, date)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load approved leave")
	}
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := cc.members[id]; ok {
			out[id] = true
		}
	}
	return out, nil
}

func unknownIDs(submitted map[string]models.AttendanceMark, touched []string, members map[string]models.CohortMember) []string {
	seen := map[string]bool{}
	for id := range submitted {
		if _, ok := members[id]; !ok {
			seen[id] = true
		}
	}
	for _, id := range touched {
		if _, ok := members[id]; !ok {
			seen[id] = true
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func indexMembers(members []models.CohortMember) map[string]models.CohortMember {
	out := make(map[string]models.CohortMember, len(members))
	for _, m := range members {
		out[m.EntityID] = m
	}
	return out
}

func sortedKeys(marks models.AttendanceMarks) []string {
	keys := make([]string, 0, len(marks))
	for k := range marks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func cohortLabel(c models.AttendanceCohort) string {
	if c.IsClass() {
		return "CLASS"
	}
	return c.Cohort
}

func markLabel(mark models.AttendanceMark) string {
	if mark == models.MarkAbsent {
		return "absent"
	}
	return "present"
}
