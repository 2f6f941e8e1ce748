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

type fakeAttendanceStore struct {
	records     map[string]models.AttendanceRecord
	writes      int
	staleUpdate int
}

func (f *fakeAttendanceStore) Find(ctx context.Context, id string, classCohort bool) (*models.AttendanceRecord, error) {
	r, ok := f.records[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	r.Records = r.Records.Clone()
	return &r, nil
}

func (f *fakeAttendanceStore) Insert(ctx context.Context, record *models.AttendanceRecord) (bool, error) {
	if _, ok := f.records[record.ID]; ok {
		return false, nil
	}
	f.writes++
	record.Version = 1
	f.records[record.ID] = *record
	return true, nil
}

func (f *fakeAttendanceStore) Update(ctx context.Context, record *models.AttendanceRecord, expected int64) error {
	if f.staleUpdate > 0 {
		f.staleUpdate--
		current := f.records[record.ID]
		current.Records = current.Records.Clone()
		current.Records["stu-2"] = models.MarkAbsent
		current.Version++
		f.records[record.ID] = current
		return repository.ErrStaleVersion
	}
	if f.records[record.ID].Version != expected {
		return repository.ErrStaleVersion
	}
	f.writes++
	record.Version = expected + 1
	f.records[record.ID] = *record
	return nil
}

type fakeRoster struct {
	members []models.CohortMember
}

func (f fakeRoster) Roster(ctx context.Context, year, classID, sectionID string) ([]models.CohortMember, error) {
	return f.members, nil
}

type fakeStaffRoster struct {
	members []models.CohortMember
}

func (f fakeStaffRoster) Roster(ctx context.Context, cohort string) ([]models.CohortMember, error) {
	return f.members, nil
}

type fakeSections struct {
	classTeacher string
}

func (f fakeSections) FindSection(ctx context.Context, year, classID, sectionID string) (*models.ClassSection, error) {
	if classID != "grade-4" {
		return nil, sql.ErrNoRows
	}
	teacher := f.classTeacher
	return &models.ClassSection{AcademicYear: year, ClassID: classID, SectionID: sectionID, ClassTeacherID: &teacher}, nil
}

type recordingNotifier struct {
	sent []models.Notification
	err  error
}

func (r *recordingNotifier) Notify(ctx context.Context, n models.Notification) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, n)
	return nil
}

func strPtr(s string) *string { return &s }

func newAttendanceFixture(leave ...string) (*AttendanceService, *fakeAttendanceStore, *recordingNotifier) {
	store := &fakeAttendanceStore{records: map[string]models.AttendanceRecord{}}
	roster := fakeRoster{members: []models.CohortMember{
		{EntityID: "stu-1", Name: "Asha", UserID: strPtr("user-1")},
		{EntityID: "stu-2", Name: "Bilal"},
		{EntityID: "stu-3", Name: "Chitra", UserID: strPtr("user-3")},
	}}
	staff := fakeStaffRoster{members: []models.CohortMember{
		{EntityID: "stf-1", Name: "Devi", UserID: strPtr("user-9")},
	}}
	n := &recordingNotifier{}
	svc := NewAttendanceService(store, roster, staff, fakeSections{classTeacher: "t-anna"}, fakeLeave{ids: leave}, fixedYear("2025-2026"), n, nil, nil, nil)
	return svc, store, n
}

func markRequest(records map[string]models.AttendanceMark, touched ...string) models.MarkAttendanceRequest {
	return models.MarkAttendanceRequest{ClassID: "grade-4", SectionID: "A", Date: "2025-09-01", Records: records, TouchedIDs: touched}
}

var adminClaims = &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}

func TestMarkFirstSubmissionCountsEverything(t *testing.T) {
	svc, store, n := newAttendanceFixture()

	result, err := svc.Mark(context.Background(), markRequest(map[string]models.AttendanceMark{"stu-1": "P", "stu-2": "A", "stu-3": "P"}), adminClaims)
	require.NoError(t, err)
	assert.Equal(t, "2025-09-01_grade-4_A", result.RecordID)
	assert.Equal(t, 3, result.ChangesCount)
	assert.Equal(t, 2, result.NotifCount)
	assert.Equal(t, 1, result.SkippedCount)
	assert.Len(t, n.sent, 2)
	assert.Equal(t, "admin-1", store.records[result.RecordID].SubmittedBy)
}

func TestMarkResubmissionIsIdempotent(t *testing.T) {
	svc, store, n := newAttendanceFixture()
	req := markRequest(map[string]models.AttendanceMark{"stu-1": "P", "stu-2": "A", "stu-3": "P"})

	_, err := svc.Mark(context.Background(), req, adminClaims)
	require.NoError(t, err)
	second, err := svc.Mark(context.Background(), req, adminClaims)
	require.NoError(t, err)
	assert.Zero(t, second.ChangesCount)
	assert.Zero(t, second.NotifCount)
	assert.Equal(t, 1, store.writes)
	assert.Len(t, n.sent, 2)
}

func TestMarkDiffNotifiesOnlyChanged(t *testing.T) {
	svc, _, n := newAttendanceFixture()
	_, err := svc.Mark(context.Background(), markRequest(map[string]models.AttendanceMark{"stu-1": "P", "stu-2": "P", "stu-3": "P"}), adminClaims)
	require.NoError(t, err)
	n.sent = nil

	result, err := svc.Mark(context.Background(), markRequest(map[string]models.AttendanceMark{"stu-1": "A", "stu-2": "P", "stu-3": "P"}), adminClaims)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ChangesCount)
	assert.Equal(t, 1, result.NotifCount)
	require.Len(t, n.sent, 1)
	assert.Equal(t, "user-1", n.sent[0].UserID)
	assert.Equal(t, models.NotificationAttendanceChanged, n.sent[0].Kind)
}

func TestMarkTouchedIDsLimitChanges(t *testing.T) {
	svc, store, _ := newAttendanceFixture()
	_, err := svc.Mark(context.Background(), markRequest(map[string]models.AttendanceMark{"stu-1": "P", "stu-2": "P", "stu-3": "P"}), adminClaims)
	require.NoError(t, err)

	result, err := svc.Mark(context.Background(), markRequest(map[string]models.AttendanceMark{"stu-1": "A", "stu-2": "A", "stu-3": "P"}, "stu-2"), adminClaims)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ChangesCount)
	marks := store.records["2025-09-01_grade-4_A"].Records
	assert.Equal(t, models.MarkPresent, marks["stu-1"])
	assert.Equal(t, models.MarkAbsent, marks["stu-2"])
}

func TestMarkSeedsLeaveOnlyOnFirstSubmission(t *testing.T) {
	svc, store, notifier := newAttendanceFixture("stu-3")

	first, err := svc.Mark(context.Background(), markRequest(map[string]models.AttendanceMark{"stu-1": "P", "stu-2": "P"}), adminClaims)
	require.NoError(t, err)
	id := "2025-09-01_grade-4_A"
	assert.Equal(t, models.MarkAbsent, store.records[id].Records["stu-3"])
	assert.Equal(t, 2, first.ChangesCount)
	for _, sent := range notifier.sent {
		assert.NotEqual(t, "user-3", sent.UserID)
	}

	_, err = svc.Mark(context.Background(), markRequest(map[string]models.AttendanceMark{"stu-3": "P"}), adminClaims)
	require.NoError(t, err)
	assert.Equal(t, models.MarkPresent, store.records[id].Records["stu-3"])

	result, err := svc.Mark(context.Background(), markRequest(map[string]models.AttendanceMark{"stu-1": "P"}), adminClaims)
	require.NoError(t, err)
	assert.Zero(t, result.ChangesCount)
	assert.Equal(t, models.MarkPresent, store.records[id].Records["stu-3"])
}

func TestMarkRetriesOnStaleVersion(t *testing.T) {
	svc, store, _ := newAttendanceFixture()
	_, err := svc.Mark(context.Background(), markRequest(map[string]models.AttendanceMark{"stu-1": "P", "stu-2": "P", "stu-3": "P"}), adminClaims)
	require.NoError(t, err)
	store.staleUpdate = 1

	result, err := svc.Mark(context.Background(), markRequest(map[string]models.AttendanceMark{"stu-1": "A", "stu-2": "A"}), adminClaims)
	require.NoError(t, err)
	// stu-2 was already absent after the concurrent write.
	assert.Equal(t, 1, result.ChangesCount)

	store.staleUpdate = 2
	_, err = svc.Mark(context.Background(), markRequest(map[string]models.AttendanceMark{"stu-3": "A"}), adminClaims)
	assert.True(t, errors.Is(err, appErrors.ErrVersionConflict))
}

func TestMarkRejectsUnknownEntitiesAndMarks(t *testing.T) {
	svc, store, _ := newAttendanceFixture()

	_, err := svc.Mark(context.Background(), markRequest(map[string]models.AttendanceMark{"stu-9": "P"}), adminClaims)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.Mark(context.Background(), markRequest(map[string]models.AttendanceMark{"stu-1": "L"}), adminClaims)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	req := markRequest(map[string]models.AttendanceMark{"stu-1": "P"})
	req.Date = "2025/09/01"
	_, err = svc.Mark(context.Background(), req, adminClaims)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Empty(t, store.records)
}

func TestMarkTeacherRestrictedToOwnSection(t *testing.T) {
	svc, _, _ := newAttendanceFixture()
	req := markRequest(map[string]models.AttendanceMark{"stu-1": "P"})

	_, err := svc.Mark(context.Background(), req, &models.JWTClaims{UserID: "u-b", Role: models.RoleTeacher, LinkedID: "t-bala"})
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	_, err = svc.Mark(context.Background(), req, &models.JWTClaims{UserID: "u-a", Role: models.RoleTeacher, LinkedID: "t-anna"})
	assert.NoError(t, err)
}

func TestMarkQueueFailureDoesNotFailWrite(t *testing.T) {
	svc, store, n := newAttendanceFixture()
	n.err = errors.New("queue full")

	result, err := svc.Mark(context.Background(), markRequest(map[string]models.AttendanceMark{"stu-1": "A"}), adminClaims)
	require.NoError(t, err)
	assert.Equal(t, 1, result.NotifCount)
	assert.Len(t, store.records, 1)
}

func TestMarkStaffCohort(t *testing.T) {
	svc, store, _ := newAttendanceFixture()

	result, err := svc.MarkStaff(context.Background(), models.MarkStaffAttendanceRequest{Cohort: "STAFF", Date: "2025-09-01", Records: map[string]models.AttendanceMark{"stf-1": "A"}}, adminClaims)
	require.NoError(t, err)
	assert.Equal(t, "STAFF_2025-09-01", result.RecordID)
	assert.Nil(t, store.records["STAFF_2025-09-01"].ClassID)

	_, err = svc.MarkStaff(context.Background(), models.MarkStaffAttendanceRequest{Cohort: "DRIVERS", Date: "2025-09-01", Records: map[string]models.AttendanceMark{"stf-1": "A"}}, adminClaims)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestSheetFreshAndSubmitted(t *testing.T) {
	svc, _, _ := newAttendanceFixture("stu-2")

	sheet, err := svc.Sheet(context.Background(), SheetQuery{ClassID: "grade-4", SectionID: "A", Date: "2025-09-01"}, adminClaims)
	require.NoError(t, err)
	assert.False(t, sheet.Submitted)
	assert.Equal(t, models.MarkAbsent, sheet.Records["stu-2"])
	assert.Equal(t, models.MarkPresent, sheet.Records["stu-1"])

	_, err = svc.Mark(context.Background(), markRequest(map[string]models.AttendanceMark{"stu-2": "P"}), adminClaims)
	require.NoError(t, err)
	sheet, err = svc.Sheet(context.Background(), SheetQuery{ClassID: "grade-4", SectionID: "A", Date: "2025-09-01"}, adminClaims)
	require.NoError(t, err)
	assert.True(t, sheet.Submitted)
	assert.Equal(t, models.MarkPresent, sheet.Records["stu-2"])

	_, err = svc.Sheet(context.Background(), SheetQuery{ClassID: "grade-9", SectionID: "A", Date: "2025-09-01"}, adminClaims)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestAttendanceKeys(t *testing.T) {
	assert.Equal(t, "2025-09-01_grade-4_A", models.AttendanceCohort{ClassID: "grade-4", SectionID: "A"}.Key("2025-09-01"))
	assert.Equal(t, "TEACHERS_2025-09-01", models.AttendanceCohort{Cohort: "TEACHERS"}.Key("2025-09-01"))
}
