package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// CoverageStatus tracks a coverage task through resolution.
type CoverageStatus string

const (
	CoveragePending  CoverageStatus = "PENDING"
	CoverageResolved CoverageStatus = "RESOLVED"
)

// ResolutionType is the stored outcome of a coverage task.
type ResolutionType string

const (
	ResolutionSubstitution ResolutionType = "SUBSTITUTION"
	ResolutionLeisure      ResolutionType = "LEISURE"
)

// Resolution choices accepted by the resolve endpoint.
const (
	ResolveSubstitute = "SUBSTITUTE"
	ResolveLeisure    = "LEISURE"
)

// CoverageResolution records who covers a slot, or that it is left as leisure.
type CoverageResolution struct {
	Type                ResolutionType `json:"type"`
	SubstituteTeacherID *string        `json:"substituteTeacherId"`
	ResolvedBy          string         `json:"resolvedBy"`
	ResolvedAt          time.Time      `json:"resolvedAt"`
}

// Value marshals the resolution to JSON for persistence.
func (r CoverageResolution) Value() (driver.Value, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal coverage resolution: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the resolution.
func (r *CoverageResolution) Scan(value interface{}) error {
	*r = CoverageResolution{}
	_, err := scanJSON(value, r, "coverage resolution")
	return err
}

// CoverageTask is one timetable slot that needs cover because its teacher is absent.
type CoverageTask struct {
	ID                    string              `db:"id" json:"id"`
	Date                  time.Time           `db:"date" json:"date"`
	SlotID                int                 `db:"slot_id" json:"slotId"`
	ClassID               string              `db:"class_id" json:"classId"`
	SectionID             string              `db:"section_id" json:"sectionId"`
	SubjectID             *string             `db:"subject_id" json:"subjectId,omitempty"`
	OriginalTeacherID     string              `db:"original_teacher_id" json:"originalTeacherId"`
	Status                CoverageStatus      `db:"status" json:"status"`
	SuggestedSubstituteID *string             `db:"suggested_substitute_id" json:"suggestedSubstituteId,omitempty"`
	Resolution            *CoverageResolution `db:"resolution" json:"resolution,omitempty"`
	CreatedAt             time.Time           `db:"created_at" json:"createdAt"`
	UpdatedAt             time.Time           `db:"updated_at" json:"updatedAt"`
}

// CoveringTeacherID returns the substitute when the task is resolved by substitution.
func (t *CoverageTask) CoveringTeacherID() *string {
	if t == nil || t.Status != CoverageResolved || t.Resolution == nil || t.Resolution.Type != ResolutionSubstitution {
		return nil
	}
	return t.Resolution.SubstituteTeacherID
}

// ResolveCoverageRequest resolves a task to a substitute or leisure.
type ResolveCoverageRequest struct {
	TaskID              string `json:"taskId" validate:"required"`
	ResolutionType      string `json:"resolutionType" validate:"required,oneof=SUBSTITUTE LEISURE"`
	SubstituteTeacherID string `json:"substituteTeacherId"`
}

// ReportAbsenceRequest opens coverage tasks for every slot the teacher has that day.
type ReportAbsenceRequest struct {
	TeacherID string `json:"teacherId" validate:"required"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
}

// CoverageFilter narrows task listings.
type CoverageFilter struct {
	Date      time.Time
	Status    CoverageStatus
	TeacherID string
}

// TimetableSlot is one period of the base weekly timetable.
type TimetableSlot struct {
	AcademicYear string `db:"academic_year" json:"academicYear"`
	ClassID      string `db:"class_id" json:"classId"`
	SectionID    string `db:"section_id" json:"sectionId"`
	DayOfWeek    int    `db:"day_of_week" json:"dayOfWeek"`
	SlotID       int    `db:"slot_id" json:"slotId"`
	SubjectID    string `db:"subject_id" json:"subjectId"`
	TeacherID    string `db:"teacher_id" json:"teacherId"`
}

// ScheduleSlotKind marks how a slot of a teacher's day relates to coverage.
type ScheduleSlotKind string

const (
	SlotRegular    ScheduleSlotKind = "REGULAR"
	SlotOriginal   ScheduleSlotKind = "ORIGINAL"
	SlotSubstitute ScheduleSlotKind = "SUBSTITUTE"
)

// ScheduleEntry is one slot of a teacher's computed day.
type ScheduleEntry struct {
	SlotID            int              `json:"slotId"`
	ClassID           string           `json:"classId"`
	SectionID         string           `json:"sectionId"`
	SubjectID         string           `json:"subjectId"`
	Kind              ScheduleSlotKind `json:"kind"`
	TaskID            *string          `json:"taskId,omitempty"`
	CoveredBy         *string          `json:"coveredBy,omitempty"`
	Leisure           bool             `json:"leisure,omitempty"`
	OriginalTeacherID *string          `json:"originalTeacherId,omitempty"`
}

// TeacherSchedule is a teacher's base timetable overlaid with resolved coverage.
type TeacherSchedule struct {
	TeacherID string          `json:"teacherId"`
	Date      string          `json:"date"`
	Slots     []ScheduleEntry `json:"slots"`
}
