package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// AttendanceMark is P (present) or A (absent).
type AttendanceMark string

const (
	MarkPresent AttendanceMark = "P"
	MarkAbsent  AttendanceMark = "A"
)

// Valid returns true when the mark is a supported value.
func (m AttendanceMark) Valid() bool {
	return m == MarkPresent || m == MarkAbsent
}

// Staff cohorts; class cohorts are keyed by class and section.
const (
	CohortStaff    = "STAFF"
	CohortTeachers = "TEACHERS"
)

// AttendanceMarks maps entity id to mark and is persisted as JSONB.
type AttendanceMarks map[string]AttendanceMark

// Value marshals the marks to JSON for persistence.
func (m AttendanceMarks) Value() (driver.Value, error) {
	if m == nil {
		m = AttendanceMarks{}
	}
	data, err := json.Marshal(map[string]AttendanceMark(m))
	if err != nil {
		return nil, fmt.Errorf("marshal attendance marks: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the marks map.
func (m *AttendanceMarks) Scan(value interface{}) error {
	decoded := map[string]AttendanceMark{}
	if _, err := scanJSON(value, &decoded, "attendance marks"); err != nil {
		return err
	}
	if decoded == nil {
		decoded = map[string]AttendanceMark{}
	}
	*m = decoded
	return nil
}

// Clone returns an independent copy.
func (m AttendanceMarks) Clone() AttendanceMarks {
	out := make(AttendanceMarks, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// AttendanceCohort identifies whose attendance a record holds.
type AttendanceCohort struct {
	Cohort    string
	ClassID   string
	SectionID string
}

// IsClass reports whether the cohort is a class section.
func (c AttendanceCohort) IsClass() bool {
	return c.ClassID != ""
}

// Key builds the record id: date_classId_sectionId for classes, COHORT_date for staff.
func (c AttendanceCohort) Key(date string) string {
	if c.IsClass() {
		return fmt.Sprintf("%s_%s_%s", date, c.ClassID, c.SectionID)
	}
	return fmt.Sprintf("%s_%s", c.Cohort, date)
}

// AttendanceRecord is one cohort's attendance for a day.
type AttendanceRecord struct {
	ID          string          `db:"id" json:"id"`
	Date        time.Time       `db:"date" json:"date"`
	Cohort      string          `db:"cohort" json:"cohort"`
	ClassID     *string         `db:"class_id" json:"classId,omitempty"`
	SectionID   *string         `db:"section_id" json:"sectionId,omitempty"`
	Records     AttendanceMarks `db:"records" json:"records"`
	SubmittedBy string          `db:"submitted_by" json:"submittedBy"`
	Version     int64           `db:"version" json:"version"`
	CreatedAt   time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updatedAt"`
}

// MarkAttendanceRequest submits a class section's attendance for a day.
type MarkAttendanceRequest struct {
	ClassID    string                    `json:"classId" validate:"required"`
	SectionID  string                    `json:"sectionId" validate:"required"`
	Date       string                    `json:"date" validate:"required,datetime=2006-01-02"`
	Records    map[string]AttendanceMark `json:"records" validate:"required,min=1,dive,keys,required,endkeys,mark"`
	TouchedIDs []string                  `json:"touchedIds" validate:"omitempty,dive,required"`
}

// MarkStaffAttendanceRequest submits a staff cohort's attendance for a day.
type MarkStaffAttendanceRequest struct {
	Cohort     string                    `json:"cohort" validate:"required,oneof=STAFF TEACHERS"`
	Date       string                    `json:"date" validate:"required,datetime=2006-01-02"`
	Records    map[string]AttendanceMark `json:"records" validate:"required,min=1,dive,keys,required,endkeys,mark"`
	TouchedIDs []string                  `json:"touchedIds" validate:"omitempty,dive,required"`
}

// AttendanceResult summarises a submission.
type AttendanceResult struct {
	RecordID     string `json:"recordId"`
	ChangesCount int    `json:"changesCount"`
	NotifCount   int    `json:"notifCount"`
	SkippedCount int    `json:"skippedCount"`
}

// AttendanceSheet is the editable view of a cohort's day.
type AttendanceSheet struct {
	RecordID  string          `json:"recordId"`
	Date      string          `json:"date"`
	Cohort    string          `json:"cohort"`
	ClassID   string          `json:"classId,omitempty"`
	SectionID string          `json:"sectionId,omitempty"`
	Records   AttendanceMarks `json:"records"`
	Submitted bool            `json:"submitted"`
	Version   int64           `json:"version"`
}

// CohortMember is an entity that belongs to a cohort roster.
type CohortMember struct {
	EntityID string  `db:"entity_id" json:"entityId"`
	Name     string  `db:"name" json:"name"`
	UserID   *string `db:"user_id" json:"userId,omitempty"`
}
