package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntityStatus is shared by students and staff.
type EntityStatus string

const (
	StatusActive   EntityStatus = "ACTIVE"
	StatusInactive EntityStatus = "INACTIVE"
)

// Student is an enrollment record for the year in AcademicYear.
type Student struct {
	ID           string       `db:"id" json:"id"`
	SchoolID     string       `db:"school_id" json:"schoolId"`
	StudentName  string       `db:"student_name" json:"studentName"`
	ClassID      string       `db:"class_id" json:"classId"`
	SectionID    string       `db:"section_id" json:"sectionId"`
	Status       EntityStatus `db:"status" json:"status"`
	AcademicYear string       `db:"academic_year" json:"academicYear"`
	Retain       bool         `db:"retain" json:"retain"`
	UserID       *string      `db:"user_id" json:"userId,omitempty"`
	CreatedAt    time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updatedAt"`
}

// StudentFilter defines filters supported by list endpoints.
type StudentFilter struct {
	AcademicYear string
	ClassID      string
	SectionID    string
	Status       EntityStatus
	Search       string
	Page         int
	PageSize     int
}

// SetRetentionRequest flags a student to stay in the same class at the next transition.
type SetRetentionRequest struct {
	Retain *bool `json:"retain" validate:"required"`
}

// DeletionEligibility answers canDelete for students and staff.
type DeletionEligibility struct {
	CanDelete bool   `json:"canDelete"`
	Reason    string `json:"reason,omitempty"`
}

// PromotionOutcome records what happened to a student at a transition.
type PromotionOutcome string

const (
	OutcomePromoted  PromotionOutcome = "PROMOTED"
	OutcomeRetained  PromotionOutcome = "RETAINED"
	OutcomeGraduated PromotionOutcome = "GRADUATED"
)

// StudentPromotion is the per-student idempotency record of a transition.
type StudentPromotion struct {
	StudentID   string           `db:"student_id" json:"studentId"`
	FromYear    string           `db:"from_year" json:"fromYear"`
	ToYear      string           `db:"to_year" json:"toYear"`
	FromClassID string           `db:"from_class_id" json:"fromClassId"`
	ToClassID   string           `db:"to_class_id" json:"toClassId"`
	Outcome     PromotionOutcome `db:"outcome" json:"outcome"`
	Carryover   decimal.Decimal  `db:"carryover" json:"carryover"`
	CreatedAt   time.Time        `db:"created_at" json:"createdAt"`
}

// PromotionPlan is the decided move of one student into the next year.
type PromotionPlan struct {
	Student   Student
	FromYear  string
	ToYear    string
	ToClassID string
	Outcome   PromotionOutcome
	At        time.Time
}
