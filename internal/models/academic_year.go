package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// YearStats summarises the outcome of a year transition.
type YearStats struct {
	Promoted int `json:"promoted"`
	Retained int `json:"retained"`
	Total    int `json:"total"`
}

// Value marshals stats to JSON for persistence.
func (s YearStats) Value() (driver.Value, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal year stats: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the stats struct.
func (s *YearStats) Scan(value interface{}) error {
	*s = YearStats{}
	_, err := scanJSON(value, s, "year stats")
	return err
}

// AcademicYear is a school year such as "2025-2026".
type AcademicYear struct {
	Label      string     `db:"label" json:"label"`
	IsActive   bool       `db:"is_active" json:"isActive"`
	IsUpcoming bool       `db:"is_upcoming" json:"isUpcoming"`
	StartDate  *time.Time `db:"start_date" json:"startDate"`
	EndDate    *time.Time `db:"end_date" json:"endDate"`
	Stats      *YearStats `db:"stats" json:"stats"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updatedAt"`
}

// AcademicYearState is the versioned pointer to the active year.
type AcademicYearState struct {
	ActiveYear string    `db:"active_year" json:"activeYear"`
	Version    int64     `db:"version" json:"version"`
	UpdatedAt  time.Time `db:"updated_at" json:"updatedAt"`
}

// CreateAcademicYearRequest defines a new upcoming year.
type CreateAcademicYearRequest struct {
	YearLabel string `json:"yearLabel" validate:"required,year_label"`
}

// StartAcademicYearRequest triggers the transition into an upcoming year.
type StartAcademicYearRequest struct {
	NewYearLabel string `json:"newYearLabel" validate:"required,year_label"`
}

// UpdateAcademicYearRequest renames a year or changes its dates.
type UpdateAcademicYearRequest struct {
	TargetYear string  `json:"targetYear" validate:"required,year_label"`
	NewLabel   *string `json:"newLabel" validate:"omitempty,year_label"`
	StartDate  *string `json:"startDate" validate:"omitempty,datetime=2006-01-02"`
	EndDate    *string `json:"endDate" validate:"omitempty,datetime=2006-01-02"`
}

// AcademicYearChanges is the normalised form of UpdateAcademicYearRequest.
type AcademicYearChanges struct {
	NewLabel  string
	StartDate *time.Time
	EndDate   *time.Time
}

// TransitionResult is returned by start-new.
type TransitionResult struct {
	Success bool      `json:"success"`
	Stats   YearStats `json:"stats"`
}

// AcademicYearHistory lists every known year, newest first.
type AcademicYearHistory struct {
	Years []AcademicYear `json:"years"`
}

// YearReferences counts rows that still point at a year label.
type YearReferences struct {
	Students int `db:"students"`
	Ledgers  int `db:"ledgers"`
	Payments int `db:"payments"`
}

// Any reports whether the label is referenced anywhere.
func (r YearReferences) Any() bool {
	return r.Students > 0 || r.Ledgers > 0 || r.Payments > 0
}
