package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/internal/models"
)

// TimetableRepository reads the base weekly timetable.
type TimetableRepository struct {
	db *sqlx.DB
}

// NewTimetableRepository instantiates a timetable repository.
func NewTimetableRepository(db *sqlx.DB) *TimetableRepository {
	return &TimetableRepository{db: db}
}

// TeacherSlots returns a teacher's regular slots on a weekday, in period order.
func (r *TimetableRepository) TeacherSlots(ctx context.Context, academicYear, teacherID string, dayOfWeek int) ([]models.TimetableSlot, error) {
	const query = `SELECT academic_year, class_id, section_id, day_of_week, slot_id, subject_id, teacher_id FROM timetable_slots WHERE academic_year = $1 AND teacher_id = $2 AND day_of_week = $3 ORDER BY slot_id`
	slots := []models.TimetableSlot{}
	if err := r.db.SelectContext(ctx, &slots, query, academicYear, teacherID, dayOfWeek); err != nil {
		return nil, fmt.Errorf("list teacher slots: %w", err)
	}
	return slots, nil
}

// BusyTeachers returns the ids of teachers with a regular class in the slot.
func (r *TimetableRepository) BusyTeachers(ctx context.Context, academicYear string, dayOfWeek, slotID int) ([]string, error) {
	const query = `SELECT DISTINCT teacher_id FROM timetable_slots WHERE academic_year = $1 AND day_of_week = $2 AND slot_id = $3`
	ids := []string{}
	if err := r.db.SelectContext(ctx, &ids, query, academicYear, dayOfWeek, slotID); err != nil {
		return nil, fmt.Errorf("list busy teachers: %w", err)
	}
	return ids, nil
}
