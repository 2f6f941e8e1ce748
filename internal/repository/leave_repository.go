package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/internal/models"
)

// LeaveRepository reads leave requests.
type LeaveRepository struct {
	db *sqlx.DB
}

// NewLeaveRepository instantiates a leave repository.
func NewLeaveRepository(db *sqlx.DB) *LeaveRepository {
	return &LeaveRepository{db: db}
}

// ApprovedOn returns ids of entities of the type with approved leave covering date.
func (r *LeaveRepository) ApprovedOn(ctx context.Context, entityType models.LeaveEntityType, date time.Time) ([]string, error) {
	const query = `SELECT DISTINCT entity_id FROM leave_requests WHERE entity_type = $1 AND status = $2 AND from_date <= $3 AND to_date >= $3`
	ids := []string{}
	if err := r.db.SelectContext(ctx, &ids, query, entityType, models.LeaveApproved, date); err != nil {
		return nil, fmt.Errorf("list approved leave: %w", err)
	}
	return ids, nil
}
