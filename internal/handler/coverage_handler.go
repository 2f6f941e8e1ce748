package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/internal/models"
	appErrors "github.com/spoorthyconceptschool/spoorthy-school-system-sub001/pkg/errors"
	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/pkg/response"
)

type coverageService interface {
	Resolve(ctx context.Context, req models.ResolveCoverageRequest, resolvedBy string) (*models.CoverageTask, error)
	ReportAbsence(ctx context.Context, req models.ReportAbsenceRequest) ([]models.CoverageTask, error)
	ListTasks(ctx context.Context, date, status string) ([]models.CoverageTask, error)
	TeacherSchedule(ctx context.Context, teacherID, date string) (*models.TeacherSchedule, error)
}

// CoverageHandler exposes substitution endpoints under /timetable.
type CoverageHandler struct {
	service coverageService
}

// NewCoverageHandler builds the handler.
func NewCoverageHandler(service coverageService) *CoverageHandler {
	return &CoverageHandler{service: service}
}

// Resolve godoc
// @Summary Resolve a coverage task
// @Description Assign a substitute or mark the slot as leisure.
// @Tags Coverage
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.ResolveCoverageRequest true "Resolution"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetable/coverage/resolve [post]
func (h *CoverageHandler) Resolve(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req models.ResolveCoverageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid coverage payload"))
		return
	}
	task, err := h.service.Resolve(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, task, nil)
}

// ReportAbsence godoc
// @Summary Open coverage tasks for an absent teacher
// @Tags Coverage
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.ReportAbsenceRequest true "Absence"
// @Success 201 {object} response.Envelope
// @Router /timetable/coverage/absences [post]
func (h *CoverageHandler) ReportAbsence(c *gin.Context) {
	var req models.ReportAbsenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid absence payload"))
		return
	}
	tasks, err := h.service.ReportAbsence(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, tasks)
}

// List godoc
// @Summary List coverage tasks for a date
// @Tags Coverage
// @Produce json
// @Security BearerAuth
// @Param date query string true "Date (YYYY-MM-DD)"
// @Param status query string false "PENDING or RESOLVED"
// @Success 200 {object} response.Envelope
// @Router /timetable/coverage [get]
func (h *CoverageHandler) List(c *gin.Context) {
	tasks, err := h.service.ListTasks(c.Request.Context(), c.Query("date"), c.Query("status"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tasks, nil)
}

// TeacherSchedule godoc
// @Summary Teacher schedule with coverage overlay
// @Tags Coverage
// @Produce json
// @Security BearerAuth
// @Param id path string true "Teacher ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /timetable/teachers/{id}/schedule [get]
func (h *CoverageHandler) TeacherSchedule(c *gin.Context) {
	teacherID := c.Param("id")
	if claims := claimsFromContext(c); claims != nil && claims.Role == models.RoleTeacher && claims.LinkedID != teacherID {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "teachers may only view their own schedule"))
		return
	}
	schedule, err := h.service.TeacherSchedule(c.Request.Context(), teacherID, c.Query("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedule, nil)
}
