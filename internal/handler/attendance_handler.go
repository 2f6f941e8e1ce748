package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/internal/models"
	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/internal/service"
	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/pkg/response"
)

type attendanceService interface {
	Mark(ctx context.Context, req models.MarkAttendanceRequest, actor *models.JWTClaims) (*models.AttendanceResult, error)
	MarkStaff(ctx context.Context, req models.MarkStaffAttendanceRequest, actor *models.JWTClaims) (*models.AttendanceResult, error)
	Sheet(ctx context.Context, query service.SheetQuery, actor *models.JWTClaims) (*models.AttendanceSheet, error)
}

// AttendanceHandler exposes daily attendance endpoints.
type AttendanceHandler struct {
	service attendanceService
}

// NewAttendanceHandler builds the handler.
func NewAttendanceHandler(service attendanceService) *AttendanceHandler {
	return &AttendanceHandler{service: service}
}

// Mark godoc
// @Summary Submit student attendance for a class section
// @Description Only entries listed in touchedIds overwrite stored marks on resubmission.
// @Tags Attendance
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.MarkAttendanceRequest true "Attendance"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /attendance/mark [post]
func (h *AttendanceHandler) Mark(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req models.MarkAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid attendance payload"))
		return
	}
	result, err := h.service.Mark(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// MarkStaff godoc
// @Summary Submit staff or teacher attendance
// @Tags Attendance
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.MarkStaffAttendanceRequest true "Attendance"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /attendance/staff/mark [post]
func (h *AttendanceHandler) MarkStaff(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req models.MarkStaffAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid attendance payload"))
		return
	}
	result, err := h.service.MarkStaff(c.Request.Context(), req, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Sheet godoc
// @Summary Attendance sheet for a cohort and date
// @Tags Attendance
// @Produce json
// @Security BearerAuth
// @Param classId query string false "Class ID"
// @Param sectionId query string false "Section ID"
// @Param cohort query string false "STAFF or TEACHERS"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /attendance/sheet [get]
func (h *AttendanceHandler) Sheet(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	query := service.SheetQuery{
		ClassID:   c.Query("classId"),
		SectionID: c.Query("sectionId"),
		Cohort:    c.Query("cohort"),
		Date:      c.Query("date"),
	}
	sheet, err := h.service.Sheet(c.Request.Context(), query, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sheet, nil)
}
