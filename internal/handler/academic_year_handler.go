package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/internal/models"
	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/internal/service"
	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/pkg/response"
)

type academicYearService interface {
	Create(ctx context.Context, req models.CreateAcademicYearRequest) (*models.AcademicYear, error)
	Update(ctx context.Context, req models.UpdateAcademicYearRequest) (*models.AcademicYear, error)
	History(ctx context.Context) (*models.AcademicYearHistory, error)
	Active(ctx context.Context) (*models.AcademicYear, error)
}

type yearTransitionService interface {
	StartTransition(ctx context.Context, req models.StartAcademicYearRequest) (*models.TransitionResult, error)
}

// AcademicYearHandler exposes the academic year registry and the year transition.
type AcademicYearHandler struct {
	years      academicYearService
	transition yearTransitionService
}

// NewAcademicYearHandler builds the handler.
func NewAcademicYearHandler(years academicYearService, transition yearTransitionService) *AcademicYearHandler {
	return &AcademicYearHandler{years: years, transition: transition}
}

// Create godoc
// @Summary Register an upcoming academic year
// @Tags Academic Years
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.CreateAcademicYearRequest true "Year label"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /academic-years/create [post]
func (h *AcademicYearHandler) Create(c *gin.Context) {
	var req models.CreateAcademicYearRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid academic year payload"))
		return
	}
	year, err := h.years.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, year)
}

// StartNew godoc
// @Summary Transition the school into the upcoming academic year
// @Description Promotes students, carries unpaid fees forward, clones class relations and activates the year. Safe to re-run.
// @Tags Academic Years
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.StartAcademicYearRequest true "Target year"
// @Success 200 {object} models.TransitionResult
// @Failure 409 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /academic-years/start-new [post]
func (h *AcademicYearHandler) StartNew(c *gin.Context) {
	var req models.StartAcademicYearRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid transition payload"))
		return
	}
	result, err := h.transition.StartTransition(c.Request.Context(), req)
	if err != nil {
		var aborted *service.TransitionAbortedError
		if errors.As(err, &aborted) {
			response.ErrorWithMeta(c, aborted.Err, map[string]interface{}{
				"stats":     aborted.Stats,
				"remaining": aborted.Remaining,
			})
			return
		}
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Update godoc
// @Summary Rename or re-date an academic year
// @Tags Academic Years
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.UpdateAcademicYearRequest true "Changes"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /academic-years/update [post]
func (h *AcademicYearHandler) Update(c *gin.Context) {
	var req models.UpdateAcademicYearRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid academic year payload"))
		return
	}
	year, err := h.years.Update(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, year, nil)
}

// History godoc
// @Summary List academic years
// @Tags Academic Years
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /academic-years/history [get]
func (h *AcademicYearHandler) History(c *gin.Context) {
	history, err := h.years.History(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, history, nil)
}

// Active godoc
// @Summary Get the active academic year
// @Tags Academic Years
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /academic-years/active [get]
func (h *AcademicYearHandler) Active(c *gin.Context) {
	year, err := h.years.Active(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, year, nil)
}
