package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/internal/models"
	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/internal/service"
	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/pkg/response"
)

type feeService interface {
	RecordPayment(ctx context.Context, req models.CreatePaymentRequest, recordedBy string) (*models.LedgerDelta, error)
	Ledger(ctx context.Context, studentID, year string) (*models.FeeLedger, error)
	Payments(ctx context.Context, studentID, year string) ([]models.Payment, error)
	PendingTermsAsOf(ctx context.Context, studentID, year, asOf string) (*models.PendingTermsResult, error)
	Statement(ctx context.Context, studentID, year, format string) (*service.Statement, error)
}

// FeeHandler exposes payments and fee ledger reads.
type FeeHandler struct {
	service feeService
}

// NewFeeHandler builds the handler.
func NewFeeHandler(service feeService) *FeeHandler {
	return &FeeHandler{service: service}
}

// CreatePayment godoc
// @Summary Record a fee payment
// @Tags Fees
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.CreatePaymentRequest true "Payment"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /payments/create [post]
func (h *FeeHandler) CreatePayment(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req models.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid payment payload"))
		return
	}
	delta, err := h.service.RecordPayment(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, delta)
}

// Ledger godoc
// @Summary Get a student's fee ledger
// @Tags Fees
// @Produce json
// @Security BearerAuth
// @Param studentId path string true "Student ID"
// @Param year query string false "Academic year, defaults to the student's current year"
// @Success 200 {object} response.Envelope
// @Router /fees/ledgers/{studentId} [get]
func (h *FeeHandler) Ledger(c *gin.Context) {
	ledger, err := h.service.Ledger(c.Request.Context(), c.Param("studentId"), c.Query("year"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ledger, nil)
}

// Payments godoc
// @Summary List a student's payments
// @Tags Fees
// @Produce json
// @Security BearerAuth
// @Param studentId path string true "Student ID"
// @Param year query string false "Academic year"
// @Success 200 {object} response.Envelope
// @Router /fees/ledgers/{studentId}/payments [get]
func (h *FeeHandler) Payments(c *gin.Context) {
	payments, err := h.service.Payments(c.Request.Context(), c.Param("studentId"), c.Query("year"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payments, nil)
}

// PendingTerms godoc
// @Summary Outstanding terms due on or before a date
// @Tags Fees
// @Produce json
// @Security BearerAuth
// @Param studentId path string true "Student ID"
// @Param year query string false "Academic year"
// @Param asOf query string false "Date (YYYY-MM-DD), defaults to today"
// @Success 200 {object} response.Envelope
// @Router /fees/ledgers/{studentId}/pending-terms [get]
func (h *FeeHandler) PendingTerms(c *gin.Context) {
	result, err := h.service.PendingTermsAsOf(c.Request.Context(), c.Param("studentId"), c.Query("year"), c.Query("asOf"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Statement godoc
// @Summary Download a fee statement
// @Tags Fees
// @Produce text/csv
// @Produce application/pdf
// @Security BearerAuth
// @Param studentId path string true "Student ID"
// @Param year query string false "Academic year"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Router /fees/ledgers/{studentId}/statement [get]
func (h *FeeHandler) Statement(c *gin.Context) {
	format := c.DefaultQuery("format", "csv")
	statement, err := h.service.Statement(c.Request.Context(), c.Param("studentId"), c.Query("year"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, statement.Filename, statement.ContentType, statement.Body)
}
