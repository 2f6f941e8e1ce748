package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/internal/models"
	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/internal/repository"
	appErrors "github.com/spoorthyconceptschool/spoorthy-school-system-sub001/pkg/errors"
	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/pkg/export"
)

type feeStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type feeLedgerReader interface {
	FindByID(ctx context.Context, id string) (*models.FeeLedger, error)
}

type paymentStore interface {
	Record(ctx context.Context, ledger *models.FeeLedger, expectedVersion int64, payment *models.Payment) error
	ListByStudent(ctx context.Context, studentID, academicYear string) ([]models.Payment, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// Statement is a rendered fee statement document.
type Statement struct {
	Filename    string
	ContentType string
	Body        []byte
}

// FeeService records payments and answers ledger queries.
type FeeService struct {
	students   feeStudentReader
	ledgers    feeLedgerReader
	payments   paymentStore
	csv        csvRenderer
	pdf        pdfRenderer
	metrics    *MetricsService
	casRetries int
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewFeeService constructs a FeeService. casRetries bounds attempts on a contended ledger.
func NewFeeService(students feeStudentReader, ledgers feeLedgerReader, payments paymentStore, metrics *MetricsService, casRetries int, validate *validator.Validate, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *FeeService {
	if validate == nil {
		validate = validator.New()
	}
	registerValidations(validate)
	if logger == nil {
		logger = zap.NewNop()
	}
	if casRetries <= 0 {
		casRetries = 3
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter("Fee Statement")
	}
	return &FeeService{
		students:   students,
		ledgers:    ledgers,
		payments:   payments,
		csv:        csv,
		pdf:        pdf,
		metrics:    metrics,
		casRetries: casRetries,
		validator:  validate,
		logger:     logger,
	}
}

// RecordPayment appends a payment to the student's current-year ledger and raises totalPaid.
func (s *FeeService) RecordPayment(ctx context.Context, req models.CreatePaymentRequest, recordedBy string) (*models.LedgerDelta, error) {
	if !req.Amount.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount must be greater than zero")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Invalid(err, "invalid payment payload")
	}
	paidOn, err := parseDate(req.Date)
	if err != nil {
		return nil, err
	}

	var remarks *string
	if trimmed := strings.TrimSpace(req.Remarks); trimmed != "" {
		remarks = &trimmed
	}

	for attempt := 1; attempt <= s.casRetries; attempt++ {
		// A year transition may move the student between attempts.
		student, err := s.loadStudent(ctx, req.StudentID)
		if err != nil {
			return nil, err
		}
		ledgerID := models.LedgerID(student.ID, student.AcademicYear)
		ledger, err := s.loadLedger(ctx, ledgerID)
		if err != nil {
			return nil, err
		}
		previous := ledger.TotalPaid
		expected := ledger.Version
		ledger.ApplyPayment(req.Amount)

		payment := &models.Payment{
			StudentID:    student.ID,
			LedgerID:     ledger.ID,
			AcademicYear: ledger.AcademicYear,
			Amount:       req.Amount,
			Method:       req.Method,
			Date:         paidOn,
			Remarks:      remarks,
			RecordedBy:   recordedBy,
		}
		err = s.payments.Record(ctx, ledger, expected, payment)
		if errors.Is(err, repository.ErrStaleVersion) {
			s.metrics.RecordConflict("fee_ledger")
			s.logger.Debug("ledger version conflict, retrying", zap.String("ledger_id", ledgerID), zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			s.logger.Error("failed to record payment", zap.String("ledger_id", ledgerID), zap.Error(err))
			return nil, appErrors.Internal(err, "failed to record payment")
		}

		amount, _ := req.Amount.Float64()
		s.metrics.RecordPayment(string(req.Method), amount)
		s.logger.Info("payment recorded",
			zap.String("ledger_id", ledger.ID),
			zap.String("payment_id", payment.ID),
			zap.String("amount", req.Amount.StringFixed(2)),
			zap.String("recorded_by", recordedBy),
		)
		return &models.LedgerDelta{
			LedgerID:     ledger.ID,
			PaymentID:    payment.ID,
			PreviousPaid: previous,
			TotalPaid:    ledger.TotalPaid,
			Balance:      ledger.Balance(),
			Status:       ledger.Status,
		}, nil
	}

	return nil, appErrors.Clone(appErrors.ErrVersionConflict, "ledger is being updated concurrently, please retry")
}

// Ledger returns the student's ledger for year, defaulting to the student's current year.
func (s *FeeService) Ledger(ctx context.Context, studentID, year string) (*models.FeeLedger, error) {
	student, err := s.loadStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if year == "" {
		year = student.AcademicYear
	}
	return s.loadLedger(ctx, models.LedgerID(student.ID, year))
}

// Payments lists a student's payments, optionally restricted to one year.
func (s *FeeService) Payments(ctx context.Context, studentID, year string) ([]models.Payment, error) {
	if _, err := s.loadStudent(ctx, studentID); err != nil {
		return nil, err
	}
	payments, err := s.payments.ListByStudent(ctx, studentID, year)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list payments")
	}
	return payments, nil
}

// PendingTermsAsOf lists the unpaid TERM items up to the current term as of asOf (YYYY-MM-DD).
func (s *FeeService) PendingTermsAsOf(ctx context.Context, studentID, year, asOf string) (*models.PendingTermsResult, error) {
	day := time.Now().UTC().Truncate(24 * time.Hour)
	if asOf != "" {
		parsed, err := parseDate(asOf)
		if err != nil {
			return nil, err
		}
		day = parsed
	}
	ledger, err := s.Ledger(ctx, studentID, year)
	if err != nil {
		return nil, err
	}
	result := PendingTerms(ledger, day)
	return &result, nil
}

// PendingTerms allocates totalPaid to items in due-date order (undated items last) and returns
// the TERM items due on or before the current term that the allocation does not fully cover.
// The current term is the latest TERM item due on or before asOf.
func PendingTerms(ledger *models.FeeLedger, asOf time.Time) models.PendingTermsResult {
	result := models.PendingTermsResult{
		StudentID:        ledger.StudentID,
		AcademicYear:     ledger.AcademicYear,
		AsOf:             asOf.Format(dateLayout),
		Terms:            []models.PendingTerm{},
		TotalOutstanding: decimal.Zero,
	}

	items := make([]models.FeeItem, len(ledger.Items))
	copy(items, ledger.Items)
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].DueDate, items[j].DueDate
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Before(*b)
		}
	})

	var current *models.FeeItem
	for i := range items {
		item := items[i]
		if item.Type == models.FeeItemTerm && item.DueDate != nil && !item.DueDate.After(asOf) {
			current = &items[i]
		}
	}
	if current == nil {
		return result
	}
	name := current.Name
	result.CurrentTerm = &name

	remaining := ledger.TotalPaid
	for _, item := range items {
		allocated := decimal.Min(remaining, item.Amount)
		if allocated.IsNegative() {
			allocated = decimal.Zero
		}
		remaining = remaining.Sub(allocated)

		if item.Type != models.FeeItemTerm || item.DueDate == nil || item.DueDate.After(*current.DueDate) {
			continue
		}
		if allocated.LessThan(item.Amount) {
			outstanding := item.Amount.Sub(allocated)
			result.Terms = append(result.Terms, models.PendingTerm{
				Name:        item.Name,
				DueDate:     item.DueDate,
				Amount:      item.Amount,
				Allocated:   allocated,
				Outstanding: outstanding,
			})
			result.TotalOutstanding = result.TotalOutstanding.Add(outstanding)
		}
	}
	return result
}

// Statement renders the ledger items and payments for a student and year.
func (s *FeeService) Statement(ctx context.Context, studentID, year, format string) (*Statement, error) {
	f, err := export.ParseFormat(format)
	if err != nil {
		return nil, appErrors.Invalid(err, "format must be csv or pdf")
	}
	ledger, err := s.Ledger(ctx, studentID, year)
	if err != nil {
		return nil, err
	}
	payments, err := s.payments.ListByStudent(ctx, studentID, ledger.AcademicYear)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list payments")
	}

	dataset := statementDataset(ledger, payments)
	var body []byte
	switch f {
	case export.FormatCSV:
		body, err = s.csv.Render(dataset)
	default:
		body, err = s.pdf.Render(dataset, fmt.Sprintf("Fee Statement %s", ledger.AcademicYear))
	}
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render statement")
	}
	return &Statement{
		Filename:    fmt.Sprintf("statement_%s.%s", ledger.ID, f),
		ContentType: f.ContentType(),
		Body:        body,
	}, nil
}

func statementDataset(ledger *models.FeeLedger, payments []models.Payment) export.Dataset {
	headers := []string{"Date", "Description", "Type", "Charge", "Payment"}
	rows := make([]map[string]string, 0, len(ledger.Items)+len(payments))
	for _, item := range ledger.Items {
		due := ""
		if item.DueDate != nil {
			due = item.DueDate.Format(dateLayout)
		}
		rows = append(rows, map[string]string{
			"Date":        due,
			"Description": item.Name,
			"Type":        string(item.Type),
			"Charge":      item.Amount.StringFixed(2),
		})
	}
	sorted := make([]models.Payment, len(payments))
	copy(sorted, payments)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })
	for _, p := range sorted {
		description := "Payment"
		if p.Remarks != nil {
			description = fmt.Sprintf("Payment (%s)", *p.Remarks)
		}
		rows = append(rows, map[string]string{
			"Date":        p.Date.Format(dateLayout),
			"Description": description,
			"Type":        string(p.Method),
			"Payment":     p.Amount.StringFixed(2),
		})
	}

	return export.Dataset{
		Summary: []export.Field{
			{Label: "Student", Value: ledger.StudentID},
			{Label: "Academic Year", Value: ledger.AcademicYear},
			{Label: "Total Fee", Value: ledger.TotalFee.StringFixed(2)},
			{Label: "Total Paid", Value: ledger.TotalPaid.StringFixed(2)},
			{Label: "Balance", Value: ledger.Balance().StringFixed(2)},
			{Label: "Status", Value: string(ledger.Status)},
		},
		Headers: headers,
		Rows:    rows,
		Numeric: map[string]bool{"Charge": true, "Payment": true},
	}
}

func (s *FeeService) loadStudent(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.students.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Internal(err, "failed to load student")
	}
	return student, nil
}

func (s *FeeService) loadLedger(ctx context.Context, id string) (*models.FeeLedger, error) {
	ledger, err := s.ledgers.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "fee ledger not found")
		}
		return nil, appErrors.Internal(err, "failed to load fee ledger")
	}
	return ledger, nil
}
