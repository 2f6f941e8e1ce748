package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/internal/models"
	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/internal/repository"
	appErrors "github.com/spoorthyconceptschool/spoorthy-school-system-sub001/pkg/errors"
)

type fakeFeeStore struct {
	students  map[string]models.Student
	ledgers   map[string]models.FeeLedger
	payments  []models.Payment
	conflicts int
	records   int
	// promoteTo simulates a year transition committing while the first payment attempt is in flight.
	promoteTo string
}

func (f *fakeFeeStore) promote(studentID, toYear string) {
	student := f.students[studentID]
	old := f.ledgers[models.LedgerID(studentID, student.AcademicYear)]
	next := models.NewFeeLedger(studentID, toYear)
	next.AddCarryover(student.AcademicYear, old.Balance(), time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	next.Recompute()
	next.Version = 1
	f.ledgers[next.ID] = *next
	old.Version++
	f.ledgers[old.ID] = old
	student.AcademicYear = toYear
	f.students[studentID] = student
}

func newFakeFeeStore() *fakeFeeStore {
	store := &fakeFeeStore{
		students: map[string]models.Student{"stu-1": {ID: "stu-1", AcademicYear: "2025-2026", Status: models.StatusActive}},
		ledgers:  map[string]models.FeeLedger{},
	}
	ledger := models.NewFeeLedger("stu-1", "2025-2026")
	ledger.Items = models.FeeItems{{Name: "Term 1", Amount: decimal.NewFromInt(10000), Type: models.FeeItemTerm}}
	ledger.Recompute()
	ledger.Version = 1
	store.ledgers[ledger.ID] = *ledger
	return store
}

func (f *fakeFeeStore) FindByID(ctx context.Context, id string) (*models.Student, error) {
	s, ok := f.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

type fakeLedgerReader struct{ store *fakeFeeStore }

func (f fakeLedgerReader) FindByID(ctx context.Context, id string) (*models.FeeLedger, error) {
	l, ok := f.store.ledgers[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	l.Items = append(models.FeeItems{}, l.Items...)
	return &l, nil
}

func (f *fakeFeeStore) Record(ctx context.Context, ledger *models.FeeLedger, expected int64, payment *models.Payment) error {
	f.records++
	if f.promoteTo != "" {
		f.promote(payment.StudentID, f.promoteTo)
		f.promoteTo = ""
	}
	current := f.ledgers[ledger.ID]
	if f.conflicts > 0 {
		f.conflicts--
		current.ApplyPayment(decimal.NewFromInt(500))
		current.Version++
		f.ledgers[ledger.ID] = current
		return repository.ErrStaleVersion
	}
	if current.Version != expected || f.students[payment.StudentID].AcademicYear != ledger.AcademicYear {
		return repository.ErrStaleVersion
	}
	ledger.Version = expected + 1
	f.ledgers[ledger.ID] = *ledger
	payment.ID = "pay-1"
	f.payments = append(f.payments, *payment)
	return nil
}

func (f *fakeFeeStore) ListByStudent(ctx context.Context, studentID, year string) ([]models.Payment, error) {
	return f.payments, nil
}

func newFeeService(store *fakeFeeStore) *FeeService {
	return NewFeeService(store, fakeLedgerReader{store}, store, nil, 3, nil, nil, nil, nil)
}

func paymentRequest(amount int64) models.CreatePaymentRequest {
	return models.CreatePaymentRequest{StudentID: "stu-1", Amount: decimal.NewFromInt(amount), Method: models.PaymentCash, Date: "2025-08-01"}
}

func TestRecordPaymentUpdatesLedger(t *testing.T) {
	store := newFakeFeeStore()
	svc := newFeeService(store)

	delta, err := svc.RecordPayment(context.Background(), paymentRequest(6000), "admin-1")
	require.NoError(t, err)
	assert.Equal(t, "stu-1_2025-2026", delta.LedgerID)
	assert.True(t, delta.PreviousPaid.IsZero())
	assert.True(t, decimal.NewFromInt(6000).Equal(delta.TotalPaid))
	assert.True(t, decimal.NewFromInt(4000).Equal(delta.Balance))
	assert.Equal(t, models.LedgerPartial, delta.Status)
	require.Len(t, store.payments, 1)
	assert.Equal(t, "admin-1", store.payments[0].RecordedBy)

	delta, err = svc.RecordPayment(context.Background(), paymentRequest(4000), "admin-1")
	require.NoError(t, err)
	assert.Equal(t, models.LedgerPaid, delta.Status)
}

func TestRecordPaymentRejectsNonPositiveAmount(t *testing.T) {
	store := newFakeFeeStore()
	svc := newFeeService(store)

	for _, amount := range []int64{-500, 0} {
		_, err := svc.RecordPayment(context.Background(), paymentRequest(amount), "admin-1")
		assert.True(t, errors.Is(err, appErrors.ErrValidation))
	}
	assert.Zero(t, store.records)
	assert.True(t, store.ledgers["stu-1_2025-2026"].TotalPaid.IsZero())
}

func TestRecordPaymentRetriesOnVersionConflict(t *testing.T) {
	store := newFakeFeeStore()
	store.conflicts = 1
	svc := newFeeService(store)

	delta, err := svc.RecordPayment(context.Background(), paymentRequest(1000), "admin-1")
	require.NoError(t, err)
	assert.Equal(t, 2, store.records)
	assert.True(t, decimal.NewFromInt(500).Equal(delta.PreviousPaid))
	assert.True(t, decimal.NewFromInt(1500).Equal(delta.TotalPaid))
}

func TestRecordPaymentGivesUpAfterRetries(t *testing.T) {
	store := newFakeFeeStore()
	store.conflicts = 5
	svc := newFeeService(store)

	_, err := svc.RecordPayment(context.Background(), paymentRequest(1000), "admin-1")
	assert.True(t, errors.Is(err, appErrors.ErrVersionConflict))
	assert.Equal(t, 3, store.records)
	assert.Empty(t, store.payments)
}

func TestRecordPaymentRacingCarryoverLandsOnNewLedger(t *testing.T) {
	store := newFakeFeeStore()
	store.promoteTo = "2026-2027"
	svc := newFeeService(store)

	delta, err := svc.RecordPayment(context.Background(), paymentRequest(4000), "admin-1")
	require.NoError(t, err)
	assert.Equal(t, 2, store.records)
	assert.Equal(t, "stu-1_2026-2027", delta.LedgerID)

	old := store.ledgers["stu-1_2025-2026"]
	assert.True(t, old.TotalPaid.IsZero())
	next := store.ledgers["stu-1_2026-2027"]
	assert.True(t, decimal.NewFromInt(10000).Equal(next.TotalFee))
	assert.True(t, decimal.NewFromInt(4000).Equal(next.TotalPaid))
	assert.True(t, decimal.NewFromInt(6000).Equal(next.Balance()))
	require.Len(t, store.payments, 1)
	assert.Equal(t, "2026-2027", store.payments[0].AcademicYear)
}

func TestRecordPaymentUnknownStudent(t *testing.T) {
	svc := newFeeService(newFakeFeeStore())
	req := paymentRequest(100)
	req.StudentID = "missing"
	_, err := svc.RecordPayment(context.Background(), req, "admin-1")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestRecordPaymentRejectsUnknownMethod(t *testing.T) {
	svc := newFeeService(newFakeFeeStore())
	req := paymentRequest(100)
	req.Method = "BARTER"
	_, err := svc.RecordPayment(context.Background(), req, "admin-1")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func due(raw string) *time.Time {
	t, _ := time.Parse(dateLayout, raw)
	return &t
}

func TestPendingTermsAllocatesFIFO(t *testing.T) {
	ledger := models.NewFeeLedger("stu-1", "2025-2026")
	ledger.Items = models.FeeItems{
		{Name: "Term 3", Amount: decimal.NewFromInt(3000), Type: models.FeeItemTerm, DueDate: due("2025-12-01")},
		{Name: "Term 1", Amount: decimal.NewFromInt(3000), Type: models.FeeItemTerm, DueDate: due("2025-06-01")},
		{Name: "Term 2", Amount: decimal.NewFromInt(3000), Type: models.FeeItemTerm, DueDate: due("2025-09-01")},
	}
	ledger.TotalPaid = decimal.NewFromInt(4000)
	ledger.Recompute()

	result := PendingTerms(ledger, *due("2025-10-15"))
	require.NotNil(t, result.CurrentTerm)
	assert.Equal(t, "Term 2", *result.CurrentTerm)
	require.Len(t, result.Terms, 1)
	assert.Equal(t, "Term 2", result.Terms[0].Name)
	assert.True(t, decimal.NewFromInt(2000).Equal(result.Terms[0].Outstanding))
	assert.True(t, decimal.NewFromInt(2000).Equal(result.TotalOutstanding))
}

func TestPendingTermsCarryoverPaidFirst(t *testing.T) {
	ledger := models.NewFeeLedger("stu-1", "2026-2027")
	ledger.AddCarryover("2025-2026", decimal.NewFromInt(4000), time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	ledger.Items = append(ledger.Items,
		models.FeeItem{Name: "Term 1", Amount: decimal.NewFromInt(3000), Type: models.FeeItemTerm, DueDate: due("2026-07-01")},
		models.FeeItem{Name: "Bus", Amount: decimal.NewFromInt(900), Type: models.FeeItemTransport},
	)
	ledger.TotalPaid = decimal.NewFromInt(5000)
	ledger.Recompute()

	result := PendingTerms(ledger, *due("2026-08-01"))
	require.Len(t, result.Terms, 1)
	assert.True(t, decimal.NewFromInt(1000).Equal(result.Terms[0].Allocated))
	assert.True(t, decimal.NewFromInt(2000).Equal(result.Terms[0].Outstanding))
}

func TestPendingTermsBeforeFirstTerm(t *testing.T) {
	ledger := models.NewFeeLedger("stu-1", "2025-2026")
	ledger.Items = models.FeeItems{{Name: "Term 1", Amount: decimal.NewFromInt(3000), Type: models.FeeItemTerm, DueDate: due("2025-06-01")}}
	ledger.Recompute()

	result := PendingTerms(ledger, *due("2025-05-01"))
	assert.Nil(t, result.CurrentTerm)
	assert.Empty(t, result.Terms)
}

func TestStatementCSV(t *testing.T) {
	store := newFakeFeeStore()
	svc := newFeeService(store)
	_, err := svc.RecordPayment(context.Background(), paymentRequest(2500), "admin-1")
	require.NoError(t, err)

	statement, err := svc.Statement(context.Background(), "stu-1", "", "csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", statement.ContentType)
	assert.Equal(t, "statement_stu-1_2025-2026.csv", statement.Filename)
	body := string(statement.Body)
	assert.Contains(t, body, "Balance,7500.00")
	assert.True(t, strings.Contains(body, "2025-08-01,Payment,CASH,,2500.00"))

	_, err = svc.Statement(context.Background(), "stu-1", "", "xlsx")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}
