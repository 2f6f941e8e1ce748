package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/internal/models"
	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/internal/repository"
	appErrors "github.com/spoorthyconceptschool/spoorthy-school-system-sub001/pkg/errors"
)

// fakeTransitionStore keeps students, ledgers and the promotion log in memory.
type fakeTransitionStore struct {
	years      *fakeYearRepo
	state      models.AcademicYearState
	students   map[string]*models.Student
	ledgers    map[string]*models.FeeLedger
	promotions map[string]models.StudentPromotion
	cloned     int
	staleOnce  bool
	slowAfter  int
	applyCalls int
}

func newFakeTransitionStore() *fakeTransitionStore {
	return &fakeTransitionStore{
		years: newFakeYearRepo(
			models.AcademicYear{Label: "2025-2026", IsActive: true},
			models.AcademicYear{Label: "2026-2027", IsUpcoming: true},
		),
		state:      models.AcademicYearState{ActiveYear: "2025-2026", Version: 4},
		students:   map[string]*models.Student{},
		ledgers:    map[string]*models.FeeLedger{},
		promotions: map[string]models.StudentPromotion{},
		slowAfter:  -1,
	}
}

func (f *fakeTransitionStore) State(ctx context.Context) (*models.AcademicYearState, error) {
	state := f.state
	return &state, nil
}

func (f *fakeTransitionStore) ApplyPromotion(ctx context.Context, plan models.PromotionPlan) (*models.StudentPromotion, bool, error) {
	f.applyCalls++
	if f.slowAfter >= 0 && f.applyCalls > f.slowAfter {
		<-ctx.Done()
		return nil, false, ctx.Err()
	}
	key := plan.Student.ID + "|" + plan.ToYear
	if _, ok := f.promotions[key]; ok {
		return nil, false, nil
	}
	carry := decimal.Zero
	if old, ok := f.ledgers[models.LedgerID(plan.Student.ID, plan.FromYear)]; ok {
		carry = old.Balance()
	}
	promotion := models.StudentPromotion{StudentID: plan.Student.ID, FromYear: plan.FromYear, ToYear: plan.ToYear, ToClassID: plan.ToClassID, Outcome: plan.Outcome, Carryover: carry}
	f.promotions[key] = promotion

	student := f.students[plan.Student.ID]
	student.ClassID = plan.ToClassID
	student.AcademicYear = plan.ToYear
	student.Retain = false
	if plan.Outcome == models.OutcomeGraduated {
		student.Status = models.StatusInactive
	}

	if plan.Outcome != models.OutcomeGraduated || carry.IsPositive() {
		id := models.LedgerID(plan.Student.ID, plan.ToYear)
		ledger, ok := f.ledgers[id]
		if !ok {
			ledger = models.NewFeeLedger(plan.Student.ID, plan.ToYear)
			f.ledgers[id] = ledger
		}
		ledger.AddCarryover(plan.FromYear, carry, plan.At)
	}
	return &promotion, true, nil
}

func (f *fakeTransitionStore) CloneRelations(ctx context.Context, fromYear, toYear string) (models.RelationCloneResult, error) {
	f.cloned++
	return models.RelationCloneResult{ClassSections: 2}, nil
}

func (f *fakeTransitionStore) ActivateYear(ctx context.Context, fromYear, toYear string, expected int64, stats models.YearStats, at time.Time) error {
	if f.staleOnce || f.state.Version != expected || f.state.ActiveYear != fromYear {
		f.staleOnce = false
		return repository.ErrStaleVersion
	}
	f.state = models.AcademicYearState{ActiveYear: toYear, Version: expected + 1}
	old := f.years.years[fromYear]
	old.IsActive = false
	f.years.years[fromYear] = old
	next := f.years.years[toYear]
	next.IsActive, next.IsUpcoming, next.Stats = true, false, &stats
	f.years.years[toYear] = next
	return nil
}

func (f *fakeTransitionStore) PromotionStats(ctx context.Context, toYear string) (models.YearStats, error) {
	var stats models.YearStats
	for _, p := range f.promotions {
		if p.ToYear != toYear {
			continue
		}
		if p.Outcome == models.OutcomeRetained {
			stats.Retained++
		} else {
			stats.Promoted++
		}
		stats.Total++
	}
	return stats, nil
}

func (f *fakeTransitionStore) ListActiveByYear(ctx context.Context, year string) ([]models.Student, error) {
	var out []models.Student
	for _, id := range []string{"s1", "s2", "s3", "s4"} {
		if s, ok := f.students[id]; ok && s.AcademicYear == year && s.Status == models.StatusActive {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeTransitionStore) ListOrdered(ctx context.Context) ([]models.Class, error) {
	return []models.Class{
		{ID: "grade-3", Name: "Grade 3", Order: 3, Active: true},
		{ID: "grade-4", Name: "Grade 4", Order: 4, Active: true},
		{ID: "grade-10", Name: "Grade 10", Order: 10, Active: true},
	}, nil
}

func (f *fakeTransitionStore) addStudent(id, classID string, retain bool) {
	f.students[id] = &models.Student{ID: id, ClassID: classID, SectionID: "A", AcademicYear: "2025-2026", Status: models.StatusActive, Retain: retain}
}

func (f *fakeTransitionStore) addLedger(studentID, year string, fee, paid int64) {
	ledger := models.NewFeeLedger(studentID, year)
	ledger.Items = models.FeeItems{{Name: "Term 1", Amount: decimal.NewFromInt(fee), Type: models.FeeItemTerm}}
	ledger.TotalPaid = decimal.NewFromInt(paid)
	ledger.Recompute()
	f.ledgers[ledger.ID] = ledger
}

type historySpy struct{ calls int }

func (h *historySpy) InvalidateHistory(ctx context.Context) { h.calls++ }

func newTransitionService(store *fakeTransitionStore, timeout time.Duration) (*YearTransitionService, *historySpy) {
	spy := &historySpy{}
	svc := NewYearTransitionService(store, store.years, store, store, spy, nil, timeout, nil, nil)
	svc.now = func() time.Time { return time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC) }
	return svc, spy
}

func TestStartTransitionPromotesWithCarryover(t *testing.T) {
	store := newFakeTransitionStore()
	store.addStudent("s1", "grade-3", false)
	store.addLedger("s1", "2025-2026", 10000, 6000)
	svc, spy := newTransitionService(store, time.Minute)

	result, err := svc.StartTransition(context.Background(), models.StartAcademicYearRequest{NewYearLabel: "2026-2027"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, models.YearStats{Promoted: 1, Retained: 0, Total: 1}, result.Stats)

	student := store.students["s1"]
	assert.Equal(t, "grade-4", student.ClassID)
	assert.Equal(t, "2026-2027", student.AcademicYear)

	ledger := store.ledgers["s1_2026-2027"]
	require.NotNil(t, ledger)
	require.Len(t, ledger.Items, 1)
	assert.Equal(t, "Previous Balance (2025-2026)", ledger.Items[0].Name)
	assert.Equal(t, models.FeeItemCustom, ledger.Items[0].Type)
	assert.True(t, decimal.NewFromInt(4000).Equal(ledger.Items[0].Amount))
	assert.True(t, decimal.NewFromInt(4000).Equal(ledger.TotalFee))

	assert.Equal(t, "2026-2027", store.state.ActiveYear)
	assert.Equal(t, 1, store.cloned)
	assert.Equal(t, 1, spy.calls)
}

func TestStartTransitionRetainsAndGraduates(t *testing.T) {
	store := newFakeTransitionStore()
	store.addStudent("s1", "grade-3", true)
	store.addStudent("s2", "grade-10", false)
	store.addStudent("s3", "grade-unknown", false)
	store.addLedger("s2", "2025-2026", 5000, 5000)
	svc, _ := newTransitionService(store, time.Minute)

	result, err := svc.StartTransition(context.Background(), models.StartAcademicYearRequest{NewYearLabel: "2026-2027"})
	require.NoError(t, err)
	assert.Equal(t, models.YearStats{Promoted: 1, Retained: 2, Total: 3}, result.Stats)

	assert.Equal(t, "grade-3", store.students["s1"].ClassID)
	assert.False(t, store.students["s1"].Retain)
	assert.Equal(t, models.StatusInactive, store.students["s2"].Status)
	assert.Equal(t, "grade-unknown", store.students["s3"].ClassID)
	_, graduateLedger := store.ledgers["s2_2026-2027"]
	assert.False(t, graduateLedger)
}

func TestStartTransitionReplayReturnsSameCounts(t *testing.T) {
	store := newFakeTransitionStore()
	store.addStudent("s1", "grade-3", false)
	store.addStudent("s2", "grade-4", false)
	store.addLedger("s1", "2025-2026", 10000, 6000)
	svc, _ := newTransitionService(store, time.Minute)

	first, err := svc.StartTransition(context.Background(), models.StartAcademicYearRequest{NewYearLabel: "2026-2027"})
	require.NoError(t, err)
	ledgerAfterFirst := *store.ledgers["s1_2026-2027"]

	second, err := svc.StartTransition(context.Background(), models.StartAcademicYearRequest{NewYearLabel: "2026-2027"})
	require.NoError(t, err)
	assert.Equal(t, first.Stats, second.Stats)
	assert.Equal(t, 2, store.applyCalls)
	assert.Len(t, store.ledgers["s1_2026-2027"].Items, len(ledgerAfterFirst.Items))
	assert.True(t, ledgerAfterFirst.TotalFee.Equal(store.ledgers["s1_2026-2027"].TotalFee))
}

func TestStartTransitionResumesAfterPartialRun(t *testing.T) {
	store := newFakeTransitionStore()
	store.addStudent("s1", "grade-3", false)
	store.addStudent("s2", "grade-3", false)
	store.promotions["s1|2026-2027"] = models.StudentPromotion{StudentID: "s1", ToYear: "2026-2027", Outcome: models.OutcomePromoted}
	svc, _ := newTransitionService(store, time.Minute)

	result, err := svc.StartTransition(context.Background(), models.StartAcademicYearRequest{NewYearLabel: "2026-2027"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Stats.Promoted)
	assert.Equal(t, "grade-3", store.students["s1"].ClassID)
	assert.Equal(t, "grade-4", store.students["s2"].ClassID)
}

func TestStartTransitionRequiresUpcomingTarget(t *testing.T) {
	store := newFakeTransitionStore()
	svc, _ := newTransitionService(store, time.Minute)

	_, err := svc.StartTransition(context.Background(), models.StartAcademicYearRequest{NewYearLabel: "2030-2031"})
	assert.True(t, errors.Is(err, appErrors.ErrConflict))

	_, err = svc.StartTransition(context.Background(), models.StartAcademicYearRequest{NewYearLabel: "2025-2026"})
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
	assert.Zero(t, store.applyCalls)
}

func TestStartTransitionStaleStateConflicts(t *testing.T) {
	store := newFakeTransitionStore()
	store.addStudent("s1", "grade-3", false)
	store.staleOnce = true
	svc, spy := newTransitionService(store, time.Minute)

	_, err := svc.StartTransition(context.Background(), models.StartAcademicYearRequest{NewYearLabel: "2026-2027"})
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
	assert.Equal(t, "2025-2026", store.state.ActiveYear)
	assert.Zero(t, spy.calls)
}

func TestStartTransitionTimeoutReportsPartialStats(t *testing.T) {
	store := newFakeTransitionStore()
	store.addStudent("s1", "grade-3", false)
	store.addStudent("s2", "grade-3", false)
	store.addStudent("s3", "grade-3", false)
	store.slowAfter = 1
	svc, _ := newTransitionService(store, 20*time.Millisecond)

	_, err := svc.StartTransition(context.Background(), models.StartAcademicYearRequest{NewYearLabel: "2026-2027"})
	require.Error(t, err)

	var aborted *TransitionAbortedError
	require.True(t, errors.As(err, &aborted))
	assert.True(t, errors.Is(err, appErrors.ErrTransitionAborted))
	assert.Equal(t, 1, aborted.Stats.Promoted)
	assert.Equal(t, 2, aborted.Remaining)
	assert.Equal(t, "2025-2026", store.state.ActiveYear)
}

func TestNextClassIndex(t *testing.T) {
	next := nextClassIndex([]models.Class{{ID: "a", Order: 1}, {ID: "b", Order: 2}})
	assert.Equal(t, "b", next["a"])
	value, ok := next["b"]
	assert.True(t, ok)
	assert.Empty(t, value)
}
