package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/internal/models"
	appErrors "github.com/spoorthyconceptschool/spoorthy-school-system-sub001/pkg/errors"
)

type studentServiceMock struct {
	withPayments map[string]bool
	lastFilter   models.StudentFilter
}

func (m *studentServiceMock) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	m.lastFilter = filter
	return []models.Student{{ID: "stu-1"}}, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: 1}, nil
}

func (m *studentServiceMock) Get(ctx context.Context, id string) (*models.Student, error) {
	return &models.Student{ID: id}, nil
}

func (m *studentServiceMock) CanDelete(ctx context.Context, id string) (*models.DeletionEligibility, error) {
	if m.withPayments[id] {
		return &models.DeletionEligibility{CanDelete: false, Reason: "student has 1 recorded payment(s); deactivate instead"}, nil
	}
	return &models.DeletionEligibility{CanDelete: true}, nil
}

func (m *studentServiceMock) Delete(ctx context.Context, id string) error {
	if m.withPayments[id] {
		return appErrors.Clone(appErrors.ErrConflict, "student has payment history and cannot be deleted; deactivate instead")
	}
	return nil
}

func (m *studentServiceMock) Deactivate(ctx context.Context, id string) error { return nil }

func (m *studentServiceMock) Reactivate(ctx context.Context, id string) error { return nil }

func (m *studentServiceMock) SetRetention(ctx context.Context, id string, req models.SetRetentionRequest) (*models.Student, error) {
	return &models.Student{ID: id, Retain: *req.Retain}, nil
}

func studentRequest(fn gin.HandlerFunc, method, path, id string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(method, path, nil)
	c.Params = gin.Params{{Key: "id", Value: id}}
	fn(c)
	c.Writer.WriteHeaderNow()
	return w
}

func TestStudentHandlerDeletionGate(t *testing.T) {
	h := NewStudentHandler(&studentServiceMock{withPayments: map[string]bool{"stu-1": true}})

	w := studentRequest(h.CanDelete, http.MethodGet, "/students/stu-1/can-delete", "stu-1")
	require.Equal(t, http.StatusOK, w.Code)
	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.Equal(t, false, data["canDelete"])

	w = studentRequest(h.Delete, http.MethodDelete, "/students/stu-1", "stu-1")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = studentRequest(h.Delete, http.MethodDelete, "/students/stu-2", "stu-2")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestStudentHandlerListParsesPagination(t *testing.T) {
	svc := &studentServiceMock{}
	h := NewStudentHandler(svc)

	w := studentRequest(h.List, http.MethodGet, "/students?classId=grade-4&page=2&pageSize=10&status=ACTIVE", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, svc.lastFilter.Page)
	assert.Equal(t, 10, svc.lastFilter.PageSize)
	assert.Equal(t, "grade-4", svc.lastFilter.ClassID)
	assert.Equal(t, models.StatusActive, svc.lastFilter.Status)
	assert.NotNil(t, decodeEnvelope(t, w)["pagination"])
}
