package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/internal/middleware"
	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/internal/models"
	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/internal/service"
	appErrors "github.com/spoorthyconceptschool/spoorthy-school-system-sub001/pkg/errors"
)

type attendanceServiceMock struct {
	marked    models.MarkAttendanceRequest
	markActor *models.JWTClaims
	markErr   error
	query     service.SheetQuery
}

func (m *attendanceServiceMock) Mark(ctx context.Context, req models.MarkAttendanceRequest, actor *models.JWTClaims) (*models.AttendanceResult, error) {
	m.marked = req
	m.markActor = actor
	if m.markErr != nil {
		return nil, m.markErr
	}
	return &models.AttendanceResult{RecordID: "rec-1", ChangesCount: len(req.Records), NotifCount: 1}, nil
}

func (m *attendanceServiceMock) MarkStaff(ctx context.Context, req models.MarkStaffAttendanceRequest, actor *models.JWTClaims) (*models.AttendanceResult, error) {
	return &models.AttendanceResult{RecordID: "rec-staff"}, nil
}

func (m *attendanceServiceMock) Sheet(ctx context.Context, query service.SheetQuery, actor *models.JWTClaims) (*models.AttendanceSheet, error) {
	m.query = query
	return &models.AttendanceSheet{RecordID: "rec-1", Date: query.Date, ClassID: query.ClassID}, nil
}

func TestAttendanceHandlerMarkReturnsCounts(t *testing.T) {
	svc := &attendanceServiceMock{}
	h := NewAttendanceHandler(svc)
	teacher := &models.JWTClaims{UserID: "u-t", Role: models.RoleTeacher, LinkedID: "t-1"}

	body := `{"classId":"c5","sectionId":"A","date":"2025-07-01","records":{"s1":"P","s2":"A"},"touchedIds":["s2"]}`
	w := postJSON(h.Mark, "/attendance/mark", body, teacher)

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeEnvelope(t, w)["data"].(map[string]interface{})
	assert.Equal(t, float64(2), data["changesCount"])
	assert.Equal(t, float64(1), data["notifCount"])
	assert.Equal(t, []string{"s2"}, svc.marked.TouchedIDs)
	assert.Same(t, teacher, svc.markActor)
}

func TestAttendanceHandlerMarkRequiresIdentity(t *testing.T) {
	h := NewAttendanceHandler(&attendanceServiceMock{})
	w := postJSON(h.Mark, "/attendance/mark", `{}`, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAttendanceHandlerMarkSurfacesServiceErrors(t *testing.T) {
	svc := &attendanceServiceMock{markErr: appErrors.Clone(appErrors.ErrForbidden, "not assigned to this section")}
	h := NewAttendanceHandler(svc)

	body := `{"classId":"c5","sectionId":"A","date":"2025-07-01","records":{"s1":"P"}}`
	w := postJSON(h.Mark, "/attendance/mark", body, &models.JWTClaims{UserID: "u-t", Role: models.RoleTeacher})

	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", decodeEnvelope(t, w)["error"].(map[string]interface{})["code"])
}

func TestAttendanceHandlerSheetReadsQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &attendanceServiceMock{}
	h := NewAttendanceHandler(svc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/attendance/sheet?classId=c5&sectionId=A&date=2025-07-01", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u-admin", Role: models.RoleAdmin})
	h.Sheet(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, service.SheetQuery{ClassID: "c5", SectionID: "A", Date: "2025-07-01"}, svc.query)
}
