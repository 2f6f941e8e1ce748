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
	appErrors "github.com/spoorthyconceptschool/spoorthy-school-system-sub001/pkg/errors"
)

type notificationServiceMock struct {
	userID string
	unread bool
	limit  int
	read   map[string]bool
}

func (m *notificationServiceMock) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	m.userID, m.unread, m.limit = userID, unreadOnly, limit
	return []models.Notification{{ID: "n-1", UserID: userID, Title: "Attendance updated"}}, nil
}

func (m *notificationServiceMock) MarkRead(ctx context.Context, id, userID string) error {
	if !m.read[id] {
		return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
	}
	return nil
}

func notificationRequest(handlerFn gin.HandlerFunc, method, target, id string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, target, nil)
	if id != "" {
		c.Params = gin.Params{{Key: "id", Value: id}}
	}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u-teacher", Role: models.RoleTeacher})
	handlerFn(c)
	c.Writer.WriteHeaderNow()
	return w
}

func TestNotificationHandlerListScopesToCaller(t *testing.T) {
	svc := &notificationServiceMock{}
	h := NewNotificationHandler(svc)

	w := notificationRequest(h.List, http.MethodGet, "/notifications?unread=true&limit=10", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u-teacher", svc.userID)
	assert.True(t, svc.unread)
	assert.Equal(t, 10, svc.limit)
	items := decodeEnvelope(t, w)["data"].([]interface{})
	assert.Len(t, items, 1)
}

func TestNotificationHandlerMarkRead(t *testing.T) {
	h := NewNotificationHandler(&notificationServiceMock{read: map[string]bool{"n-1": true}})

	w := notificationRequest(h.MarkRead, http.MethodPost, "/notifications/n-1/read", "n-1")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = notificationRequest(h.MarkRead, http.MethodPost, "/notifications/n-9/read", "n-9")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
