package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/internal/middleware"
	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/internal/models"
	appErrors "github.com/spoorthyconceptschool/spoorthy-school-system-sub001/pkg/errors"
	"github.com/spoorthyconceptschool/spoorthy-school-system-sub001/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	claims, _ := c.Get(middleware.ContextUserKey)
	typed, _ := claims.(*models.JWTClaims)
	return typed
}

// requireClaims writes a 401 when the request carries no authenticated user.
func requireClaims(c *gin.Context) (*models.JWTClaims, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, false
	}
	return claims, true
}

func bindError(err error, message string) error {
	return appErrors.Invalid(err, message)
}
