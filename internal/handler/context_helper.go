package handler

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/testmentor-api/internal/middleware"
	"github.com/noah-isme/testmentor-api/internal/models"
	appErrors "github.com/noah-isme/testmentor-api/pkg/errors"
	"github.com/noah-isme/testmentor-api/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// requireActor writes 401 and returns nil when the request carries no identity.
func requireActor(c *gin.Context) *models.JWTClaims {
	claims := claimsFromContext(c)
	if claims.Identity() == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil
	}
	return claims
}

func parseInstantQuery(c *gin.Context, key string, required bool) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		if required {
			return nil, appErrors.Clone(appErrors.ErrValidation, key+" is required")
		}
		return nil, nil
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, key+" must be an RFC3339 timestamp")
	}
	return &at, nil
}

func parseCategoryQuery(c *gin.Context) (*models.TestCategory, error) {
	raw := strings.TrimSpace(c.Query("category"))
	if raw == "" {
		return nil, nil
	}
	category := models.TestCategory(strings.ToUpper(raw))
	if !category.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid test category")
	}
	return &category, nil
}

func intQuery(c *gin.Context, key string, fallback int) int {
	value, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return fallback
	}
	return value
}
