package api

import (
	"strconv"
	"strings"

	"marketplace-orders/internal/apperr"
	"marketplace-orders/internal/models"
	"marketplace-orders/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type errorResponse struct {
	Error   apperr.Kind `json:"error"`
	Message string      `json:"message"`
}

// respondError renders err as {"error": kind, "message": ...}. Internal
// errors are logged and their detail is not exposed.
func respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal || kind == apperr.KindPaymentProvider {
		util.GetLogger().Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.JSON(apperr.HTTPStatus(kind), errorResponse{Error: kind, Message: apperr.MessageOf(err)})
}

func abortWithError(c *gin.Context, err error) {
	respondError(c, err)
	c.Abort()
}

// bindJSON binds the body and renders binding failures as validation errors.
func bindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		respondError(c, apperr.Validation("invalid request body: %v", err))
		return false
	}
	return true
}

// pathID parses the :id path parameter.
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, apperr.Validation("invalid id %q", c.Param("id")))
		return 0, false
	}
	return id, true
}

// statusQuery reads ?status= as repeated or comma separated values.
func statusQuery(c *gin.Context) ([]models.OrderStatus, bool) {
	var statuses []models.OrderStatus
	for _, raw := range c.QueryArray("status") {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part == "" {
				continue
			}
			s, ok := models.ParseOrderStatus(part)
			if !ok {
				respondError(c, apperr.Validation("unknown order status %q", part))
				return nil, false
			}
			statuses = append(statuses, s)
		}
	}
	return statuses, true
}

func parseStatus(c *gin.Context, raw string) (models.OrderStatus, bool) {
	s, ok := models.ParseOrderStatus(raw)
	if !ok {
		respondError(c, apperr.Validation("unknown order status %q", raw))
	}
	return s, ok
}
