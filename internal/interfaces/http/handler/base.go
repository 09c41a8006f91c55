package handler

import (
	"net/http"

	"github.com/fitpulse/backend/internal/domain/shared"
	"github.com/fitpulse/backend/internal/infrastructure/logger"
	"github.com/fitpulse/backend/internal/interfaces/http/dto"
	"github.com/fitpulse/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

func getRequestID(c *gin.Context) string {
	return c.GetString(logger.GinRequestIDKey)
}

func getUserID(c *gin.Context) string {
	return middleware.GetJWTUserID(c)
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponse(code, message).WithRequestID(getRequestID(c)))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// Unauthorized sends a 401 unauthorized response
func (h *BaseHandler) Unauthorized(c *gin.Context, message string) {
	h.Error(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// ValidationError sends a 400 response listing the rejected fields
func (h *BaseHandler) ValidationError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, middleware.FormatValidationErrors(err, getRequestID(c)))
}

// HandleError maps a domain error to its status and code. Anything else is
// logged and reported as an internal error without details.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	_ = c.Error(err)
	status, code, message := statusOf(err)
	if code == dto.ErrCodeInternal {
		logger.L(c.Request.Context()).Error("Unhandled error", zap.Error(err))
	}
	h.Error(c, status, code, message)
}

// statusOf returns the status, code and client-safe message for err
func statusOf(err error) (int, string, string) {
	if de, ok := shared.AsDomainError(err); ok {
		return dto.GetHTTPStatus(de.Code), de.Code, de.Message
	}
	return http.StatusInternalServerError, dto.ErrCodeInternal, "An internal error occurred"
}
